package playback

import "errors"

// Session errors
var (
	ErrManifestLoadFailed = errors.New("manifest load failed")
	ErrEngineUnsupported  = errors.New("no usable playback engine on this platform")
	ErrSwitchInProgress   = errors.New("a language switch is already in progress")
	ErrSessionNotReady    = errors.New("playback session is not ready")
	ErrSessionNotFound    = errors.New("playback session not found")
	ErrSessionClosed      = errors.New("playback session is closed")
	ErrInvalidTransition  = errors.New("invalid playback session transition")
)
