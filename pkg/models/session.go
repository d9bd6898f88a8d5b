package models

import "time"

// PlaybackSession is a snapshot of one viewer's live playback state
type PlaybackSession struct {
	ID               string            `json:"id"`
	ContentSectionID string            `json:"content_section_id"`
	ViewerID         string            `json:"viewer_id,omitempty"`
	EngineKind       EngineKind        `json:"engine_kind,omitempty"`
	CurrentLanguage  string            `json:"current_language,omitempty"`
	AvailableTracks  []TrackDescriptor `json:"available_tracks"`
	EngineState      EngineState       `json:"engine_state"`
	RetryCount       int               `json:"retry_count"`
	LastError        string            `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// EngineKind identifies the playback engine driving a session
type EngineKind string

// EngineKind constants
const (
	EngineNative   EngineKind = "native"
	EngineFallback EngineKind = "fallback"
)

// EngineState is a state of the playback session state machine
type EngineState string

// EngineState constants
const (
	EngineInitializing    EngineState = "initializing"
	EngineSelecting       EngineState = "engine_selecting"
	EngineManifestLoading EngineState = "manifest_loading"
	EngineReady           EngineState = "ready"
	EngineSwitching       EngineState = "switching"
	EngineError           EngineState = "error"
)

// IsTerminal reports whether the session can no longer make progress.
func (s EngineState) IsTerminal() bool {
	return s == EngineError
}
