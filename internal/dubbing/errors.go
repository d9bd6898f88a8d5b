package dubbing

import "errors"

// Orchestrator errors
var (
	ErrSubmissionRejected     = errors.New("submission rejected: an active dub job exists for this language")
	ErrRemoteSubmissionFailed = errors.New("remote dubbing submission failed")
	ErrJobTimedOut            = errors.New("dub job exceeded processing timeout")
	ErrTerminalState          = errors.New("dub job is in a terminal state")
	ErrInvalidTransition      = errors.New("invalid dub job transition")
	ErrJobNotFound            = errors.New("dub job not found")
	ErrInvalidLanguage        = errors.New("unrecognized target language")
	ErrInvalidRequest         = errors.New("invalid dubbing request")
)
