package models

import "time"

// DubJobEvent is published whenever a dub job changes state
type DubJobEvent struct {
	Event     string      `json:"event"`
	JobID     string      `json:"job_id"`
	SectionID string      `json:"section_id"`
	Language  string      `json:"language"`
	From      DubJobState `json:"from"`
	To        DubJobState `json:"to"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
}

// Dub job event types
const (
	DubEventSubmitted  = "dub.submitted"
	DubEventProcessing = "dub.processing"
	DubEventReady      = "dub.ready"
	DubEventFailed     = "dub.failed"
)

// EventForState returns the event type emitted on entering state.
func EventForState(state DubJobState) string {
	switch state {
	case DubJobSubmitted:
		return DubEventSubmitted
	case DubJobProcessing:
		return DubEventProcessing
	case DubJobReady:
		return DubEventReady
	case DubJobFailed:
		return DubEventFailed
	}
	return ""
}

// DubbingCallback is the payload the remote dubbing service posts on status changes
type DubbingCallback struct {
	JobHandle      string `json:"job_handle"`
	State          string `json:"state"`
	ResultLocation string `json:"result_location,omitempty"`
	Error          string `json:"error,omitempty"`
}
