package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DubJob represents one (content section, target language) dubbing unit
type DubJob struct {
	ID               string      `json:"id" db:"id"`
	ContentSectionID string      `json:"content_section_id" db:"content_section_id"`
	SourceLocation   string      `json:"source_location" db:"source_location"`
	TargetLanguage   string      `json:"target_language" db:"target_language"`
	State            DubJobState `json:"state" db:"state"`
	RemoteHandle     string      `json:"remote_handle,omitempty" db:"remote_handle"`
	ResultLocation   string      `json:"result_location,omitempty" db:"result_location"`
	LastError        string      `json:"last_error,omitempty" db:"last_error"`
	Request          DubRequest  `json:"request" db:"request"`
	SubmittedAt      *time.Time  `json:"submitted_at,omitempty" db:"submitted_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// DubJobState is a state of the dubbing job state machine
type DubJobState string

// DubJobState constants
const (
	DubJobQueued     DubJobState = "queued"
	DubJobSubmitted  DubJobState = "submitted"
	DubJobProcessing DubJobState = "processing"
	DubJobReady      DubJobState = "ready"
	DubJobFailed     DubJobState = "failed"
)

// ActiveDubJobStates lists the non-terminal states
var ActiveDubJobStates = []DubJobState{DubJobQueued, DubJobSubmitted, DubJobProcessing}

// IsTerminal reports whether no further transition may leave this state.
func (s DubJobState) IsTerminal() bool {
	return s == DubJobReady || s == DubJobFailed
}

// Valid reports whether s is a known state.
func (s DubJobState) Valid() bool {
	switch s {
	case DubJobQueued, DubJobSubmitted, DubJobProcessing, DubJobReady, DubJobFailed:
		return true
	}
	return false
}

// DubRequest holds the submission parameters recorded with a job
type DubRequest struct {
	RequestedBy string            `json:"requested_by,omitempty"`
	RawLanguage string            `json:"raw_language,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Value implements driver.Valuer for database storage
func (r DubRequest) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for database retrieval
func (r *DubRequest) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	}
	return nil
}

// LanguageStatus summarizes the latest job for one language of a section
type LanguageStatus struct {
	Language       string      `json:"language"`
	JobID          string      `json:"job_id"`
	State          DubJobState `json:"state"`
	ResultLocation string      `json:"result_location,omitempty"`
	Error          string      `json:"error,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
