package models

import "time"

// TrackDescriptor is a resolved, playable audio language option for a content section
type TrackDescriptor struct {
	CanonicalLanguage string     `json:"canonical_language"`
	DisplayLabel      string     `json:"display_label"`
	SourceKind        SourceKind `json:"source_kind"`
	PlayableLocation  string     `json:"playable_location,omitempty"`
}

// Playable reports whether the descriptor points at real media.
func (t TrackDescriptor) Playable() bool {
	return t.SourceKind != SourceFallbackPlaceholder
}

// SourceKind records where a track descriptor came from
type SourceKind string

// SourceKind constants
const (
	SourceOrigin              SourceKind = "origin"
	SourceDatabaseDub         SourceKind = "database_dub"
	SourceManifestDetected    SourceKind = "manifest_detected"
	SourceFallbackPlaceholder SourceKind = "fallback_placeholder"
)

// DubTrack is a database-backed dubbed audio track for a section
type DubTrack struct {
	JobID       string    `json:"job_id" db:"id"`
	SectionID   string    `json:"section_id" db:"content_section_id"`
	Language    string    `json:"language" db:"target_language"`
	Status      string    `json:"status" db:"state"`
	Location    string    `json:"location" db:"result_location"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// EngineTrack is an audio track as reported by a playback engine
type EngineTrack struct {
	Index    int    `json:"index"`
	Language string `json:"language,omitempty"`
	Label    string `json:"label,omitempty"`
	GroupID  string `json:"group_id,omitempty"`
	URI      string `json:"uri,omitempty"`
	Default  bool   `json:"default"`
}
