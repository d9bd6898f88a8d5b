package main

import (
	"context"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubbing"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/playback"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/webhook"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// DubbingService is the part of the orchestrator the handlers use
type DubbingService interface {
	Submit(ctx context.Context, in dubbing.SubmitInput) (*dubbing.SubmitResult, error)
	JobStatus(ctx context.Context, sectionID string) ([]models.LanguageStatus, error)
	GetJob(ctx context.Context, jobID string) (*models.DubJob, error)
	HandleCallback(ctx context.Context, cb *models.DubbingCallback) (*models.DubJob, error)
}

// SessionService manages playback sessions
type SessionService interface {
	Open(ctx context.Context, req playback.OpenRequest) (models.PlaybackSession, error)
	Get(id string) (models.PlaybackSession, error)
	Switch(ctx context.Context, id, lang string) (models.PlaybackSession, error)
	Close(id string) error
}

// TrackCatalog lists the languages offered for a section
type TrackCatalog interface {
	Build(ctx context.Context, sectionID string, detected []models.EngineTrack) ([]models.TrackDescriptor, error)
}

// SourceLocator resolves where a section's original media lives
type SourceLocator interface {
	SourceURL(ctx context.Context, sectionID string) (string, error)
}

// API holds handler dependencies
type API struct {
	dubbing  DubbingService
	sessions SessionService
	catalog  TrackCatalog
	sources  SourceLocator
	verifier *webhook.Verifier
	logger   *logging.Logger
	health   map[string]func(context.Context) error
}
