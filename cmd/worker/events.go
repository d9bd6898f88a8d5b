package main

import (
	"context"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// JobSource loads dub jobs
type JobSource interface {
	GetJob(ctx context.Context, jobID string) (*models.DubJob, error)
}

// TrackCache drops cached dub track lists
type TrackCache interface {
	Invalidate(ctx context.Context, sectionID string) error
}

// PollTracker schedules a job for status polling
type PollTracker interface {
	Track(jobID string)
}

// EventDeliverer posts an event to a submitter's callback URL
type EventDeliverer interface {
	Deliver(ctx context.Context, url string, event *models.DubJobEvent) error
}

// eventHandler reacts to dub job state changes published by any process
type eventHandler struct {
	jobs     JobSource
	tracks   TrackCache
	poller   PollTracker
	delivery EventDeliverer
	timeout  time.Duration
	logger   *logging.Logger
}

func (h *eventHandler) handle(ctx context.Context, event *models.DubJobEvent) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	logger := h.logger.WithJobID(event.JobID).WithSectionID(event.SectionID)

	switch event.To {
	case models.DubJobSubmitted, models.DubJobProcessing:
		// The API process submits; this process polls
		h.poller.Track(event.JobID)
		return nil
	case models.DubJobReady, models.DubJobFailed:
	default:
		return nil
	}

	if event.To == models.DubJobReady {
		if err := h.tracks.Invalidate(ctx, event.SectionID); err != nil {
			metrics.RecordError("worker", "cache_invalidate")
			return fmt.Errorf("failed to invalidate dub tracks: %w", err)
		}
	}

	job, err := h.jobs.GetJob(ctx, event.JobID)
	if err != nil {
		return fmt.Errorf("failed to load dub job: %w", err)
	}
	if job.Request.CallbackURL == "" {
		return nil
	}

	if err := h.delivery.Deliver(ctx, job.Request.CallbackURL, event); err != nil {
		metrics.RecordError("worker", "webhook_delivery")
		return fmt.Errorf("failed to deliver %s: %w", event.Event, err)
	}

	logger.WithField("event", event.Event).Info("Delivered dub job event")
	return nil
}

// ExpiryLocker serializes the stale job sweep across workers
type ExpiryLocker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
}

// Expirer fails dub jobs stuck past the processing timeout
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

const expiryLockName = "dub-expiry"

// runExpiry sweeps stale jobs every interval. The lock is left to lapse so
// at most one worker sweeps per interval.
func runExpiry(ctx context.Context, locker ExpiryLocker, expirer Expirer, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sweepOnce(ctx, locker, expirer, interval, now, logger)
		}
	}
}

func sweepOnce(ctx context.Context, locker ExpiryLocker, expirer Expirer, interval time.Duration, now time.Time, logger *logging.Logger) int {
	held, err := locker.AcquireLock(ctx, expiryLockName, interval)
	if err != nil {
		logger.ErrorWithErr("Failed to acquire expiry lock", err)
		return 0
	}
	if !held {
		return 0
	}

	expired, err := expirer.ExpireStale(ctx, now)
	if err != nil {
		logger.ErrorWithErr("Failed to expire stale dub jobs", err)
		return 0
	}
	if expired > 0 {
		logger.Infof("Expired %d stale dub jobs", expired)
	}
	return expired
}
