package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// Repository errors
var (
	ErrNotFound        = errors.New("record not found")
	ErrActiveJobExists = errors.New("active dub job already exists for section and language")
	ErrStateConflict   = errors.New("dub job state changed concurrently")
)

const uniqueViolation = "23505"

const dubJobColumns = `id, content_section_id, source_location, target_language, state, remote_handle,
		       result_location, last_error, request, submitted_at, completed_at, created_at, updated_at`

// Repository provides database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func scanDubJob(row pgx.Row) (*models.DubJob, error) {
	var job models.DubJob
	var state string

	err := row.Scan(
		&job.ID, &job.ContentSectionID, &job.SourceLocation, &job.TargetLanguage, &state,
		&job.RemoteHandle, &job.ResultLocation, &job.LastError, &job.Request,
		&job.SubmittedAt, &job.CompletedAt, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.State = models.DubJobState(state)
	return &job, nil
}

func collectDubJobs(rows pgx.Rows) ([]*models.DubJob, error) {
	defer rows.Close()

	var jobs []*models.DubJob
	for rows.Next() {
		job, err := scanDubJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dub job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// Dub jobs

// CreateDubJob inserts a new dub job. It returns ErrActiveJobExists when a
// non-terminal job for the same section and language is already stored.
func (r *Repository) CreateDubJob(ctx context.Context, job *models.DubJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	query := `
		INSERT INTO dub_jobs (id, content_section_id, source_location, target_language, state,
		                      remote_handle, result_location, last_error, request, submitted_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.ID, job.ContentSectionID, job.SourceLocation, job.TargetLanguage, string(job.State),
		job.RemoteHandle, job.ResultLocation, job.LastError, job.Request,
		job.SubmittedAt, job.CompletedAt,
	).Scan(&job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrActiveJobExists
		}
		return fmt.Errorf("failed to create dub job: %w", err)
	}

	return nil
}

// GetDubJob retrieves a dub job by ID
func (r *Repository) GetDubJob(ctx context.Context, id string) (*models.DubJob, error) {
	query := `SELECT ` + dubJobColumns + ` FROM dub_jobs WHERE id = $1`

	job, err := scanDubJob(r.db.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dub job: %w", err)
	}

	return job, nil
}

// GetDubJobByHandle retrieves a dub job by the remote service's job handle
func (r *Repository) GetDubJobByHandle(ctx context.Context, handle string) (*models.DubJob, error) {
	query := `SELECT ` + dubJobColumns + ` FROM dub_jobs WHERE remote_handle = $1 ORDER BY created_at DESC LIMIT 1`

	job, err := scanDubJob(r.db.Pool.QueryRow(ctx, query, handle))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dub job by handle: %w", err)
	}

	return job, nil
}

// FindActiveDubJob returns the non-terminal job for a section and language
func (r *Repository) FindActiveDubJob(ctx context.Context, sectionID, lang string) (*models.DubJob, error) {
	query := `
		SELECT ` + dubJobColumns + `
		FROM dub_jobs
		WHERE content_section_id = $1 AND target_language = $2 AND state = ANY($3)
		LIMIT 1
	`

	job, err := scanDubJob(r.db.Pool.QueryRow(ctx, query, sectionID, lang, activeStates()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active dub job: %w", err)
	}

	return job, nil
}

// CompareAndSetState persists job's mutable fields only if the stored state
// still equals expected. It returns ErrStateConflict otherwise.
func (r *Repository) CompareAndSetState(ctx context.Context, job *models.DubJob, expected models.DubJobState) error {
	query := `
		UPDATE dub_jobs
		SET state = $3, remote_handle = $4, result_location = $5, last_error = $6,
		    submitted_at = $7, completed_at = $8, updated_at = NOW()
		WHERE id = $1 AND state = $2
		RETURNING updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		job.ID, string(expected), string(job.State), job.RemoteHandle, job.ResultLocation,
		job.LastError, job.SubmittedAt, job.CompletedAt,
	).Scan(&job.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStateConflict
	}
	if err != nil {
		return fmt.Errorf("failed to update dub job state: %w", err)
	}

	return nil
}

// ListDubJobsBySection returns all jobs of a section, newest first
func (r *Repository) ListDubJobsBySection(ctx context.Context, sectionID string) ([]*models.DubJob, error) {
	query := `
		SELECT ` + dubJobColumns + `
		FROM dub_jobs
		WHERE content_section_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dub jobs: %w", err)
	}

	return collectDubJobs(rows)
}

// ListActiveDubJobs returns non-terminal jobs, oldest first
func (r *Repository) ListActiveDubJobs(ctx context.Context, limit int) ([]*models.DubJob, error) {
	query := `
		SELECT ` + dubJobColumns + `
		FROM dub_jobs
		WHERE state = ANY($1)
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool.Query(ctx, query, activeStates(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active dub jobs: %w", err)
	}

	return collectDubJobs(rows)
}

// ListStaleDubJobs returns active jobs that have been waiting since before
// cutoff: submitted or processing jobs by submission time, queued jobs by
// creation time.
func (r *Repository) ListStaleDubJobs(ctx context.Context, cutoff time.Time) ([]*models.DubJob, error) {
	query := `
		SELECT ` + dubJobColumns + `
		FROM dub_jobs
		WHERE (state IN ('submitted', 'processing') AND submitted_at < $1)
		   OR (state = 'queued' AND created_at < $1)
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale dub jobs: %w", err)
	}

	return collectDubJobs(rows)
}

// ListDubTracks returns the ready dub tracks of a section, most recently
// completed first.
func (r *Repository) ListDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, error) {
	query := `
		SELECT id, content_section_id, target_language, state, result_location, completed_at
		FROM dub_jobs
		WHERE content_section_id = $1 AND state = 'ready'
		ORDER BY completed_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dub tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.DubTrack
	for rows.Next() {
		var track models.DubTrack
		var completedAt *time.Time
		if err := rows.Scan(&track.JobID, &track.SectionID, &track.Language, &track.Status,
			&track.Location, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dub track: %w", err)
		}
		if completedAt != nil {
			track.CompletedAt = *completedAt
		}
		tracks = append(tracks, track)
	}

	return tracks, rows.Err()
}

func activeStates() []string {
	states := make([]string, 0, len(models.ActiveDubJobStates))
	for _, s := range models.ActiveDubJobStates {
		states = append(states, string(s))
	}
	return states
}

// CountDubJobsByState returns the number of jobs in each state
func (r *Repository) CountDubJobsByState(ctx context.Context) (map[models.DubJobState]int, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT state, COUNT(*) FROM dub_jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count dub jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.DubJobState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan dub job count: %w", err)
		}
		counts[models.DubJobState(state)] = n
	}

	return counts, rows.Err()
}
