// Package dubbing drives dub jobs through their lifecycle: submission to the
// remote dubbing service, state advancement from callbacks or polls, and
// expiry of jobs the service never finishes.
package dubbing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/config"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/database"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubclient"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/language"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/tracing"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Store persists dub jobs
type Store interface {
	CreateDubJob(ctx context.Context, job *models.DubJob) error
	GetDubJob(ctx context.Context, id string) (*models.DubJob, error)
	GetDubJobByHandle(ctx context.Context, handle string) (*models.DubJob, error)
	FindActiveDubJob(ctx context.Context, sectionID, lang string) (*models.DubJob, error)
	CompareAndSetState(ctx context.Context, job *models.DubJob, expected models.DubJobState) error
	ListDubJobsBySection(ctx context.Context, sectionID string) ([]*models.DubJob, error)
	ListActiveDubJobs(ctx context.Context, limit int) ([]*models.DubJob, error)
	ListStaleDubJobs(ctx context.Context, cutoff time.Time) ([]*models.DubJob, error)
}

// RemoteService is the remote dubbing service
type RemoteService interface {
	Submit(ctx context.Context, req dubclient.SubmitRequest) (string, error)
	Status(ctx context.Context, handle string) (*dubclient.Status, error)
}

// Notifier receives every accepted state transition
type Notifier interface {
	PublishDubEvent(ctx context.Context, event *models.DubJobEvent) error
}

// Options configures an Orchestrator
type Options struct {
	DuplicatePolicy   string
	ProcessingTimeout time.Duration
	CallbackURL       string
	MaxConcurrent     int
}

// Orchestrator owns every dub job state change
type Orchestrator struct {
	store    Store
	remote   RemoteService
	notifier Notifier
	opts     Options
	logger   *logging.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. notifier may be nil.
func NewOrchestrator(store Store, remote RemoteService, notifier Notifier, opts Options, logger *logging.Logger) *Orchestrator {
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = config.DuplicatePolicyReject
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	return &Orchestrator{
		store:    store,
		remote:   remote,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// SubmitInput is a request to dub one section into several languages
type SubmitInput struct {
	SectionID      string
	SourceLocation string
	Languages      []string
	RequestedBy    string
	CallbackURL    string
}

// Outcome is the per-language result of a submission
type Outcome string

// Submission outcomes
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// LanguageResult reports what happened to one requested language
type LanguageResult struct {
	Requested string  `json:"requested"`
	Language  string  `json:"language"`
	Outcome   Outcome `json:"outcome"`
	JobID     string  `json:"job_id,omitempty"`
	Coalesced bool    `json:"coalesced,omitempty"`
	Error     string  `json:"error,omitempty"`
	Err       error   `json:"-"`
}

// SubmitResult is the outcome of a submission, one entry per requested language
type SubmitResult struct {
	Accepted          bool             `json:"accepted"`
	RejectedLanguages []string         `json:"rejected_languages"`
	Results           []LanguageResult `json:"results"`
}

func (r *LanguageResult) fail(outcome Outcome, err error) {
	r.Outcome = outcome
	r.Err = err
	r.Error = err.Error()
}

// Submit creates one dub job per new language and sends each to the remote
// service. Every language is reported individually; only a malformed request
// fails as a whole.
func (o *Orchestrator) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	span, ctx := tracing.StartSpan(ctx, "dubbing.submit")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "dub.section_id", in.SectionID)

	if in.SectionID == "" || in.SourceLocation == "" || len(in.Languages) == 0 {
		return nil, fmt.Errorf("%w: section, source location and at least one language are required", ErrInvalidRequest)
	}

	results := make([]LanguageResult, len(in.Languages))
	pending := make(map[int]*models.DubJob)
	seen := make(map[string]bool)

	for i, raw := range in.Languages {
		res := &results[i]
		res.Requested = raw
		res.Language = language.Normalize(raw)

		if !language.Known(res.Language) {
			res.fail(OutcomeRejected, fmt.Errorf("%w: %q", ErrInvalidLanguage, raw))
			continue
		}
		if seen[res.Language] {
			res.fail(OutcomeRejected, fmt.Errorf("%w: %s requested more than once", ErrSubmissionRejected, res.Language))
			continue
		}
		seen[res.Language] = true

		job, err := o.reserve(ctx, in, res)
		if err != nil {
			res.fail(OutcomeFailed, err)
			continue
		}
		if job != nil {
			pending[i] = job
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(o.opts.MaxConcurrent)
	for i, job := range pending {
		res := &results[i]
		job := job
		g.Go(func() error {
			o.submitRemote(ctx, job, in.CallbackURL, res)
			return nil
		})
	}
	_ = g.Wait()

	out := &SubmitResult{Results: results, RejectedLanguages: []string{}}
	for _, res := range results {
		metrics.RecordDubSubmission(string(res.Outcome))
		switch res.Outcome {
		case OutcomeAccepted:
			out.Accepted = true
		case OutcomeRejected:
			out.RejectedLanguages = append(out.RejectedLanguages, res.Language)
		}
	}

	o.logger.WithSectionID(in.SectionID).WithFields(map[string]interface{}{
		"requested": len(in.Languages),
		"rejected":  len(out.RejectedLanguages),
		"accepted":  out.Accepted,
	}).Info("Dubbing submission processed")

	return out, nil
}

// reserve applies the duplicate policy and creates the queued job. It returns
// a nil job when the language was settled without a new job.
func (o *Orchestrator) reserve(ctx context.Context, in SubmitInput, res *LanguageResult) (*models.DubJob, error) {
	existing, err := o.store.FindActiveDubJob(ctx, in.SectionID, res.Language)
	switch {
	case err == nil:
		o.settleDuplicate(existing, res)
		return nil, nil
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("failed to check active jobs: %w", err)
	}

	job := &models.DubJob{
		ContentSectionID: in.SectionID,
		SourceLocation:   in.SourceLocation,
		TargetLanguage:   res.Language,
		State:            models.DubJobQueued,
		Request: models.DubRequest{
			RequestedBy: in.RequestedBy,
			RawLanguage: res.Requested,
			CallbackURL: in.CallbackURL,
		},
	}

	if err := o.store.CreateDubJob(ctx, job); err != nil {
		if errors.Is(err, database.ErrActiveJobExists) {
			// Lost a race with a concurrent submission
			if existing, ferr := o.store.FindActiveDubJob(ctx, in.SectionID, res.Language); ferr == nil {
				o.settleDuplicate(existing, res)
			} else {
				res.fail(OutcomeRejected, fmt.Errorf("%w: %s", ErrSubmissionRejected, res.Language))
			}
			return nil, nil
		}
		return nil, err
	}

	metrics.RecordDubJobCreated()
	res.JobID = job.ID
	return job, nil
}

func (o *Orchestrator) settleDuplicate(existing *models.DubJob, res *LanguageResult) {
	res.JobID = existing.ID
	if o.opts.DuplicatePolicy == config.DuplicatePolicyCoalesce {
		res.Outcome = OutcomeAccepted
		res.Coalesced = true
		return
	}
	res.fail(OutcomeRejected, fmt.Errorf("%w: %s (job %s is %s)", ErrSubmissionRejected, res.Language, existing.ID, existing.State))
}

// submitRemote sends one queued job to the remote service and records the
// outcome. A refusal is terminal for the job; retry is a new submission.
func (o *Orchestrator) submitRemote(ctx context.Context, job *models.DubJob, callbackURL string, res *LanguageResult) {
	logger := o.logger.WithJobID(job.ID).WithSectionID(job.ContentSectionID).WithLanguage(job.TargetLanguage)

	handle, err := o.remote.Submit(ctx, dubclient.SubmitRequest{
		SourceLocation: job.SourceLocation,
		TargetLanguage: job.TargetLanguage,
		CallbackURL:    o.opts.CallbackURL,
		ExternalID:     job.ID,
	})

	// The recorded state must not depend on the caller staying connected
	recordCtx := context.WithoutCancel(ctx)

	if err != nil {
		logger.LogRemoteFailure("submit", 1, err)
		if _, aerr := o.Advance(recordCtx, job.ID, Update{
			Source: SourceSubmit,
			State:  models.DubJobFailed,
			Error:  err.Error(),
		}); aerr != nil {
			logger.ErrorWithErr("Failed to record submission failure", aerr)
		}
		res.fail(OutcomeFailed, fmt.Errorf("%w: %v", ErrRemoteSubmissionFailed, err))
		return
	}

	if _, err := o.Advance(recordCtx, job.ID, Update{
		Source:       SourceSubmit,
		State:        models.DubJobSubmitted,
		RemoteHandle: handle,
	}); err != nil {
		logger.ErrorWithErr("Failed to record remote acceptance", err)
	}
	res.Outcome = OutcomeAccepted
}

// Update is one requested state change, from any transport
type Update struct {
	Source         Source
	State          models.DubJobState
	RemoteHandle   string
	ResultLocation string
	Error          string
	// ExpectState, when set, turns the update into a no-op unless the job
	// is still in that state.
	ExpectState models.DubJobState
}

// Advance moves a job to u.State. It is the single writer of job state for
// submission, callbacks, polls and timeouts. Re-applying the current state
// is a no-op; leaving a terminal state returns ErrTerminalState; any other
// edge outside the state machine returns ErrInvalidTransition.
func (o *Orchestrator) Advance(ctx context.Context, jobID string, u Update) (*models.DubJob, error) {
	span, ctx := tracing.StartSpan(ctx, "dubbing.advance")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "dub.to", string(u.State))
	tracing.SetTag(span, "dub.source", string(u.Source))

	unlock := o.locks.Lock(jobID)
	defer unlock()

	job, err := o.advanceLocked(ctx, jobID, u, true)
	tracing.LogError(span, err)
	if job != nil {
		tracing.TagDubJob(span, job.ID, job.ContentSectionID, job.TargetLanguage)
	}
	return job, err
}

func (o *Orchestrator) advanceLocked(ctx context.Context, jobID string, u Update, retryConflict bool) (*models.DubJob, error) {
	job, err := o.store.GetDubJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}

	if u.ExpectState != "" && job.State != u.ExpectState {
		return job, nil
	}

	from := job.State
	d, err := decide(from, u.State)
	if err != nil {
		return job, fmt.Errorf("%w: %s -> %s", err, from, u.State)
	}
	if d == decisionNoop {
		return job, nil
	}

	next := *job
	now := o.now()
	next.State = u.State

	switch u.State {
	case models.DubJobSubmitted:
		if u.RemoteHandle != "" {
			next.RemoteHandle = u.RemoteHandle
		}
		next.SubmittedAt = &now
	case models.DubJobReady:
		if u.ResultLocation == "" {
			return job, fmt.Errorf("%w: ready without a result location", ErrInvalidTransition)
		}
		next.ResultLocation = u.ResultLocation
		next.LastError = ""
		next.CompletedAt = &now
	case models.DubJobFailed:
		next.LastError = u.Error
		if next.LastError == "" {
			next.LastError = "remote dubbing failed without detail"
		}
		next.CompletedAt = &now
	}

	if err := o.store.CompareAndSetState(ctx, &next, from); err != nil {
		if errors.Is(err, database.ErrStateConflict) && retryConflict {
			// Another process moved the job; decide again on the fresh state
			return o.advanceLocked(ctx, jobID, u, false)
		}
		return job, fmt.Errorf("failed to advance dub job: %w", err)
	}

	metrics.RecordDubJobTransition(string(from), string(next.State), string(u.Source), next.State.IsTerminal())
	if next.State.IsTerminal() && next.SubmittedAt != nil {
		metrics.RecordDubJobCompleted(string(next.State), now.Sub(*next.SubmittedAt).Seconds())
	}

	details := map[string]interface{}{
		"section_id": next.ContentSectionID,
		"language":   next.TargetLanguage,
	}
	if next.LastError != "" {
		details["last_error"] = next.LastError
	}
	o.logger.LogJobTransition(next.ID, string(from), string(next.State), string(u.Source), details)

	o.notify(ctx, &next, from, u.Source)

	return &next, nil
}

func (o *Orchestrator) notify(ctx context.Context, job *models.DubJob, from models.DubJobState, source Source) {
	if o.notifier == nil {
		return
	}

	event := &models.DubJobEvent{
		Event:     models.EventForState(job.State),
		JobID:     job.ID,
		SectionID: job.ContentSectionID,
		Language:  job.TargetLanguage,
		From:      from,
		To:        job.State,
		Source:    string(source),
		Timestamp: o.now(),
	}

	if err := o.notifier.PublishDubEvent(ctx, event); err != nil {
		o.logger.WithJobID(job.ID).ErrorWithErr("Failed to publish dub event", err)
	}
}

// HandleCallback applies a remote service callback to the job it names
func (o *Orchestrator) HandleCallback(ctx context.Context, cb *models.DubbingCallback) (*models.DubJob, error) {
	state, err := dubclient.ParseState(cb.State)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	job, err := o.store.GetDubJobByHandle(ctx, cb.JobHandle)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: handle %s", ErrJobNotFound, cb.JobHandle)
		}
		return nil, err
	}

	return o.Advance(ctx, job.ID, Update{
		Source:         SourceCallback,
		State:          state,
		ResultLocation: cb.ResultLocation,
		Error:          cb.Error,
	})
}

// ExpireStale fails every active job older than the processing timeout and
// returns how many it failed.
func (o *Orchestrator) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-o.opts.ProcessingTimeout)

	jobs, err := o.store.ListStaleDubJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale dub jobs: %w", err)
	}

	expired := 0
	for _, job := range jobs {
		updated, err := o.Advance(ctx, job.ID, Update{
			Source:      SourceTimeout,
			State:       models.DubJobFailed,
			Error:       fmt.Sprintf("%s after %s", ErrJobTimedOut, o.opts.ProcessingTimeout),
			ExpectState: job.State,
		})
		if err != nil {
			o.logger.WithJobID(job.ID).ErrorWithErr("Failed to expire dub job", err)
			continue
		}
		if updated.State == models.DubJobFailed && job.State != models.DubJobFailed {
			expired++
		}
	}

	return expired, nil
}

// GetJob returns a job by id
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*models.DubJob, error) {
	job, err := o.store.GetDubJob(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, err
}

// JobStatus reports the latest job per language of a section
func (o *Orchestrator) JobStatus(ctx context.Context, sectionID string) ([]models.LanguageStatus, error) {
	jobs, err := o.store.ListDubJobsBySection(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dub jobs: %w", err)
	}

	statuses := make([]models.LanguageStatus, 0)
	seen := make(map[string]bool)
	for _, job := range jobs {
		if seen[job.TargetLanguage] {
			continue
		}
		seen[job.TargetLanguage] = true
		statuses = append(statuses, models.LanguageStatus{
			Language:       job.TargetLanguage,
			JobID:          job.ID,
			State:          job.State,
			ResultLocation: job.ResultLocation,
			Error:          job.LastError,
			UpdatedAt:      job.UpdatedAt,
		})
	}

	return statuses, nil
}
