package dubbing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/dubclient"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/scheduler"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
	"golang.org/x/sync/errgroup"
)

// PollerOptions configures a Poller
type PollerOptions struct {
	Interval  time.Duration
	Timeout   time.Duration
	BatchSize int
	// Concurrency bounds in-flight status queries
	Concurrency int
	// Tick is how often the schedule is checked for due jobs
	Tick time.Duration
}

// Poller asks the remote service for the status of active jobs whose
// callbacks may never arrive.
type Poller struct {
	orch   *Orchestrator
	store  Store
	remote RemoteService
	sched  *scheduler.Scheduler
	opts   PollerOptions
	logger *logging.Logger

	mu       sync.Mutex
	attempts map[string]int
}

// NewPoller creates a poller
func NewPoller(orch *Orchestrator, store Store, remote RemoteService, opts PollerOptions, logger *logging.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}

	return &Poller{
		orch:     orch,
		store:    store,
		remote:   remote,
		sched:    scheduler.NewScheduler(),
		opts:     opts,
		logger:   logger,
		attempts: make(map[string]int),
	}
}

// Load schedules every active job that has been handed to the remote service
// and is not already scheduled. It returns how many jobs were added.
func (p *Poller) Load(ctx context.Context) (int, error) {
	jobs, err := p.store.ListActiveDubJobs(ctx, p.opts.BatchSize)
	if err != nil {
		return 0, err
	}

	added := 0
	now := p.orch.now()
	for _, job := range jobs {
		if !activeJob(job) || p.sched.Contains(job.ID) {
			continue
		}
		p.sched.Schedule(job.ID, now.Add(p.opts.Interval))
		added++
	}

	return added, nil
}

// Track schedules a job for its first poll
func (p *Poller) Track(jobID string) {
	p.sched.Schedule(jobID, p.orch.now().Add(p.opts.Interval))
}

// Pending returns the number of scheduled jobs
func (p *Poller) Pending() int {
	return p.sched.Len()
}

// PollJob performs one bounded status query for a job and applies the
// result. A failed query leaves the job untouched and reschedules it.
func (p *Poller) PollJob(ctx context.Context, jobID string) error {
	logger := p.logger.WithJobID(jobID)

	job, err := p.store.GetDubJob(ctx, jobID)
	if err != nil {
		p.forget(jobID)
		return err
	}
	if !activeJob(job) {
		p.forget(jobID)
		return nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	status, err := p.remote.Status(pollCtx, job.RemoteHandle)
	cancel()

	if err != nil {
		attempt := p.attempt(jobID)
		reason := "request"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.RecordPollError(reason)
		logger.LogRemoteFailure("status", attempt, err)
		p.reschedule(jobID)
		return err
	}

	state, err := dubclient.ParseState(status.State)
	if err != nil {
		metrics.RecordPollError("unknown_state")
		logger.WithField("remote_state", status.State).Warn("Ignoring unknown remote state")
		p.reschedule(jobID)
		return err
	}

	updated, err := p.orch.Advance(ctx, jobID, Update{
		Source:         SourcePoll,
		State:          state,
		ResultLocation: status.ResultLocation,
		Error:          status.Error,
	})
	if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrTerminalState) {
		p.reschedule(jobID)
		return err
	}

	if updated != nil && updated.State.IsTerminal() {
		p.forget(jobID)
		return nil
	}

	p.reschedule(jobID)
	return nil
}

// Run polls due jobs until ctx is done, reloading active jobs from the
// store every interval so callbacks that never arrive are still noticed.
func (p *Poller) Run(ctx context.Context) {
	if _, err := p.Load(ctx); err != nil {
		p.logger.ErrorWithErr("Failed to load active dub jobs", err)
	}

	go func() {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := p.Load(ctx); err != nil {
					p.logger.ErrorWithErr("Failed to reload active dub jobs", err)
				}
			}
		}
	}()

	p.sched.Run(ctx, p.opts.Tick, p.PollDue)
}

// PollDue polls a batch of due jobs with at most Concurrency queries in
// flight. A slow job only holds its own slot.
func (p *Poller) PollDue(ctx context.Context, jobIDs []string) {
	g := new(errgroup.Group)
	g.SetLimit(p.opts.Concurrency)

	for _, id := range jobIDs {
		if ctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			_ = p.PollJob(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) reschedule(jobID string) {
	p.sched.Schedule(jobID, p.orch.now().Add(p.opts.Interval))
}

func (p *Poller) forget(jobID string) {
	p.sched.Remove(jobID)

	p.mu.Lock()
	delete(p.attempts, jobID)
	p.mu.Unlock()
}

func (p *Poller) attempt(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[jobID]++
	return p.attempts[jobID]
}

// activeJob reports whether a job still needs polling
func activeJob(job *models.DubJob) bool {
	return !job.State.IsTerminal() && job.RemoteHandle != ""
}
