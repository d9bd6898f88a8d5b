// Package monitoring samples queue and dub job backlogs for health
// reporting and metrics.
package monitoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// Stats is the latest sample
type Stats struct {
	QueueDepth  int                        `json:"queue_depth"`
	DLQDepth    int                        `json:"dlq_depth"`
	JobsByState map[models.DubJobState]int `json:"jobs_by_state"`
	ActiveJobs  int                        `json:"active_jobs"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// JobCounter counts dub jobs per state
type JobCounter interface {
	CountDubJobsByState(ctx context.Context) (map[models.DubJobState]int, error)
}

// QueueProvider defines the interface for queue metrics
type QueueProvider interface {
	GetQueueDepth() (int, error)
	GetDLQDepth() (int, error)
}

// Health levels
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Thresholds decide when the backlog counts as degraded or unhealthy
type Thresholds struct {
	DLQDegraded    int
	QueueUnhealthy int
	StaleAfter     time.Duration
}

// Monitor samples backlogs on an interval
type Monitor struct {
	jobs       JobCounter
	queue      QueueProvider
	thresholds Thresholds
	logger     *logging.Logger

	mu    sync.RWMutex
	stats Stats
}

// NewMonitor creates a new monitor
func NewMonitor(jobs JobCounter, queue QueueProvider, thresholds Thresholds, logger *logging.Logger) *Monitor {
	if thresholds.DLQDegraded <= 0 {
		thresholds.DLQDegraded = 1
	}
	if thresholds.QueueUnhealthy <= 0 {
		thresholds.QueueUnhealthy = 1000
	}
	if thresholds.StaleAfter <= 0 {
		thresholds.StaleAfter = 5 * time.Minute
	}
	return &Monitor{
		jobs:       jobs,
		queue:      queue,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Run collects immediately and then every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.Collect(ctx); err != nil {
			m.logger.ErrorWithErr("Failed to collect backlog stats", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Collect takes one sample and publishes it as metrics
func (m *Monitor) Collect(ctx context.Context) error {
	queueDepth, err := m.queue.GetQueueDepth()
	if err != nil {
		return fmt.Errorf("failed to get queue depth: %w", err)
	}

	dlqDepth, err := m.queue.GetDLQDepth()
	if err != nil {
		return fmt.Errorf("failed to get DLQ depth: %w", err)
	}

	counts, err := m.jobs.CountDubJobsByState(ctx)
	if err != nil {
		return fmt.Errorf("failed to get job counts: %w", err)
	}

	active := 0
	labels := make(map[string]int, len(counts))
	for _, state := range models.ActiveDubJobStates {
		active += counts[state]
	}
	for state, n := range counts {
		labels[string(state)] = n
	}

	metrics.SetQueueDepth(queueDepth, dlqDepth)
	metrics.SetDubJobCounts(labels)

	m.mu.Lock()
	m.stats = Stats{
		QueueDepth:  queueDepth,
		DLQDepth:    dlqDepth,
		JobsByState: counts,
		ActiveJobs:  active,
		LastUpdated: time.Now(),
	}
	m.mu.Unlock()

	return nil
}

// GetStats returns a copy of the latest sample
func (m *Monitor) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.JobsByState = make(map[models.DubJobState]int, len(m.stats.JobsByState))
	for k, v := range m.stats.JobsByState {
		stats.JobsByState[k] = v
	}
	return stats
}

// Health grades the latest sample against the thresholds
func (m *Monitor) Health(now time.Time) (string, []string) {
	stats := m.GetStats()

	if stats.LastUpdated.IsZero() || now.Sub(stats.LastUpdated) > m.thresholds.StaleAfter {
		return StatusUnhealthy, []string{"backlog stats are stale"}
	}

	status := StatusHealthy
	var issues []string
	if stats.QueueDepth >= m.thresholds.QueueUnhealthy {
		status = StatusUnhealthy
		issues = append(issues, fmt.Sprintf("event queue depth %d", stats.QueueDepth))
	}
	if stats.DLQDepth >= m.thresholds.DLQDegraded {
		if status == StatusHealthy {
			status = StatusDegraded
		}
		issues = append(issues, fmt.Sprintf("%d events in dead letter queue", stats.DLQDepth))
	}

	return status, issues
}

// Check fails when the backlog is unhealthy. It has the shape of a metrics
// server health check.
func (m *Monitor) Check(ctx context.Context) error {
	status, issues := m.Health(time.Now())
	if status == StatusUnhealthy {
		return fmt.Errorf("backlog %s: %s", status, strings.Join(issues, "; "))
	}
	return nil
}
