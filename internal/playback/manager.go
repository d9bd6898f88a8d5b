package playback

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// OpenRequest opens a session for one viewer and section
type OpenRequest struct {
	SectionID string
	ViewerID  string
	UserAgent string
	Hints     *CapabilityHints
}

// Manager tracks live sessions
type Manager struct {
	deps    Deps
	idleTTL time.Duration
	logger  *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

// NewManager creates a session manager
func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return &Manager{
		deps:     deps,
		idleTTL:  idleTTL,
		logger:   deps.Logger,
		sessions: make(map[string]*Controller),
	}
}

// Open creates a session and drives it to Ready. A session that ends in
// Error is not kept; its snapshot is returned with the error.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (models.PlaybackSession, error) {
	caps := ProbeUserAgent(req.UserAgent).Apply(req.Hints)
	c := NewController(uuid.New().String(), req.SectionID, req.ViewerID, caps, m.deps)

	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		snap := c.Snapshot()
		m.remove(c.ID())
		c.Close()
		return snap, err
	}

	return c.Snapshot(), nil
}

// Get returns a session snapshot
func (m *Manager) Get(id string) (models.PlaybackSession, error) {
	c, err := m.lookup(id)
	if err != nil {
		return models.PlaybackSession{}, err
	}
	return c.Snapshot(), nil
}

// Switch requests a language change on a session
func (m *Manager) Switch(ctx context.Context, id, lang string) (models.PlaybackSession, error) {
	c, err := m.lookup(id)
	if err != nil {
		return models.PlaybackSession{}, err
	}
	return c.Switch(ctx, lang)
}

// Close tears a session down
func (m *Manager) Close(id string) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	m.remove(id)
	c.Close()
	return nil
}

// SweepIdle closes sessions idle since before now minus the idle TTL and
// returns how many it closed.
func (m *Manager) SweepIdle(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Controller
	for id, c := range m.sessions {
		if c.LastActivity().Before(cutoff) {
			idle = append(idle, c)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	if len(idle) > 0 {
		m.logger.Infof("Closed %d idle playback sessions", len(idle))
	}
	return len(idle)
}

// RunSweeper sweeps idle sessions every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.SweepIdle(now)
		}
	}
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll tears down every session
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}

func (m *Manager) lookup(id string) (*Controller, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	c.Touch()
	return c, nil
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
