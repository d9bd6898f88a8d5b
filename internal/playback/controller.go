// Package playback runs per-viewer playback sessions: engine selection,
// manifest loading with bounded retries, and audio language switching.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/language"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/metrics"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/resolver"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/tracing"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// CatalogBuilder builds the language catalog of a section
type CatalogBuilder interface {
	Build(ctx context.Context, sectionID string, detected []models.EngineTrack) ([]models.TrackDescriptor, error)
}

// Locator builds the manifest location of a section
type Locator interface {
	ManifestURL(ctx context.Context, sectionID string) (string, error)
}

// PreferenceStore remembers a viewer's language per section
type PreferenceStore interface {
	GetLanguagePreference(ctx context.Context, viewerID, sectionID string) (string, error)
	SetLanguagePreference(ctx context.Context, viewerID, sectionID, lang string, ttl time.Duration) error
}

// ControllerOptions configures session controllers
type ControllerOptions struct {
	MaxManifestRetries int
	ManifestTimeout    time.Duration
	RetryBackoff       time.Duration
	PreferenceTTL      time.Duration
}

// Deps are the collaborators shared by all controllers
type Deps struct {
	Engines     EngineFactory
	Locator     Locator
	Catalog     CatalogBuilder
	Preferences PreferenceStore
	Options     ControllerOptions
	Logger      *logging.Logger
}

// Controller owns one playback session. All state changes happen under its
// mutex; blocking work runs outside it and is applied only if the session is
// still alive.
type Controller struct {
	deps   Deps
	logger *logging.Logger
	now    func() time.Time

	mu           sync.Mutex
	id           string
	sectionID    string
	viewerID     string
	caps         Capabilities
	state        models.EngineState
	engine       Engine
	engineKind   models.EngineKind
	nativeFailed bool
	retryCount   int
	tracks       []models.EngineTrack
	available    []models.TrackDescriptor
	current      string
	lastErr      error
	closed       bool
	counted      bool
	cancel       context.CancelFunc
	createdAt    time.Time
	updatedAt    time.Time
}

// NewController creates a controller in the Initializing state
func NewController(id, sectionID, viewerID string, caps Capabilities, deps Deps) *Controller {
	if deps.Options.MaxManifestRetries <= 0 {
		deps.Options.MaxManifestRetries = 3
	}
	if deps.Options.ManifestTimeout <= 0 {
		deps.Options.ManifestTimeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}

	now := time.Now()
	return &Controller{
		deps:      deps,
		logger:    deps.Logger.WithSessionID(id).WithSectionID(sectionID),
		now:       time.Now,
		id:        id,
		sectionID: sectionID,
		viewerID:  viewerID,
		caps:      caps,
		state:     models.EngineInitializing,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the session id
func (c *Controller) ID() string { return c.id }

// State returns the current session state
func (c *Controller) State() models.EngineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState moves the session along one edge. Callers hold c.mu.
func (c *Controller) setState(to models.EngineState) error {
	from := c.state
	if !sessionTransitionAllowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	c.state = to
	c.updatedAt = c.now()
	c.logger.LogSessionTransition(c.id, string(from), string(to), c.retryCount)
	return nil
}

// fail moves the session to Error. Callers hold c.mu.
func (c *Controller) fail(err error) error {
	c.lastErr = err
	if setErr := c.setState(models.EngineError); setErr != nil {
		return setErr
	}
	metrics.RecordSessionError()
	c.logger.ErrorWithErr("Playback session failed", err)
	return err
}

// Start selects an engine and loads the manifest, retrying up to the
// configured ceiling. It returns once the session is Ready or in Error.
func (c *Controller) Start(ctx context.Context) error {
	span, ctx := tracing.StartSpan(ctx, "playback.start")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "playback.session_id", c.id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	c.cancel = cancel
	if err := c.setState(models.EngineSelecting); err != nil {
		c.mu.Unlock()
		return err
	}

	kind, err := c.caps.PreferredEngine()
	if err != nil {
		err = c.fail(err)
		c.mu.Unlock()
		tracing.LogError(span, err)
		return err
	}
	c.engineKind = kind
	c.mu.Unlock()

	location, err := c.deps.Locator.ManifestURL(ctx, c.sectionID)
	if err != nil {
		c.mu.Lock()
		err = c.fail(fmt.Errorf("%w: %v", ErrManifestLoadFailed, err))
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if err := c.setState(models.EngineManifestLoading); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	engine, tracks, err := c.loadManifest(ctx, location)
	if err != nil {
		tracing.LogError(span, err)
		return err
	}

	return c.becomeReady(ctx, engine, tracks)
}

// loadManifest attaches engines until one succeeds, the retry ceiling is
// reached, or the session is closed.
func (c *Controller) loadManifest(ctx context.Context, location string) (Engine, []models.EngineTrack, error) {
	for {
		c.mu.Lock()
		kind := c.engineKind
		c.mu.Unlock()

		engine, err := c.deps.Engines(kind)
		if err != nil {
			c.mu.Lock()
			err = c.fail(err)
			c.mu.Unlock()
			return nil, nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.deps.Options.ManifestTimeout)
		start := time.Now()
		tracks, err := engine.Attach(attemptCtx, location)
		cancel()
		metrics.RecordManifestLoad(string(kind), time.Since(start).Seconds(), err)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			engine.Detach()
			return nil, nil, ErrSessionClosed
		}

		if err == nil {
			c.mu.Unlock()
			return engine, tracks, nil
		}

		engine.Detach()
		c.retryCount++
		c.lastErr = err
		c.logger.WithField("engine", string(kind)).LogRemoteFailure("manifest_load", c.retryCount, err)

		if c.retryCount >= c.deps.Options.MaxManifestRetries {
			err = c.fail(fmt.Errorf("%w after %d attempts: %v", ErrManifestLoadFailed, c.retryCount, err))
			c.mu.Unlock()
			return nil, nil, err
		}

		// Native playback gets one chance; the rest of the session uses the script engine
		if kind == models.EngineNative && !c.nativeFailed && c.caps.MediaSource {
			c.nativeFailed = true
			c.engineKind = models.EngineFallback
			c.logger.Warn("Native engine failed to load manifest, falling back")
		}

		if err := c.setState(models.EngineManifestLoading); err != nil {
			c.mu.Unlock()
			return nil, nil, err
		}
		c.mu.Unlock()

		if err := c.backoff(ctx); err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.closed {
				return nil, nil, ErrSessionClosed
			}
			return nil, nil, c.fail(fmt.Errorf("%w: %v", ErrManifestLoadFailed, err))
		}
	}
}

func (c *Controller) backoff(ctx context.Context) error {
	if c.deps.Options.RetryBackoff <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(c.deps.Options.RetryBackoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// becomeReady builds the catalog, applies the remembered language when it
// is available, and enters Ready.
func (c *Controller) becomeReady(ctx context.Context, engine Engine, tracks []models.EngineTrack) error {
	available, err := c.deps.Catalog.Build(ctx, c.sectionID, tracks)
	if err != nil {
		c.logger.ErrorWithErr("Failed to build track catalog", err)
		available = nil
	}

	preferred := c.preference(ctx)

	current := language.Origin
	var activate *resolver.Resolution
	if preferred != "" && offers(available, preferred) {
		if res, err := resolver.Resolve(preferred, tracks); err == nil {
			current = preferred
			activate = &res
		}
	}
	if activate == nil {
		if res, err := resolver.Resolve(language.Origin, tracks); err == nil {
			activate = &res
		}
	}
	if activate != nil {
		if err := engine.Activate(activate.Track); err != nil {
			c.logger.ErrorWithErr("Failed to activate initial track", err)
			current = language.Origin
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		engine.Detach()
		return ErrSessionClosed
	}

	c.engine = engine
	c.tracks = tracks
	c.available = available
	c.current = current
	c.lastErr = nil
	if err := c.setState(models.EngineReady); err != nil {
		return err
	}

	c.counted = true
	metrics.RecordSessionOpened(string(c.engineKind))
	c.logger.WithFields(map[string]interface{}{
		"engine":       string(c.engineKind),
		"retry_count":  c.retryCount,
		"tracks":       len(tracks),
		"current_lang": current,
	}).Info("Playback session ready")

	return nil
}

func (c *Controller) preference(ctx context.Context) string {
	if c.deps.Preferences == nil || c.viewerID == "" {
		return ""
	}
	lang, err := c.deps.Preferences.GetLanguagePreference(ctx, c.viewerID, c.sectionID)
	if err != nil {
		c.logger.ErrorWithErr("Failed to read language preference", err)
		return ""
	}
	return language.Normalize(lang)
}

// offers reports whether the catalog has a playable entry for lang
func offers(available []models.TrackDescriptor, lang string) bool {
	for _, d := range available {
		if d.CanonicalLanguage == lang && d.Playable() {
			return true
		}
	}
	return false
}

// resolvedLanguage is the canonical language of the track actually picked.
// A request for the origin stays origin; a track without a language keeps
// the requested code.
func resolvedLanguage(requested string, track models.EngineTrack) string {
	want := language.Normalize(requested)
	if want == language.Origin {
		return language.Origin
	}
	if got := language.Normalize(track.Language); got != language.Unknown {
		return got
	}
	return want
}

// Switch changes the audible language. An unresolvable language leaves the
// session Ready on its current track and returns resolver.ErrTrackUnresolved.
func (c *Controller) Switch(ctx context.Context, requested string) (models.PlaybackSession, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return models.PlaybackSession{}, ErrSessionClosed
	case c.state == models.EngineSwitching:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		metrics.RecordTrackSwitch("rejected")
		return snap, ErrSwitchInProgress
	case c.state != models.EngineReady:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, fmt.Errorf("%w: %s", ErrSessionNotReady, snap.EngineState)
	}

	engine := c.engine
	tracks := c.tracks
	available := c.available
	if err := c.setState(models.EngineSwitching); err != nil {
		c.mu.Unlock()
		return models.PlaybackSession{}, err
	}
	c.mu.Unlock()

	var lang string
	res, err := resolver.Resolve(requested, tracks)
	if err == nil {
		lang = resolvedLanguage(requested, res.Track)
		if lang != language.Origin && !offers(available, lang) {
			err = fmt.Errorf("%w: picked %s, which the catalog does not offer", resolver.ErrTrackUnresolved, lang)
		}
	}
	if err == nil {
		err = engine.Activate(res.Track)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.PlaybackSession{}, ErrSessionClosed
	}
	if setErr := c.setState(models.EngineReady); setErr != nil {
		c.mu.Unlock()
		return models.PlaybackSession{}, setErr
	}

	if err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		metrics.RecordTrackSwitch("unresolved")
		c.logger.WithLanguage(requested).Warn("Language switch unresolved, keeping current track")
		if errors.Is(err, resolver.ErrTrackUnresolved) {
			return snap, fmt.Errorf("%s: %w", requested, err)
		}
		return snap, fmt.Errorf("%w: %s: %v", resolver.ErrTrackUnresolved, requested, err)
	}

	c.current = lang
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.RecordTrackSwitch("success")
	c.logger.WithLanguage(lang).WithField("rule", string(res.Rule)).Info("Language switched")

	if c.deps.Preferences != nil && c.viewerID != "" {
		if err := c.deps.Preferences.SetLanguagePreference(ctx, c.viewerID, c.sectionID, lang, c.deps.Options.PreferenceTTL); err != nil {
			c.logger.ErrorWithErr("Failed to persist language preference", err)
		}
	}

	return snap, nil
}

// Close tears the session down, cancelling any in-flight manifest load.
// Closing twice is harmless.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.engine != nil {
		c.engine.Detach()
		c.engine = nil
	}
	if c.counted {
		metrics.RecordSessionClosed()
	}
	c.logger.Debug("Playback session closed")
}

// Closed reports whether Close was called
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// LastActivity returns when the session last changed
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// Touch marks the session as in use
func (c *Controller) Touch() {
	c.mu.Lock()
	c.updatedAt = c.now()
	c.mu.Unlock()
}

// Snapshot returns the session's current state
func (c *Controller) Snapshot() models.PlaybackSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() models.PlaybackSession {
	s := models.PlaybackSession{
		ID:               c.id,
		ContentSectionID: c.sectionID,
		ViewerID:         c.viewerID,
		EngineKind:       c.engineKind,
		CurrentLanguage:  c.current,
		AvailableTracks:  append([]models.TrackDescriptor(nil), c.available...),
		EngineState:      c.state,
		RetryCount:       c.retryCount,
		CreatedAt:        c.createdAt,
		UpdatedAt:        c.updatedAt,
	}
	if s.AvailableTracks == nil {
		s.AvailableTracks = []models.TrackDescriptor{}
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
