package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/catalog"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/manifest"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

var errOrigin = errors.New("origin unavailable")

// scriptedLoader fails the first failures[kind] loads of each engine kind
type scriptedLoader struct {
	mu       sync.Mutex
	failures map[models.EngineKind]int
	calls    map[models.EngineKind]int
	tracks   []models.EngineTrack
	// block makes Attach wait for ctx cancellation
	block bool
}

func newScriptedLoader(tracks []models.EngineTrack) *scriptedLoader {
	return &scriptedLoader{
		failures: make(map[models.EngineKind]int),
		calls:    make(map[models.EngineKind]int),
		tracks:   tracks,
	}
}

func (l *scriptedLoader) attach(ctx context.Context, kind models.EngineKind) ([]models.EngineTrack, error) {
	l.mu.Lock()
	l.calls[kind]++
	n := l.calls[kind]
	fail := n <= l.failures[kind]
	block := l.block
	l.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errOrigin
	}
	out := make([]models.EngineTrack, len(l.tracks))
	copy(out, l.tracks)
	for i := range out {
		out[i].Index = i
	}
	return out, nil
}

func (l *scriptedLoader) callCount(kind models.EngineKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[kind]
}

type scriptedEngine struct {
	baseEngine
	kind   models.EngineKind
	script *scriptedLoader
}

func (e *scriptedEngine) Kind() models.EngineKind { return e.kind }

func (e *scriptedEngine) Attach(ctx context.Context, location string) ([]models.EngineTrack, error) {
	tracks, err := e.script.attach(ctx, e.kind)
	if err != nil {
		return nil, err
	}
	e.setTracks(tracks)
	return tracks, nil
}

func (l *scriptedLoader) factory() EngineFactory {
	return func(kind models.EngineKind) (Engine, error) {
		return &scriptedEngine{kind: kind, script: l}, nil
	}
}

type staticLocator struct{ err error }

func (s staticLocator) ManifestURL(ctx context.Context, sectionID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.example.com/sections/" + sectionID + "/hls/master.m3u8", nil
}

type noDubs struct{}

func (noDubs) ListDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, error) {
	return nil, nil
}

type memPrefs struct {
	mu    sync.Mutex
	prefs map[string]string
	sets  int
}

func newMemPrefs() *memPrefs {
	return &memPrefs{prefs: make(map[string]string)}
}

func (p *memPrefs) GetLanguagePreference(ctx context.Context, viewerID, sectionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prefs[viewerID+"/"+sectionID], nil
}

func (p *memPrefs) SetLanguagePreference(ctx context.Context, viewerID, sectionID, lang string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefs[viewerID+"/"+sectionID] = lang
	p.sets++
	return nil
}

func testDeps(loader *scriptedLoader, prefs PreferenceStore) Deps {
	logger := logging.NewNopLogger()
	locator := staticLocator{}
	return Deps{
		Engines:     loader.factory(),
		Locator:     locator,
		Catalog:     catalog.NewBuilder(noDubs{}, locator, "Original", []string{"en", "es"}, logger),
		Preferences: prefs,
		Options: ControllerOptions{
			MaxManifestRetries: 3,
			ManifestTimeout:    time.Second,
			RetryBackoff:       time.Millisecond,
			PreferenceTTL:      time.Hour,
		},
		Logger: logger,
	}
}

var (
	appleCaps   = Capabilities{NativeHLS: true, MediaSource: true}
	chromeCaps  = Capabilities{MediaSource: true}
	threeTracks = []models.EngineTrack{
		{Language: "en", Label: "English", Default: true},
		{Language: "JA-jp", Label: "Japanese"},
		{Language: "fr", Label: "French"},
	}
)

// manifestLoaderFunc adapts a function to ManifestLoader
type manifestLoaderFunc func(ctx context.Context, location string) (*manifest.Manifest, error)

func (f manifestLoaderFunc) Fetch(ctx context.Context, location string) (*manifest.Manifest, error) {
	return f(ctx, location)
}

type staticDubs []models.DubTrack

func (d staticDubs) ListDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, error) {
	return d, nil
}

// withDubs swaps the catalog for one backed by completed database dubs
func withDubs(deps Deps, dubs ...models.DubTrack) Deps {
	deps.Catalog = catalog.NewBuilder(staticDubs(dubs), staticLocator{}, "Original", nil, deps.Logger)
	return deps
}
