package playback

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/manifest"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// ManifestLoader fetches a parsed manifest
type ManifestLoader interface {
	Fetch(ctx context.Context, location string) (*manifest.Manifest, error)
}

// Engine drives media for one session
type Engine interface {
	Kind() models.EngineKind
	// Attach points the engine at a manifest and returns the audio tracks
	// it reports. The list may be empty.
	Attach(ctx context.Context, location string) ([]models.EngineTrack, error)
	// Activate makes track the audible one
	Activate(track models.EngineTrack) error
	// Active returns the currently audible track
	Active() (models.EngineTrack, bool)
	Detach()
}

// EngineFactory creates an engine of the given kind
type EngineFactory func(kind models.EngineKind) (Engine, error)

// NewEngineFactory returns a factory whose engines load manifests through loader
func NewEngineFactory(loader ManifestLoader) EngineFactory {
	return func(kind models.EngineKind) (Engine, error) {
		switch kind {
		case models.EngineNative:
			return &nativeEngine{baseEngine: baseEngine{loader: loader}}, nil
		case models.EngineFallback:
			return &fallbackEngine{baseEngine: baseEngine{loader: loader}}, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrEngineUnsupported, kind)
	}
}

type baseEngine struct {
	loader ManifestLoader

	mu       sync.Mutex
	tracks   []models.EngineTrack
	active   models.EngineTrack
	hasTrack bool
	attached bool
}

func (e *baseEngine) load(ctx context.Context, location string) (*manifest.Manifest, error) {
	return e.loader.Fetch(ctx, location)
}

func (e *baseEngine) setTracks(tracks []models.EngineTrack) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = tracks
	e.attached = true
}

func (e *baseEngine) Activate(track models.EngineTrack) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.attached {
		return fmt.Errorf("engine not attached")
	}
	if track.Index < 0 || track.Index >= len(e.tracks) {
		return fmt.Errorf("track index %d out of range", track.Index)
	}
	e.active = e.tracks[track.Index]
	e.hasTrack = true
	return nil
}

func (e *baseEngine) Active() (models.EngineTrack, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.hasTrack
}

func (e *baseEngine) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = nil
	e.hasTrack = false
	e.attached = false
}

// nativeEngine mirrors an AVFoundation media selection group: every audio
// rendition is offered, labeled by its NAME, with no notion of groups.
type nativeEngine struct {
	baseEngine
}

func (e *nativeEngine) Kind() models.EngineKind { return models.EngineNative }

func (e *nativeEngine) Attach(ctx context.Context, location string) ([]models.EngineTrack, error) {
	m, err := e.load(ctx, location)
	if err != nil {
		return nil, err
	}

	tracks := make([]models.EngineTrack, 0, len(m.AudioTracks))
	for _, t := range m.AudioTracks {
		t.Index = len(tracks)
		t.GroupID = ""
		tracks = append(tracks, t)
	}

	e.setTracks(tracks)
	return tracks, nil
}

// fallbackEngine mirrors a script HLS engine: it only exposes the audio
// tracks of the group the selected variant references, which is the group
// of the default rendition when one is flagged.
type fallbackEngine struct {
	baseEngine
}

func (e *fallbackEngine) Kind() models.EngineKind { return models.EngineFallback }

func (e *fallbackEngine) Attach(ctx context.Context, location string) ([]models.EngineTrack, error) {
	m, err := e.load(ctx, location)
	if err != nil {
		return nil, err
	}

	group := ""
	for _, t := range m.AudioTracks {
		if t.Default {
			group = t.GroupID
			break
		}
	}
	if group == "" && len(m.AudioTracks) > 0 {
		group = m.AudioTracks[0].GroupID
	}

	tracks := make([]models.EngineTrack, 0, len(m.AudioTracks))
	for _, t := range m.AudioTracks {
		if !strings.EqualFold(t.GroupID, group) {
			continue
		}
		t.Index = len(tracks)
		tracks = append(tracks, t)
	}

	e.setTracks(tracks)
	return tracks, nil
}
