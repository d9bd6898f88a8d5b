package playback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/manifest"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

func TestProbeUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Capabilities
		kind models.EngineKind
	}{
		{
			name: "desktop safari",
			ua:   safariUA,
			want: Capabilities{NativeHLS: true, MediaSource: true},
			kind: models.EngineNative,
		},
		{
			name: "desktop chrome",
			ua:   chromeUA,
			want: Capabilities{MediaSource: true},
			kind: models.EngineFallback,
		},
		{
			name: "iphone safari",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
			want: Capabilities{NativeHLS: true},
			kind: models.EngineNative,
		},
		{
			name: "iphone in-app web view",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148",
			want: Capabilities{NativeHLS: true, EmbeddedWrapper: true},
			kind: models.EngineNative,
		},
		{
			name: "ipad facebook app",
			ua:   "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 [FBAN/FBIOS;FBAV/440.0]",
			want: Capabilities{NativeHLS: true, MediaSource: true, EmbeddedWrapper: true},
			kind: models.EngineFallback,
		},
		{
			name: "android web view",
			ua:   "Mozilla/5.0 (Linux; Android 13; Pixel 7; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/124.0.0.0 Mobile Safari/537.36",
			want: Capabilities{MediaSource: true, EmbeddedWrapper: true},
			kind: models.EngineFallback,
		},
		{
			name: "apple core media",
			ua:   "AppleCoreMedia/1.0.0.21A329 (iPhone; U; CPU OS 17_0 like Mac OS X; en_us)",
			want: Capabilities{NativeHLS: true},
			kind: models.EngineNative,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProbeUserAgent(tt.ua)
			assert.Equal(t, tt.want, got)

			kind, err := got.PreferredEngine()
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestProbeUserAgentEmpty(t *testing.T) {
	caps := ProbeUserAgent("  ")
	assert.Equal(t, Capabilities{}, caps)

	_, err := caps.PreferredEngine()
	assert.ErrorIs(t, err, ErrEngineUnsupported)
}

func TestCapabilitiesApply(t *testing.T) {
	yes, no := true, false
	caps := Capabilities{NativeHLS: true, MediaSource: true}

	assert.Equal(t, caps, caps.Apply(nil))

	got := caps.Apply(&CapabilityHints{NativeHLS: &no, EmbeddedWrapper: &yes})
	assert.Equal(t, Capabilities{MediaSource: true, EmbeddedWrapper: true}, got)
}

func TestEngines(t *testing.T) {
	loader := manifestLoaderFunc(func(ctx context.Context, location string) (*manifest.Manifest, error) {
		return &manifest.Manifest{
			Master: true,
			AudioTracks: []models.EngineTrack{
				{Index: 0, Language: "en", Label: "English", GroupID: "aac", Default: true},
				{Index: 1, Language: "ja", Label: "Japanese", GroupID: "aac"},
				{Index: 2, Language: "en", Label: "English", GroupID: "ac3"},
			},
		}, nil
	})
	factory := NewEngineFactory(loader)

	native, err := factory(models.EngineNative)
	require.NoError(t, err)
	tracks, err := native.Attach(context.Background(), "m.m3u8")
	require.NoError(t, err)
	assert.Len(t, tracks, 3)
	assert.Empty(t, tracks[2].GroupID)

	require.NoError(t, native.Activate(tracks[1]))
	active, ok := native.Active()
	require.True(t, ok)
	assert.Equal(t, "ja", active.Language)

	fallback, err := factory(models.EngineFallback)
	require.NoError(t, err)
	tracks, err = fallback.Attach(context.Background(), "m.m3u8")
	require.NoError(t, err)
	require.Len(t, tracks, 2, "only the default group is exposed")
	assert.Equal(t, 1, tracks[1].Index)

	fallback.Detach()
	assert.Error(t, fallback.Activate(tracks[0]))

	_, err = factory("flash")
	assert.ErrorIs(t, err, ErrEngineUnsupported)
}

func TestEngineAttachError(t *testing.T) {
	boom := errors.New("404")
	loader := manifestLoaderFunc(func(ctx context.Context, location string) (*manifest.Manifest, error) {
		return nil, boom
	})

	e, err := NewEngineFactory(loader)(models.EngineNative)
	require.NoError(t, err)
	_, err = e.Attach(context.Background(), "m.m3u8")
	assert.ErrorIs(t, err, boom)
}
