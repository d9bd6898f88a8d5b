// Package manifest fetches HLS master playlists and extracts their
// alternate audio renditions.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/tracing"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// maxManifestSize caps how much of a response body is read
const maxManifestSize = 2 << 20

var (
	// ErrFetch is returned when the manifest could not be retrieved
	ErrFetch = errors.New("manifest fetch failed")
	// ErrParse is returned when the body is not a usable playlist
	ErrParse = errors.New("manifest parse failed")
)

// Manifest is the playback-relevant content of a playlist
type Manifest struct {
	Location    string
	Master      bool
	Variants    int
	AudioTracks []models.EngineTrack
}

// Fetcher retrieves manifests over HTTP
type Fetcher struct {
	client *http.Client
	logger *logging.Logger
}

// NewFetcher creates a fetcher. Each fetch is also bounded by its context.
func NewFetcher(timeout time.Duration, logger *logging.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch downloads and parses the manifest at location
func (f *Fetcher) Fetch(ctx context.Context, location string) (*Manifest, error) {
	span, ctx := tracing.StartSpan(ctx, "manifest.fetch")
	defer tracing.FinishSpan(span)
	tracing.SetTag(span, "manifest.location", location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		tracing.LogError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: %s returned %d", ErrFetch, location, resp.StatusCode)
		tracing.LogError(span, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", ErrFetch, err)
	}

	m, err := Parse(bytes.NewReader(body), location)
	if err != nil {
		tracing.LogError(span, err)
		return nil, err
	}

	f.logger.WithFields(map[string]interface{}{
		"location":     location,
		"variants":     m.Variants,
		"audio_tracks": len(m.AudioTracks),
	}).Debug("Manifest loaded")

	return m, nil
}

// Parse decodes a playlist. Audio rendition URIs are resolved against base
// when it is a valid URL. A media playlist is valid and has no renditions.
func Parse(r io.Reader, base string) (*Manifest, error) {
	playlist, listType, err := m3u8.DecodeFrom(r, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	m := &Manifest{Location: base}

	switch listType {
	case m3u8.MEDIA:
		return m, nil
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected playlist type", ErrParse)
		}
		m.Master = true
		m.Variants = len(master.Variants)
		m.AudioTracks = audioTracks(master, base)
		return m, nil
	}

	return nil, fmt.Errorf("%w: unknown playlist type", ErrParse)
}

// audioTracks collects the distinct AUDIO renditions across all variants,
// in declaration order.
func audioTracks(master *m3u8.MasterPlaylist, base string) []models.EngineTrack {
	baseURL, _ := url.Parse(base)

	tracks := make([]models.EngineTrack, 0)
	seen := make(map[string]bool)

	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		for _, alt := range v.Alternatives {
			if alt == nil || !strings.EqualFold(alt.Type, "AUDIO") {
				continue
			}

			key := alt.GroupId + "\x00" + alt.Name + "\x00" + alt.Language + "\x00" + alt.URI
			if seen[key] {
				continue
			}
			seen[key] = true

			tracks = append(tracks, models.EngineTrack{
				Index:    len(tracks),
				Language: alt.Language,
				Label:    alt.Name,
				GroupID:  alt.GroupId,
				URI:      resolve(baseURL, alt.URI),
				Default:  alt.Default,
			})
		}
	}

	return tracks
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil || !base.IsAbs() {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
