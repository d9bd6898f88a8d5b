// Package catalog builds the ordered, deduplicated list of audio languages
// a viewer can pick from for one content section.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/language"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// DubTrackSource lists the database-backed dub tracks of a section,
// most recently completed first.
type DubTrackSource interface {
	ListDubTracks(ctx context.Context, sectionID string) ([]models.DubTrack, error)
}

// Locator builds the playable location of a section's original stream.
type Locator interface {
	ManifestURL(ctx context.Context, sectionID string) (string, error)
}

// Builder merges the database, engine and placeholder sources.
type Builder struct {
	dubs         DubTrackSource
	locator      Locator
	originLabel  string
	placeholders []string
	logger       *logging.Logger
}

// NewBuilder creates a catalog builder. placeholders is the static language
// list used when neither the database nor the engine knows any dub.
func NewBuilder(dubs DubTrackSource, locator Locator, originLabel string, placeholders []string, logger *logging.Logger) *Builder {
	if originLabel == "" {
		originLabel = language.DisplayName(language.Origin)
	}
	return &Builder{
		dubs:         dubs,
		locator:      locator,
		originLabel:  originLabel,
		placeholders: placeholders,
		logger:       logger,
	}
}

// Build returns the catalog for sectionID. detected may be nil before the
// engine has loaded a manifest.
//
// A failing dub-track source degrades to the engine and placeholder sources
// instead of failing the build.
func (b *Builder) Build(ctx context.Context, sectionID string, detected []models.EngineTrack) ([]models.TrackDescriptor, error) {
	location, err := b.locator.ManifestURL(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to locate origin stream: %w", err)
	}

	dubs, err := b.dubs.ListDubTracks(ctx, sectionID)
	if err != nil {
		b.logger.WithSectionID(sectionID).ErrorWithErr("Dub track lookup failed, using engine tracks", err)
		dubs = nil
	}

	origin := models.TrackDescriptor{
		CanonicalLanguage: language.Origin,
		DisplayLabel:      b.originLabel,
		SourceKind:        models.SourceOrigin,
		PlayableLocation:  location,
	}

	return Merge(origin, dubs, detected, b.placeholders), nil
}

// Merge combines the three sources in priority order: origin first, then
// completed database dubs; engine-detected tracks only when no database dub
// was added, and placeholders only when both are empty. Languages are
// unique by canonical code, first seen wins.
func Merge(origin models.TrackDescriptor, dubs []models.DubTrack, detected []models.EngineTrack, placeholders []string) []models.TrackDescriptor {
	origin.SourceKind = models.SourceOrigin
	origin.CanonicalLanguage = language.Origin

	out := []models.TrackDescriptor{origin}
	seen := map[string]struct{}{language.Origin: {}}

	add := func(d models.TrackDescriptor) bool {
		if d.CanonicalLanguage == language.Unknown {
			return false
		}
		if _, ok := seen[d.CanonicalLanguage]; ok {
			return false
		}
		seen[d.CanonicalLanguage] = struct{}{}
		out = append(out, d)
		return true
	}

	added := 0
	for _, dub := range dubs {
		if !IsCompleteStatus(dub.Status) {
			continue
		}
		code := language.Normalize(dub.Language)
		if add(models.TrackDescriptor{
			CanonicalLanguage: code,
			DisplayLabel:      language.DisplayName(code),
			SourceKind:        models.SourceDatabaseDub,
			PlayableLocation:  dub.Location,
		}) {
			added++
		}
	}

	if added == 0 {
		for _, t := range detected {
			code := language.Normalize(t.Language)
			label := t.Label
			if label == "" {
				label = language.DisplayName(code)
			}
			if add(models.TrackDescriptor{
				CanonicalLanguage: code,
				DisplayLabel:      label,
				SourceKind:        models.SourceManifestDetected,
				PlayableLocation:  t.URI,
			}) {
				added++
			}
		}
	}

	if added == 0 {
		for _, p := range placeholders {
			code := language.Normalize(p)
			add(models.TrackDescriptor{
				CanonicalLanguage: code,
				DisplayLabel:      language.DisplayName(code),
				SourceKind:        models.SourceFallbackPlaceholder,
			})
		}
	}

	return out
}

// IsCompleteStatus reports whether a stored dub status signals a finished track.
func IsCompleteStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case string(models.DubJobReady), "completed", "complete", "done", "succeeded", "success":
		return true
	}
	return false
}
