// Package resolver decides which engine-reported audio track satisfies a
// requested language. Every call site that activates a track goes through
// Resolve so that all of them agree on tie-breaks.
package resolver

import (
	"errors"
	"strings"

	"github.com/therealutkarshpriyadarshi/coursedub/internal/language"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

// ErrTrackUnresolved is returned when no track satisfies the request.
var ErrTrackUnresolved = errors.New("track unresolved")

// Rule names the step of the resolution order that produced a match.
type Rule string

// Resolution rules, in evaluation order.
const (
	RuleExactLanguage Rule = "exact_language"
	RuleContains      Rule = "contains"
	RuleOriginDefault Rule = "origin_default"
	RuleOriginFirst   Rule = "origin_first"
)

// Resolution is the track chosen for a request.
type Resolution struct {
	Index    int
	Location string
	Track    models.EngineTrack
	Rule     Rule
}

// Resolve picks the track to activate for requested among tracks.
//
// Order, first success wins:
//  1. canonical match of the requested code against each track's normalized language
//  2. case-insensitive substring match on the raw label or language field
//  3. for the Origin sentinel, the track flagged default, else the first track
//
// Anything else is ErrTrackUnresolved.
func Resolve(requested string, tracks []models.EngineTrack) (Resolution, error) {
	want := language.Normalize(requested)
	if want == language.Unknown {
		return Resolution{}, ErrTrackUnresolved
	}

	for i, t := range tracks {
		if language.Normalize(t.Language) == want {
			return resolution(i, t, RuleExactLanguage), nil
		}
	}

	for i, t := range tracks {
		if containsFold(t.Label, want) || containsFold(t.Language, want) {
			return resolution(i, t, RuleContains), nil
		}
	}

	if want == language.Origin && len(tracks) > 0 {
		for i, t := range tracks {
			if t.Default {
				return resolution(i, t, RuleOriginDefault), nil
			}
		}
		return resolution(0, tracks[0], RuleOriginFirst), nil
	}

	return Resolution{}, ErrTrackUnresolved
}

func resolution(pos int, t models.EngineTrack, rule Rule) Resolution {
	return Resolution{Index: pos, Location: t.URI, Track: t, Rule: rule}
}

func containsFold(field, want string) bool {
	if field == "" {
		return false
	}
	return strings.Contains(strings.ToLower(field), want)
}
