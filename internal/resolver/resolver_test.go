package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/therealutkarshpriyadarshi/coursedub/pkg/models"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		tracks    []models.EngineTrack
		wantIndex int
		wantRule  Rule
		wantErr   bool
	}{
		{
			name:      "region tagged exact match",
			requested: "ja",
			tracks:    []models.EngineTrack{{Language: "JA-jp"}, {Language: "en"}},
			wantIndex: 0,
			wantRule:  RuleExactLanguage,
		},
		{
			name:      "iso3 request matches iso1 track",
			requested: "jpn",
			tracks:    []models.EngineTrack{{Language: "en"}, {Language: "ja"}},
			wantIndex: 1,
			wantRule:  RuleExactLanguage,
		},
		{
			name:      "exact match wins over earlier contains match",
			requested: "de",
			tracks:    []models.EngineTrack{{Label: "dub de test"}, {Language: "deu"}},
			wantIndex: 1,
			wantRule:  RuleExactLanguage,
		},
		{
			name:      "contains match on label",
			requested: "ko",
			tracks:    []models.EngineTrack{{Label: "English"}, {Label: "audio_ko_stereo"}},
			wantIndex: 1,
			wantRule:  RuleContains,
		},
		{
			name:      "contains match on non-canonical language field",
			requested: "fr",
			tracks:    []models.EngineTrack{{Language: "x-track-FR"}},
			wantIndex: 0,
			wantRule:  RuleContains,
		},
		{
			name:      "origin selects default track",
			requested: "origin",
			tracks:    []models.EngineTrack{{Language: "en", Default: true}, {Language: "fr"}},
			wantIndex: 0,
			wantRule:  RuleOriginDefault,
		},
		{
			name:      "origin selects later default track",
			requested: "origin",
			tracks:    []models.EngineTrack{{Language: "fr"}, {Language: "en", Default: true}},
			wantIndex: 1,
			wantRule:  RuleOriginDefault,
		},
		{
			name:      "origin falls back to first track",
			requested: "original",
			tracks:    []models.EngineTrack{{Language: "es"}, {Language: "fr"}},
			wantIndex: 0,
			wantRule:  RuleOriginFirst,
		},
		{
			name:      "unknown language is unresolved",
			requested: "xx",
			tracks:    []models.EngineTrack{{Language: "en"}},
			wantErr:   true,
		},
		{
			name:      "origin with no tracks is unresolved",
			requested: "origin",
			tracks:    nil,
			wantErr:   true,
		},
		{
			name:      "empty request is unresolved",
			requested: "",
			tracks:    []models.EngineTrack{{Language: "en", Default: true}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(tt.requested, tt.tracks)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTrackUnresolved)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, res.Index)
			assert.Equal(t, tt.wantRule, res.Rule)
		})
	}
}

func TestResolveCarriesLocation(t *testing.T) {
	tracks := []models.EngineTrack{
		{Index: 4, Language: "en", URI: "audio/en/index.m3u8"},
		{Index: 7, Language: "ja", URI: "audio/ja/index.m3u8"},
	}

	res, err := Resolve("JPN", tracks)
	require.NoError(t, err)
	assert.Equal(t, "audio/ja/index.m3u8", res.Location)
	assert.Equal(t, 7, res.Track.Index)
}
