package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Sentinel canonical codes.
const (
	// Unknown is returned for empty or unmappable tokens.
	Unknown = "und"
	// Origin identifies the section's original audio track.
	Origin = "origin"
)

type entry struct {
	code2   string   // canonical, ISO 639-1
	code3   []string // ISO 639-2 B/T forms
	regions []string // region or script tagged forms
	words   []string // English word forms
}

var languages = []entry{
	{"en", []string{"eng"}, []string{"en-us", "en-gb", "en-au", "en-ca", "en-in"}, []string{"english"}},
	{"es", []string{"spa"}, []string{"es-es", "es-mx", "es-419", "es-us", "es-ar"}, []string{"spanish", "castilian"}},
	{"fr", []string{"fra", "fre"}, []string{"fr-fr", "fr-ca", "fr-be", "fr-ch"}, []string{"french"}},
	{"de", []string{"deu", "ger"}, []string{"de-de", "de-at", "de-ch"}, []string{"german"}},
	{"it", []string{"ita"}, []string{"it-it"}, []string{"italian"}},
	{"pt", []string{"por"}, []string{"pt-br", "pt-pt"}, []string{"portuguese"}},
	{"ja", []string{"jpn"}, []string{"ja-jp"}, []string{"japanese"}},
	{"ko", []string{"kor"}, []string{"ko-kr"}, []string{"korean"}},
	{"zh", []string{"zho", "chi", "cmn"}, []string{"zh-cn", "zh-tw", "zh-hk", "zh-hans", "zh-hant"}, []string{"chinese", "mandarin"}},
	{"ru", []string{"rus"}, []string{"ru-ru"}, []string{"russian"}},
	{"ar", []string{"ara"}, []string{"ar-sa", "ar-eg", "ar-ae"}, []string{"arabic"}},
	{"hi", []string{"hin"}, []string{"hi-in"}, []string{"hindi"}},
	{"nl", []string{"nld", "dut"}, []string{"nl-nl", "nl-be"}, []string{"dutch", "flemish"}},
	{"pl", []string{"pol"}, []string{"pl-pl"}, []string{"polish"}},
	{"tr", []string{"tur"}, []string{"tr-tr"}, []string{"turkish"}},
	{"sv", []string{"swe"}, []string{"sv-se"}, []string{"swedish"}},
	{"da", []string{"dan"}, []string{"da-dk"}, []string{"danish"}},
	{"no", []string{"nor", "nob", "nno"}, []string{"nb-no", "nn-no", "nb", "nn"}, []string{"norwegian"}},
	{"fi", []string{"fin"}, []string{"fi-fi"}, []string{"finnish"}},
	{"cs", []string{"ces", "cze"}, []string{"cs-cz"}, []string{"czech"}},
	{"el", []string{"ell", "gre"}, []string{"el-gr"}, []string{"greek"}},
	{"he", []string{"heb"}, []string{"he-il", "iw"}, []string{"hebrew"}},
	{"id", []string{"ind"}, []string{"id-id", "in"}, []string{"indonesian"}},
	{"th", []string{"tha"}, []string{"th-th"}, []string{"thai"}},
	{"vi", []string{"vie"}, []string{"vi-vn"}, []string{"vietnamese"}},
	{"uk", []string{"ukr"}, []string{"uk-ua"}, []string{"ukrainian"}},
}

var aliases map[string]string

func init() {
	aliases = make(map[string]string, len(languages)*8)
	for _, e := range languages {
		aliases[e.code2] = e.code2
		for _, c := range e.code3 {
			aliases[c] = e.code2
		}
		for _, r := range e.regions {
			aliases[r] = e.code2
		}
		for _, w := range e.words {
			aliases[w] = e.code2
		}
	}
	for _, s := range []string{Origin, "original", "orig", "source"} {
		aliases[s] = Origin
	}
	for _, s := range []string{Unknown, "unknown", "mis", "mul", "zxx"} {
		aliases[s] = Unknown
	}
}

// Normalize maps any language token to its canonical code.
//
// The token is lower-cased and trimmed, then looked up in the alias table.
// Unmatched tokens are cut at the first '-' and the remaining base is looked
// up again; a base that is still unknown is returned as-is. Empty input, or
// input whose base is empty, yields Unknown.
func Normalize(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return Unknown
	}
	if c, ok := aliases[t]; ok {
		return c
	}
	base := t
	if i := strings.IndexByte(t, '-'); i >= 0 {
		base = strings.TrimSpace(t[:i])
	}
	if base == "" {
		return Unknown
	}
	if c, ok := aliases[base]; ok {
		return c
	}
	return base
}

// Known reports whether the canonical form of token is a real language,
// not Unknown or Origin.
func Known(token string) bool {
	c := Normalize(token)
	return c != Unknown && c != Origin
}

// Equal reports whether two tokens normalize to the same canonical code.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// DisplayName returns a human-readable English name for a token.
func DisplayName(token string) string {
	c := Normalize(token)
	switch c {
	case Unknown:
		return "Unknown"
	case Origin:
		return "Original"
	}
	if tag, err := xlanguage.Parse(c); err == nil {
		if name := display.English.Languages().Name(tag); name != "" {
			return name
		}
	}
	return strings.ToUpper(c)
}

// NormalizeList normalizes tokens and drops duplicates and Unknown entries,
// keeping first-seen order.
func NormalizeList(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		c := Normalize(tok)
		if c == Unknown {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
