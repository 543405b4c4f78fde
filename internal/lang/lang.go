// Package lang normalises language codes and holds the fixed catalog of
// languages offered to clients.
package lang

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Auto asks the recognizer to detect the spoken language.
const Auto = "auto"

// Language is one catalog entry.
type Language struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Native string `json:"native,omitempty"`
	TTS    bool   `json:"tts"`
}

var catalog = []struct {
	code string
	tts  bool
}{
	{"en", true},
	{"te", true},
	{"ta", true},
	{"hi", true},
	{"fr", true},
	{"es", true},
	{"de", true},
	{"ja", true},
	{"ru", true},
}

// Catalog returns the offered languages in display order.
func Catalog() []Language {
	out := make([]Language, 0, len(catalog))
	for _, c := range catalog {
		out = append(out, Language{Code: c.code, Name: Name(c.code), Native: native(c.code), TTS: c.tts})
	}
	return out
}

// Lookup finds code (in any casing or regional form) in the catalog.
func Lookup(code string) (Language, bool) {
	b := Base(code)
	for _, c := range catalog {
		if c.code == b {
			return Language{Code: c.code, Name: Name(c.code), Native: native(c.code), TTS: c.tts}, true
		}
	}
	return Language{}, false
}

func parse(code string) (language.Tag, bool) {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, Auto) {
		return language.Und, false
	}
	t, err := language.Parse(code)
	if err != nil || t == language.Und {
		return language.Und, false
	}
	return t, true
}

// Canonical returns the BCP 47 form of code ("en_us" → "en-US"). Empty,
// "auto" and unparseable codes yield "auto".
func Canonical(code string) string {
	t, ok := parse(code)
	if !ok {
		return Auto
	}
	return t.String()
}

// Base strips region and script ("pt-BR" → "pt"). Unknown codes yield "".
func Base(code string) string {
	t, ok := parse(code)
	if !ok {
		return ""
	}
	b, _ := t.Base()
	return b.String()
}

// Regional adds the most likely region when code has none ("te" → "te-IN").
func Regional(code string) string {
	t, ok := parse(code)
	if !ok {
		return ""
	}
	b, _ := t.Base()
	r, conf := t.Region()
	if conf == language.No {
		return b.String()
	}
	rt, err := language.Compose(b, r)
	if err != nil {
		return b.String()
	}
	return rt.String()
}

// Name is the English display name of code, or code itself if unknown.
func Name(code string) string {
	t, ok := parse(code)
	if !ok {
		return code
	}
	if n := display.English.Languages().Name(t); n != "" {
		return n
	}
	return code
}

func native(code string) string {
	t, ok := parse(code)
	if !ok {
		return ""
	}
	return display.Self.Name(t)
}

// Normalize canonicalises a target list to base codes, dropping empties,
// "auto" and duplicates while keeping order.
func Normalize(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		b := Base(c)
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}
