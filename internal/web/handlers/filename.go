package handlers

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// secureFilename reduces a client supplied filename to a safe ASCII name:
// diacritics are stripped, path separators become underscores and anything
// outside [A-Za-z0-9._-] is dropped. Names that end up empty become "photo".
func secureFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	name, _, _ = transform.String(t, name)

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	name = strings.Trim(b.String(), "._")
	if name == "" || path.Base(name) != name {
		return "photo"
	}
	return name
}
