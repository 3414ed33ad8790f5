package plandoc

import (
	"strings"
	"unicode"
)

// FormatDiff describes d in a short sentence such as "Changed price cents".
func FormatDiff(d Diff) string {
	field := d.Field
	if field == "" {
		field = d.Path[strings.LastIndex(d.Path, PathSeparator)+1:]
	}
	name := Humanize(field)

	switch {
	case d.OldValue == nil:
		return strings.TrimSpace("Added " + name)
	case d.NewValue == nil:
		return strings.TrimSpace("Removed " + name)
	default:
		return strings.TrimSpace("Changed " + name)
	}
}

// Humanize splits camelCase, snake_case and kebab-case identifiers into
// lower-case words: "priceCents" and "price_cents" both become "price cents".
// Acronyms stay together, so "launchURLPath" becomes "launch url path".
func Humanize(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			b.WriteByte(' ')
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
