// Package fold normalizes raw text from Mexican government datasets into a
// canonical matching form: lowercased, trimmed, accents stripped.
package fold

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key returns the matching form of s. INEGI and FGJ exports disagree on
// case, accents and stray BOMs across vintages, so every header and
// category lookup goes through this. The transform chain is stateful and
// not safe to share across goroutines, hence built per call.
func Key(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.TrimSpace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// KeySet folds every string in vals into a lookup set.
func KeySet(vals []string) map[string]bool {
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		set[Key(v)] = true
	}
	return set
}
