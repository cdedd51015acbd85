package trust

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SourceID is a canonical, lookup-stable source identifier.
type SourceID string

// NormalizeSource canonicalizes a free-text source name without alias
// resolution: diacritics are stripped, case is folded, and punctuation and
// whitespace runs collapse to a single underscore.
//
//	"Classical Numismatic Group, Inc." -> "classical_numismatic_group"
//	"Stack's & Bowers"                 -> "stacks_and_bowers"
func NormalizeSource(raw string) SourceID {
	return normalize(raw)
}

var corporateEnd = []string{"_inc", "_llc", "_ltd", "_gmbh", "_ag", "_sa", "_co"}

func normalize(raw string) SourceID {
	// Casers and transform chains are stateful; build them per call.
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, raw)
	if err != nil {
		s = raw
	}
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			continue
		}
		if r == '&' {
			if b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteString("and")
			pendingSep = true
			continue
		}
		pendingSep = true
	}
	out := b.String()
	for _, suffix := range corporateEnd {
		if trimmed, ok := strings.CutSuffix(out, suffix); ok && trimmed != "" {
			out = trimmed
			break
		}
	}
	return SourceID(out)
}
