package conflict

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// expansionRatio is the share of old words that must reappear in a longer
// new text for it to count as an expansion.
const expansionRatio = 0.7

func fold(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}

// NormalizeRefs case-folds and whitespace-collapses each citation into a set.
func NormalizeRefs(refs []string) map[string]bool {
	set := make(map[string]bool, len(refs))
	for _, r := range refs {
		if n := fold(r); n != "" {
			set[n] = true
		}
	}
	return set
}

func classifyReferences(oldVal, newVal any) Type {
	oldRefs, ok1 := model.ToStringList(oldVal)
	newRefs, ok2 := model.ToStringList(newVal)
	if !ok1 || !ok2 {
		return TypeValueConflict
	}
	oldSet := NormalizeRefs(oldRefs)
	newSet := NormalizeRefs(newRefs)

	if len(oldSet) == 0 {
		return TypeRefAdditional
	}
	for r := range oldSet {
		if !newSet[r] {
			return TypeRefDifferent
		}
	}
	if len(newSet) == len(oldSet) {
		return TypeValueIdentical
	}
	return TypeRefAdditional
}

func classifyText(oldVal, newVal any) Type {
	oldStr, ok1 := oldVal.(string)
	newStr, ok2 := newVal.(string)
	if !ok1 || !ok2 {
		return TypeValueConflict
	}
	o, n := fold(oldStr), fold(newStr)
	if o == n {
		return TypeValueIdentical
	}
	if strings.Contains(n, o) {
		return TypeTextExpansion
	}

	oldWords := words(o)
	newWords := words(n)
	if len(oldWords) == 0 {
		return TypeTextDifferent
	}
	newSet := make(map[string]bool, len(newWords))
	for _, w := range newWords {
		newSet[w] = true
	}
	shared := 0
	for _, w := range oldWords {
		if newSet[w] {
			shared++
		}
	}
	ratio := float64(shared) / float64(len(oldWords))
	if ratio > expansionRatio && len(newWords) > len(oldWords) {
		return TypeTextExpansion
	}
	return TypeTextDifferent
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func classifyOpaque(oldVal, newVal any) Type {
	if fold(stringify(oldVal)) == fold(stringify(newVal)) {
		return TypeValueIdentical
	}
	return TypeValueConflict
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, "; ")
	default:
		if f, ok := model.ToFloat(v); ok {
			return fmt.Sprintf("%g", f)
		}
		return fmt.Sprintf("%v", v)
	}
}
