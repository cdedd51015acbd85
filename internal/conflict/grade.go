package conflict

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Ordinal grading scale, lowest to highest.
const (
	LevelPoor = iota + 1
	LevelFair
	LevelAboutGood
	LevelGood
	LevelVeryGood
	LevelFine
	LevelVeryFine
	LevelExtremelyFine
	LevelAboutUncirculated
	LevelMintState
	LevelFDC
)

var levelNames = map[int]string{
	LevelPoor:              "P",
	LevelFair:              "Fr",
	LevelAboutGood:         "AG",
	LevelGood:              "G",
	LevelVeryGood:          "VG",
	LevelFine:              "F",
	LevelVeryFine:          "VF",
	LevelExtremelyFine:     "EF",
	LevelAboutUncirculated: "AU",
	LevelMintState:         "MS",
	LevelFDC:               "FDC",
}

// gradeSpellings lists the case-folded phrases (space separated tokens)
// accepted for each level.
var gradeSpellings = []struct {
	level   int
	phrases []string
}{
	{LevelPoor, []string{"poor", "p", "po", "pr"}},
	{LevelFair, []string{"fair", "fr"}},
	{LevelAboutGood, []string{"about good", "ag"}},
	{LevelGood, []string{"good", "g", "gd"}},
	{LevelVeryGood, []string{"very good", "vg"}},
	{LevelFine, []string{"fine", "f"}},
	{LevelVeryFine, []string{"very fine", "vf"}},
	{LevelExtremelyFine, []string{"extremely fine", "extra fine", "ef", "xf"}},
	{LevelAboutUncirculated, []string{"about uncirculated", "almost uncirculated", "au"}},
	{LevelMintState, []string{"mint state", "uncirculated", "brilliant uncirculated", "ms", "unc", "bu"}},
	{LevelFDC, []string{"fdc", "fleur de coin"}},
}

// gradePhrases maps each spelling to its level.
var gradePhrases = func() map[string]int {
	m := make(map[string]int)
	for _, gs := range gradeSpellings {
		for _, p := range gs.phrases {
			m[p] = gs.level
		}
	}
	return m
}()

// modifierTokens are non-ordinal qualifiers, mapped to a canonical spelling.
var modifierTokens = map[string]string{
	"choice":  "choice",
	"ch":      "choice",
	"near":    "near",
	"nearly":  "near",
	"superb":  "superb",
	"gem":     "gem",
	"about":   "about",
	"good":    "good",
	"+":       "plus",
	"details": "details",
}

// compactPrefixes are modifiers written directly against an abbreviation,
// e.g. "gVF", "nEF", "aEF", "chAU".
var compactPrefixes = []struct {
	prefix   string
	modifier string
}{
	{"ch", "choice"},
	{"g", "good"},
	{"n", "near"},
	{"a", "about"},
}

// gradeSeparator stands for "/" and "-" in a token stream.
const gradeSeparator = "/"

// Grade is a parsed condition grade.
type Grade struct {
	Base      string
	Level     int
	Modifiers []string
}

// ParseGrade normalizes a grade string. ok is false when no ordinal grade
// can be found.
func ParseGrade(s string) (Grade, bool) {
	toks := gradeTokens(s)
	var g Grade
	mods := make(map[string]bool)

	// split is set once a separator follows the first grade; the grade
	// after it ("VF/EF", "Good/Very Good") is ignored.
	split := false
	for i := 0; i < len(toks); {
		if toks[i] == gradeSeparator {
			split = g.Level != 0
			i++
			continue
		}
		level, n := matchPhrase(toks, i)
		if n > 0 {
			if split {
				break
			}
			// "good" directly before another grade is a qualifier ("Good VF").
			if n == 1 && toks[i] == "good" {
				if next, m := matchPhrase(toks, i+1); m > 0 && next != LevelGood {
					mods["good"] = true
					i++
					continue
				}
			}
			if g.Level == 0 {
				g.Level = level
			}
			i += n
			continue
		}

		tok := toks[i]
		i++
		if mod, ok := modifierTokens[tok]; ok {
			mods[mod] = true
			continue
		}
		if isDigits(tok) {
			if num := strings.TrimLeft(tok, "0"); num != "" {
				mods[num] = true
			} else {
				mods["0"] = true
			}
			continue
		}
		if level, mod, ok := splitCompact(tok); ok {
			if split {
				break
			}
			mods[mod] = true
			if g.Level == 0 {
				g.Level = level
			}
		}
	}

	if g.Level == 0 {
		return Grade{}, false
	}
	g.Base = levelNames[g.Level]
	g.Modifiers = make([]string, 0, len(mods))
	for m := range mods {
		g.Modifiers = append(g.Modifiers, m)
	}
	sort.Strings(g.Modifiers)
	return g, true
}

// matchPhrase returns the level and token count of the longest grade phrase
// starting at toks[i].
func matchPhrase(toks []string, i int) (int, int) {
	for n := 3; n >= 1; n-- {
		if i+n > len(toks) {
			continue
		}
		if level, ok := gradePhrases[strings.Join(toks[i:i+n], " ")]; ok {
			return level, n
		}
	}
	return 0, 0
}

func splitCompact(tok string) (int, string, bool) {
	for _, cp := range compactPrefixes {
		rest, ok := strings.CutPrefix(tok, cp.prefix)
		if !ok || rest == "" {
			continue
		}
		if level, ok := gradePhrases[rest]; ok && len(rest) <= 3 {
			return level, cp.modifier, true
		}
	}
	return 0, "", false
}

func gradeTokens(s string) []string {
	s = cases.Fold().String(s)
	var toks []string
	var cur []rune
	curDigit := false
	flush := func() {
		if len(cur) > 0 {
			toks = append(toks, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if curDigit {
				flush()
			}
			curDigit = false
			cur = append(cur, r)
		case unicode.IsDigit(r):
			if !curDigit {
				flush()
			}
			curDigit = true
			cur = append(cur, r)
		case r == '+':
			flush()
			toks = append(toks, "+")
		case r == '/' || r == '-':
			flush()
			toks = append(toks, gradeSeparator)
		default:
			flush()
		}
	}
	flush()
	return toks
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func classifyGrade(oldVal, newVal any) Type {
	oldStr, ok1 := oldVal.(string)
	newStr, ok2 := newVal.(string)
	if !ok1 || !ok2 {
		return TypeValueConflict
	}
	og, ok1 := ParseGrade(oldStr)
	ng, ok2 := ParseGrade(newStr)
	if !ok1 || !ok2 {
		return classifyOpaque(oldVal, newVal)
	}
	if og.Level != ng.Level {
		return TypeGradeMajor
	}
	if equalStrings(og.Modifiers, ng.Modifiers) {
		return TypeValueIdentical
	}
	return TypeGradeMinor
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
