// Package trust scores how much a source's observation should be believed
// for a given field.
package trust

// Trust sentinels. Source-derived scores are always clamped strictly below
// UserVerifiedTrust.
const (
	// UserTrust is the score of unattributed user-entered data.
	UserTrust = 50
	// UserVerifiedTrust is reserved for fields a user explicitly confirmed.
	UserVerifiedTrust = 100
	// DefaultBaseline is the score of an unrecognized source.
	DefaultBaseline = 30

	maxSourceTrust = UserVerifiedTrust - 1
)

// SourceUser identifies unattributed user entry.
const SourceUser SourceID = "user"

// Context carries boolean flags that can boost or discount a source's trust,
// e.g. "certified" when the record has already been slabbed.
type Context map[string]bool

// Boost adjusts a source's trust for a field when a context flag is set.
// An empty Field applies to every field.
type Boost struct {
	Field string `json:"field,omitempty" yaml:"field,omitempty"`
	When  string `json:"when" yaml:"when"`
	Delta int    `json:"delta" yaml:"delta"`
}

// Source is the trust profile of one source.
type Source struct {
	Default int            `json:"default" yaml:"default"`
	Fields  map[string]int `json:"fields,omitempty" yaml:"fields,omitempty"`
	Boosts  []Boost        `json:"boosts,omitempty" yaml:"boosts,omitempty"`
}

// Table is the configuration a Model is built from.
type Table struct {
	Baseline int                 `json:"baseline" yaml:"baseline"`
	Sources  map[SourceID]Source `json:"sources" yaml:"sources"`
	// Aliases maps normalized free-text names to canonical source ids.
	Aliases map[string]SourceID `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Model is an immutable trust lookup. Build it once with New and share it.
type Model struct {
	baseline int
	sources  map[SourceID]Source
	aliases  map[string]SourceID
}

// New builds a Model, copying the table so later edits to it have no effect.
// A baseline at or above UserTrust is lowered to DefaultBaseline so that an
// unattributed user entry always outranks an unknown source.
func New(t Table) *Model {
	m := &Model{
		baseline: t.Baseline,
		sources:  make(map[SourceID]Source, len(t.Sources)),
		aliases:  make(map[string]SourceID, len(t.Aliases)),
	}
	if m.baseline <= 0 || m.baseline >= UserTrust {
		m.baseline = DefaultBaseline
	}
	for id, src := range t.Sources {
		cp := Source{Default: src.Default}
		if len(src.Fields) > 0 {
			cp.Fields = make(map[string]int, len(src.Fields))
			for f, v := range src.Fields {
				cp.Fields[f] = v
			}
		}
		cp.Boosts = append([]Boost(nil), src.Boosts...)
		m.sources[normalize(string(id))] = cp
	}
	for alias, id := range t.Aliases {
		m.aliases[string(normalize(alias))] = normalize(string(id))
	}
	return m
}

// Default returns a Model holding the built-in source table.
func Default() *Model {
	return New(DefaultTable())
}

// Baseline returns the score given to unrecognized sources.
func (m *Model) Baseline() int {
	return m.baseline
}

// Normalize canonicalizes a raw source name, resolving aliases.
func (m *Model) Normalize(raw string) SourceID {
	id := normalize(raw)
	if canon, ok := m.aliases[string(id)]; ok {
		return canon
	}
	return id
}

// Known reports whether the source resolves to a configured profile.
func (m *Model) Known(raw string) bool {
	id := m.Normalize(raw)
	if id == SourceUser {
		return true
	}
	_, ok := m.sources[id]
	return ok
}

// Trust returns the score for a source's value of a field. It is total:
// unknown sources degrade to the baseline.
func (m *Model) Trust(source, field string, ctx Context) int {
	id := m.Normalize(source)
	src, ok := m.sources[id]
	if !ok {
		if id == SourceUser {
			return UserTrust
		}
		return m.baseline
	}

	score := src.Default
	if v, ok := src.Fields[field]; ok {
		score = v
	}
	for _, b := range src.Boosts {
		if b.Field != "" && b.Field != field {
			continue
		}
		if ctx[b.When] {
			score += b.Delta
		}
	}
	return clamp(score)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxSourceTrust {
		return maxSourceTrust
	}
	return score
}
