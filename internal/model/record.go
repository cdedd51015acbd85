package model

import (
	"sort"
	"time"
)

// Record is the canonical record that observations are reconciled into.
type Record struct {
	ID         string                     `json:"id"`
	Fields     map[string]any             `json:"fields"`
	Provenance map[string]FieldProvenance `json:"provenance"`
	CreatedAt  time.Time                  `json:"created_at"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// NewRecord returns an empty record with initialized maps.
func NewRecord(id string) *Record {
	return &Record{
		ID:         id,
		Fields:     make(map[string]any),
		Provenance: make(map[string]FieldProvenance),
	}
}

// EnsureMaps initializes nil maps, e.g. after decoding a sparse row.
func (r *Record) EnsureMaps() {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	if r.Provenance == nil {
		r.Provenance = make(map[string]FieldProvenance)
	}
}

// Value returns the current value of a field and its provenance, if any.
func (r *Record) Value(field string) (any, *FieldProvenance) {
	v := r.Fields[field]
	if p, ok := r.Provenance[field]; ok {
		return v, &p
	}
	return v, nil
}

// IsVerified reports whether the field is protected by a user verification.
func (r *Record) IsVerified(field string) bool {
	p, ok := r.Provenance[field]
	return ok && p.UserVerified
}

// SetField replaces a field value and its provenance together.
func (r *Record) SetField(field string, value any, prov FieldProvenance) {
	r.EnsureMaps()
	r.Fields[field] = value
	r.Provenance[field] = prov
}

// ClearField removes a field value and its provenance.
func (r *Record) ClearField(field string) {
	delete(r.Fields, field)
	delete(r.Provenance, field)
}

// FieldNames returns the names of fields that hold a value, sorted.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep-enough copy for decision making: maps are copied, and
// list values are copied so callers can mutate the clone freely.
func (r *Record) Clone() *Record {
	c := &Record{
		ID:         r.ID,
		Fields:     make(map[string]any, len(r.Fields)),
		Provenance: make(map[string]FieldProvenance, len(r.Provenance)),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	for k, v := range r.Fields {
		c.Fields[k] = cloneValue(v)
	}
	for k, p := range r.Provenance {
		if p.Previous != nil {
			prev := *p.Previous
			p.Previous = &prev
		}
		c.Provenance[k] = p
	}
	return c
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		return append([]any(nil), t...)
	default:
		return v
	}
}
