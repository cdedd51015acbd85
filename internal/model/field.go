package model

import (
	"sort"
	"strings"
)

// FieldKind determines how a field's values are coerced and compared.
type FieldKind int

const (
	// KindOpaque fields only compare by case-folded equality.
	KindOpaque FieldKind = iota
	// KindMeasurement fields are numeric and compared by relative delta.
	KindMeasurement
	// KindGrade fields hold a condition grade on the ordinal grading scale.
	KindGrade
	// KindReferenceList fields hold catalog citations compared as sets.
	KindReferenceList
	// KindFreeText fields hold descriptions and legends.
	KindFreeText
)

var kindNames = map[FieldKind]string{
	KindOpaque:        "opaque",
	KindMeasurement:   "measurement",
	KindGrade:         "grade",
	KindReferenceList: "reference_list",
	KindFreeText:      "free_text",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "opaque"
}

// ParseFieldKind maps a configuration name to a FieldKind.
func ParseFieldKind(s string) (FieldKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "opaque":
		return KindOpaque, true
	case "measurement":
		return KindMeasurement, true
	case "grade":
		return KindGrade, true
	case "reference_list", "references", "refs":
		return KindReferenceList, true
	case "free_text", "text":
		return KindFreeText, true
	default:
		return KindOpaque, false
	}
}

// Well-known field names.
const (
	FieldWeight              = "weight_g"
	FieldDiameter            = "diameter_mm"
	FieldThickness           = "thickness_mm"
	FieldGrade               = "grade"
	FieldReferences          = "references"
	FieldObverseLegend       = "obverse_legend"
	FieldReverseLegend       = "reverse_legend"
	FieldObverseDescription  = "obverse_description"
	FieldReverseDescription  = "reverse_description"
	FieldDescription         = "description"
	FieldNotes               = "notes"
	FieldMint                = "mint"
	FieldCertificationNumber = "certification_number"
)

// FieldSpec declares the kind of a single reconcilable field.
type FieldSpec struct {
	Name string    `json:"name" yaml:"name"`
	Kind FieldKind `json:"kind" yaml:"kind"`
}

// FieldRegistry is an indexed collection of field specs. Fields not present
// in the registry are treated as KindOpaque.
type FieldRegistry struct {
	Fields []FieldSpec
	byName map[string]*FieldSpec
}

// NewFieldRegistry creates a FieldRegistry with indexed lookups. Later
// entries for the same name replace earlier ones.
func NewFieldRegistry(fields []FieldSpec) *FieldRegistry {
	r := &FieldRegistry{byName: make(map[string]*FieldSpec, len(fields))}
	pos := make(map[string]int, len(fields))
	for _, f := range fields {
		if i, ok := pos[f.Name]; ok {
			r.Fields[i].Kind = f.Kind
			continue
		}
		pos[f.Name] = len(r.Fields)
		r.Fields = append(r.Fields, f)
	}
	for i := range r.Fields {
		r.byName[r.Fields[i].Name] = &r.Fields[i]
	}
	return r
}

// DefaultFieldSpecs returns the built-in field kinds for coin records.
func DefaultFieldSpecs() []FieldSpec {
	return []FieldSpec{
		{Name: FieldWeight, Kind: KindMeasurement},
		{Name: FieldDiameter, Kind: KindMeasurement},
		{Name: FieldThickness, Kind: KindMeasurement},
		{Name: FieldGrade, Kind: KindGrade},
		{Name: FieldReferences, Kind: KindReferenceList},
		{Name: FieldObverseLegend, Kind: KindFreeText},
		{Name: FieldReverseLegend, Kind: KindFreeText},
		{Name: FieldObverseDescription, Kind: KindFreeText},
		{Name: FieldReverseDescription, Kind: KindFreeText},
		{Name: FieldDescription, Kind: KindFreeText},
		{Name: FieldNotes, Kind: KindFreeText},
	}
}

// DefaultFieldRegistry returns a registry holding DefaultFieldSpecs.
func DefaultFieldRegistry() *FieldRegistry {
	return NewFieldRegistry(DefaultFieldSpecs())
}

// ByName returns the spec for the given field, or nil if not registered.
func (r *FieldRegistry) ByName(name string) *FieldSpec {
	if r == nil {
		return nil
	}
	return r.byName[name]
}

// Kind returns the kind for a field, defaulting to KindOpaque.
func (r *FieldRegistry) Kind(name string) FieldKind {
	if f := r.ByName(name); f != nil {
		return f.Kind
	}
	return KindOpaque
}

// Names returns the registered field names in sorted order.
func (r *FieldRegistry) Names() []string {
	names := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
