// Package conflict classifies how a proposed field value relates to the
// current one. Classification is pure and total: malformed input is itself
// an outcome (TypeValueConflict), never an error.
package conflict

import (
	"github.com/sells-group/reconcile-cli/internal/model"
)

// Type is the classification of an (old, new) value pair.
type Type string

// Safe classifications: eligible for automatic merge regardless of trust.
const (
	TypeMeasurementTolerance Type = "measurement_tolerance"
	TypeGradeMinor           Type = "grade_minor"
	TypeRefAdditional        Type = "ref_additional"
	TypeTextExpansion        Type = "text_expansion"
	TypeValueIdentical       Type = "value_identical"
)

// Review classifications: applied automatically only with enough trust margin.
const (
	TypeMeasurementSignificant Type = "measurement_significant"
	TypeGradeMajor             Type = "grade_major"
	TypeRefDifferent           Type = "ref_different"
	TypeTextDifferent          Type = "text_different"
	TypeValueConflict          Type = "value_conflict"
)

// DefaultTolerance is the relative measurement delta still considered safe.
const DefaultTolerance = 0.02

// identicalDelta is the relative delta below which two measurements are equal.
const identicalDelta = 0.0001

var safeTypes = map[Type]bool{
	TypeMeasurementTolerance: true,
	TypeGradeMinor:           true,
	TypeRefAdditional:        true,
	TypeTextExpansion:        true,
	TypeValueIdentical:       true,
}

// IsSafe reports whether t belongs to the safe set.
func IsSafe(t Type) bool {
	return safeTypes[t]
}

// Classifier classifies value pairs using a field registry to resolve kinds.
type Classifier struct {
	Fields    *model.FieldRegistry
	Tolerance float64
}

// New returns a Classifier. A non-positive tolerance uses DefaultTolerance and
// a nil registry uses model.DefaultFieldRegistry.
func New(fields *model.FieldRegistry, tolerance float64) *Classifier {
	if fields == nil {
		fields = model.DefaultFieldRegistry()
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Classifier{Fields: fields, Tolerance: tolerance}
}

var defaultClassifier = New(nil, DefaultTolerance)

// Classify uses the built-in field registry and DefaultTolerance.
func Classify(field string, oldVal, newVal any) Type {
	return defaultClassifier.Classify(field, oldVal, newVal)
}

// Classify returns exactly one Type for the comparison of old and new.
//
// An empty old value is reported as TypeValueIdentical: it is a fill, not an
// overwrite. An empty new value is TypeValueConflict because it adds nothing.
func (c *Classifier) Classify(field string, oldVal, newVal any) Type {
	if model.IsEmpty(oldVal) {
		return TypeValueIdentical
	}
	if model.IsEmpty(newVal) {
		return TypeValueConflict
	}

	switch kind := c.Fields.Kind(field); kind {
	case model.KindMeasurement:
		return classifyMeasurement(oldVal, newVal, c.tolerance())
	case model.KindGrade:
		return classifyGrade(oldVal, newVal)
	case model.KindReferenceList:
		return classifyReferences(oldVal, newVal)
	case model.KindFreeText:
		return classifyText(oldVal, newVal)
	case model.KindOpaque:
		return classifyOpaque(oldVal, newVal)
	default:
		return classifyOpaque(oldVal, newVal)
	}
}

func (c *Classifier) tolerance() float64 {
	if c.Tolerance <= 0 {
		return DefaultTolerance
	}
	return c.Tolerance
}
