package conflict

import (
	"math"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Delta returns |old-new|/|old|. ok is false for non-numeric input or a zero
// divisor.
func Delta(oldVal, newVal any) (float64, bool) {
	o, ok := model.ToFloat(oldVal)
	if !ok {
		return 0, false
	}
	n, ok := model.ToFloat(newVal)
	if !ok {
		return 0, false
	}
	if o == 0 {
		return 0, false
	}
	return math.Abs(o-n) / math.Abs(o), true
}

func classifyMeasurement(oldVal, newVal any, tolerance float64) Type {
	delta, ok := Delta(oldVal, newVal)
	if !ok {
		return TypeValueConflict
	}
	switch {
	case delta < identicalDelta:
		return TypeValueIdentical
	case delta <= tolerance:
		return TypeMeasurementTolerance
	default:
		return TypeMeasurementSignificant
	}
}
