package conflict

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func TestClassify_EmptyValues(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TypeValueIdentical, Classify("weight_g", nil, 3.9))
	assert.Equal(t, TypeValueIdentical, Classify("grade", "  ", "VF"))
	assert.Equal(t, TypeValueIdentical, Classify("references", []string{}, []string{"RIC 207"}))
	assert.Equal(t, TypeValueConflict, Classify("weight_g", 3.9, nil))
	assert.Equal(t, TypeValueConflict, Classify("mint", "Rome", ""))
}

func TestClassify_Measurement(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		old, new any
		want     Type
	}{
		{"within tolerance", 3.90, 3.92, TypeMeasurementTolerance},
		{"identical", 3.90, 3.90, TypeValueIdentical},
		{"below identical delta", 10.0, 10.0005, TypeValueIdentical},
		{"numeric strings", "3.90", 3.92, TypeMeasurementTolerance},
		{"significant", 3.90, 4.50, TypeMeasurementSignificant},
		{"non-numeric", 3.90, "heavy", TypeValueConflict},
		{"zero divisor", 0.0, 1.2, TypeValueConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(model.FieldWeight, tt.old, tt.new))
		})
	}
}

func TestClassify_SafeMonotonicity(t *testing.T) {
	t.Parallel()
	olds := []float64{0.5, 1.1, 3.9, 7.25, 18.0, 26.9, 120.0}
	deltas := []float64{0, 0.00005, 0.001, 0.005, 0.01, 0.015, 0.0199}
	for _, o := range olds {
		for _, d := range deltas {
			for _, sign := range []float64{1, -1} {
				n := o * (1 + sign*d)
				ct := Classify(model.FieldWeight, o, n)
				assert.Contains(t, []Type{TypeMeasurementTolerance, TypeValueIdentical}, ct,
					fmt.Sprintf("old=%v new=%v", o, n))
				assert.True(t, IsSafe(ct))
			}
		}
	}
}

func TestClassifier_CustomTolerance(t *testing.T) {
	t.Parallel()
	c := New(nil, 0.2)
	assert.Equal(t, TypeMeasurementTolerance, c.Classify(model.FieldWeight, 3.9, 4.5))

	c = New(nil, 0)
	assert.Equal(t, DefaultTolerance, c.Tolerance)
}

func TestClassify_Grade(t *testing.T) {
	t.Parallel()
	tests := []struct {
		old, new string
		want     Type
	}{
		{"VF", "AU", TypeGradeMajor},
		{"VF", "EF", TypeGradeMajor},
		{"Fine", "Very Fine", TypeGradeMajor},
		{"VF", "Choice VF", TypeGradeMinor},
		{"MS 63", "MS 64", TypeGradeMinor},
		{"AU", "AU+", TypeGradeMinor},
		{"EF", "XF", TypeValueIdentical},
		{"Extremely Fine", "ef", TypeValueIdentical},
		{"Good VF", "gVF", TypeValueIdentical},
		{"nEF", "Near EF", TypeValueIdentical},
		{"ms63", "MS-63", TypeValueIdentical},
		{"Good/Very Good", "Good", TypeValueIdentical},
		{"G/VG", "G", TypeValueIdentical},
		{"Good/Very Good", "G/VG", TypeValueIdentical},
		{"VF-EF", "VF", TypeValueIdentical},
		{"Good/Very Good", "VG", TypeGradeMajor},
		{"nice patina", "Nice Patina", TypeValueIdentical},
		{"nice patina", "VF", TypeValueConflict},
	}
	for _, tt := range tests {
		t.Run(tt.old+"->"+tt.new, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(model.FieldGrade, tt.old, tt.new))
		})
	}

	assert.Equal(t, TypeValueConflict, Classify(model.FieldGrade, "VF", 7))
}

func TestParseGrade(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		base  string
		level int
		mods  []string
	}{
		{"VF", "VF", LevelVeryFine, []string{}},
		{"Choice AU 58", "AU", LevelAboutUncirculated, []string{"58", "choice"}},
		{"MS 63+", "MS", LevelMintState, []string{"63", "plus"}},
		{"Good Very Fine", "VF", LevelVeryFine, []string{"good"}},
		{"Good", "G", LevelGood, []string{}},
		{"about good", "AG", LevelAboutGood, []string{}},
		{"Almost Uncirculated", "AU", LevelAboutUncirculated, []string{}},
		{"aEF", "EF", LevelExtremelyFine, []string{"about"}},
		{"chAU", "AU", LevelAboutUncirculated, []string{"choice"}},
		{"VF/EF", "VF", LevelVeryFine, []string{}},
		{"G/VG", "G", LevelGood, []string{}},
		{"Good/Very Good", "G", LevelGood, []string{}},
		{"Good / VF", "G", LevelGood, []string{}},
		{"EF-AU", "EF", LevelExtremelyFine, []string{}},
		{"Near-Fine", "F", LevelFine, []string{"near"}},
		{"MS-63", "MS", LevelMintState, []string{"63"}},
		{"Fleur de Coin", "FDC", LevelFDC, []string{}},
		{"AU details", "AU", LevelAboutUncirculated, []string{"details"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			g, ok := ParseGrade(tt.in)
			assert.True(t, ok)
			assert.Equal(t, tt.base, g.Base)
			assert.Equal(t, tt.level, g.Level)
			assert.Equal(t, tt.mods, g.Modifiers)
		})
	}

	_, ok := ParseGrade("lovely toning")
	assert.False(t, ok)
}

func TestClassify_References(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		old, new any
		want     Type
	}{
		{"additional", []string{"RIC 207"}, []string{"RIC 207", "BMC 123"}, TypeRefAdditional},
		{"equal after folding", []string{"ric  207"}, []string{"RIC 207"}, TypeValueIdentical},
		{"reordered", []string{"RIC 207", "BMC 1"}, "BMC 1; RIC 207", TypeValueIdentical},
		{"different", []string{"RIC 207"}, []string{"RIC 208"}, TypeRefDifferent},
		{"partial overlap", []string{"RIC 207", "BMC 1"}, []string{"RIC 207", "Cohen 5"}, TypeRefDifferent},
		{"subset removal", []string{"RIC 207", "BMC 1"}, []string{"RIC 207"}, TypeRefDifferent},
		{"blank old entries", []string{" "}, []string{"RIC 207"}, TypeRefAdditional},
		{"not a list", []string{"RIC 207"}, 42, TypeValueConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(model.FieldReferences, tt.old, tt.new))
		})
	}
}

func TestClassify_Text(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		old, new string
		want     Type
	}{
		{"case folded", "IMP CAES TRAIAN", "imp caes  traian", TypeValueIdentical},
		{"substring", "Laureate head right", "Laureate head right, draped and cuirassed", TypeTextExpansion},
		{"word overlap", "laureate head right", "head right laureate and cuirassed", TypeTextExpansion},
		{"same words no growth", "laureate head right", "right head laureate", TypeTextDifferent},
		{"different", "Emperor on horseback", "Victory advancing left", TypeTextDifferent},
		{"shorter", "Laureate head right, draped", "Head left", TypeTextDifferent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(model.FieldObverseDescription, tt.old, tt.new))
		})
	}
}

func TestClassify_Opaque(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TypeValueIdentical, Classify(model.FieldMint, "Rome", " rome "))
	assert.Equal(t, TypeValueConflict, Classify(model.FieldMint, "Rome", "Antioch"))
	assert.Equal(t, TypeValueIdentical, Classify("die_axis", 6, 6.0))
	assert.Equal(t, TypeValueConflict, Classify("die_axis", 6, 12))
	assert.Equal(t, TypeValueIdentical, Classify("unregistered_field", "X", "x"))
}

func TestClassifier_FieldRegistryOverride(t *testing.T) {
	t.Parallel()
	reg := model.NewFieldRegistry(append(model.DefaultFieldSpecs(),
		model.FieldSpec{Name: "mint", Kind: model.KindFreeText}))
	c := New(reg, 0)
	assert.Equal(t, TypeTextExpansion, c.Classify("mint", "Rome", "Rome, officina 3"))
	assert.Equal(t, TypeValueConflict, Classify("mint", "Rome", "Rome, officina 3"))
}

func TestIsSafe(t *testing.T) {
	t.Parallel()
	for _, ct := range []Type{TypeMeasurementTolerance, TypeGradeMinor, TypeRefAdditional, TypeTextExpansion, TypeValueIdentical} {
		assert.True(t, IsSafe(ct), ct)
	}
	for _, ct := range []Type{TypeMeasurementSignificant, TypeGradeMajor, TypeRefDifferent, TypeTextDifferent, TypeValueConflict, Type("bogus")} {
		assert.False(t, IsSafe(ct), ct)
	}
}

func TestDelta(t *testing.T) {
	t.Parallel()
	d, ok := Delta(3.90, 3.92)
	assert.True(t, ok)
	assert.InDelta(t, 0.005128, d, 0.000001)

	_, ok = Delta(0, 1)
	assert.False(t, ok)
	_, ok = Delta("x", 1)
	assert.False(t, ok)
}
