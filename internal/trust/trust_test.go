package trust

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSource(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want SourceID
	}{
		{"CNG", "cng"},
		{"  cng  ", "cng"},
		{"Classical Numismatic Group, Inc.", "classical_numismatic_group"},
		{"Stack's & Bowers", "stacks_and_bowers"},
		{"Künker", "kunker"},
		{"Numismatica Ars Classica AG", "numismatica_ars_classica"},
		{"heritage-auctions", "heritage_auctions"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSource(tt.raw))
		})
	}
}

func TestModel_NormalizeResolvesAliases(t *testing.T) {
	t.Parallel()
	m := Default()
	assert.Equal(t, SourceID("cng"), m.Normalize("Classical Numismatic Group, Inc."))
	assert.Equal(t, SourceID("ngc"), m.Normalize("Numismatic Guaranty Company"))
	assert.Equal(t, SourceID("heritage"), m.Normalize("HA.com"))
	assert.Equal(t, SourceID("unknown_house"), m.Normalize("Unknown House"))
}

func TestModel_Trust(t *testing.T) {
	t.Parallel()
	m := Default()

	t.Run("source default", func(t *testing.T) {
		assert.Equal(t, 70, m.Trust("cng", "weight_g", nil))
	})

	t.Run("field override", func(t *testing.T) {
		assert.Equal(t, 85, m.Trust("ngc", "grade", nil))
		assert.Equal(t, 90, m.Trust("ngc", "certification_number", nil))
	})

	t.Run("context boost applies to its field only", func(t *testing.T) {
		ctx := Context{"certified": true}
		assert.Equal(t, 95, m.Trust("NGC", "grade", ctx))
		assert.Equal(t, 90, m.Trust("NGC", "weight_g", ctx))
	})

	t.Run("negative boost", func(t *testing.T) {
		assert.Equal(t, 25, m.Trust("ocr", "obverse_legend", Context{"low_confidence": true}))
	})

	t.Run("unknown source falls back to baseline below user trust", func(t *testing.T) {
		got := m.Trust("some random blog", "grade", nil)
		assert.Equal(t, DefaultBaseline, got)
		assert.Less(t, got, UserTrust)
	})

	t.Run("user source", func(t *testing.T) {
		assert.Equal(t, UserTrust, m.Trust("User", "mint", nil))
	})

	t.Run("alias resolves to profile", func(t *testing.T) {
		assert.Equal(t, 70, m.Trust("Classical Numismatic Group", "diameter_mm", nil))
	})
}

func TestModel_ScoresStayBelowVerified(t *testing.T) {
	t.Parallel()
	m := New(Table{
		Sources: map[SourceID]Source{
			"oracle": {Default: 150, Boosts: []Boost{{When: "x", Delta: 50}}},
			"junk":   {Default: -5},
		},
	})
	assert.Equal(t, UserVerifiedTrust-1, m.Trust("oracle", "grade", Context{"x": true}))
	assert.Equal(t, 0, m.Trust("junk", "grade", nil))
}

func TestNew_BaselineGuard(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultBaseline, New(Table{Baseline: UserTrust}).Baseline())
	assert.Equal(t, DefaultBaseline, New(Table{}).Baseline())
	assert.Equal(t, 20, New(Table{Baseline: 20}).Baseline())
}

func TestNew_CopiesTable(t *testing.T) {
	t.Parallel()
	tbl := Table{Sources: map[SourceID]Source{
		"cng": {Default: 70, Fields: map[string]int{"grade": 60}},
	}}
	m := New(tbl)
	tbl.Sources["cng"].Fields["grade"] = 10
	tbl.Sources["new"] = Source{Default: 80}

	assert.Equal(t, 60, m.Trust("cng", "grade", nil))
	assert.False(t, m.Known("new"))
	assert.True(t, m.Known("CNG"))
	assert.True(t, m.Known("user"))
}

func TestModel_ConcurrentUse(t *testing.T) {
	t.Parallel()
	m := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, 70, m.Trust("Classical Numismatic Group", "weight_g", nil))
			}
		}()
	}
	wg.Wait()
}
