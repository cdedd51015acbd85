// Package policy loads the reconciliation policy file: trust table overrides,
// field kinds, and decision thresholds.
package policy

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/trust"
)

// Policy is the top-level policy configuration.
type Policy struct {
	// Baseline is the trust of unrecognized sources. Zero keeps the built-in.
	Baseline int `yaml:"baseline"`
	// ReplaceDefaults drops the built-in source table instead of overlaying it.
	ReplaceDefaults bool                    `yaml:"replace_defaults"`
	Sources         map[string]trust.Source `yaml:"sources"`
	Aliases         map[string]string       `yaml:"aliases"`
	// Fields maps field names to kind names (measurement, grade, ...).
	Fields     map[string]string `yaml:"fields"`
	Thresholds Thresholds        `yaml:"thresholds"`
}

// Thresholds optionally override the configured decision thresholds.
type Thresholds struct {
	MinTrustDifference   *int     `yaml:"min_trust_difference,omitempty"`
	MeasurementTolerance *float64 `yaml:"measurement_tolerance,omitempty"`
}

// Default returns an empty policy: built-in sources and field kinds.
func Default() *Policy {
	return &Policy{}
}

// Load reads a policy from a YAML file with a top-level "policy" key.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates policy YAML.
func Parse(data []byte) (*Policy, error) {
	var wrapper struct {
		Policy Policy `yaml:"policy"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "policy: parse")
	}
	p := &wrapper.Policy
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the policy for values the engine cannot honor.
func (p *Policy) Validate() error {
	if p.Baseline < 0 || p.Baseline >= trust.UserTrust {
		return eris.Errorf("policy: baseline %d must be in [0, %d)", p.Baseline, trust.UserTrust)
	}
	for name, kind := range p.Fields {
		if _, ok := model.ParseFieldKind(kind); !ok {
			return eris.Errorf("policy: field %q has unknown kind %q", name, kind)
		}
	}
	for id, src := range p.Sources {
		if trust.NormalizeSource(id) == trust.SourceUser {
			return eris.New("policy: the user source cannot be configured")
		}
		for _, b := range src.Boosts {
			if b.When == "" {
				return eris.Errorf("policy: source %q has a boost without a when flag", id)
			}
		}
	}
	if d := p.Thresholds.MinTrustDifference; d != nil && *d < 0 {
		return eris.Errorf("policy: min_trust_difference %d must not be negative", *d)
	}
	if tol := p.Thresholds.MeasurementTolerance; tol != nil && (*tol <= 0 || *tol >= 1) {
		return eris.Errorf("policy: measurement_tolerance %v must be in (0, 1)", *tol)
	}
	return nil
}

// TrustTable merges the policy over the built-in table.
func (p *Policy) TrustTable() trust.Table {
	t := trust.Table{
		Baseline: trust.DefaultBaseline,
		Sources:  make(map[trust.SourceID]trust.Source),
		Aliases:  make(map[string]trust.SourceID),
	}
	if !p.ReplaceDefaults {
		t = trust.DefaultTable()
	}
	if p.Baseline > 0 {
		t.Baseline = p.Baseline
	}
	for id, src := range p.Sources {
		t.Sources[trust.NormalizeSource(id)] = src
	}
	for alias, id := range p.Aliases {
		t.Aliases[alias] = trust.NormalizeSource(id)
	}
	return t
}

// TrustModel builds the immutable trust model described by the policy.
func (p *Policy) TrustModel() *trust.Model {
	return trust.New(p.TrustTable())
}

// FieldRegistry returns the built-in field kinds with policy overrides applied.
func (p *Policy) FieldRegistry() *model.FieldRegistry {
	specs := model.DefaultFieldSpecs()
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		kind, _ := model.ParseFieldKind(p.Fields[name])
		specs = append(specs, model.FieldSpec{Name: name, Kind: kind})
	}
	return model.NewFieldRegistry(specs)
}

// MinTrustDifference returns the policy override or fallback.
func (p *Policy) MinTrustDifference(fallback int) int {
	if p.Thresholds.MinTrustDifference != nil {
		return *p.Thresholds.MinTrustDifference
	}
	return fallback
}

// MeasurementTolerance returns the policy override or fallback.
func (p *Policy) MeasurementTolerance(fallback float64) float64 {
	if p.Thresholds.MeasurementTolerance != nil {
		return *p.Thresholds.MeasurementTolerance
	}
	return fallback
}
