package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/reconcile-cli/internal/conflict"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/trust"
)

// Reasons recorded on field results and ledger entries.
const (
	ReasonUserVerified = "user_verified"
	ReasonNoCandidate  = "no_candidate"
	ReasonFill         = "fill: field was empty"
	ReasonIdentical    = "value_identical"
)

// ContextCertified is set on every observation's trust context when the
// record already carries a certification number.
const ContextCertified = "certified"

// mutation is one planned field change with its ledger entry.
type mutation struct {
	field  string
	value  any
	prov   model.FieldProvenance
	change model.ChangeRecord
}

type candidate struct {
	value  any
	source string
	trust  int
}

// evaluate decides every observed field against rec without modifying it.
func (e *Engine) evaluate(rec *model.Record, req Request, batchID, actor string, now time.Time) (*Report, []mutation) {
	report := newReport(req.RecordID, batchID, req.DryRun)

	byField := make(map[string][]model.Observation)
	for _, obs := range req.Observations {
		if obs.Field == "" {
			continue
		}
		byField[obs.Field] = append(byField[obs.Field], obs)
	}
	fields := make([]string, 0, len(byField))
	for f := range byField {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	approved := make(map[string]bool, len(req.ApprovedConflicts))
	for _, f := range req.ApprovedConflicts {
		approved[f] = true
	}
	recCtx := recordContext(rec)

	var muts []mutation
	for _, field := range fields {
		res, mut := e.decideField(rec, field, byField[field], recCtx, approved[field])
		report.add(res)
		if mut == nil {
			continue
		}
		mut.prov.SetAt = now
		mut.prov.SetBy = actor
		mut.prov.BatchID = batchID
		mut.change.BatchID = batchID
		mut.change.RecordID = rec.ID
		mut.change.ChangedAt = now
		mut.change.ChangedBy = actor
		muts = append(muts, *mut)
	}
	return report, muts
}

// decideField applies the decision sequence to one field. The returned
// mutation is nil unless the outcome changes the record.
func (e *Engine) decideField(rec *model.Record, field string, obs []model.Observation, recCtx trust.Context, approved bool) (FieldResult, *mutation) {
	current, prov := rec.Value(field)
	oldSource, oldTrust := currentAttribution(current, prov)
	ledgerOld := ledgerSource(prov, oldSource)

	res := FieldResult{
		Field:     field,
		OldValue:  current,
		OldSource: oldSource,
		OldTrust:  oldTrust,
	}

	best, notes := e.bestCandidate(field, obs, recCtx)
	res.Notes = notes
	if best != nil {
		res.NewValue = best.value
		res.NewSource = best.source
		res.NewTrust = best.trust
	}

	if prov != nil && prov.UserVerified {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonUserVerified
		return res, nil
	}
	if best == nil {
		res.Outcome = OutcomeNoChange
		res.Reason = ReasonNoCandidate
		return res, nil
	}
	if model.IsEmpty(current) {
		res.Outcome = OutcomeAutoFilled
		res.Reason = ReasonFill
		return res, newMutation(field, current, ledgerOld, oldTrust, best, model.ChangeTypeFill, "", ReasonFill)
	}

	ct := e.classifier.Classify(field, current, best.value)
	res.ConflictType = ct
	delta := best.trust - oldTrust

	switch {
	case ct == conflict.TypeValueIdentical:
		res.Outcome = OutcomeNoChange
		res.Reason = ReasonIdentical
		return res, nil
	case conflict.IsSafe(ct):
		res.Outcome = OutcomeAutoUpdated
		res.Reason = "safe_conflict: " + string(ct)
	case approved:
		res.Outcome = OutcomeAutoUpdated
		res.Reason = "approved_conflict: " + string(ct)
	case delta >= e.minTrustDiff:
		res.Outcome = OutcomeAutoUpdated
		res.Reason = fmt.Sprintf("trust_delta: %d >= %d", delta, e.minTrustDiff)
	default:
		res.Outcome = OutcomeFlagged
		res.Reason = fmt.Sprintf("trust_delta: %d < %d", delta, e.minTrustDiff)
		return res, nil
	}
	return res, newMutation(field, current, ledgerOld, oldTrust, best, model.ChangeTypeAutoUpdate, string(ct), res.Reason)
}

// bestCandidate picks the highest-trust observation carrying a usable value.
// Ties keep the earliest observation.
func (e *Engine) bestCandidate(field string, obs []model.Observation, recCtx trust.Context) (*candidate, []string) {
	kind := e.classifier.Fields.Kind(field)
	var best *candidate
	var notes []string
	for i, o := range obs {
		if model.IsEmpty(o.Value) {
			continue
		}
		source := string(e.trust.Normalize(o.Source))
		value, ok := model.Coerce(kind, o.Value)
		if !ok {
			notes = append(notes, fmt.Sprintf("invalid_observation: #%d from %q is not a valid %s value", i, o.Source, kind))
			continue
		}
		if model.IsEmpty(value) {
			continue
		}
		if !e.trust.Known(o.Source) {
			notes = append(notes, fmt.Sprintf("unknown_source: %q scored at baseline %d", o.Source, e.trust.Baseline()))
		}
		score := e.trust.Trust(source, field, mergeContext(recCtx, o.Context))
		if best == nil || score > best.trust {
			best = &candidate{value: value, source: source, trust: score}
		}
	}
	return best, notes
}

// currentAttribution returns the source and trust of a field's current value.
// A value without provenance is treated as unattributed user entry.
func currentAttribution(current any, prov *model.FieldProvenance) (string, int) {
	switch {
	case prov != nil && prov.UserVerified:
		src := prov.Source
		if src == "" {
			src = string(trust.SourceUser)
		}
		return src, trust.UserVerifiedTrust
	case prov != nil && (prov.Source != "" || prov.Trust > 0):
		return prov.Source, prov.Trust
	case model.IsEmpty(current):
		return "", 0
	default:
		return string(trust.SourceUser), trust.UserTrust
	}
}

// ledgerSource is the source written to the ledger for a field's prior value.
// Unattributed values are recorded with an empty source so that a rollback
// restores them without provenance.
func ledgerSource(prov *model.FieldProvenance, attributed string) string {
	if prov == nil {
		return ""
	}
	return attributed
}

func newMutation(field string, current any, oldSource string, oldTrust int, best *candidate, ct model.ChangeType, conflictType, reason string) *mutation {
	prov := model.FieldProvenance{
		Value:  best.value,
		Source: best.source,
		Trust:  best.trust,
	}
	if !model.IsEmpty(current) {
		prov.Previous = &model.PreviousValue{Value: current, Source: oldSource}
	}
	return &mutation{
		field: field,
		value: best.value,
		prov:  prov,
		change: model.ChangeRecord{
			FieldName:    field,
			OldValue:     current,
			NewValue:     best.value,
			OldSource:    oldSource,
			NewSource:    best.source,
			ChangeType:   ct,
			TrustOld:     oldTrust,
			TrustNew:     best.trust,
			ConflictType: conflictType,
			Reason:       reason,
		},
	}
}

func recordContext(rec *model.Record) trust.Context {
	ctx := trust.Context{}
	if v, _ := rec.Value(model.FieldCertificationNumber); !model.IsEmpty(v) {
		ctx[ContextCertified] = true
	}
	return ctx
}

func mergeContext(base trust.Context, extra map[string]bool) trust.Context {
	if len(extra) == 0 {
		return base
	}
	out := make(trust.Context, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
