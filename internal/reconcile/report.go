package reconcile

import (
	"sort"

	"github.com/sells-group/reconcile-cli/internal/conflict"
)

// Outcome is the per-field result of a reconciliation pass.
type Outcome string

const (
	OutcomeSkipped     Outcome = "SKIPPED"
	OutcomeNoChange    Outcome = "NO_CHANGE"
	OutcomeAutoFilled  Outcome = "AUTO_FILLED"
	OutcomeAutoUpdated Outcome = "AUTO_UPDATED"
	OutcomeFlagged     Outcome = "FLAGGED"
)

// Mutates reports whether the outcome changes the record.
func (o Outcome) Mutates() bool {
	return o == OutcomeAutoFilled || o == OutcomeAutoUpdated
}

// FieldResult is the decision for one field. For FLAGGED results it carries
// everything a reviewer needs to approve or reject the change.
type FieldResult struct {
	Field        string        `json:"field"`
	Outcome      Outcome       `json:"outcome"`
	OldValue     any           `json:"old_value"`
	NewValue     any           `json:"new_value"`
	OldSource    string        `json:"old_source,omitempty"`
	NewSource    string        `json:"new_source,omitempty"`
	OldTrust     int           `json:"old_trust"`
	NewTrust     int           `json:"new_trust"`
	ConflictType conflict.Type `json:"conflict_type,omitempty"`
	Reason       string        `json:"reason"`
	// Notes lists observations excluded from candidacy.
	Notes []string `json:"notes,omitempty"`
}

// Report is the result of one reconciliation pass over one record.
type Report struct {
	RecordID     string                 `json:"record_id"`
	BatchID      string                 `json:"batch_id"`
	DryRun       bool                   `json:"dry_run"`
	Fields       map[string]FieldResult `json:"fields"`
	Flagged      []FieldResult          `json:"flagged"`
	TotalChanges int                    `json:"total_changes"`
	Counts       map[Outcome]int        `json:"counts"`
}

func newReport(recordID, batchID string, dryRun bool) *Report {
	return &Report{
		RecordID: recordID,
		BatchID:  batchID,
		DryRun:   dryRun,
		Fields:   make(map[string]FieldResult),
		Flagged:  []FieldResult{},
		Counts:   make(map[Outcome]int),
	}
}

func (r *Report) add(res FieldResult) {
	r.Fields[res.Field] = res
	r.Counts[res.Outcome]++
	if res.Outcome == OutcomeFlagged {
		r.Flagged = append(r.Flagged, res)
	}
	if res.Outcome.Mutates() {
		r.TotalChanges++
	}
}

// FieldNames returns the evaluated field names in sorted order.
func (r *Report) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// RollbackReport summarizes a rollback. BatchID is the new rollback batch and
// is empty when nothing was restored.
type RollbackReport struct {
	BatchID         string   `json:"batch_id,omitempty"`
	OriginalBatchID string   `json:"original_batch_id"`
	RestoredCount   int      `json:"restored_count"`
	FieldsAffected  []string `json:"fields_affected"`
	RecordsAffected []string `json:"records_affected"`
	// SkippedVerified lists "record_id/field" entries left alone because the
	// field is user-verified.
	SkippedVerified []string `json:"skipped_verified,omitempty"`
}
