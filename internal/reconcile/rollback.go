package reconcile

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// restoreTarget is the pre-batch state of one (record, field).
type restoreTarget struct {
	recordID string
	field    string
	value    any
	source   string
	trust    int
}

// Rollback restores every field touched by a batch to its value from before
// the batch, recording the restores as a new batch of rollback entries.
// The original entries are never modified.
//
// An empty or unknown batch is a no-op. Fields already at their pre-batch
// value are skipped, so rolling back the same batch twice appends nothing the
// second time. Fields currently user-verified are left alone and reported.
func (e *Engine) Rollback(ctx context.Context, batchID, actor string) (*RollbackReport, error) {
	if actor == "" {
		actor = e.actor
	}
	log := zap.L().With(zap.String("batch_id", batchID))

	var report *RollbackReport
	retry := e.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("rollback", zap.String("batch_id", batchID))
	}
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		report = &RollbackReport{
			OriginalBatchID: batchID,
			FieldsAffected:  []string{},
			RecordsAffected: []string{},
		}
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return e.rollbackTx(ctx, tx, batchID, actor, report)
		})
	})
	if err != nil {
		return nil, &PersistenceError{Op: "rollback", Err: err}
	}

	log.Info("reconcile: rollback complete",
		zap.String("rollback_batch_id", report.BatchID),
		zap.Int("restored", report.RestoredCount),
		zap.Int("records", len(report.RecordsAffected)),
		zap.Int("skipped_verified", len(report.SkippedVerified)),
	)
	return report, nil
}

func (e *Engine) rollbackTx(ctx context.Context, tx store.Tx, batchID, actor string, report *RollbackReport) error {
	entries, err := tx.ChangesByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	targets := restoreTargets(entries)
	if len(targets) == 0 {
		return nil
	}

	// Lock records in id order so overlapping rollbacks cannot deadlock.
	ids := make([]string, 0)
	seen := make(map[string]bool)
	for _, t := range targets {
		if !seen[t.recordID] {
			seen[t.recordID] = true
			ids = append(ids, t.recordID)
		}
	}
	sort.Strings(ids)
	records := make(map[string]*model.Record, len(ids))
	for _, id := range ids {
		rec, err := tx.LockRecord(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			zap.L().Warn("reconcile: rollback skipped missing record",
				zap.String("batch_id", batchID), zap.String("record_id", id))
			continue
		}
		rec.EnsureMaps()
		records[id] = rec
	}

	newBatch := uuid.NewString()
	now := e.now()
	reason := "rollback of batch " + batchID
	var changes []model.ChangeRecord
	dirty := make(map[string]bool)
	fields := make(map[string]bool)

	for _, t := range targets {
		rec, ok := records[t.recordID]
		if !ok {
			continue
		}
		if rec.IsVerified(t.field) {
			report.SkippedVerified = append(report.SkippedVerified, t.recordID+"/"+t.field)
			continue
		}
		current, prov := rec.Value(t.field)
		if sameValue(current, t.value) {
			continue
		}
		curSource, curTrust := currentAttribution(current, prov)
		curSource = ledgerSource(prov, curSource)

		switch {
		case model.IsEmpty(t.value):
			rec.ClearField(t.field)
		case t.source == "":
			// Unattributed before the batch; restore the bare value.
			rec.ClearField(t.field)
			rec.Fields[t.field] = t.value
		default:
			restored := model.FieldProvenance{
				Value:   t.value,
				Source:  t.source,
				Trust:   t.trust,
				SetAt:   now,
				SetBy:   actor,
				BatchID: newBatch,
			}
			if !model.IsEmpty(current) {
				restored.Previous = &model.PreviousValue{Value: current, Source: curSource}
			}
			rec.SetField(t.field, t.value, restored)
		}

		changes = append(changes, model.ChangeRecord{
			BatchID:    newBatch,
			RecordID:   t.recordID,
			FieldName:  t.field,
			OldValue:   current,
			NewValue:   t.value,
			OldSource:  curSource,
			NewSource:  t.source,
			ChangeType: model.ChangeTypeRollback,
			ChangedAt:  now,
			ChangedBy:  actor,
			TrustOld:   curTrust,
			TrustNew:   t.trust,
			Reason:     reason,
		})
		dirty[t.recordID] = true
		fields[t.field] = true
	}

	if len(changes) == 0 {
		return nil
	}
	for _, id := range ids {
		if !dirty[id] {
			continue
		}
		rec := records[id]
		rec.UpdatedAt = now
		if err := tx.SaveRecord(ctx, rec); err != nil {
			return err
		}
		report.RecordsAffected = append(report.RecordsAffected, id)
	}
	if err := tx.AppendChanges(ctx, changes); err != nil {
		return err
	}

	report.BatchID = newBatch
	report.RestoredCount = len(changes)
	for f := range fields {
		report.FieldsAffected = append(report.FieldsAffected, f)
	}
	sort.Strings(report.FieldsAffected)
	return nil
}

// restoreTargets walks a batch newest-first and keeps, for each field, the
// state recorded by its oldest entry. A field changed twice in one batch is
// therefore unwound to its value from before the batch.
func restoreTargets(entries []model.ChangeRecord) []restoreTarget {
	index := make(map[string]int)
	var out []restoreTarget
	for i := len(entries) - 1; i >= 0; i-- {
		c := entries[i]
		t := restoreTarget{
			recordID: c.RecordID,
			field:    c.FieldName,
			value:    c.OldValue,
			source:   c.OldSource,
			trust:    c.TrustOld,
		}
		key := c.RecordID + "\x00" + c.FieldName
		if j, ok := index[key]; ok {
			out[j] = t
			continue
		}
		index[key] = len(out)
		out = append(out, t)
	}
	return out
}

// sameValue compares values by their JSON encoding, treating all empty
// values as equal.
func sameValue(a, b any) bool {
	if model.IsEmpty(a) || model.IsEmpty(b) {
		return model.IsEmpty(a) && model.IsEmpty(b)
	}
	ja, err1 := json.Marshal(a)
	jb, err2 := json.Marshal(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(ja) == string(jb)
}
