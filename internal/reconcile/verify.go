package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
	"github.com/sells-group/reconcile-cli/internal/trust"
)

// VerifyField marks a field as user-verified, which protects it from
// automated reconciliation. It returns false when the field holds no value.
// The value itself and the ledger are never touched.
func (e *Engine) VerifyField(ctx context.Context, recordID, field, note string) (bool, error) {
	return e.updateProtection(ctx, recordID, field, func(rec *model.Record) bool {
		current, prov := rec.Value(field)
		if model.IsEmpty(current) {
			return false
		}
		var p model.FieldProvenance
		if prov != nil {
			p = *prov
		} else {
			p = model.FieldProvenance{
				Value:  current,
				Source: string(trust.SourceUser),
				Trust:  trust.UserTrust,
			}
		}
		now := e.now()
		p.UserVerified = true
		p.VerifiedAt = &now
		p.VerifyNote = note
		rec.Provenance[field] = p
		rec.UpdatedAt = now
		return true
	})
}

// UnverifyField clears a field's verification. It returns false when the
// field was not verified.
func (e *Engine) UnverifyField(ctx context.Context, recordID, field string) (bool, error) {
	return e.updateProtection(ctx, recordID, field, func(rec *model.Record) bool {
		p, ok := rec.Provenance[field]
		if !ok || !p.UserVerified {
			return false
		}
		p.UserVerified = false
		p.VerifiedAt = nil
		p.VerifyNote = ""
		rec.Provenance[field] = p
		rec.UpdatedAt = e.now()
		return true
	})
}

func (e *Engine) updateProtection(ctx context.Context, recordID, field string, fn func(rec *model.Record) bool) (bool, error) {
	var changed bool
	err := resilience.Do(ctx, e.retry, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			rec, err := tx.LockRecord(ctx, recordID)
			if err != nil {
				return err
			}
			if rec == nil {
				return &NotFoundError{RecordID: recordID}
			}
			rec.EnsureMaps()
			changed = fn(rec)
			if !changed {
				return nil
			}
			return tx.SaveRecord(ctx, rec)
		})
	})
	if err != nil {
		if isNotFound(err) {
			return false, err
		}
		return false, &PersistenceError{Op: "update protection", Err: err}
	}
	zap.L().Info("reconcile: field protection updated",
		zap.String("record_id", recordID),
		zap.String("field", field),
		zap.Bool("changed", changed),
	)
	return changed, nil
}
