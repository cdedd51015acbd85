// Package reconcile decides, applies, and reverses field-level merges of
// source observations into canonical records.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/conflict"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/store"
	"github.com/sells-group/reconcile-cli/internal/trust"
)

// Defaults for engine options.
const (
	DefaultMinTrustDifference = 20
	DefaultActor              = "reconciler"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMinTrustDifference sets how far a candidate must outrank the current
// value to overwrite a review-classified conflict.
func WithMinTrustDifference(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.minTrustDiff = n
		}
	}
}

// WithActor sets the default actor recorded on provenance and ledger entries.
func WithActor(actor string) EngineOption {
	return func(e *Engine) {
		if actor != "" {
			e.actor = actor
		}
	}
}

// WithRetry sets the retry policy for transactions that fail transiently.
func WithRetry(cfg resilience.RetryConfig) EngineOption {
	return func(e *Engine) {
		e.retry = cfg
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine reconciles observations into records held by a store. It keeps no
// mutable state of its own and is safe for concurrent use.
type Engine struct {
	store        store.Store
	trust        *trust.Model
	classifier   *conflict.Classifier
	minTrustDiff int
	actor        string
	retry        resilience.RetryConfig
	now          func() time.Time
}

// NewEngine creates an Engine. A nil trust model or classifier uses the
// built-in defaults.
func NewEngine(st store.Store, tm *trust.Model, cl *conflict.Classifier, opts ...EngineOption) *Engine {
	if tm == nil {
		tm = trust.Default()
	}
	if cl == nil {
		cl = conflict.New(nil, conflict.DefaultTolerance)
	}
	e := &Engine{
		store:        st,
		trust:        tm,
		classifier:   cl,
		minTrustDiff: DefaultMinTrustDifference,
		actor:        DefaultActor,
		retry:        resilience.DefaultRetryConfig(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MinTrustDifference returns the configured trust gate.
func (e *Engine) MinTrustDifference() int {
	return e.minTrustDiff
}

// Request is the input to one reconciliation pass.
type Request struct {
	RecordID     string              `json:"record_id"`
	Observations []model.Observation `json:"observations"`
	DryRun       bool                `json:"dry_run"`
	// BatchID is generated when empty.
	BatchID string `json:"batch_id,omitempty"`
	// ApprovedConflicts names fields a reviewer approved for overwrite.
	ApprovedConflicts []string `json:"approved_conflicts,omitempty"`
	Actor             string   `json:"actor,omitempty"`
}

// Reconcile runs one pass over one record. Without DryRun, every mutation
// and its ledger entry commit in a single transaction.
//
// A missing record returns an error matching ErrRecordNotFound. A failed
// transaction returns the computed report together with a *PersistenceError;
// nothing from the pass is applied in that case.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Report, error) {
	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	actor := req.Actor
	if actor == "" {
		actor = e.actor
	}
	log := zap.L().With(
		zap.String("record_id", req.RecordID),
		zap.String("batch_id", batchID),
		zap.Bool("dry_run", req.DryRun),
	)

	if req.DryRun {
		rec, err := e.store.GetRecord(ctx, req.RecordID)
		if err != nil {
			return nil, &PersistenceError{Op: "load record", Err: err}
		}
		if rec == nil {
			return nil, &NotFoundError{RecordID: req.RecordID}
		}
		report, _ := e.evaluate(rec, req, batchID, actor, e.now())
		report.DryRun = true
		logReport(log, report)
		return report, nil
	}

	var report *Report
	retry := e.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("reconcile", zap.String("record_id", req.RecordID))
	}
	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return e.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
			rec, err := tx.LockRecord(ctx, req.RecordID)
			if err != nil {
				return err
			}
			if rec == nil {
				return &NotFoundError{RecordID: req.RecordID}
			}

			now := e.now()
			var muts []mutation
			report, muts = e.evaluate(rec, req, batchID, actor, now)
			if len(muts) == 0 {
				return nil
			}

			changes := make([]model.ChangeRecord, 0, len(muts))
			for _, m := range muts {
				rec.SetField(m.field, m.value, m.prov)
				changes = append(changes, m.change)
			}
			rec.UpdatedAt = now

			if err := tx.SaveRecord(ctx, rec); err != nil {
				return err
			}
			return tx.AppendChanges(ctx, changes)
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, err
		}
		if report == nil {
			report = e.previewAfterFailure(ctx, req, batchID, actor)
		}
		log.Error("reconcile: apply failed", zap.Error(err))
		return report, &PersistenceError{Op: "apply", Err: err}
	}

	logReport(log, report)
	return report, nil
}

// previewAfterFailure computes the report from a plain read when the
// transaction failed before evaluation. It returns nil if the read fails too.
func (e *Engine) previewAfterFailure(ctx context.Context, req Request, batchID, actor string) *Report {
	rec, err := e.store.GetRecord(ctx, req.RecordID)
	if err != nil || rec == nil {
		return nil
	}
	report, _ := e.evaluate(rec, req, batchID, actor, e.now())
	return report
}

func logReport(log *zap.Logger, r *Report) {
	for _, name := range r.FieldNames() {
		f := r.Fields[name]
		log.Debug("reconcile: field decision",
			zap.String("field", name),
			zap.String("outcome", string(f.Outcome)),
			zap.String("conflict_type", string(f.ConflictType)),
			zap.String("reason", f.Reason),
		)
	}
	log.Info("reconcile: pass complete",
		zap.Int("fields", len(r.Fields)),
		zap.Int("total_changes", r.TotalChanges),
		zap.Int("flagged", len(r.Flagged)),
	)
}
