package reconcile

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// SweepItem is one record and the observations collected for it.
type SweepItem struct {
	RecordID     string              `json:"record_id"`
	Observations []model.Observation `json:"observations"`
}

// SweepOptions controls a multi-record sweep.
type SweepOptions struct {
	// Concurrency caps parallel passes. Values below 1 mean 1.
	Concurrency int
	// RatePerSec limits pass starts per second. Zero means unlimited.
	RatePerSec float64
	DryRun     bool
	// BatchID is shared by every pass when set, so the sweep rolls back as
	// one batch. Otherwise each record gets its own batch.
	BatchID           string
	ApprovedConflicts map[string][]string
	Actor             string
}

// SweepResult aggregates a sweep. Reports is index-aligned with the input;
// failed records leave a nil entry and an Errors entry.
type SweepResult struct {
	Succeeded    int64             `json:"succeeded"`
	Failed       int64             `json:"failed"`
	TotalChanges int64             `json:"total_changes"`
	Flagged      int64             `json:"flagged"`
	Reports      []*Report         `json:"reports"`
	Errors       map[string]string `json:"errors,omitempty"`
}

// Sweep reconciles many records in parallel, each in its own transaction.
// A failed record is logged and counted and never stops the sweep. The
// context is checked between passes only; a pass that started runs to
// completion.
func Sweep(ctx context.Context, e *Engine, items []SweepItem, opts SweepOptions) (*SweepResult, error) {
	result := &SweepResult{
		Reports: make([]*Report, len(items)),
		Errors:  make(map[string]string),
	}
	if len(items) == 0 {
		return result, nil
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}

	zap.L().Info("sweep: starting",
		zap.Int("records", len(items)),
		zap.Int("concurrency", concurrency),
		zap.Bool("dry_run", opts.DryRun),
	)

	var g errgroup.Group
	g.SetLimit(concurrency)

	var succeeded, failed, changes, flagged atomic.Int64
	var errMu sync.Mutex

	var stopErr error
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				stopErr = err
				break
			}
		}

		g.Go(func() error {
			log := zap.L().With(zap.String("record_id", item.RecordID))

			// Passes are not cancelled midway.
			report, err := e.Reconcile(context.WithoutCancel(ctx), Request{
				RecordID:          item.RecordID,
				Observations:      item.Observations,
				DryRun:            opts.DryRun,
				BatchID:           opts.BatchID,
				ApprovedConflicts: opts.ApprovedConflicts[item.RecordID],
				Actor:             opts.Actor,
			})
			if err != nil {
				failed.Add(1)
				log.Error("sweep: record failed", zap.Error(err))
				errMu.Lock()
				result.Errors[item.RecordID] = err.Error()
				errMu.Unlock()
				return nil // don't abort the sweep on one record
			}

			succeeded.Add(1)
			changes.Add(int64(report.TotalChanges))
			flagged.Add(int64(len(report.Flagged)))
			result.Reports[i] = report
			return nil
		})
	}

	_ = g.Wait()

	result.Succeeded = succeeded.Load()
	result.Failed = failed.Load()
	result.TotalChanges = changes.Load()
	result.Flagged = flagged.Load()

	zap.L().Info("sweep: complete",
		zap.Int64("succeeded", result.Succeeded),
		zap.Int64("failed", result.Failed),
		zap.Int64("total_changes", result.TotalChanges),
		zap.Int64("flagged", result.Flagged),
	)

	return result, stopErr
}
