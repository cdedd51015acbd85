package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
)

var (
	sweepFile        string
	sweepConcurrency int
	sweepRate        float64
	sweepDryRun      bool
	sweepBatchID     string
)

// sweepEntry is one element of the sweep input file.
type sweepEntry struct {
	RecordID          string              `json:"record_id"`
	Observations      []model.Observation `json:"observations"`
	ApprovedConflicts []string            `json:"approved_conflicts,omitempty"`
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reconcile many records in parallel",
	Long: `Reads a JSON array of {"record_id", "observations", "approved_conflicts"}
entries from --file or stdin. Each record is reconciled in its own
transaction; failures are reported and do not stop the sweep.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := readInput(sweepFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		var entries []sweepEntry
		if err := decodeJSON(data, &entries); err != nil {
			return eris.Wrap(err, "decode sweep input")
		}

		env, err := initEngine(ctx, "sweep")
		if err != nil {
			return err
		}
		defer env.Close()

		items, approved := sweepItems(entries)
		opts := reconcile.SweepOptions{
			Concurrency:       cfg.Sweep.Concurrency,
			RatePerSec:        cfg.Sweep.RatePerSec,
			DryRun:            sweepDryRun,
			BatchID:           sweepBatchID,
			ApprovedConflicts: approved,
		}
		if cmd.Flags().Changed("concurrency") {
			opts.Concurrency = sweepConcurrency
		}
		if cmd.Flags().Changed("rate") {
			opts.RatePerSec = sweepRate
		}

		result, err := reconcile.Sweep(ctx, env.Engine, items, opts)
		if result != nil {
			if wErr := writeJSON(cmd.OutOrStdout(), result); wErr != nil {
				return wErr
			}
		}
		return eris.Wrap(err, "sweep")
	},
}

func sweepItems(entries []sweepEntry) ([]reconcile.SweepItem, map[string][]string) {
	items := make([]reconcile.SweepItem, 0, len(entries))
	approved := make(map[string][]string)
	for _, e := range entries {
		items = append(items, reconcile.SweepItem{RecordID: e.RecordID, Observations: e.Observations})
		if len(e.ApprovedConflicts) > 0 {
			approved[e.RecordID] = e.ApprovedConflicts
		}
	}
	return items, approved
}

func init() {
	sweepCmd.Flags().StringVar(&sweepFile, "file", "-", "sweep input JSON file, - for stdin")
	sweepCmd.Flags().IntVar(&sweepConcurrency, "concurrency", 0, "parallel passes (default from config)")
	sweepCmd.Flags().Float64Var(&sweepRate, "rate", 0, "max passes started per second, 0 for unlimited (default from config)")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "compute reports without writing")
	sweepCmd.Flags().StringVar(&sweepBatchID, "batch-id", "", "share one batch id across the sweep so it rolls back as a unit")
	rootCmd.AddCommand(sweepCmd)
}
