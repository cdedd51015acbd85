package main

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/reconcile"
)

var (
	reconcileRecordID string
	reconcileFile     string
	reconcileDryRun   bool
	reconcileBatchID  string
	reconcileApprove  []string
	reconcileActor    string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile one record against a set of observations",
	Long: `Reads observations (a JSON array, or an object with an "observations" key)
from --file or stdin and prints the reconciliation report.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := readInput(reconcileFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		observations, err := decodeObservations(data)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Engine.Reconcile(ctx, reconcile.Request{
			RecordID:          reconcileRecordID,
			Observations:      observations,
			DryRun:            reconcileDryRun,
			BatchID:           reconcileBatchID,
			ApprovedConflicts: reconcileApprove,
			Actor:             reconcileActor,
		})
		if err != nil {
			var pe *reconcile.PersistenceError
			if errors.As(err, &pe) && report != nil {
				// Show what would have been applied.
				_ = writeJSON(cmd.OutOrStdout(), report)
			}
			return eris.Wrap(err, "reconcile")
		}

		zap.L().Info("reconcile complete",
			zap.String("record_id", report.RecordID),
			zap.String("batch_id", report.BatchID),
			zap.Int("total_changes", report.TotalChanges),
			zap.Int("flagged", len(report.Flagged)),
		)
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileRecordID, "record", "", "record id (required)")
	reconcileCmd.Flags().StringVar(&reconcileFile, "file", "-", "observations JSON file, - for stdin")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "compute the report without writing")
	reconcileCmd.Flags().StringVar(&reconcileBatchID, "batch-id", "", "batch id (default: generated)")
	reconcileCmd.Flags().StringSliceVar(&reconcileApprove, "approve", nil, "fields approved for overwrite despite a review conflict")
	reconcileCmd.Flags().StringVar(&reconcileActor, "actor", "", "actor recorded on changes (default from config)")
	_ = reconcileCmd.MarkFlagRequired("record")
	rootCmd.AddCommand(reconcileCmd)
}
