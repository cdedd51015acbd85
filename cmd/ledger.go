package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/model"
)

var (
	ledgerBatchID  string
	ledgerRecordID string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Print change ledger entries for a batch or a record",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if (ledgerBatchID == "") == (ledgerRecordID == "") {
			return eris.New("exactly one of --batch or --record is required")
		}
		ctx := cmd.Context()

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		var changes []model.ChangeRecord
		if ledgerBatchID != "" {
			changes, err = env.Store.ChangesByBatch(ctx, ledgerBatchID)
		} else {
			changes, err = env.Store.ChangesByRecord(ctx, ledgerRecordID)
		}
		if err != nil {
			return eris.Wrap(err, "query ledger")
		}
		if changes == nil {
			changes = []model.ChangeRecord{}
		}
		return writeJSON(cmd.OutOrStdout(), changes)
	},
}

func init() {
	ledgerCmd.Flags().StringVar(&ledgerBatchID, "batch", "", "batch id")
	ledgerCmd.Flags().StringVar(&ledgerRecordID, "record", "", "record id")
	rootCmd.AddCommand(ledgerCmd)
}
