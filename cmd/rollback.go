package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	rollbackBatchID string
	rollbackActor   string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore every field changed by a batch",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Engine.Rollback(ctx, rollbackBatchID, rollbackActor)
		if err != nil {
			return eris.Wrap(err, "rollback")
		}
		return writeJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackBatchID, "batch", "", "batch id to roll back (required)")
	rollbackCmd.Flags().StringVar(&rollbackActor, "actor", "", "actor recorded on changes (default from config)")
	_ = rollbackCmd.MarkFlagRequired("batch")
	rootCmd.AddCommand(rollbackCmd)
}
