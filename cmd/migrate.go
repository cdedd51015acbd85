package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the records and change ledger schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// initEngine migrates on open.
		env, err := initEngine(cmd.Context(), "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("migration complete", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var (
	recordsLimit  int
	recordsOffset int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List record ids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		ids, err := env.Store.ListRecordIDs(ctx, store.RecordFilter{Limit: recordsLimit, Offset: recordsOffset})
		if err != nil {
			return eris.Wrap(err, "list records")
		}
		if ids == nil {
			ids = []string{}
		}
		return writeJSON(cmd.OutOrStdout(), ids)
	},
}

func init() {
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 100, "max ids to list, 0 for all")
	recordsCmd.Flags().IntVar(&recordsOffset, "offset", 0, "ids to skip")
	rootCmd.AddCommand(migrateCmd, recordsCmd)
}
