package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var (
	importFile         string
	importSkipExisting bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import canonical records from a JSON array",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := readInput(importFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		var records []model.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return eris.Wrap(err, "decode records")
		}
		for i := range records {
			if records[i].ID == "" {
				return eris.Errorf("record %d has no id", i)
			}
			records[i].EnsureMaps()
		}

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.ImportRecords(ctx, records, store.ImportOptions{SkipExisting: importSkipExisting})
		if err != nil {
			return eris.Wrap(err, "import records")
		}

		zap.L().Info("import complete",
			zap.Int("records", len(records)),
			zap.Int64("written", n),
			zap.String("file", importFile),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to records JSON file (required)")
	importCmd.Flags().BoolVar(&importSkipExisting, "skip-existing", false, "leave records that already exist untouched")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
