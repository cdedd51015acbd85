package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	verifyRecordID string
	verifyField    string
	verifyNote     string
)

type verifyResult struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Verified bool   `json:"verified"`
	Changed  bool   `json:"changed"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Protect a field from automated reconciliation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Engine.VerifyField(ctx, verifyRecordID, verifyField, verifyNote)
		if err != nil {
			return eris.Wrap(err, "verify")
		}
		return writeJSON(cmd.OutOrStdout(), verifyResult{
			RecordID: verifyRecordID,
			Field:    verifyField,
			Verified: ok,
			Changed:  ok,
		})
	},
}

var unverifyCmd = &cobra.Command{
	Use:   "unverify",
	Short: "Remove a field's verification",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.Engine.UnverifyField(ctx, verifyRecordID, verifyField)
		if err != nil {
			return eris.Wrap(err, "unverify")
		}
		return writeJSON(cmd.OutOrStdout(), verifyResult{
			RecordID: verifyRecordID,
			Field:    verifyField,
			Verified: false,
			Changed:  ok,
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{verifyCmd, unverifyCmd} {
		c.Flags().StringVar(&verifyRecordID, "record", "", "record id (required)")
		c.Flags().StringVar(&verifyField, "field", "", "field name (required)")
		_ = c.MarkFlagRequired("record")
		_ = c.MarkFlagRequired("field")
		rootCmd.AddCommand(c)
	}
	verifyCmd.Flags().StringVar(&verifyNote, "note", "", "why the value is trusted")
}
