package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func exportCMD() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export DATE",
		Short: "Write the stored digest for DATE (YYYY-MM-DD) to a .docx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := args[0]
			if _, err := time.Parse(time.DateOnly, date); err != nil {
				return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
			}
			if out == "" {
				out = "digest-" + date + ".docx"
			}

			a, _, _, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ExportDigest(cmd.Context(), date, out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "date": date, "path": out})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default digest-DATE.docx)")
	return cmd
}
