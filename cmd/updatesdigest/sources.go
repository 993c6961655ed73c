package main

import (
	"github.com/spf13/cobra"
)

func syncSourcesCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-sources",
		Short: "Upsert the sources listed in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.SyncSources(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"ok": true, "sources": n})
		},
	}
}
