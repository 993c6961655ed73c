package main

import (
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger API and the cron trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, logger, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if addr != "" {
				a.SetServerAddress(addr)
			}
			logger.Info("serving", "strategies", a.Strategies())
			return a.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
