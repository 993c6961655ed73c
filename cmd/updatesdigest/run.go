package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"UpdatesDigest/internal/usecase"
)

func runCMD() *cobra.Command {
	var (
		date      string
		force     bool
		skipFetch bool
		publish   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check sources and compose the digest for one day",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, _, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req := usecase.RunRequest{ForceRegenerate: force, SkipFetch: skipFetch, Publish: publish}
			if date != "" {
				day, err := time.ParseInLocation(time.DateOnly, date, cfg.Scheduler.Location())
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				req.TargetDate = day
			}

			res, err := a.RunDaily(cmd.Context(), req)
			if err != nil {
				return err
			}
			return report(cmd, res)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "target date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even if a digest exists")
	cmd.Flags().BoolVar(&skipFetch, "skip-fetch", false, "compose from stored items only")
	cmd.Flags().BoolVar(&publish, "publish", false, "send the digest to the configured channel")
	return cmd
}

func rollingCMD() *cobra.Command {
	var req usecase.RollingRequest

	cmd := &cobra.Command{
		Use:   "rolling",
		Short: "Digest recent items plus missed high-importance ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.RunRolling(cmd.Context(), req)
			if err != nil {
				return err
			}
			return report(cmd, res)
		},
	}
	cmd.Flags().IntVar(&req.RecentWindowDays, "recent-days", 0, "recent window in days (default from config)")
	cmd.Flags().IntVar(&req.MissedWindowDays, "missed-days", 0, "missed high-importance window in days (default from config)")
	cmd.Flags().BoolVar(&req.FetchFresh, "fetch", true, "check sources before composing")
	cmd.Flags().BoolVar(&req.Publish, "publish", false, "send the digest to the configured channel")
	cmd.Flags().BoolVar(&req.DryRun, "dry-run", false, "compose without storing, marking or publishing")
	return cmd
}

// report prints res and turns a failed run into a non-zero exit.
func report(cmd *cobra.Command, res usecase.RunResult) error {
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.OK {
		return errRunFailed
	}
	return nil
}
