package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"UpdatesDigest/internal/app"
	"UpdatesDigest/internal/config"
	"UpdatesDigest/internal/logging"
)

var errRunFailed = errors.New("run failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfgPath string
	root := &cobra.Command{
		Use:           "updatesdigest",
		Short:         "Detect product updates and compose a daily digest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				return os.Setenv("UPDATES_DIGEST_CONFIG", cfgPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "YAML config file (overrides UPDATES_DIGEST_CONFIG)")

	root.AddCommand(runCMD(), rollingCMD(), serveCMD(), migrateCMD(), syncSourcesCMD(), exportCMD())

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// loadApp reads configuration and builds the application; logs go to stderr
// so stdout stays machine-readable.
func loadApp(ctx context.Context) (*app.Application, config.Config, *slog.Logger, error) {
	cfg := config.Load()
	logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, logger, err
	}
	return a, cfg, logger, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
