// Package cmd holds the toprgb command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/toprgb/internal/app"
	"github.com/JakeFAU/toprgb/internal/config"
	"github.com/JakeFAU/toprgb/internal/logging"
)

// runFunc executes a run for a loaded config. It is a variable so tests can
// exercise flag handling without doing real work.
var runFunc = func(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run: %w", err)
	}
	defer a.Close(ctx)

	if _, err := a.Run(ctx); err != nil {
		if app.IsIncomplete(err) {
			logger.Warn("run stopped before all tasks finished", zap.Error(err))
		}
		return err
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "toprgb",
		Short: "Report the three most common colors of each image in a URL list.",
		Long: `toprgb reads a file of image URLs, one per line, sorts and de-duplicates it,
downloads each image and appends "url,#rrggbb,#rrggbb,#rrggbb" rows to a CSV.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()
			zap.ReplaceGlobals(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runFunc(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.StringP("input", "i", "", "file of image URLs, one per line")
	flags.StringP("output", "o", config.DefaultOutput, "result CSV path")
	flags.IntP("threads", "t", config.DefaultThreads, "number of download workers")
	flags.Int64("chunk-size", config.DefaultChunkSize, "approximate bytes per sort chunk")
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "toprgb:", err)
		os.Exit(1)
	}
}
