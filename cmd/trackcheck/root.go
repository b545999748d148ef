package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shortontech/trackcheck/internal/capture"
	"github.com/shortontech/trackcheck/internal/logging"
	"github.com/shortontech/trackcheck/internal/tracking"
	"github.com/shortontech/trackcheck/pkg/config"
)

// NewRootCmd builds the trackcheck command tree. Running it without a
// subcommand starts the server.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trackcheck",
		Short: "Report which trackers a web page runs",
		Long: `trackcheck loads a page in headless Chrome, records its network traffic,
cookies and scripts, and reports known tracking vendors, tracking cookies and
first-party endpoints that look like tracking proxies.

Configuration is read from the environment (SERVER_ADDR, OUTPUTS, VISIT_TIMEOUT,
LOG_LEVEL, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServeCmd,
	}

	cmd.PersistentFlags().String("log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewDemoCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	if f := cmd.Flag("log-level"); f != nil && f.Value.String() != "" {
		cfg.LogLevel = f.Value.String()
	}
	return cfg
}

func newLogger(cfg config.Config) *zap.Logger {
	return logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
}

func captureOptions(cfg config.Config) capture.Options {
	return capture.Options{
		Headless:            cfg.ChromeHeadless,
		ChromePath:          cfg.ChromePath,
		VisitTimeout:        cfg.VisitTimeout,
		SettleDelay:         cfg.SettleDelay,
		MaxConcurrentVisits: cfg.MaxConcurrentVisits,
		MaxPostBodyBytes:    cfg.MaxPostBodyBytes,
	}
}

func newCorrelator(cfg config.Config) *tracking.Correlator {
	return tracking.New(tracking.WithWeights(cfg.Weights()))
}
