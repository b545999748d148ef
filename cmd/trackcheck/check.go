package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shortontech/trackcheck/internal/capture"
	httpx "github.com/shortontech/trackcheck/internal/http"
	"github.com/shortontech/trackcheck/internal/render"
	"github.com/shortontech/trackcheck/internal/tracking"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Visit one page and print its tracking report",
		Long: `Check loads the page once in headless Chrome and writes the report to
stdout, or to --output when given.

Examples:
  trackcheck check https://example.com/
  trackcheck check --format markdown https://example.com/
  trackcheck check -f html -o report.html https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runCheckCmd,
	}
	cmd.Flags().StringP("format", "f", "json", "Report format: json, markdown or html")
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	return cmd
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	format, err := render.ParseFormat(formatFlag)
	if err != nil {
		return err
	}

	cfg := loadConfig(cmd)
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	browser := capture.New(captureOptions(cfg), logger, nil)
	defer browser.Close()

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
		logger.Info("writing report", zap.String("path", path))
	}

	return checkURL(cmd.Context(), browser, newCorrelator(cfg), args[0], format, out)
}

// checkURL performs one visit and renders its report to w.
func checkURL(ctx context.Context, c httpx.Capturer, corr *tracking.Correlator, target string, format render.Format, w io.Writer) error {
	bundle, err := c.NavigateAndCapture(ctx, target)
	if err != nil {
		return err
	}
	return render.Write(w, format, corr.Correlate(bundle))
}
