package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shortontech/trackcheck/internal/capture"
	httpx "github.com/shortontech/trackcheck/internal/http"
	"github.com/shortontech/trackcheck/internal/metrics"
	"github.com/shortontech/trackcheck/internal/sink"
	"github.com/shortontech/trackcheck/internal/tracking"
	"github.com/shortontech/trackcheck/pkg/config"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP front end (/check), metrics server and sinks",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	appMetrics := metrics.GetMetrics()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	metricsServer := metrics.NewServer(metrics.LoadConfig(), prometheus.DefaultGatherer, logger.Named("metrics"))
	if err := metricsServer.Start(ctx); err != nil {
		return err
	}

	sinks := initializeSinks(ctx, cfg.Outputs, logger, appMetrics)

	browser := capture.New(captureOptions(cfg), logger, appMetrics)
	defer browser.Close()

	env := httpx.Env{
		Cfg:        cfg,
		Capture:    browser,
		Correlator: newCorrelator(cfg),
		Metrics:    appMetrics,
		Logger:     logger,
		Emit:       createEmitFunc(sinks, appMetrics, logger),
		Signer:     httpx.NewReportSigner(cfg.ReportSigningSecret),
	}

	srv, err := startHTTPServer(cfg, env)
	if err != nil {
		closeSinks(sinks, logger)
		return err
	}
	logger.Info("trackcheck listening", zap.String("addr", cfg.ServerAddr), zap.Strings("outputs", cfg.Outputs))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	waitForShutdown(sigCtx, srv, metricsServer, sinks, logger)
	return nil
}

// initializeSinks starts every known output. Unknown names and sinks that
// fail to start are logged and skipped.
func initializeSinks(ctx context.Context, outputs []string, logger *zap.Logger, m *metrics.Metrics) []sink.Sink {
	var sinks []sink.Sink
	for _, name := range outputs {
		var s sink.Sink
		switch name {
		case "log":
			s = sink.NewLogSink()
		case "kafka":
			ks := sink.NewKafkaSinkFromEnv(logger.Named("sink"))
			ks.OnDeliveryError = func(error) { m.IncrementSinkErrors("kafka", "delivery") }
			s = ks
		default:
			logger.Warn("unknown output, skipping", zap.String("output", name))
			continue
		}
		if err := s.Start(ctx); err != nil {
			logger.Error("sink failed to start", zap.String("sink", s.Name()), zap.Error(err))
			m.IncrementSinkErrors(s.Name(), "start")
			continue
		}
		logger.Info("sink started", zap.String("sink", s.Name()))
		sinks = append(sinks, s)
	}
	return sinks
}

// createEmitFunc fans a visit out to every sink. Sink errors are counted and
// logged, never returned.
func createEmitFunc(sinks []sink.Sink, m *metrics.Metrics, logger *zap.Logger) func(tracking.Visit) {
	return func(v tracking.Visit) {
		for _, s := range sinks {
			if err := s.Enqueue(v); err != nil {
				logger.Warn("sink enqueue failed",
					zap.String("sink", s.Name()),
					zap.String("visit_id", v.VisitID),
					zap.Error(err))
				m.IncrementSinkErrors(s.Name(), "enqueue")
				continue
			}
			m.IncrementReportsEmitted(s.Name())
		}
	}
}

// startHTTPServer binds cfg.ServerAddr and serves in the background.
func startHTTPServer(cfg config.Config, env httpx.Env) (*http.Server, error) {
	ln, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.ServerAddr, err)
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           httpx.NewMux(env),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()
	return srv, nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// waitForShutdown blocks until ctx ends, then stops the servers and drains
// the sinks.
func waitForShutdown(ctx context.Context, srv shutdowner, metricsServer shutdowner, sinks []sink.Sink, logger *zap.Logger) {
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", zap.Error(err))
		}
	}
	closeSinks(sinks, logger)
}

func closeSinks(sinks []sink.Sink, logger *zap.Logger) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Warn("sink close", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}
