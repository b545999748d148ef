package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all the Prometheus metrics for trackcheck
type Metrics struct {
	// Counters
	Visits            *prometheus.CounterVec
	CookiesClassified *prometheus.CounterVec
	ProxyCandidates   prometheus.Counter
	ReportsEmitted    *prometheus.CounterVec
	SinkErrors        *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec

	// Gauges
	VisitsInFlight prometheus.Gauge

	// Histograms
	VisitDuration prometheus.Histogram
	HTTPDuration  *prometheus.HistogramVec
}

// Config holds configuration for the metrics server
type Config struct {
	Enabled    bool
	Addr       string
	TLSCert    string
	TLSKey     string
	ClientCA   string
	RequireTLS bool
}

// LoadConfig loads metrics configuration from environment variables
func LoadConfig() Config {
	return Config{
		Enabled:    getBool("METRICS_ENABLED", false),
		Addr:       getOr("METRICS_ADDR", "127.0.0.1:9090"),
		TLSCert:    getOr("METRICS_TLS_CERT", ""),
		TLSKey:     getOr("METRICS_TLS_KEY", ""),
		ClientCA:   getOr("METRICS_CLIENT_CA", ""),
		RequireTLS: getBool("METRICS_REQUIRE_TLS", false),
	}
}

// NewMetrics creates all trackcheck metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Visits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackcheck_visits_total",
				Help: "Total page visits by result",
			},
			[]string{"result"},
		),

		CookiesClassified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackcheck_cookies_classified_total",
				Help: "Total cookies classified by party",
			},
			[]string{"party"},
		),

		ProxyCandidates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trackcheck_proxy_candidates_total",
				Help: "Total requests promoted to proxy tracker candidates",
			},
		),

		ReportsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackcheck_reports_emitted_total",
				Help: "Total reports handed to a sink",
			},
			[]string{"sink"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackcheck_sink_errors_total",
				Help: "Total errors writing to a sink",
			},
			[]string{"sink", "error_type"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackcheck_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		VisitsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trackcheck_visits_in_flight",
				Help: "Page visits currently holding a browser slot",
			},
		),

		VisitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trackcheck_visit_duration_seconds",
				Help:    "Wall time of one page visit including settle delay",
				Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60},
			},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trackcheck_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"endpoint", "method"},
		),
	}

	reg.MustRegister(
		m.Visits,
		m.CookiesClassified,
		m.ProxyCandidates,
		m.ReportsEmitted,
		m.SinkErrors,
		m.HTTPRequests,
		m.VisitsInFlight,
		m.VisitDuration,
		m.HTTPDuration,
	)

	return m
}

// Server represents the metrics HTTP server
type Server struct {
	server *http.Server
	config Config
	logger *zap.Logger
}

// NewServer creates a new metrics server exposing gatherer on /metrics.
func NewServer(config Config, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if config.RequireTLS && config.TLSCert != "" && config.TLSKey != "" {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS when a client CA is provided
		if config.ClientCA != "" {
			clientCAs, err := loadCertPool(config.ClientCA)
			if err != nil {
				logger.Warn("failed to load metrics client CA", zap.String("path", config.ClientCA), zap.Error(err))
			} else {
				tlsConfig.ClientCAs = clientCAs
				tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
				logger.Info("metrics mTLS enabled", zap.String("client_ca", config.ClientCA))
			}
		}

		srv.TLSConfig = tlsConfig
	}

	return &Server{
		server: srv,
		config: config,
		logger: logger,
	}
}

// Start binds the listener and serves in a separate goroutine. Bind errors
// are returned to the caller.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("metrics disabled (METRICS_ENABLED=false)")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.config.Addr, err)
	}

	tlsOn := s.config.RequireTLS && s.config.TLSCert != "" && s.config.TLSKey != ""
	s.logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()), zap.Bool("tls", tlsOn))

	go func() {
		var err error
		if tlsOn {
			err = s.server.ServeTLS(ln, s.config.TLSCert, s.config.TLSKey)
		} else {
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.logger.Info("metrics server shutting down")
	return s.server.Shutdown(ctx)
}

// Helper functions
func getOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func loadCertPool(certFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", certFile)
	}
	return pool, nil
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// GetMetrics returns the process-wide instance registered with the default registry.
func GetMetrics() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Convenience methods for common operations. All of them accept a nil receiver
// so callers can run without metrics.

// ObserveVisit records the outcome and duration of one page visit.
func (m *Metrics) ObserveVisit(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Visits.WithLabelValues(result).Inc()
	m.VisitDuration.Observe(duration.Seconds())
}

func (m *Metrics) VisitStarted() {
	if m == nil {
		return
	}
	m.VisitsInFlight.Inc()
}

func (m *Metrics) VisitFinished() {
	if m == nil {
		return
	}
	m.VisitsInFlight.Dec()
}

// ObserveReport counts the cookies and proxy candidates in a finished report.
func (m *Metrics) ObserveReport(firstParty, thirdParty, proxyCandidates int) {
	if m == nil {
		return
	}
	m.CookiesClassified.WithLabelValues("first").Add(float64(firstParty))
	m.CookiesClassified.WithLabelValues("third").Add(float64(thirdParty))
	m.ProxyCandidates.Add(float64(proxyCandidates))
}

func (m *Metrics) IncrementReportsEmitted(sink string) {
	if m == nil {
		return
	}
	m.ReportsEmitted.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncrementSinkErrors(sink, errorType string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink, errorType).Inc()
}

func (m *Metrics) IncrementHTTPRequests(endpoint, method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) ObserveHTTPDuration(endpoint, method string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}
