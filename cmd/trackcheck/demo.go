package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shortontech/trackcheck/internal/metrics"
	"github.com/shortontech/trackcheck/internal/observation"
	"github.com/shortontech/trackcheck/internal/tracking"
)

// NewDemoCmd creates the demo command.
func NewDemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Correlate built-in sample pages and emit them to the configured sinks",
		Long: `Demo runs the correlator over a few recorded sample pages, without a
browser, and sends each visit to the outputs named in OUTPUTS. Use it to check
that sinks are wired correctly.`,
		Args: cobra.NoArgs,
		RunE: runDemoCmd,
	}
	cmd.Flags().Duration("interval", 200*time.Millisecond, "Delay between emitted visits")
	return cmd
}

func runDemoCmd(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()
	interval, _ := cmd.Flags().GetDuration("interval")

	appMetrics := metrics.GetMetrics()
	sinks := initializeSinks(cmd.Context(), cfg.Outputs, logger, appMetrics)
	defer closeSinks(sinks, logger)

	runDemo(cmd.Context(), newCorrelator(cfg), createEmitFunc(sinks, appMetrics, logger), interval, logger)
	return nil
}

// runDemo correlates every sample bundle and emits the resulting visits,
// stopping early if ctx ends.
func runDemo(ctx context.Context, corr *tracking.Correlator, emit func(tracking.Visit), interval time.Duration, logger *zap.Logger) int {
	bundles := demoBundles()
	logger.Info("demo: emitting sample visits", zap.Int("count", len(bundles)))

	sent := 0
	for i, b := range bundles {
		start := time.Now()
		report := corr.Correlate(b)
		v := tracking.NewVisit(report, start, time.Since(start))
		logger.Info("demo: visit",
			zap.Int("n", i+1),
			zap.String("visit_id", v.VisitID),
			zap.String("url", report.URL),
			zap.Int("cookies", len(report.TrackingCookies)),
			zap.Int("proxy_trackers", len(report.ProxyTrackers)))
		emit(v)
		sent++

		if i == len(bundles)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return sent
		case <-time.After(interval):
		}
	}
	logger.Info("demo: done", zap.Int("sent", sent))
	return sent
}

// demoBundles are recorded page loads covering the main detection paths.
func demoBundles() []observation.Bundle {
	return []observation.Bundle{
		{
			TargetURL:      "https://shop.example.com/checkout?gclid=demo123",
			TargetHostname: "shop.example.com",
			Requests: []observation.Request{
				{URL: "https://shop.example.com/checkout?gclid=demo123", Method: "GET"},
				{URL: "https://connect.facebook.net/en_US/fbevents.js", Method: "GET"},
				{URL: "https://www.facebook.com/tr/?id=1234567890123&ev=PageView", Method: "GET"},
				{URL: "https://shop.example.com/api/events", Method: "POST", PostBody: observation.StrPtr(`{"event_name":"Purchase","fbp":"fb.1.1700000000.42"}`)},
			},
			SetCookieHeaders: []observation.SetCookieHeader{
				{URL: "https://shop.example.com/checkout?gclid=demo123", Value: "_fbp=fb.1.1700000000.42; Path=/; Max-Age=7776000"},
			},
			Cookies: []observation.Cookie{
				{Name: "_fbp", Domain: ".shop.example.com", Path: "/"},
				{Name: "_gcl_au", Domain: ".shop.example.com", Path: "/"},
				{Name: "fr", Domain: ".facebook.com", Path: "/", Secure: true},
			},
			ScriptSrcURLs: []string{
				"https://connect.facebook.net/en_US/fbevents.js",
				"https://www.googletagmanager.com/gtm.js?id=GTM-DEMO",
			},
			InlineScripts: []string{
				`!function(f,b,e,v,n,t,s){}(window,document,'script'); fbq('init', '1234567890123'); fbq('track', 'PageView');`,
			},
			LiveProbes: map[string]bool{"fbq": true, "dataLayer": true},
		},
		{
			TargetURL:      "https://blog.example.org/",
			TargetHostname: "blog.example.org",
			Requests: []observation.Request{
				{URL: "https://blog.example.org/", Method: "GET"},
				{URL: "https://www.googletagmanager.com/gtag/js?id=G-DEMO", Method: "GET"},
				{URL: "https://region1.google-analytics.com/g/collect?v=2&tid=G-DEMO", Method: "POST"},
				{URL: "https://www.clarity.ms/tag/demo", Method: "GET"},
			},
			Cookies: []observation.Cookie{
				{Name: "_ga", Domain: ".example.org", Path: "/"},
				{Name: "_clck", Domain: ".blog.example.org", Path: "/"},
			},
			ScriptSrcURLs: []string{
				"https://www.googletagmanager.com/gtag/js?id=G-DEMO",
				"https://www.clarity.ms/tag/demo",
			},
			InlineScripts: []string{
				`window.dataLayer = window.dataLayer || []; function gtag(){dataLayer.push(arguments);} gtag('config', 'G-DEMO');`,
			},
		},
		{
			TargetURL:      "https://static.example.net/",
			TargetHostname: "static.example.net",
			Requests: []observation.Request{
				{URL: "https://static.example.net/", Method: "GET"},
				{URL: "https://static.example.net/style.css", Method: "GET"},
			},
		},
	}
}
