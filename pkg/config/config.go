package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shortontech/trackcheck/internal/tracking"
)

type Config struct {
	ServerAddr string
	Outputs    []string // enabled sinks: log, kafka

	VisitTimeout        time.Duration // hard cap on one page visit
	SettleDelay         time.Duration // wait after scroll before collecting
	MaxConcurrentVisits int64
	MaxPostBodyBytes    int64 // captured POST bodies are truncated to this size

	ChromeHeadless bool
	ChromePath     string // empty: let chromedp find a browser

	ReportSigningSecret string // if set, JSON reports carry X-Trackcheck-Signature

	ProxyWeightDomain  int64
	ProxyWeightPath    int64
	ProxyWeightMethod  int64
	ProxyWeightPayload int64
	ProxyThreshold     int64

	LogLevel  string
	LogFormat string // console or json
	LogFile   string // optional rotated file output
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

// getDuration accepts Go duration strings ("1.5s") or a bare number of milliseconds.
func getDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	w := tracking.DefaultWeights()
	cfg := Config{
		ServerAddr: getOr("SERVER_ADDR", ":19890"),
		Outputs:    getStringSlice("OUTPUTS", "log"), // default to log only

		VisitTimeout:        getDuration("VISIT_TIMEOUT", 60*time.Second),
		SettleDelay:         getDuration("SETTLE_DELAY", 1500*time.Millisecond),
		MaxConcurrentVisits: getInt64("MAX_CONCURRENT_VISITS", 2),
		MaxPostBodyBytes:    getInt64("MAX_POST_BODY_BYTES", 64<<10), // 64 KiB default

		ChromeHeadless: getBool("CHROME_HEADLESS", true),
		ChromePath:     getOr("CHROME_PATH", ""),

		ReportSigningSecret: getOr("REPORT_SIGNING_SECRET", ""),

		ProxyWeightDomain:  getInt64("PROXY_WEIGHT_DOMAIN", int64(w.DomainMatch)),
		ProxyWeightPath:    getInt64("PROXY_WEIGHT_PATH", int64(w.Path)),
		ProxyWeightMethod:  getInt64("PROXY_WEIGHT_METHOD", int64(w.PostMethod)),
		ProxyWeightPayload: getInt64("PROXY_WEIGHT_PAYLOAD", int64(w.Payload)),
		ProxyThreshold:     getInt64("PROXY_THRESHOLD", int64(w.Threshold)),

		LogLevel:  strings.ToLower(getOr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getOr("LOG_FORMAT", "console")),
		LogFile:   getOr("LOG_FILE", ""),
	}
	if cfg.MaxConcurrentVisits < 1 {
		cfg.MaxConcurrentVisits = 1
	}
	return cfg
}

// Weights returns the proxy scoring policy described by the config.
func (c Config) Weights() tracking.Weights {
	return tracking.Weights{
		DomainMatch: int(c.ProxyWeightDomain),
		Path:        int(c.ProxyWeightPath),
		PostMethod:  int(c.ProxyWeightMethod),
		Payload:     int(c.ProxyWeightPayload),
		Threshold:   int(c.ProxyThreshold),
	}
}
