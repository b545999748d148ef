package httpx

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shortontech/trackcheck/internal/capture"
	"github.com/shortontech/trackcheck/internal/metrics"
	"github.com/shortontech/trackcheck/internal/observation"
	"github.com/shortontech/trackcheck/internal/render"
	"github.com/shortontech/trackcheck/internal/tracking"
	cfg "github.com/shortontech/trackcheck/pkg/config"
)

const banner = "Tracker-checker is live. Use /check?url=<site>"

// Capturer performs one page visit. *capture.Browser implements it.
type Capturer interface {
	NavigateAndCapture(ctx context.Context, targetURL string) (observation.Bundle, error)
}

type Env struct {
	Cfg        cfg.Config
	Capture    Capturer
	Correlator *tracking.Correlator // nil uses tracking.DefaultCorrelator
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Emit       func(tracking.Visit) // injected sink fan-out
	Signer     *ReportSigner
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) correlator() *tracking.Correlator {
	if e.Correlator == nil {
		return tracking.DefaultCorrelator
	}
	return e.Correlator
}

func (e Env) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(banner))
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Capture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Check visits ?url= and answers with the tracking report in ?format=.
func (e Env) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing url query parameter", http.StatusBadRequest)
		return
	}
	format, err := render.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if e.Capture == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	log := e.logger().With(zap.String("url", target))
	start := time.Now()
	bundle, err := e.Capture.NavigateAndCapture(r.Context(), target)
	if err != nil {
		status, result := captureErrorStatus(err)
		e.Metrics.ObserveVisit(result, time.Since(start))
		log.Warn("capture failed", zap.String("result", result), zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	report := e.correlator().Correlate(bundle)
	elapsed := time.Since(start)
	e.Metrics.ObserveVisit("ok", elapsed)
	third := report.ThirdPartyCookies()
	e.Metrics.ObserveReport(len(report.TrackingCookies)-third, third, len(report.ProxyTrackers))
	if e.Emit != nil {
		e.Emit(tracking.NewVisit(report, start, elapsed))
	}

	var buf bytes.Buffer
	if format == render.FormatJSON {
		body, err := render.MarshalJSON(report)
		if err != nil {
			log.Error("render report", zap.Error(err))
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		if sig := e.Signer.Sign(body); sig != "" {
			w.Header().Set(SignatureHeader, sig)
		}
		buf.Write(body)
	} else if err := render.Write(&buf, format, report); err != nil {
		log.Error("render report", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

// captureErrorStatus maps a capture error to the response status and the
// visit result label.
func captureErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, capture.ErrInvalidTarget):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, capture.ErrBusy):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, capture.ErrCaptureTimeout):
		return http.StatusBadGateway, "timeout"
	default:
		return http.StatusBadGateway, "error"
	}
}
