// Package capture drives a headless Chrome through one page visit and
// records what the page did into an observation.Bundle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shortontech/trackcheck/internal/metrics"
	"github.com/shortontech/trackcheck/internal/observation"
)

var (
	// ErrInvalidTarget is returned for URLs that are not absolute http(s).
	ErrInvalidTarget = observation.ErrInvalidTarget
	// ErrCaptureTimeout is returned when a visit exceeds its time budget.
	ErrCaptureTimeout = errors.New("capture timed out")
	// ErrBusy is returned when no visit slot frees up before ctx ends.
	ErrBusy = errors.New("no browser slot available")
)

const (
	idleQuietWindow  = 500 * time.Millisecond
	idleMaxInflight  = 2
	idlePollInterval = 100 * time.Millisecond
	scrollDistancePx = 500
)

// Options configures a Browser.
type Options struct {
	Headless            bool
	ChromePath          string
	VisitTimeout        time.Duration
	SettleDelay         time.Duration
	MaxConcurrentVisits int64
	MaxPostBodyBytes    int64
}

// Browser launches one isolated Chrome process per visit from a shared
// allocator, so cookie jars never leak between visits.
type Browser struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	allocCtx context.Context
	cancel   context.CancelFunc
	sem      *semaphore.Weighted
}

// New prepares the allocator. No browser is started until the first visit.
func New(opts Options, logger *zap.Logger, m *metrics.Metrics) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrentVisits < 1 {
		opts.MaxConcurrentVisits = 1
	}
	if opts.VisitTimeout <= 0 {
		opts.VisitTimeout = 60 * time.Second
	}

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)

	return &Browser{
		opts:     opts,
		logger:   logger.Named("capture"),
		metrics:  m,
		allocCtx: allocCtx,
		cancel:   cancel,
		sem:      semaphore.NewWeighted(opts.MaxConcurrentVisits),
	}
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
	)
	if opts.ChromePath != "" {
		out = append(out, chromedp.ExecPath(opts.ChromePath))
	}
	return out
}

// Close stops the allocator and any browser it still owns.
func (b *Browser) Close() {
	b.cancel()
}

// NavigateAndCapture visits targetURL and returns everything observed. The
// bundle is normalized and owned by the caller.
func (b *Browser) NavigateAndCapture(ctx context.Context, targetURL string) (observation.Bundle, error) {
	u, err := observation.ParseTarget(targetURL)
	if err != nil {
		return observation.Bundle{}, err
	}
	target := u.String()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return observation.Bundle{}, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer b.sem.Release(1)
	b.metrics.VisitStarted()
	defer b.metrics.VisitFinished()

	log := b.logger.With(zap.String("url", target))
	start := time.Now()

	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf))
	defer cancelTab()

	// Start the browser on the tab context itself; a derived context would
	// tear the process down with it.
	if err := chromedp.Run(tabCtx); err != nil {
		return observation.Bundle{}, fmt.Errorf("start browser: %w", err)
	}

	runCtx, cancelRun := context.WithTimeout(tabCtx, b.opts.VisitTimeout)
	defer cancelRun()
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	col := newCollector(b.opts.MaxPostBodyBytes, idleMaxInflight)
	chromedp.ListenTarget(tabCtx, col.handle)

	var (
		scrolled bool
		scripts  []string
		inline   []string
		cookies  []*network.Cookie
	)
	err = chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(target),
		waitNetworkIdle(col, idleQuietWindow),
		chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d), true`, scrollDistancePx), &scrolled),
		chromedp.Sleep(b.opts.SettleDelay),
		chromedp.Evaluate(scriptSrcExpr, &scripts),
		chromedp.Evaluate(inlineScriptExpr, &inline),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = storage.GetCookies().Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			fetchPostData(ctx, col, log)
			return nil
		}),
	)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return observation.Bundle{}, fmt.Errorf("capture %s: %w", target, ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return observation.Bundle{}, fmt.Errorf("%w after %s: %s", ErrCaptureTimeout, b.opts.VisitTimeout, target)
		default:
			return observation.Bundle{}, fmt.Errorf("capture %s: %w", target, err)
		}
	}

	bundle := col.freeze(target)
	bundle.TargetHostname = u.Hostname()
	bundle.ScriptSrcURLs = nonNil(scripts)
	bundle.InlineScripts = nonNil(inline)
	bundle.Cookies = convertCookies(cookies)
	bundle.LiveProbes = make(map[string]bool, len(probes))
	for _, name := range ProbeNames() {
		bundle.LiveProbes[name] = b.ProbeLiveCapability(runCtx, name)
	}
	observation.Normalize(&bundle)

	log.Info("visit captured",
		zap.Int("requests", len(bundle.Requests)),
		zap.Int("scripts", len(bundle.ScriptSrcURLs)),
		zap.Int("cookies", len(bundle.Cookies)),
		zap.Duration("elapsed", time.Since(start)))
	return bundle, nil
}

// waitNetworkIdle returns once the page has had at most idleMaxInflight open
// requests for the quiet window.
func waitNetworkIdle(col *collector, quiet time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(idlePollInterval)
		defer ticker.Stop()
		for {
			if col.idleFor(quiet) {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// fetchPostData asks the browser for bodies the request events left out.
// Failures leave the body unknown.
func fetchPostData(ctx context.Context, col *collector, log *zap.Logger) {
	for _, id := range col.pendingPostData() {
		body, err := network.GetRequestPostData(id).Do(ctx)
		if err != nil {
			log.Debug("post data unavailable", zap.String("request_id", string(id)), zap.Error(err))
			continue
		}
		col.setPostData(id, body)
	}
}

func convertCookies(in []*network.Cookie) []observation.Cookie {
	out := make([]observation.Cookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, observation.Cookie{
			Name:     c.Name,
			Domain:   c.Domain,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: c.SameSite.String(),
		})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const (
	scriptSrcExpr    = `Array.from(document.querySelectorAll('script[src]')).map(s => s.src)`
	inlineScriptExpr = `Array.from(document.querySelectorAll('script:not([src])')).map(s => s.textContent || '')`
)
