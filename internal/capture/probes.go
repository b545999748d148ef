package capture

import (
	"context"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// probes maps a capability name to a read-only expression that evaluates to
// a boolean in the page. Expressions must not call into page code.
var probes = map[string]string{
	"fbq":       `typeof window.fbq === 'function'`,
	"gtag":      `typeof window.gtag === 'function'`,
	"dataLayer": `Array.isArray(window.dataLayer)`,
	"ttq":       `typeof window.ttq === 'object' && window.ttq !== null`,
	"clarity":   `typeof window.clarity === 'function'`,
	"uetq":      `typeof window.uetq !== 'undefined'`,
}

var probeOrder = []string{"fbq", "gtag", "dataLayer", "ttq", "clarity", "uetq"}

// ProbeNames lists the supported capability probes.
func ProbeNames() []string {
	return append([]string(nil), probeOrder...)
}

// ProbeLiveCapability evaluates a named probe in the page bound to ctx, which
// must be a chromedp tab context. Unknown names and any evaluation error
// yield false.
func (b *Browser) ProbeLiveCapability(ctx context.Context, name string) bool {
	expr, ok := probes[name]
	if !ok || chromedp.FromContext(ctx) == nil {
		return false
	}
	var present bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &present)); err != nil {
		b.logger.Debug("probe failed", zap.String("probe", name), zap.Error(err))
		return false
	}
	return present
}
