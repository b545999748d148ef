package tracking

import (
	"regexp"
	"strings"

	"github.com/shortontech/trackcheck/internal/observation"
)

// Fragments behind the named presence flags.
const (
	metaPixelScriptFragment = "connect.facebook.net"
	metaCAPIFragment        = "graph.facebook.com"
	ga4CollectFragment      = "google-analytics.com/g/collect"
	gtmLoaderFragment       = "googletagmanager.com/gtm.js"
)

// ProbeMetaPixel is the live capability probe for a global fbq function.
const ProbeMetaPixel = "fbq"

// pixelInitCall matches fbq('init', '<id>') with a 10-20 digit identifier.
// The identifier must end at a quote, comma or closing paren, so longer digit
// runs are not cut down to a prefix.
var pixelInitCall = regexp.MustCompile(`fbq\s*\(\s*['"]init['"]\s*,\s*['"]?(\d{10,20})(?:['"]|\s*[,)])`)

// DetectSignals runs every presence test against the scripts, inline text and
// requests of the bundle. Tests are independent and may co-occur.
func DetectSignals(b observation.Bundle, catalog Catalog) Signals {
	s := Signals{
		HasMetaPixelScript: anyContains(b.ScriptSrcURLs, metaPixelScriptFragment),
		HasMetaCAPI:        anyRequestContains(b.Requests, metaCAPIFragment),
		HasGA4Server:       anyRequestContains(b.Requests, ga4CollectFragment),
		HasGTM:             anyContains(b.ScriptSrcURLs, gtmLoaderFragment),
		Vendors:            detectVendors(b, catalog),
		PixelIDs:           extractPixelIDs(b.InlineScripts),
		ClickIDParams:      collectClickIDParams(b.Requests),
	}

	// Any one of the three sub-signals is enough.
	s.HasMetaPixelJs = s.HasMetaPixelScript || len(s.PixelIDs) > 0 || b.LiveProbes[ProbeMetaPixel]
	return s
}

// detectVendors reports every catalog vendor, true when any URL in the rule's
// scope contains the rule fragment.
func detectVendors(b observation.Bundle, catalog Catalog) map[string]bool {
	vendors := make(map[string]bool, len(catalog.AssetRules))
	for _, label := range catalog.VendorLabels() {
		vendors[label] = false
	}
	for _, rule := range catalog.AssetRules {
		if vendors[rule.Label] || rule.Fragment == "" {
			continue
		}
		if rule.Scope&ScopeScripts != 0 && anyContains(b.ScriptSrcURLs, rule.Fragment) {
			vendors[rule.Label] = true
			continue
		}
		if rule.Scope&ScopeRequests != 0 && anyRequestContains(b.Requests, rule.Fragment) {
			vendors[rule.Label] = true
		}
	}
	return vendors
}

// extractPixelIDs collects distinct pixel identifiers from inline init calls
// in first-seen order.
func extractPixelIDs(scripts []string) []string {
	ids := []string{}
	seen := make(map[string]bool)
	for _, text := range scripts {
		for _, m := range pixelInitCall.FindAllStringSubmatch(text, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

func collectClickIDParams(requests []observation.Request) []string {
	params := []string{}
	seen := make(map[string]bool)
	for _, r := range requests {
		for _, k := range observation.ClickIDParams(r.URL) {
			if !seen[k] {
				seen[k] = true
				params = append(params, k)
			}
		}
	}
	return params
}

// anyContains and anyRequestContains compare case-insensitively.
func anyContains(urls []string, fragment string) bool {
	for _, u := range urls {
		if containsFold(u, fragment) {
			return true
		}
	}
	return false
}

func anyRequestContains(requests []observation.Request, fragment string) bool {
	for _, r := range requests {
		if containsFold(r.URL, fragment) {
			return true
		}
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
