package tracking

import "regexp"

// CookieRule attributes cookies whose name matches Pattern to Label.
type CookieRule struct {
	Pattern *regexp.Regexp
	Label   string
}

// AssetScope selects which observed URL collections an AssetRule is tested against.
type AssetScope int

const (
	ScopeScripts AssetScope = 1 << iota
	ScopeRequests

	ScopeAny = ScopeScripts | ScopeRequests
)

// AssetRule marks a vendor as present when a URL in its scope contains Fragment.
type AssetRule struct {
	Fragment string
	Label    string
	Scope    AssetScope
}

// Catalog is the ordered table of tracker fingerprints. Rules are evaluated
// in slice order and the first match wins, so order is part of the contract.
type Catalog struct {
	CookieRules []CookieRule
	AssetRules  []AssetRule
}

// DefaultCatalog returns the built-in rule table. The first seven cookie rules
// keep their historical order; later additions are appended after them.
func DefaultCatalog() Catalog {
	return Catalog{
		CookieRules: []CookieRule{
			{Pattern: regexp.MustCompile(`^_ga`), Label: "Google Analytics"},
			{Pattern: regexp.MustCompile(`^_gid$`), Label: "Google Analytics"},
			{Pattern: regexp.MustCompile(`^_fbp`), Label: "Facebook Pixel"},
			{Pattern: regexp.MustCompile(`^gclid$`), Label: "Google Ads Auto Tagging"},
			{Pattern: regexp.MustCompile(`^FPID$`), Label: "Enhanced Conversions"},
			{Pattern: regexp.MustCompile(`^_cl`), Label: "Microsoft Clarity"},
			{Pattern: regexp.MustCompile(`^_tt`), Label: "TikTok Pixel"},

			{Pattern: regexp.MustCompile(`^_gcl_`), Label: "Google Ads Conversion Linker"},
			{Pattern: regexp.MustCompile(`^_fbc$`), Label: "Facebook Click ID"},
			{Pattern: regexp.MustCompile(`^_uet[sv]id$`), Label: "Microsoft Advertising UET"},
			{Pattern: regexp.MustCompile(`^_hj`), Label: "Hotjar"},
			{Pattern: regexp.MustCompile(`^_pin_unauth$`), Label: "Pinterest Tag"},
			{Pattern: regexp.MustCompile(`^li_`), Label: "LinkedIn Insight"},
			{Pattern: regexp.MustCompile(`^_scid`), Label: "Snap Pixel"},
		},
		AssetRules: []AssetRule{
			{Fragment: "connect.facebook.net", Label: "Meta Pixel", Scope: ScopeScripts},
			{Fragment: "graph.facebook.com", Label: "Meta Conversions API", Scope: ScopeRequests},
			{Fragment: "google-analytics.com/g/collect", Label: "GA4 Collect", Scope: ScopeRequests},
			{Fragment: "googletagmanager.com/gtm.js", Label: "Google Tag Manager", Scope: ScopeScripts},
			{Fragment: "googletagmanager.com/gtag/js", Label: "Google Tag", Scope: ScopeScripts},
			{Fragment: "analytics.tiktok.com", Label: "TikTok Pixel", Scope: ScopeAny},
			{Fragment: "clarity.ms", Label: "Microsoft Clarity", Scope: ScopeAny},
			{Fragment: "bat.bing.com", Label: "Microsoft Advertising UET", Scope: ScopeAny},
			{Fragment: "static.hotjar.com", Label: "Hotjar", Scope: ScopeScripts},
			{Fragment: "snap.licdn.com", Label: "LinkedIn Insight", Scope: ScopeScripts},
			{Fragment: "ct.pinterest.com", Label: "Pinterest Tag", Scope: ScopeRequests},
			{Fragment: "sc-static.net", Label: "Snap Pixel", Scope: ScopeScripts},
		},
	}
}

// CookieVendor returns the label of the first cookie rule matching name.
// Cookie names are case-sensitive, so "_GA" is not "_ga".
func (c Catalog) CookieVendor(name string) (string, bool) {
	for _, rule := range c.CookieRules {
		if rule.Pattern != nil && rule.Pattern.MatchString(name) {
			return rule.Label, true
		}
	}
	return "", false
}

// AssetVendor returns the label of the first asset rule whose fragment occurs
// in rawURL, ignoring case, and whose scope includes scope.
func (c Catalog) AssetVendor(rawURL string, scope AssetScope) (string, bool) {
	for _, rule := range c.AssetRules {
		if rule.Scope&scope == 0 {
			continue
		}
		if rule.Fragment != "" && containsFold(rawURL, rule.Fragment) {
			return rule.Label, true
		}
	}
	return "", false
}

// VendorLabels lists the distinct asset-rule labels in catalog order.
func (c Catalog) VendorLabels() []string {
	seen := make(map[string]bool, len(c.AssetRules))
	labels := make([]string, 0, len(c.AssetRules))
	for _, rule := range c.AssetRules {
		if seen[rule.Label] {
			continue
		}
		seen[rule.Label] = true
		labels = append(labels, rule.Label)
	}
	return labels
}
