package tracking

import "github.com/shortontech/trackcheck/internal/observation"

// Report is the correlated result for one page visit. It is a plain value:
// absent signals are false or empty lists, never missing fields.
type Report struct {
	URL                string `json:"url"`
	TotalRequests      int    `json:"totalRequests"`
	TotalScripts       int    `json:"totalScripts"`
	TotalInlineScripts int    `json:"totalInlineScripts"`

	HasMetaPixelJs     bool `json:"hasMetaPixelJs"`
	HasMetaPixelScript bool `json:"hasMetaPixelScript"`
	HasMetaCAPI        bool `json:"hasMetaCAPI"`
	HasGA4Server       bool `json:"hasGA4Server"`
	HasGTM             bool `json:"hasGTM"`

	Vendors          map[string]bool `json:"vendors"`
	DetectedPixelIDs []string        `json:"detectedPixelIds"`
	ClickIDParams    []string        `json:"clickIdParams"`

	TrackingCookies []CookieClassification `json:"trackingCookies"`
	ProxyTrackers   []ProxyCandidate       `json:"proxyTrackers"`
}

// Assemble merges the component outputs into a Report without further
// inference. List order is kept exactly as produced upstream.
func Assemble(b observation.Bundle, cookies []CookieClassification, s Signals, proxies []ProxyCandidate) Report {
	r := Report{
		URL:                b.TargetURL,
		TotalRequests:      len(b.Requests),
		TotalScripts:       len(b.ScriptSrcURLs),
		TotalInlineScripts: len(b.InlineScripts),

		HasMetaPixelJs:     s.HasMetaPixelJs,
		HasMetaPixelScript: s.HasMetaPixelScript,
		HasMetaCAPI:        s.HasMetaCAPI,
		HasGA4Server:       s.HasGA4Server,
		HasGTM:             s.HasGTM,

		Vendors:          s.Vendors,
		DetectedPixelIDs: s.PixelIDs,
		ClickIDParams:    s.ClickIDParams,

		TrackingCookies: cookies,
		ProxyTrackers:   proxies,
	}

	if r.Vendors == nil {
		r.Vendors = map[string]bool{}
	}
	if r.DetectedPixelIDs == nil {
		r.DetectedPixelIDs = []string{}
	}
	if r.ClickIDParams == nil {
		r.ClickIDParams = []string{}
	}
	if r.TrackingCookies == nil {
		r.TrackingCookies = []CookieClassification{}
	}
	if r.ProxyTrackers == nil {
		r.ProxyTrackers = []ProxyCandidate{}
	}
	return r
}

// ThirdPartyCookies counts the cookies not classified as first party.
func (r Report) ThirdPartyCookies() int {
	n := 0
	for _, c := range r.TrackingCookies {
		if !c.IsFirstParty {
			n++
		}
	}
	return n
}
