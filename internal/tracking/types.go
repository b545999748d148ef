package tracking

// CookieOrigin tells how a cookie most likely got into the jar.
type CookieOrigin string

const (
	OriginHTTP         CookieOrigin = "http"
	OriginScript       CookieOrigin = "script"
	OriginInlineScript CookieOrigin = "inline-script"
)

// UnknownVendor is the label for cookies no catalog rule matches.
const UnknownVendor = "Unknown"

// CookieClassification is the derived view of one observed cookie
type CookieClassification struct {
	Name          string       `json:"name"`
	Domain        string       `json:"domain"`
	IsFirstParty  bool         `json:"isFirstParty"`
	Vendor        string       `json:"tracker"`
	Origin        CookieOrigin `json:"setBy"`
	RelatedSource string       `json:"relatedSource"` // response URL, script URL or inline-script#N; empty when none
}

// Signals contains the script/request presence flags for a visit
type Signals struct {
	HasMetaPixelScript bool `json:"hasMetaPixelScript"`
	HasMetaPixelJs     bool `json:"hasMetaPixelJs"`
	HasMetaCAPI        bool `json:"hasMetaCAPI"`
	HasGA4Server       bool `json:"hasGA4Server"`
	HasGTM             bool `json:"hasGTM"`

	Vendors       map[string]bool `json:"vendors"`
	PixelIDs      []string        `json:"detectedPixelIds"`
	ClickIDParams []string        `json:"clickIdParams"`
}

// ProxyCandidate is a request suspected of being first-party-routed tracking
type ProxyCandidate struct {
	URL     string   `json:"url"`
	Method  string   `json:"method"`
	Score   int      `json:"score"`
	Signals []string `json:"signals"` // names of the weighted signals that fired
}

// Names of the proxy scoring signals as they appear in ProxyCandidate.Signals.
const (
	SignalDomainMatch       = "domain_match"
	SignalSuspiciousPath    = "suspicious_path"
	SignalPostMethod        = "post_method"
	SignalSuspiciousPayload = "suspicious_payload"
)
