package observation

// Bundle is everything captured from one page visit. It is built once by the
// capture layer and never mutated afterwards. Optional fields are omitted when empty.
type Bundle struct {
	TargetURL      string `json:"target_url"`
	TargetHostname string `json:"target_hostname"`

	Requests         []Request         `json:"requests,omitempty"`          // chronological, duplicates kept
	SetCookieHeaders []SetCookieHeader `json:"set_cookie_headers,omitempty"` // only responses with Set-Cookie
	Cookies          []Cookie          `json:"cookies,omitempty"`           // jar snapshot at capture time

	ScriptSrcURLs []string `json:"script_src_urls,omitempty"`
	InlineScripts []string `json:"inline_scripts,omitempty"`

	// LiveProbes holds the result of each capability probe run against the
	// live page after capture, keyed by capability name ("fbq", "gtag", ...).
	LiveProbes map[string]bool `json:"live_probes,omitempty"`
}

// --- Network ---

type Request struct {
	URL    string `json:"url"`
	Method string `json:"method"`

	// PostBody is nil when no body was captured. A non-nil empty string means
	// the request carried an empty body.
	PostBody *string `json:"post_body,omitempty"`
}

// Body returns the captured POST body and whether one was available.
func (r Request) Body() (string, bool) {
	if r.PostBody == nil {
		return "", false
	}
	return *r.PostBody, true
}

// SetCookieHeader is the raw Set-Cookie value of one response. Chrome joins
// repeated Set-Cookie headers with newlines, so Value may hold several cookies.
type SetCookieHeader struct {
	URL   string `json:"url"`
	Value string `json:"value"`
}

// --- Cookie jar ---

type Cookie struct {
	Name     string  `json:"name"`
	Domain   string  `json:"domain"`
	Value    string  `json:"value,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"` // seconds since epoch, 0 for session cookies
	HTTPOnly bool    `json:"http_only,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	Session  bool    `json:"session,omitempty"`
	SameSite string  `json:"same_site,omitempty"`
}

// StrPtr is a small helper for building requests with captured bodies.
func StrPtr(s string) *string {
	return &s
}
