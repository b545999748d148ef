package observation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidTarget is returned when a target URL cannot be visited.
var ErrInvalidTarget = errors.New("invalid target url")

// ParseTarget validates a user-supplied target URL. Only absolute http(s)
// URLs with a host are accepted.
func ParseTarget(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	return u, nil
}

// Normalize fills fields that can be derived from the bundle itself.
// It is called once by the capture layer before the bundle is frozen.
func Normalize(b *Bundle) {
	if b.TargetHostname == "" && b.TargetURL != "" {
		if u, err := url.Parse(b.TargetURL); err == nil && u != nil {
			b.TargetHostname = u.Hostname()
		}
	}
	b.TargetHostname = strings.ToLower(b.TargetHostname)

	for i := range b.Requests {
		if b.Requests[i].Method == "" {
			b.Requests[i].Method = "GET"
		}
		b.Requests[i].Method = strings.ToUpper(b.Requests[i].Method)
	}
}

// Hostname returns the lower-cased host of rawURL, or "" when it does not parse.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u == nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// clickIDKeys are the advertising click identifiers vendors append to
// landing-page and beacon URLs.
var clickIDKeys = []string{
	// Google
	"gclid", "gclsrc", "gbraid", "wbraid", "dclid",
	// Meta
	"fbclid",
	// Microsoft
	"msclkid",
	// Others
	"ttclid", "li_fat_id", "epik", "twclid",
}

// ClickIDParams returns the click-id query parameters present in rawURL,
// in the fixed order of the known-key list.
func ClickIDParams(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u == nil || u.RawQuery == "" {
		return nil
	}
	q := u.Query()
	var found []string
	for _, k := range clickIDKeys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			found = append(found, k)
		}
	}
	return found
}
