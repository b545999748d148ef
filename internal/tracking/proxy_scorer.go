package tracking

import (
	"net/url"
	"strings"

	"github.com/shortontech/trackcheck/internal/observation"
)

// Weights is the additive scoring policy for proxy candidates.
type Weights struct {
	DomainMatch int
	Path        int
	PostMethod  int
	Payload     int
	Threshold   int
}

// DefaultWeights returns the reference policy. Reports are only comparable
// across runs when these values are left unchanged.
func DefaultWeights() Weights {
	return Weights{
		DomainMatch: 30,
		Path:        20,
		PostMethod:  10,
		Payload:     40,
		Threshold:   60,
	}
}

var (
	suspiciousPathTokens    = []string{"track", "log", "event", "data", "collect", "analytics", "pixel"}
	suspiciousPayloadTokens = []string{"event_name", "client_id", "fbp", "fbc"}
)

const maxScore = 100

// ScoreProxyCandidates scores every request that matches no known vendor
// request signature and returns those at or above the admission threshold,
// in request order. Requests below the threshold are dropped silently.
func ScoreProxyCandidates(b observation.Bundle, catalog Catalog, w Weights) []ProxyCandidate {
	host := strings.ToLower(b.TargetHostname)
	candidates := []ProxyCandidate{}
	for _, r := range b.Requests {
		if _, known := catalog.AssetVendor(r.URL, ScopeRequests); known {
			continue
		}
		c := scoreRequest(r, host, w)
		if c.Score >= w.Threshold {
			candidates = append(candidates, c)
		}
	}
	return candidates
}

// scoreRequest applies each signal independently. A URL that does not parse
// or a body that was not captured only zeroes the affected signals.
func scoreRequest(r observation.Request, host string, w Weights) ProxyCandidate {
	c := ProxyCandidate{URL: r.URL, Method: r.Method, Signals: []string{}}

	if u, err := url.Parse(r.URL); err == nil && u != nil {
		if host != "" && strings.Contains(strings.ToLower(u.Hostname()), host) {
			c.Score += w.DomainMatch
			c.Signals = append(c.Signals, SignalDomainMatch)
		}
		if containsAny(strings.ToLower(u.Path+"?"+u.RawQuery), suspiciousPathTokens) {
			c.Score += w.Path
			c.Signals = append(c.Signals, SignalSuspiciousPath)
		}
	}

	if strings.EqualFold(r.Method, "POST") {
		c.Score += w.PostMethod
		c.Signals = append(c.Signals, SignalPostMethod)
	}

	if body, ok := r.Body(); ok && containsAny(strings.ToLower(body), suspiciousPayloadTokens) {
		c.Score += w.Payload
		c.Signals = append(c.Signals, SignalSuspiciousPayload)
	}

	if c.Score > maxScore {
		c.Score = maxScore
	}
	if c.Score < 0 {
		c.Score = 0
	}
	return c
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
