package tracking

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shortontech/trackcheck/internal/observation"
)

// inlineCookieAssignment matches literal `document.cookie = "name=..."` writes
// and captures the cookie name. Helper-function writes are not followed.
var inlineCookieAssignment = regexp.MustCompile("document\\.cookie\\s*=\\s*[\"'`]\\s*([^=;\"'`\\s]+)\\s*=")

// ClassifyCookies produces one classification per cookie in the jar, in jar order.
func ClassifyCookies(b observation.Bundle, catalog Catalog) []CookieClassification {
	headerSources := setCookieNames(b.SetCookieHeaders)
	inlineSources := inlineCookieNames(b.InlineScripts)
	host := strings.ToLower(b.TargetHostname)

	out := make([]CookieClassification, 0, len(b.Cookies))
	for _, c := range b.Cookies {
		cc := CookieClassification{
			Name:         c.Name,
			Domain:       c.Domain,
			IsFirstParty: isFirstParty(c.Domain, host),
			Vendor:       UnknownVendor,
		}
		if label, ok := catalog.CookieVendor(c.Name); ok {
			cc.Vendor = label
		}

		if src, ok := headerSources[c.Name]; ok {
			cc.Origin = OriginHTTP
			cc.RelatedSource = src
		} else if idx, ok := inlineSources[c.Name]; ok {
			cc.Origin = OriginInlineScript
			cc.RelatedSource = InlineScriptID(idx)
		} else {
			cc.Origin = OriginScript
			cc.RelatedSource = relatedScript(c.Domain, b.ScriptSrcURLs)
		}
		out = append(out, cc)
	}
	return out
}

// InlineScriptID names an inline script block by its position in the page.
func InlineScriptID(idx int) string {
	return "inline-script#" + strconv.Itoa(idx)
}

// stripDomain lower-cases a cookie domain and removes its leading dot.
func stripDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// isFirstParty reports whether the cookie domain domain-matches host:
// equal, or a parent domain on a label boundary. A bare string suffix is not
// enough: "ample.com" does not match "example.com".
func isFirstParty(domain, host string) bool {
	d := stripDomain(domain)
	if d == "" || host == "" {
		return false
	}
	return host == d || strings.HasSuffix(host, "."+d)
}

// setCookieNames maps each cookie name set by a response header to the first
// response URL that set it.
func setCookieNames(headers []observation.SetCookieHeader) map[string]string {
	names := make(map[string]string)
	for _, h := range headers {
		for _, line := range strings.Split(h.Value, "\n") {
			eq := strings.IndexByte(line, '=')
			if eq <= 0 {
				continue
			}
			name := strings.TrimSpace(line[:eq])
			if name == "" {
				continue
			}
			if _, seen := names[name]; !seen {
				names[name] = h.URL
			}
		}
	}
	return names
}

// inlineCookieNames maps each cookie name assigned in inline script text to
// the index of the first block that assigns it.
func inlineCookieNames(scripts []string) map[string]int {
	names := make(map[string]int)
	for i, text := range scripts {
		for _, m := range inlineCookieAssignment.FindAllStringSubmatch(text, -1) {
			if _, seen := names[m[1]]; !seen {
				names[m[1]] = i
			}
		}
	}
	return names
}

// relatedScript returns the first script URL whose host contains the cookie domain.
func relatedScript(domain string, scripts []string) string {
	d := stripDomain(domain)
	if d == "" {
		return ""
	}
	for _, src := range scripts {
		if host := observation.Hostname(src); host != "" && strings.Contains(host, d) {
			return src
		}
	}
	return ""
}
