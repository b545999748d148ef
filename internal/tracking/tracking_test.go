package tracking

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/shortontech/trackcheck/internal/observation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleBundle() observation.Bundle {
	return observation.Bundle{
		TargetURL:      "https://shop.example.com/",
		TargetHostname: "shop.example.com",
		Requests: []observation.Request{
			{URL: "https://shop.example.com/", Method: "GET"},
			{URL: "https://connect.facebook.net/en_US/fbevents.js", Method: "GET"},
			{URL: "https://www.google-analytics.com/g/collect?v=2&tid=G-ABC123", Method: "POST"},
			{URL: "https://shop.example.com/api/track", Method: "POST", PostBody: observation.StrPtr(`{"event_name":"Purchase","fbp":"fb.1.123"}`)},
			{URL: "https://shop.example.com/static/app.js?gclid=abc", Method: "GET"},
			{URL: "https://graph.facebook.com/v18.0/123/events", Method: "POST"},
		},
		SetCookieHeaders: []observation.SetCookieHeader{
			{URL: "https://shop.example.com/", Value: "session=abc; Path=/; HttpOnly\n_fbp=fb.1.123; Path=/"},
		},
		Cookies: []observation.Cookie{
			{Name: "_ga", Domain: ".example.com"},
			{Name: "_fbp", Domain: ".shop.example.com"},
			{Name: "_tt_enable_cookie", Domain: ".tiktok.com"},
			{Name: "consent", Domain: "shop.example.com"},
		},
		ScriptSrcURLs: []string{
			"https://connect.facebook.net/en_US/fbevents.js",
			"https://www.googletagmanager.com/gtm.js?id=GTM-XXXX",
			"https://analytics.tiktok.com/i18n/pixel/events.js",
		},
		InlineScripts: []string{
			`window.dataLayer = window.dataLayer || [];`,
			`fbq('init', '1234567890123'); document.cookie = "consent=yes; path=/";`,
		},
	}
}

func TestCorrelateDeterminism(t *testing.T) {
	b := sampleBundle()

	first := Correlate(b)
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for i := 0; i < 10; i++ {
		again := Correlate(b)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
		againJSON, _ := json.Marshal(again)
		if !bytes.Equal(firstJSON, againJSON) {
			t.Fatalf("run %d produced different bytes", i)
		}
	}
}

func TestCorrelateSampleBundle(t *testing.T) {
	r := Correlate(sampleBundle())

	if r.TotalRequests != 6 {
		t.Errorf("TotalRequests = %d, want 6", r.TotalRequests)
	}
	if !r.HasMetaPixelScript || !r.HasMetaPixelJs {
		t.Errorf("expected meta pixel script and js, got script=%v js=%v", r.HasMetaPixelScript, r.HasMetaPixelJs)
	}
	if !r.HasMetaCAPI {
		t.Error("expected Meta CAPI to be detected")
	}
	if !r.HasGA4Server {
		t.Error("expected GA4 collect to be detected")
	}
	if !r.HasGTM {
		t.Error("expected GTM loader to be detected")
	}
	if !r.Vendors["TikTok Pixel"] {
		t.Error("expected TikTok Pixel vendor flag")
	}
	if r.Vendors["Hotjar"] {
		t.Error("Hotjar should be false")
	}
	if diff := cmp.Diff([]string{"1234567890123"}, r.DetectedPixelIDs); diff != "" {
		t.Errorf("pixel ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"gclid"}, r.ClickIDParams); diff != "" {
		t.Errorf("click ids (-want +got):\n%s", diff)
	}

	want := []CookieClassification{
		{Name: "_ga", Domain: ".example.com", IsFirstParty: true, Vendor: "Google Analytics", Origin: OriginScript},
		{Name: "_fbp", Domain: ".shop.example.com", IsFirstParty: true, Vendor: "Facebook Pixel", Origin: OriginHTTP, RelatedSource: "https://shop.example.com/"},
		{Name: "_tt_enable_cookie", Domain: ".tiktok.com", IsFirstParty: false, Vendor: "TikTok Pixel", Origin: OriginScript, RelatedSource: "https://analytics.tiktok.com/i18n/pixel/events.js"},
		{Name: "consent", Domain: "shop.example.com", IsFirstParty: true, Vendor: UnknownVendor, Origin: OriginInlineScript, RelatedSource: "inline-script#1"},
	}
	if diff := cmp.Diff(want, r.TrackingCookies); diff != "" {
		t.Errorf("cookies (-want +got):\n%s", diff)
	}

	if len(r.ProxyTrackers) != 1 {
		t.Fatalf("expected 1 proxy tracker, got %d: %+v", len(r.ProxyTrackers), r.ProxyTrackers)
	}
	if got := r.ProxyTrackers[0]; got.URL != "https://shop.example.com/api/track" || got.Score != 100 {
		t.Errorf("unexpected proxy tracker %+v", got)
	}
}

func TestFirstPartyInvariant(t *testing.T) {
	tests := []struct {
		domain string
		host   string
		want   bool
	}{
		{".example.com", "shop.example.com", true},
		{"example.com", "example.com", true},
		{"shop.example.com", "shop.example.com", true},
		{".EXAMPLE.com", "shop.example.com", true},
		{".other.com", "shop.example.com", false},
		{"sub.shop.example.com", "shop.example.com", false},
		{"ample.com", "example.com", false},
		{"", "example.com", false},
		{".example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain+"|"+tt.host, func(t *testing.T) {
			b := observation.Bundle{
				TargetHostname: tt.host,
				Cookies:        []observation.Cookie{{Name: "x", Domain: tt.domain}},
			}
			got := ClassifyCookies(b, DefaultCatalog())
			if got[0].IsFirstParty != tt.want {
				t.Errorf("IsFirstParty(%q, %q) = %v, want %v", tt.domain, tt.host, got[0].IsFirstParty, tt.want)
			}
		})
	}
}

func TestRulePrecedence(t *testing.T) {
	ordered := Catalog{CookieRules: []CookieRule{
		{Pattern: regexp.MustCompile(`^_ga`), Label: "Google Analytics"},
		{Pattern: regexp.MustCompile(`^_gid$`), Label: "Google Analytics"},
		{Pattern: regexp.MustCompile(`^_g`), Label: "Generic G"},
	}}
	reversed := Catalog{CookieRules: []CookieRule{
		ordered.CookieRules[2],
		ordered.CookieRules[0],
		ordered.CookieRules[1],
	}}

	b := observation.Bundle{
		TargetHostname: "example.com",
		Cookies:        []observation.Cookie{{Name: "_ga_XYZ", Domain: ".example.com"}, {Name: "_gid", Domain: ".example.com"}},
	}

	got := ClassifyCookies(b, ordered)
	if got[0].Vendor != "Google Analytics" || got[1].Vendor != "Google Analytics" {
		t.Errorf("ordered catalog: got %q, %q", got[0].Vendor, got[1].Vendor)
	}

	got = ClassifyCookies(b, reversed)
	if got[0].Vendor != "Generic G" || got[1].Vendor != "Generic G" {
		t.Errorf("reversed catalog: got %q, %q", got[0].Vendor, got[1].Vendor)
	}
}

func TestDefaultCatalogOrder(t *testing.T) {
	c := DefaultCatalog()
	want := []string{
		"Google Analytics", "Google Analytics", "Facebook Pixel", "Google Ads Auto Tagging",
		"Enhanced Conversions", "Microsoft Clarity", "TikTok Pixel",
	}
	for i, label := range want {
		if c.CookieRules[i].Label != label {
			t.Errorf("rule %d label = %q, want %q", i, c.CookieRules[i].Label, label)
		}
	}

	if label, _ := c.CookieVendor("_gcl_au"); label != "Google Ads Conversion Linker" {
		t.Errorf("_gcl_au vendor = %q", label)
	}
	if label, _ := c.CookieVendor("_clck"); label != "Microsoft Clarity" {
		t.Errorf("_clck vendor = %q", label)
	}
	if _, ok := c.CookieVendor("PHPSESSID"); ok {
		t.Error("PHPSESSID should not match any rule")
	}
}

func TestCatalogMatchingCase(t *testing.T) {
	c := DefaultCatalog()

	label, ok := c.AssetVendor("https://CONNECT.Facebook.NET/en_US/fbevents.js", ScopeScripts)
	if !ok || label != "Meta Pixel" {
		t.Errorf("AssetVendor(mixed case) = %q, %v; want Meta Pixel, true", label, ok)
	}
	if _, ok := c.AssetVendor("https://connect.facebook.net/en_US/fbevents.js", ScopeRequests); ok {
		t.Error("script-scope rule matched a request URL")
	}

	if label, ok := c.CookieVendor("_ga"); !ok || label != "Google Analytics" {
		t.Errorf("CookieVendor(_ga) = %q, %v", label, ok)
	}
	if _, ok := c.CookieVendor("_GA"); ok {
		t.Error("cookie names are case-sensitive; _GA should not match")
	}
}

func TestProxyThresholdBoundary(t *testing.T) {
	tests := []struct {
		name      string
		req       observation.Request
		wantScore int
		promoted  bool
	}{
		{
			name:      "domain + path + POST scores exactly 60",
			req:       observation.Request{URL: "https://shop.example.com/api/track", Method: "POST", PostBody: observation.StrPtr("")},
			wantScore: 60,
			promoted:  true,
		},
		{
			name:      "GET drops to 50",
			req:       observation.Request{URL: "https://shop.example.com/api/track", Method: "GET"},
			wantScore: 50,
		},
		{
			name:      "no suspicious path drops to 40",
			req:       observation.Request{URL: "https://shop.example.com/api/cart", Method: "POST", PostBody: observation.StrPtr("")},
			wantScore: 40,
		},
		{
			name:      "third-party host drops to 30",
			req:       observation.Request{URL: "https://cdn.other.net/api/track", Method: "POST", PostBody: observation.StrPtr("")},
			wantScore: 30,
		},
		{
			name:      "payload alone with domain qualifies",
			req:       observation.Request{URL: "https://shop.example.com/api/cart", Method: "GET", PostBody: observation.StrPtr(`{"client_id":"x"}`)},
			wantScore: 70,
			promoted:  true,
		},
		{
			name:      "path tokens are case-insensitive",
			req:       observation.Request{URL: "https://shop.example.com/API/Collect", Method: "post"},
			wantScore: 60,
			promoted:  true,
		},
		{
			name:      "all signals",
			req:       observation.Request{URL: "https://shop.example.com/e?event=1", Method: "POST", PostBody: observation.StrPtr(`fbc=fb.1.2`)},
			wantScore: 100,
			promoted:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWeights()
			c := scoreRequest(tt.req, "shop.example.com", w)
			if c.Score != tt.wantScore {
				t.Errorf("score = %d, want %d (signals %v)", c.Score, tt.wantScore, c.Signals)
			}

			b := observation.Bundle{TargetHostname: "shop.example.com", Requests: []observation.Request{tt.req}}
			got := ScoreProxyCandidates(b, DefaultCatalog(), w)
			if promoted := len(got) == 1; promoted != tt.promoted {
				t.Errorf("promoted = %v, want %v", promoted, tt.promoted)
			}
		})
	}
}

func TestProxyScorerMissingBody(t *testing.T) {
	b := observation.Bundle{
		TargetHostname: "shop.example.com",
		Requests: []observation.Request{
			// body not captured: payload signal contributes nothing
			{URL: "https://shop.example.com/api/cart", Method: "POST"},
			{URL: "://bad url", Method: "POST", PostBody: observation.StrPtr("event_name=x")},
			{URL: "https://shop.example.com/api/track", Method: "POST"},
		},
	}

	got := ScoreProxyCandidates(b, DefaultCatalog(), DefaultWeights())
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(got), got)
	}
	if got[0].URL != "https://shop.example.com/api/track" {
		t.Errorf("unexpected candidate %q", got[0].URL)
	}
	if diff := cmp.Diff([]string{SignalDomainMatch, SignalSuspiciousPath, SignalPostMethod}, got[0].Signals); diff != "" {
		t.Errorf("signals (-want +got):\n%s", diff)
	}
}

func TestProxyScorerKeepsDuplicatesAndSkipsKnownVendors(t *testing.T) {
	req := observation.Request{URL: "https://shop.example.com/collect", Method: "POST"}
	b := observation.Bundle{
		TargetHostname: "shop.example.com",
		Requests: []observation.Request{
			req,
			{URL: "https://shop.example.com/graph.facebook.com/events", Method: "POST", PostBody: observation.StrPtr("event_name=x")},
			req,
		},
	}

	got := ScoreProxyCandidates(b, DefaultCatalog(), DefaultWeights())
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
}

func TestCustomWeights(t *testing.T) {
	w := DefaultWeights()
	w.Threshold = 50
	c := New(WithWeights(w))

	b := observation.Bundle{
		TargetHostname: "shop.example.com",
		Requests:       []observation.Request{{URL: "https://shop.example.com/api/track", Method: "GET"}},
	}
	if got := c.Correlate(b).ProxyTrackers; len(got) != 1 {
		t.Errorf("expected promotion at threshold 50, got %d candidates", len(got))
	}
	if got := Correlate(b).ProxyTrackers; len(got) != 0 {
		t.Errorf("default policy should not promote, got %d", len(got))
	}
}

func TestGracefulDegradation(t *testing.T) {
	r := Correlate(observation.Bundle{TargetURL: "https://empty.example/", TargetHostname: "empty.example"})

	if r.TotalRequests != 0 || r.TotalScripts != 0 || r.TotalInlineScripts != 0 {
		t.Errorf("expected zero totals, got %+v", r)
	}
	if r.HasMetaPixelJs || r.HasMetaPixelScript || r.HasMetaCAPI || r.HasGA4Server || r.HasGTM {
		t.Error("all presence flags should be false")
	}
	for label, present := range r.Vendors {
		if present {
			t.Errorf("vendor %q should be false", label)
		}
	}
	if len(r.Vendors) != len(DefaultCatalog().VendorLabels()) {
		t.Errorf("every vendor should be reported, got %d", len(r.Vendors))
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"detectedPixelIds", "clickIdParams", "trackingCookies", "proxyTrackers"} {
		if string(raw[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, raw[key])
		}
	}
}

func TestPixelDetectionORComposition(t *testing.T) {
	tests := []struct {
		name    string
		bundle  observation.Bundle
		wantJs  bool
		wantIDs []string
	}{
		{
			name:    "inline init only",
			bundle:  observation.Bundle{InlineScripts: []string{`fbq('init','1234567890123');`}, LiveProbes: map[string]bool{ProbeMetaPixel: false}},
			wantJs:  true,
			wantIDs: []string{"1234567890123"},
		},
		{
			name:    "script url only",
			bundle:  observation.Bundle{ScriptSrcURLs: []string{"https://connect.facebook.net/en_US/fbevents.js"}},
			wantJs:  true,
			wantIDs: []string{},
		},
		{
			name:    "live probe only",
			bundle:  observation.Bundle{LiveProbes: map[string]bool{ProbeMetaPixel: true}},
			wantJs:  true,
			wantIDs: []string{},
		},
		{
			name:    "none",
			bundle:  observation.Bundle{InlineScripts: []string{`fbq('track','PageView');`}},
			wantJs:  false,
			wantIDs: []string{},
		},
		{
			name: "distinct ids in first-seen order",
			bundle: observation.Bundle{InlineScripts: []string{
				`fbq("init", "2222222222"); fbq('init', '11111111111111111111');`,
				`fbq( 'init' , 2222222222 );`,
			}},
			wantJs:  true,
			wantIDs: []string{"2222222222", "11111111111111111111"},
		},
		{
			name:    "too short identifier ignored",
			bundle:  observation.Bundle{InlineScripts: []string{`fbq('init', '123456789');`}},
			wantJs:  false,
			wantIDs: []string{},
		},
		{
			name: "identifier longer than 20 digits ignored",
			bundle: observation.Bundle{InlineScripts: []string{
				`fbq('init', '123456789012345678901');`,
				`fbq('init', 1234567890123456789012345);`,
			}},
			wantJs:  false,
			wantIDs: []string{},
		},
		{
			name:    "mixed case script url",
			bundle:  observation.Bundle{ScriptSrcURLs: []string{"https://CONNECT.Facebook.NET/en_US/fbevents.js"}},
			wantJs:  true,
			wantIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DetectSignals(tt.bundle, DefaultCatalog())
			if s.HasMetaPixelJs != tt.wantJs {
				t.Errorf("HasMetaPixelJs = %v, want %v", s.HasMetaPixelJs, tt.wantJs)
			}
			if diff := cmp.Diff(tt.wantIDs, s.PixelIDs); diff != "" {
				t.Errorf("ids (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCookieOrderPreserved(t *testing.T) {
	b := sampleBundle()
	forward := Correlate(b).TrackingCookies

	reversed := b
	reversed.Cookies = make([]observation.Cookie, len(b.Cookies))
	for i, c := range b.Cookies {
		reversed.Cookies[len(b.Cookies)-1-i] = c
	}
	backward := Correlate(reversed).TrackingCookies

	if len(forward) != len(backward) {
		t.Fatalf("length mismatch %d vs %d", len(forward), len(backward))
	}
	for i := range forward {
		if diff := cmp.Diff(forward[i], backward[len(backward)-1-i]); diff != "" {
			t.Errorf("cookie %d changed under reordering:\n%s", i, diff)
		}
	}
	if backward[0].Name != b.Cookies[len(b.Cookies)-1].Name {
		t.Errorf("output should follow input order, got %q first", backward[0].Name)
	}
}

func TestCookieOrigin(t *testing.T) {
	t.Run("header token must match exactly", func(t *testing.T) {
		b := observation.Bundle{
			SetCookieHeaders: []observation.SetCookieHeader{{URL: "https://a.test/", Value: "_ga_extra=1; Path=/"}},
			Cookies:          []observation.Cookie{{Name: "_ga", Domain: ".a.test"}},
		}
		got := ClassifyCookies(b, DefaultCatalog())
		if got[0].Origin != OriginScript {
			t.Errorf("origin = %q, want script", got[0].Origin)
		}
	})

	t.Run("header wins over inline script", func(t *testing.T) {
		b := observation.Bundle{
			SetCookieHeaders: []observation.SetCookieHeader{{URL: "https://a.test/", Value: "sid=1"}},
			InlineScripts:    []string{`document.cookie = 'sid=2';`},
			Cookies:          []observation.Cookie{{Name: "sid", Domain: "a.test"}},
		}
		got := ClassifyCookies(b, DefaultCatalog())
		if got[0].Origin != OriginHTTP || got[0].RelatedSource != "https://a.test/" {
			t.Errorf("got %+v", got[0])
		}
	})

	t.Run("inline assignment with backtick", func(t *testing.T) {
		b := observation.Bundle{
			InlineScripts: []string{"var x = 1;", "", "document.cookie=`ab_test=${v}; path=/`"},
			Cookies:       []observation.Cookie{{Name: "ab_test", Domain: "a.test"}},
		}
		got := ClassifyCookies(b, DefaultCatalog())
		if got[0].Origin != OriginInlineScript || got[0].RelatedSource != "inline-script#2" {
			t.Errorf("got %+v", got[0])
		}
	})

	t.Run("helper function writes are not followed", func(t *testing.T) {
		b := observation.Bundle{
			InlineScripts: []string{`setCookie("pref", "1");`},
			Cookies:       []observation.Cookie{{Name: "pref", Domain: "a.test"}},
		}
		got := ClassifyCookies(b, DefaultCatalog())
		if got[0].Origin != OriginScript || got[0].RelatedSource != "" {
			t.Errorf("got %+v", got[0])
		}
	})
}

func TestAssembleNilInputs(t *testing.T) {
	r := Assemble(observation.Bundle{TargetURL: "https://x.test/"}, nil, Signals{}, nil)
	if r.Vendors == nil || r.DetectedPixelIDs == nil || r.ClickIDParams == nil || r.TrackingCookies == nil || r.ProxyTrackers == nil {
		t.Errorf("Assemble should never return nil collections: %+v", r)
	}
	if r.URL != "https://x.test/" {
		t.Errorf("URL = %q", r.URL)
	}
}

func TestThirdPartyCookies(t *testing.T) {
	r := Correlate(sampleBundle())
	if got := r.ThirdPartyCookies(); got != 1 {
		t.Errorf("ThirdPartyCookies() = %d, want 1", got)
	}
}
