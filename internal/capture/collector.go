package capture

import (
	"bytes"
	"encoding/base64"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"

	"github.com/shortontech/trackcheck/internal/observation"
)

type cookieHeader struct {
	id    network.RequestID
	hop   int
	value string
	extra bool // from ResponseReceivedExtraInfo, which carries the raw lines
}

type capturedRequest struct {
	id       network.RequestID
	url      string
	method   string
	hasPost  bool
	postBody *string
}

// collector accumulates CDP events for one visit. Handlers run on the
// chromedp event goroutine and must not block.
type collector struct {
	mu sync.Mutex

	maxBody int64
	now     func() time.Time

	requests []*capturedRequest
	latest   map[network.RequestID]*capturedRequest

	// One entry per Set-Cookie carrying response, redirect hops included.
	// Chrome reuses a RequestID across a redirect chain, so entries are keyed
	// by (id, hop) where hop counts the redirects seen so far.
	cookieHdrs []cookieHeader
	extraHops  map[network.RequestID]map[int]bool
	redirects  map[network.RequestID]int
	hopURLs    map[network.RequestID]map[int]string
	reqURLs    map[network.RequestID][]string

	inflight    map[network.RequestID]bool
	maxInflight int
	quietSince  time.Time
}

func newCollector(maxBody int64, maxInflight int) *collector {
	c := &collector{
		maxBody:     maxBody,
		now:         time.Now,
		latest:      make(map[network.RequestID]*capturedRequest),
		extraHops:   make(map[network.RequestID]map[int]bool),
		redirects:   make(map[network.RequestID]int),
		hopURLs:     make(map[network.RequestID]map[int]string),
		reqURLs:     make(map[network.RequestID][]string),
		inflight:    make(map[network.RequestID]bool),
		maxInflight: maxInflight,
	}
	c.quietSince = c.now()
	return c
}

// handle is the chromedp.ListenTarget callback.
func (c *collector) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.onRequest(e)
	case *network.EventResponseReceived:
		c.onResponse(e)
	case *network.EventResponseReceivedExtraInfo:
		c.onResponseExtra(e)
	case *network.EventLoadingFinished:
		c.onDone(e.RequestID)
	case *network.EventLoadingFailed:
		c.onDone(e.RequestID)
	}
}

func (c *collector) onRequest(e *network.EventRequestWillBeSent) {
	if e.Request == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if rr := e.RedirectResponse; rr != nil {
		hop := c.redirects[e.RequestID]
		c.setHopURL(e.RequestID, hop, rr.URL)
		if v := headerValue(rr.Headers, "set-cookie"); v != "" {
			c.cookieHdrs = append(c.cookieHdrs, cookieHeader{id: e.RequestID, hop: hop, value: v})
		}
		c.redirects[e.RequestID] = hop + 1
	}
	c.reqURLs[e.RequestID] = append(c.reqURLs[e.RequestID], e.Request.URL)

	r := &capturedRequest{
		id:      e.RequestID,
		url:     e.Request.URL,
		method:  e.Request.Method,
		hasPost: e.Request.HasPostData,
	}
	if len(e.Request.PostDataEntries) > 0 {
		body := decodePostEntries(e.Request.PostDataEntries, c.maxBody)
		r.postBody = &body
	}
	c.requests = append(c.requests, r)
	c.latest[e.RequestID] = r

	c.inflight[e.RequestID] = true
	c.touch()
}

func (c *collector) onResponse(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hop := c.redirects[e.RequestID]
	c.setHopURL(e.RequestID, hop, e.Response.URL)
	if v := headerValue(e.Response.Headers, "set-cookie"); v != "" {
		c.cookieHdrs = append(c.cookieHdrs, cookieHeader{id: e.RequestID, hop: hop, value: v})
	}
}

func (c *collector) onResponseExtra(e *network.EventResponseReceivedExtraInfo) {
	v := headerValue(e.Headers, "set-cookie")
	if v == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	hop := c.redirects[e.RequestID]
	// Extra info for a redirect may arrive after the next hop has started.
	if isRedirectStatus(e.StatusCode) && hop > 0 && !c.extraHops[e.RequestID][hop-1] {
		hop--
	}
	if c.extraHops[e.RequestID] == nil {
		c.extraHops[e.RequestID] = make(map[int]bool)
	}
	c.extraHops[e.RequestID][hop] = true
	c.cookieHdrs = append(c.cookieHdrs, cookieHeader{id: e.RequestID, hop: hop, value: v, extra: true})
}

func (c *collector) setHopURL(id network.RequestID, hop int, u string) {
	if c.hopURLs[id] == nil {
		c.hopURLs[id] = make(map[int]string)
	}
	c.hopURLs[id][hop] = u
}

// hopURL is the response URL of a hop, falling back to the request URL that
// started it. Callers hold mu.
func (c *collector) hopURL(id network.RequestID, hop int) string {
	if u := c.hopURLs[id][hop]; u != "" {
		return u
	}
	if urls := c.reqURLs[id]; hop < len(urls) {
		return urls[hop]
	} else if len(urls) > 0 {
		return urls[len(urls)-1]
	}
	return ""
}

func isRedirectStatus(code int64) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

func (c *collector) onDone(id network.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
	c.touch()
}

// touch restarts the quiet window whenever the page is busier than allowed.
// Callers hold mu.
func (c *collector) touch() {
	if len(c.inflight) > c.maxInflight {
		c.quietSince = time.Time{}
		return
	}
	if c.quietSince.IsZero() {
		c.quietSince = c.now()
	}
}

// idleFor reports whether no more than maxInflight requests have been open
// for at least d.
func (c *collector) idleFor(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.quietSince.IsZero() && c.now().Sub(c.quietSince) >= d
}

// pendingPostData lists requests that declared a body the event did not carry.
func (c *collector) pendingPostData() []network.RequestID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []network.RequestID
	for _, r := range c.requests {
		if r.hasPost && r.postBody == nil {
			ids = append(ids, r.id)
		}
	}
	return ids
}

func (c *collector) setPostData(id network.RequestID, body string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.latest[id]
	if !ok || r.postBody != nil {
		return
	}
	body = truncate(body, c.maxBody)
	r.postBody = &body
}

// freeze copies the collected state into a Bundle. Response-header
// Set-Cookie values are dropped for hops that also reported extra info.
func (c *collector) freeze(target string) observation.Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := observation.Bundle{
		TargetURL:        target,
		Requests:         make([]observation.Request, 0, len(c.requests)),
		SetCookieHeaders: make([]observation.SetCookieHeader, 0, len(c.cookieHdrs)),
	}
	for _, r := range c.requests {
		req := observation.Request{URL: r.url, Method: r.method}
		if r.postBody != nil {
			req.PostBody = observation.StrPtr(*r.postBody)
		}
		b.Requests = append(b.Requests, req)
	}
	for _, h := range c.cookieHdrs {
		if !h.extra && c.extraHops[h.id][h.hop] {
			continue
		}
		b.SetCookieHeaders = append(b.SetCookieHeaders, observation.SetCookieHeader{URL: c.hopURL(h.id, h.hop), Value: h.value})
	}
	return b
}

// decodePostEntries joins base64 post data entries. Entries that are not
// valid base64 are kept verbatim.
func decodePostEntries(entries []*network.PostDataEntry, max int64) string {
	var buf bytes.Buffer
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		if decoded, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
			buf.Write(decoded)
		} else {
			buf.WriteString(entry.Bytes)
		}
		if max > 0 && int64(buf.Len()) >= max {
			break
		}
	}
	return truncate(buf.String(), max)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int64) string {
	if max <= 0 || int64(len(s)) <= max {
		return s
	}
	cut := int(max)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// headerValue does a case-insensitive lookup. Multiple values are joined
// with newlines, the way CDP reports repeated headers.
func headerValue(h network.Headers, name string) string {
	var vals []string
	for k, v := range h {
		if !strings.EqualFold(k, name) {
			continue
		}
		switch t := v.(type) {
		case string:
			vals = append(vals, t)
		case []interface{}:
			for _, item := range t {
				if s, ok := item.(string); ok {
					vals = append(vals, s)
				}
			}
		}
	}
	return strings.Join(vals, "\n")
}
