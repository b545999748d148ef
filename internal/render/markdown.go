package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/shortontech/trackcheck/internal/tracking"
)

// Markdown writes the report as GitHub-flavored Markdown.
func Markdown(w io.Writer, r tracking.Report) error {
	md := markdown.NewMarkdown(w)

	md.H1("Tracking Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"URL", r.URL},
			{"Total Network Requests", strconv.Itoa(r.TotalRequests)},
			{"External Scripts", strconv.Itoa(r.TotalScripts)},
			{"Inline Scripts", strconv.Itoa(r.TotalInlineScripts)},
		},
	})
	md.PlainText("")

	md.H2("Tracking Summary")
	md.PlainText("")
	md.BulletList(
		"Meta Pixel JS: "+statusIcon(r.HasMetaPixelJs),
		"Meta Pixel Script: "+statusIcon(r.HasMetaPixelScript),
		"Meta Conversions API: "+statusIcon(r.HasMetaCAPI),
		"GA4 Server-Side: "+statusIcon(r.HasGA4Server),
		"Google Tag Manager: "+statusIcon(r.HasGTM),
	)
	md.PlainText("")
	if len(r.DetectedPixelIDs) > 0 {
		md.PlainTextf("Pixel IDs: %s", code(r.DetectedPixelIDs))
		md.PlainText("")
	}
	if len(r.ClickIDParams) > 0 {
		md.PlainTextf("Click ID parameters: %s", code(r.ClickIDParams))
		md.PlainText("")
	}

	writeVendors(md, r)
	writeCookies(md, r)
	writeProxyTrackers(md, r)

	if err := md.Build(); err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	return nil
}

func writeVendors(md *markdown.Markdown, r tracking.Report) {
	md.H2("Vendors")
	md.PlainText("")
	rows := make([][]string, 0, len(r.Vendors))
	for _, label := range sortedLabels(r.Vendors) {
		rows = append(rows, []string{label, statusIcon(r.Vendors[label])})
	}
	if len(rows) == 0 {
		md.PlainText("No vendor rules configured.")
		md.PlainText("")
		return
	}
	md.Table(markdown.TableSet{Header: []string{"Vendor", "Present"}, Rows: rows})
	md.PlainText("")
}

func writeCookies(md *markdown.Markdown, r tracking.Report) {
	md.H2("Tracking Cookies")
	md.PlainText("")
	if len(r.TrackingCookies) == 0 {
		md.PlainText("No cookies observed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(r.TrackingCookies))
	for _, c := range r.TrackingCookies {
		party := "3P"
		if c.IsFirstParty {
			party = "1P"
		}
		related := c.RelatedSource
		if related == "" {
			related = "-"
		}
		rows = append(rows, []string{c.Name, c.Vendor, party, strings.ToUpper(string(c.Origin)), related})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Cookie Name", "Tracker", "1P/3P", "Set By", "Related Script"},
		Rows:   rows,
	})
	md.PlainText("")

	if n := r.ThirdPartyCookies(); n > 0 {
		md.Notef("%d of %d cookies are third-party.", n, len(r.TrackingCookies))
		md.PlainText("")
	}
}

func writeProxyTrackers(md *markdown.Markdown, r tracking.Report) {
	md.H2("Proxy Trackers")
	md.PlainText("")
	if len(r.ProxyTrackers) == 0 {
		md.PlainText("No first-party proxy endpoints found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(r.ProxyTrackers))
	for _, p := range r.ProxyTrackers {
		rows = append(rows, []string{p.URL, p.Method, strconv.Itoa(p.Score), strings.Join(p.Signals, ", ")})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Method", "Score", "Signals"},
		Rows:   rows,
	})
	md.PlainText("")
	md.Warningf("%d request(s) look like first-party tracking proxies.", len(r.ProxyTrackers))
	md.PlainText("")
}

func code(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ", ")
}
