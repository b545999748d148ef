package render

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"

	"github.com/shortontech/trackcheck/internal/assets"
	"github.com/shortontech/trackcheck/internal/tracking"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"check":        statusIcon,
	"join":         func(s []string) string { return strings.Join(s, ", ") },
	"upper":        func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	"isURL":        isURL,
	"vendorLabels": sortedLabels,
}).Parse(assets.ReportHTML))

// HTML writes the human-readable report page.
func HTML(w io.Writer, r tracking.Report) error {
	if err := reportTemplate.Execute(w, r); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}

func statusIcon(v bool) string {
	if v {
		return "✅"
	}
	return "❌"
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func sortedLabels(m map[string]bool) []string {
	labels := make([]string, 0, len(m))
	for k := range m {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}
