// Package render writes a tracking.Report as HTML, JSON or Markdown.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shortontech/trackcheck/internal/tracking"
)

// Format names an output encoding.
type Format string

const (
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts html, json, markdown or md. Empty means html.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}

// Write renders r to w in format f.
func Write(w io.Writer, f Format, r tracking.Report) error {
	switch f {
	case FormatHTML:
		return HTML(w, r)
	case FormatJSON:
		return JSON(w, r)
	case FormatMarkdown:
		return Markdown(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}
