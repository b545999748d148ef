package assets

import _ "embed"

// Report templates compiled into the binary at build time.

//go:embed report.html.tmpl
var ReportHTML string
