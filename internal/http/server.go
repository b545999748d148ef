package httpx

import (
	"net/http"
)

// endpoints are the only path values used as metric labels.
var endpoints = map[string]bool{"/": true, "/healthz": true, "/readyz": true, "/check": true}

func endpointLabel(path string) string {
	if endpoints[path] {
		return path
	}
	return "other"
}

func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", e.Index)
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc("/check", e.Check)

	logger := e.logger().Named("http")
	return RequestLogger(logger)(MetricsMiddleware(e.Metrics)(cors(mux)))
}
