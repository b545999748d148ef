// Package main is the trackcheck command: an HTTP service and CLI that load a
// page in headless Chrome and report which trackers it runs.
//
// Usage:
//
//	trackcheck serve
//	trackcheck check https://example.com/ --format markdown
//	trackcheck demo
package main

func main() {
	Execute()
}
