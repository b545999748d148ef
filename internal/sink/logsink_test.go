package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shortontech/trackcheck/internal/tracking"
)

func TestNewLogSink(t *testing.T) {
	t.Run("uses default path when env not set", func(t *testing.T) {
		withEnvVars(t, map[string]string{"LOG_PATH": ""}, func() {
			s := NewLogSink()
			if s.dst != "trackcheck.ndjson" {
				t.Errorf("dst = %q, want trackcheck.ndjson", s.dst)
			}
		})
	})

	t.Run("uses env variable when set", func(t *testing.T) {
		withEnvVars(t, map[string]string{"LOG_PATH": "/tmp/custom.log"}, func() {
			s := NewLogSink()
			if s.dst != "/tmp/custom.log" {
				t.Errorf("dst = %q, want /tmp/custom.log", s.dst)
			}
		})
	})

	if NewLogSink().Name() != "log" {
		t.Error("Name() should be log")
	}
}

func TestLogSinkStart(t *testing.T) {
	t.Run("creates file at destination path", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "test.ndjson")
		withEnvVars(t, map[string]string{"LOG_PATH": logPath}, func() {
			s := NewLogSink()
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() failed: %v", err)
			}
			defer s.Close()

			if _, err := os.Stat(logPath); os.IsNotExist(err) {
				t.Errorf("log file was not created at %s", logPath)
			}
		})
	})

	t.Run("handles stdout mode", func(t *testing.T) {
		withEnvVars(t, map[string]string{"LOG_PATH": "stdout"}, func() {
			s := NewLogSink()
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() failed for stdout: %v", err)
			}
			if s.f != nil {
				t.Error("file pointer should be nil for stdout mode")
			}
			if err := s.Close(); err != nil {
				t.Errorf("Close() error = %v", err)
			}
		})
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		withEnvVars(t, map[string]string{"LOG_PATH": "/nonexistent/directory/test.ndjson"}, func() {
			s := NewLogSink()
			if err := s.Start(context.Background()); err == nil {
				t.Error("Start() should fail for invalid path")
				s.Close()
			}
		})
	})
}

func TestLogSinkEnqueue(t *testing.T) {
	t.Run("writes one visit per line", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "visits.ndjson")
		withEnvVars(t, map[string]string{"LOG_PATH": logPath}, func() {
			s := NewLogSink()
			if err := s.Start(context.Background()); err != nil {
				t.Fatalf("Start() failed: %v", err)
			}

			for _, id := range []string{"v-1", "v-2", "v-3"} {
				v := tracking.Visit{VisitID: id, Report: tracking.Report{URL: "https://example.com/"}}
				if err := s.Enqueue(v); err != nil {
					t.Fatalf("Enqueue() failed: %v", err)
				}
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close() failed: %v", err)
			}

			content, err := os.ReadFile(logPath)
			if err != nil {
				t.Fatalf("failed to read log file: %v", err)
			}
			lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
			if len(lines) != 3 {
				t.Fatalf("expected 3 lines, got %d", len(lines))
			}

			var decoded tracking.Visit
			if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
				t.Fatalf("line is not valid JSON: %v", err)
			}
			if decoded.VisitID != "v-2" {
				t.Errorf("visit_id = %q, want v-2", decoded.VisitID)
			}
		})
	})

	t.Run("writer destination", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewLogSinkWriter(&buf)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		if err := s.Enqueue(tracking.Visit{VisitID: "w-1"}); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		if !strings.Contains(buf.String(), `"visit_id":"w-1"`) {
			t.Errorf("output missing visit: %s", buf.String())
		}
		s.Close()
	})

	t.Run("fails before start and after close", func(t *testing.T) {
		s := NewLogSinkWriter(&bytes.Buffer{})
		if err := s.Enqueue(tracking.Visit{}); err == nil {
			t.Error("Enqueue before Start should fail")
		}
		_ = s.Start(context.Background())
		_ = s.Close()
		if err := s.Enqueue(tracking.Visit{}); err == nil {
			t.Error("Enqueue after Close should fail")
		}
	})
}
