package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/shortontech/trackcheck/internal/tracking"
)

// LogSink writes one JSON visit per line to LOG_PATH ("stdout" or a file path).
type LogSink struct {
	dst string
	f   *os.File
	out io.Writer

	mu sync.Mutex
	w  *bufio.Writer
}

// NewLogSink reads its destination from LOG_PATH.
func NewLogSink() *LogSink {
	return &LogSink{dst: getEnvOr("LOG_PATH", "trackcheck.ndjson")}
}

// NewLogSinkWriter writes to w instead of a path. The caller owns w.
func NewLogSinkWriter(w io.Writer) *LogSink {
	return &LogSink{dst: "writer", out: w}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Start(ctx context.Context) error {
	switch {
	case s.out != nil:
	case s.dst == "stdout":
		s.out = os.Stdout
	default:
		f, err := os.OpenFile(s.dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log sink %s: %w", s.dst, err)
		}
		s.f = f
		s.out = f
	}
	s.w = bufio.NewWriter(s.out)
	return nil
}

func (s *LogSink) Enqueue(v tracking.Visit) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize visit: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return fmt.Errorf("log sink not started")
	}
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write visit: %w", err)
	}
	return s.w.Flush()
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.w != nil {
		err = s.w.Flush()
		s.w = nil
	}
	if s.f != nil {
		if cerr := s.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		s.f = nil
	}
	return err
}
