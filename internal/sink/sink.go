package sink

import (
	"context"

	"github.com/shortontech/trackcheck/internal/tracking"
)

// Sink delivers finished visits somewhere outside the process. Sinks do not
// keep reports for later retrieval.
type Sink interface {
	Start(ctx context.Context) error
	Enqueue(v tracking.Visit) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}
