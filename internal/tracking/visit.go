package tracking

import (
	"time"

	"github.com/google/uuid"
)

// Visit wraps a Report with service-level metadata for sinks. It is kept out
// of Report so that Correlate stays deterministic.
type Visit struct {
	VisitID    string `json:"visit_id"`
	CapturedAt string `json:"captured_at"` // RFC3339Nano, UTC
	DurationMs int64  `json:"duration_ms"`
	Report     Report `json:"report"`
}

// NewVisit stamps a report with a fresh visit ID.
func NewVisit(r Report, capturedAt time.Time, dur time.Duration) Visit {
	return Visit{
		VisitID:    uuid.NewString(),
		CapturedAt: capturedAt.UTC().Format(time.RFC3339Nano),
		DurationMs: dur.Milliseconds(),
		Report:     r,
	}
}
