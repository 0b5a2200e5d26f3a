package core

import "time"

// Metrics receives export observations. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	ObserveExport(kind ScopeKind, status string, rows int, duration time.Duration)
	IncDecodeFailure()
}

// Export outcome labels.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveExport(ScopeKind, string, int, time.Duration) {}
func (NopMetrics) IncDecodeFailure()                                   {}
