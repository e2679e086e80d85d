package detections

import "time"

// Metrics receives pipeline observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveClassification(d time.Duration, outcome string)
	CountDetection(outcome string)
	CountEnrichment(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveClassification(time.Duration, string) {}
func (nopMetrics) CountDetection(string) {}
func (nopMetrics) CountEnrichment(string) {}
