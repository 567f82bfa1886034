package driven

import "time"

// MetricsRecorder receives observability signals. Recording never influences
// control flow and must not block.
type MetricsRecorder interface {
	ObserveCeremony(kind string, outcome string, elapsed time.Duration)
	RecordSLABreach(elapsed time.Duration)
	RecordProviderCall(provider string, op string, outcome string)
	RecordProviderHealth(provider string, healthy bool)
}

// NopMetrics discards every signal.
type NopMetrics struct{}

func (NopMetrics) ObserveCeremony(string, string, time.Duration) {}
func (NopMetrics) RecordSLABreach(time.Duration)                 {}
func (NopMetrics) RecordProviderCall(string, string, string)     {}
func (NopMetrics) RecordProviderHealth(string, bool)             {}
