// Package metrics records stage durations and outcomes. Metrics are exported
// as a node_exporter textfile since stages run as short-lived processes.
package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	// ResultNoMatch is a successful stage whose output held no statistics.
	ResultNoMatch    ResultLabel = "no_match"
	ResultToolFailed ResultLabel = "tool_failed"
	ResultFatal      ResultLabel = "fatal"
)

// Recorder defines observability hooks for stage metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	SetStageStatistics(stage string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) SetStageStatistics(string, int)             {}
