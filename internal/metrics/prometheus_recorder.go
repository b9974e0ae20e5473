package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	stageDuration   *prom.HistogramVec
	stageResults    *prom.CounterVec
	stageStatistics *prom.GaugeVec
}

// NewPrometheusRecorder constructs the metrics on a private registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	pr := &PrometheusRecorder{registry: prom.NewRegistry()}
	pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "scopetools",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of wrapped tool runs per stage",
		Buckets:   prom.ExponentialBuckets(1, 4, 8),
	}, []string{"stage"})
	pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "scopetools",
		Name:      "stage_results_total",
		Help:      "Stage result counts by outcome",
	}, []string{"stage", "result"})
	pr.stageStatistics = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "scopetools",
		Name:      "stage_statistics",
		Help:      "Number of statistics extracted by the last stage run",
	}, []string{"stage"})
	pr.registry.MustRegister(pr.stageDuration, pr.stageResults, pr.stageStatistics)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) SetStageStatistics(stage string, n int) {
	if p == nil {
		return
	}
	p.stageStatistics.WithLabelValues(stage).Set(float64(n))
}

// Gatherer exposes the private registry.
func (p *PrometheusRecorder) Gatherer() prom.Gatherer { return p.registry }

// WriteTextfile writes the current metrics to path in the text exposition
// format read by node_exporter's textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.Gatherer()); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}

var _ Recorder = (*PrometheusRecorder)(nil)
var _ Recorder = NoopRecorder{}
