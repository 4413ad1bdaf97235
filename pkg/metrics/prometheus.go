package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"queueforge/pkg/types"
)

const namespace = "queueforge"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	settled        *prom.CounterVec
	effectFailures *prom.CounterVec
	enqueued       *prom.CounterVec
	cancelled      *prom.CounterVec
	conflicts      *prom.CounterVec
	lockWait       *prom.HistogramVec
	queueLength    *prom.HistogramVec
}

// NewPrometheusRecorder builds the collectors and registers them on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		settled: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "items_settled_total",
			Help:      "Queue items whose effect was applied and removed",
		}, []string{"category"}),
		effectFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "effect_failures_total",
			Help:      "Completion port refusals leaving an item stuck at the head",
		}, []string{"category"}),
		enqueued: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "items_enqueued_total",
			Help:      "Queue items accepted",
		}, []string{"category"}),
		cancelled: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "items_cancelled_total",
			Help:      "Waiting items removed by cancellation",
		}, []string{"category"}),
		conflicts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Lock timeouts and version conflicts",
		}, []string{"category"}),
		lockWait: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a per-queue lock",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"category"}),
		queueLength: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Items left in a queue after settlement",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"category"}),
	}
	reg.MustRegister(pr.settled, pr.effectFailures, pr.enqueued, pr.cancelled, pr.conflicts, pr.lockWait, pr.queueLength)
	return pr
}

func (p *PrometheusRecorder) IncSettled(c types.Category) {
	if p == nil {
		return
	}
	p.settled.WithLabelValues(string(c)).Inc()
}

func (p *PrometheusRecorder) IncEffectFailure(c types.Category) {
	if p == nil {
		return
	}
	p.effectFailures.WithLabelValues(string(c)).Inc()
}

func (p *PrometheusRecorder) IncEnqueued(c types.Category) {
	if p == nil {
		return
	}
	p.enqueued.WithLabelValues(string(c)).Inc()
}

func (p *PrometheusRecorder) IncCancelled(c types.Category) {
	if p == nil {
		return
	}
	p.cancelled.WithLabelValues(string(c)).Inc()
}

func (p *PrometheusRecorder) IncConflict(c types.Category) {
	if p == nil {
		return
	}
	p.conflicts.WithLabelValues(string(c)).Inc()
}

func (p *PrometheusRecorder) ObserveLockWait(c types.Category, d time.Duration) {
	if p == nil {
		return
	}
	p.lockWait.WithLabelValues(string(c)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveQueueLength(c types.Category, n int) {
	if p == nil {
		return
	}
	p.queueLength.WithLabelValues(string(c)).Observe(float64(n))
}

// Handler serves the metrics gathered by reg.
func Handler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
