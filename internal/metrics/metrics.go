// Package metrics exposes Prometheus instrumentation for the decision
// pipeline and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

// Collector owns a private registry so tests and multiple servers in one
// process never collide on registration. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	decisions          *prometheus.CounterVec
	riskScore          prometheus.Histogram
	ruleTriggers       *prometheus.CounterVec
	assessDuration     *prometheus.HistogramVec
	assessFailures     *prometheus.CounterVec
	pipelineDuration   prometheus.Histogram
	busMessages        *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// New creates a collector with process and Go runtime collectors attached.
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Final decisions by outcome",
		}, []string{"decision"}),
		riskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of clamped rule scores",
			Buckets:   []float64{0, 10, 20, 25, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		ruleTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_triggers_total",
			Help:      "Rule flags raised by flag code",
		}, []string{"flag"}),
		assessDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assessment_duration_seconds",
			Help:      "Latency of the qualitative assessment call",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		assessFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessment_failures_total",
			Help:      "Aborted runs by assessment failure reason",
		}, []string{"reason"}),
		pipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end run latency",
			Buckets:   prometheus.DefBuckets,
		}),
		busMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Event bus messages handled by topic and outcome",
		}, []string{"topic", "outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "path", "status"}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordScore records a scored transaction and the flags it raised.
func (c *Collector) RecordScore(score float64, flags []string) {
	if c == nil {
		return
	}
	c.riskScore.Observe(score)
	for _, f := range flags {
		c.ruleTriggers.WithLabelValues(f).Inc()
	}
}

// RecordAssessment records the latency of an assessment call.
func (c *Collector) RecordAssessment(provider string, d time.Duration) {
	if c == nil {
		return
	}
	c.assessDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordAssessmentFailure counts a run aborted by the assessor.
func (c *Collector) RecordAssessmentFailure(reason string) {
	if c == nil {
		return
	}
	c.assessFailures.WithLabelValues(reason).Inc()
}

// RecordDecision records a completed run.
func (c *Collector) RecordDecision(decision string, d time.Duration) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(decision).Inc()
	c.pipelineDuration.Observe(d.Seconds())
}

// RecordBusMessage counts a consumed bus message.
func (c *Collector) RecordBusMessage(topic, outcome string) {
	if c == nil {
		return
	}
	c.busMessages.WithLabelValues(topic, outcome).Inc()
}

// RecordHTTPRequest records one served request. path is the route pattern,
// not the raw URL, to keep label cardinality bounded.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	if c == nil {
		return
	}
	s := statusText(status)
	c.httpRequests.WithLabelValues(method, path, s).Inc()
	c.httpRequestLatency.WithLabelValues(method, path, s).Observe(d.Seconds())
}

func statusText(status int) string {
	if status == 0 {
		status = http.StatusOK
	}
	return strconv.Itoa(status)
}
