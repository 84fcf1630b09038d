// Package telemetry provides Prometheus metrics and an OpenTelemetry tracer
// for the pipeline. Provider implements the recorder interfaces of the
// tracker, relay and inference packages.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

const namespace = "slopedin"

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Metrics holds the pipeline's Prometheus metrics.
type Metrics struct {
	// Discovery
	Scans             prometheus.Counter
	ScanDuration      prometheus.Histogram
	ItemsConsidered   prometheus.Counter
	ItemTransitions   *prometheus.CounterVec
	ItemsEvicted      prometheus.Counter
	Classifications   *prometheus.CounterVec
	ClassifyDuration  prometheus.Histogram
	RelaySends        *prometheus.CounterVec
	RelaySendDuration prometheus.Histogram

	// Inference
	ModelLoads        *prometheus.CounterVec
	ModelLoadDuration prometheus.Histogram
	Inferences        *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	QueueDepth        prometheus.Gauge
}

// Provider wraps telemetry providers.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider creates metrics on a private registry, plus Go runtime and
// process collectors.
func NewProvider(serviceName string) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Registry is where additional collectors, such as HTTP metrics, register.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initDiscoveryMetrics(f, m)
	initInferenceMetrics(f, m)
	return m
}

func initDiscoveryMetrics(f promauto.Factory, m *Metrics) {
	m.Scans = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_total",
		Help:      "Total tracker scan passes",
	})
	m.ScanDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Time to enumerate and dispatch one scan",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})
	m.ItemsConsidered = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_considered_total",
		Help:      "Items that entered Pending",
	})
	m.ItemTransitions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "item_transitions_total",
		Help:      "Item state transitions by target state",
	}, []string{"state"})
	m.ItemsEvicted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_evicted_total",
		Help:      "Tracker entries dropped after leaving the document",
	})
	m.Classifications = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifications_total",
		Help:      "Classification requests issued by the tracker, by outcome",
	}, []string{"outcome"})
	m.ClassifyDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "classification_duration_seconds",
		Help:      "End-to-end classification latency seen by the tracker",
		Buckets:   latencyBuckets,
	})
	m.RelaySends = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_sends_total",
		Help:      "Relay round trips by outcome",
	}, []string{"outcome"})
	m.RelaySendDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "relay_send_duration_seconds",
		Help:      "Relay round trip latency",
		Buckets:   latencyBuckets,
	})
}

func initInferenceMetrics(f promauto.Factory, m *Metrics) {
	m.ModelLoads = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "model_loads_total",
		Help:      "Model initialisation attempts by outcome",
	}, []string{"outcome"})
	m.ModelLoadDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "model_load_duration_seconds",
		Help:      "Model initialisation latency",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
	m.Inferences = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "inferences_total",
		Help:      "Engine runs by outcome",
	}, []string{"outcome"})
	m.InferenceDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "inference_duration_seconds",
		Help:      "Engine run latency",
		Buckets:   latencyBuckets,
	})
	m.QueueDepth = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_queue_depth",
		Help:      "Classification requests waiting for the model to load",
	})
}

// RecordScan implements tracker.Recorder.
func (p *Provider) RecordScan(considered int, d time.Duration) {
	p.Metrics.Scans.Inc()
	p.Metrics.ScanDuration.Observe(d.Seconds())
	p.Metrics.ItemsConsidered.Add(float64(considered))
}

// RecordTransition implements tracker.Recorder.
func (p *Provider) RecordTransition(state domain.ProcessingState) {
	p.Metrics.ItemTransitions.WithLabelValues(string(state)).Inc()
}

// RecordClassification implements tracker.Recorder.
func (p *Provider) RecordClassification(outcome string, d time.Duration) {
	p.Metrics.Classifications.WithLabelValues(outcome).Inc()
	p.Metrics.ClassifyDuration.Observe(d.Seconds())
}

// RecordEvictions implements tracker.Recorder.
func (p *Provider) RecordEvictions(n int) {
	p.Metrics.ItemsEvicted.Add(float64(n))
}

// RecordRelay implements relay.Recorder.
func (p *Provider) RecordRelay(outcome string, d time.Duration) {
	p.Metrics.RelaySends.WithLabelValues(outcome).Inc()
	p.Metrics.RelaySendDuration.Observe(d.Seconds())
}

// RecordModelLoad implements inference.Recorder.
func (p *Provider) RecordModelLoad(outcome string, d time.Duration) {
	p.Metrics.ModelLoads.WithLabelValues(outcome).Inc()
	p.Metrics.ModelLoadDuration.Observe(d.Seconds())
}

// RecordInference implements inference.Recorder.
func (p *Provider) RecordInference(outcome string, d time.Duration) {
	p.Metrics.Inferences.WithLabelValues(outcome).Inc()
	p.Metrics.InferenceDuration.Observe(d.Seconds())
}

// SetQueueDepth implements inference.Recorder.
func (p *Provider) SetQueueDepth(n int) {
	p.Metrics.QueueDepth.Set(float64(n))
}
