package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes the built-in metric names.
const DefaultNamespace = "tapir"

// DefaultEndpointPrefix is the default path of the exposition endpoint,
// without the leading slash.
const DefaultEndpointPrefix = "metrics"

// DefaultBuckets are the histogram buckets used unless WithBuckets is given.
var DefaultBuckets = prometheus.DefBuckets

// Help strings of the built-in metrics.
const (
	helpRequestActive   = "Active HTTP requests"
	helpRequestTotal    = "Total HTTP requests"
	helpRequestDuration = "Duration of HTTP requests"
)

// Duration phases.
const (
	PhaseHeaders = "headers"
	PhaseBody    = "body"
)

// DefaultMetric selects one of the built-in metrics.
type DefaultMetric int

const (
	// ActiveRequests is <namespace>_request_active.
	ActiveRequests DefaultMetric = iota
	// TotalRequests is <namespace>_request_total.
	TotalRequests
	// RequestDurations is <namespace>_request_duration_seconds.
	RequestDurations
)

// AllDefaultMetrics enables every built-in metric.
var AllDefaultMetrics = []DefaultMetric{ActiveRequests, TotalRequests, RequestDurations}

// RequestActive is a gauge of in-flight requests. It goes up when a request
// arrives and down when the request completes or fails.
func RequestActive(namespace string, labels MetricLabels) Metric {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "request_active",
		Help:      helpRequestActive,
	}, labels.requestNames())

	return Metric{
		Name:      prometheus.BuildFQName(namespace, "", "request_active"),
		Collector: gauge,
		OnRequest: func(r *Request) EndpointMetric {
			g := gauge.WithLabelValues(labels.requestValues(r)...)
			return EndpointMetric{
				OnEndpointRequest: g.Inc,
				OnResponseBody:    func(Result) { g.Dec() },
				OnException:       func(error) { g.Dec() },
			}
		},
	}
}

// RequestTotal counts completed requests, successful or not.
func RequestTotal(namespace string, labels MetricLabels) Metric {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_total",
		Help:      helpRequestTotal,
	}, labels.responseNames())

	return Metric{
		Name:      prometheus.BuildFQName(namespace, "", "request_total"),
		Collector: counter,
		OnRequest: func(r *Request) EndpointMetric {
			return EndpointMetric{
				OnResponseBody: func(res Result) {
					counter.WithLabelValues(labels.responseValues(r, res)...).Inc()
				},
				OnException: func(err error) {
					counter.WithLabelValues(labels.responseValues(r, Result{Err: err})...).Inc()
				},
			}
		},
	}
}

// RequestDuration observes the time from request arrival to response
// headers (phase "headers") and to body completion or failure (phase
// "body"). Both observations are measured from arrival.
func RequestDuration(namespace string, labels MetricLabels, clock func() time.Time, buckets []float64) Metric {
	if clock == nil {
		clock = time.Now
	}
	if buckets == nil {
		buckets = DefaultBuckets
	}
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      helpRequestDuration,
		Buckets:   buckets,
	}, append(labels.responseNames(), "phase"))

	return Metric{
		Name:      prometheus.BuildFQName(namespace, "", "request_duration_seconds"),
		Collector: histogram,
		OnRequest: func(r *Request) EndpointMetric {
			start := clock()
			observe := func(res Result, phase string) {
				values := append(labels.responseValues(r, res), phase)
				histogram.WithLabelValues(values...).Observe(clock().Sub(start).Seconds())
			}
			return EndpointMetric{
				OnResponseHeaders: func(res Result) { observe(res, PhaseHeaders) },
				OnResponseBody:    func(res Result) { observe(res, PhaseBody) },
				OnException:       func(err error) { observe(Result{Err: err}, PhaseBody) },
			}
		},
	}
}

var (
	// defaultRegistry is the process-wide registry used when no registry is
	// configured.
	defaultRegistry *prometheus.Registry

	// initOnce guards defaultRegistry.
	initOnce sync.Once
)

// DefaultRegistry returns the process-wide registry, creating it on first
// use.
func DefaultRegistry() *prometheus.Registry {
	initOnce.Do(func() {
		defaultRegistry = prometheus.NewRegistry()
	})
	return defaultRegistry
}

// ResetDefaultRegistry drops the process-wide registry so the next
// DefaultRegistry call creates a new one. Useful for testing.
func ResetDefaultRegistry() {
	initOnce = sync.Once{}
	defaultRegistry = nil
}
