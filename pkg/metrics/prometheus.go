package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getmockd/endpointkit/pkg/logging"
)

// PrometheusMetrics registers request metrics against a Prometheus registry
// and updates them over each request's lifecycle.
type PrometheusMetrics struct {
	namespace      string
	registerer     prometheus.Registerer
	gatherer       prometheus.Gatherer
	endpointPrefix string
	labels         MetricLabels
	clock          func() time.Time
	buckets        []float64
	defaults       []DefaultMetric
	custom         []Metric
	ignore         []string
	runtime        bool
	logger         *slog.Logger

	metrics []Metric
}

// Option configures PrometheusMetrics.
type Option func(*PrometheusMetrics)

// WithNamespace sets the metric name prefix. Default is "tapir".
func WithNamespace(namespace string) Option {
	return func(m *PrometheusMetrics) {
		m.namespace = namespace
	}
}

// WithRegistry registers metrics against reg and serves them from it.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *PrometheusMetrics) {
		if reg != nil {
			m.registerer = reg
			m.gatherer = reg
		}
	}
}

// WithEndpointPrefix sets the path of the exposition endpoint, without the
// leading slash. Default is "metrics".
func WithEndpointPrefix(prefix string) Option {
	return func(m *PrometheusMetrics) {
		m.endpointPrefix = strings.Trim(prefix, "/")
	}
}

// WithMetrics selects which built-in metrics are enabled. With no
// arguments none are.
func WithMetrics(which ...DefaultMetric) Option {
	return func(m *PrometheusMetrics) {
		m.defaults = which
	}
}

// WithCustomMetric adds a metric alongside the built-in ones.
func WithCustomMetric(metric Metric) Option {
	return func(m *PrometheusMetrics) {
		m.custom = append(m.custom, metric)
	}
}

// WithIgnoreEndpoints excludes requests whose path template or URL path
// matches one of the doublestar patterns, e.g. "/health" or "/internal/**".
func WithIgnoreEndpoints(patterns ...string) Option {
	return func(m *PrometheusMetrics) {
		m.ignore = append(m.ignore, patterns...)
	}
}

// WithLabels replaces the labels of the built-in metrics.
func WithLabels(labels MetricLabels) Option {
	return func(m *PrometheusMetrics) {
		m.labels = labels
	}
}

// WithClock replaces time.Now for duration measurements.
func WithClock(clock func() time.Time) Option {
	return func(m *PrometheusMetrics) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(m *PrometheusMetrics) {
		m.buckets = buckets
	}
}

// WithRuntimeMetrics also registers the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(m *PrometheusMetrics) {
		m.runtime = true
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *PrometheusMetrics) {
		m.logger = logging.Component(logger, "metrics")
	}
}

// New builds the enabled metrics and registers them. Each collector is
// registered exactly once; a name clash in the registry is an error.
func New(opts ...Option) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		namespace:      DefaultNamespace,
		endpointPrefix: DefaultEndpointPrefix,
		labels:         DefaultLabels(),
		clock:          time.Now,
		buckets:        DefaultBuckets,
		defaults:       AllDefaultMetrics,
		logger:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.endpointPrefix == "" {
		return nil, errors.New("metrics endpoint prefix must not be empty")
	}
	if m.registerer == nil {
		reg := DefaultRegistry()
		m.registerer = reg
		m.gatherer = reg
	}

	for _, pattern := range m.ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid ignore pattern %q", pattern)
		}
	}

	for _, which := range m.defaults {
		switch which {
		case ActiveRequests:
			m.metrics = append(m.metrics, RequestActive(m.namespace, m.labels))
		case TotalRequests:
			m.metrics = append(m.metrics, RequestTotal(m.namespace, m.labels))
		case RequestDurations:
			m.metrics = append(m.metrics, RequestDuration(m.namespace, m.labels, m.clock, m.buckets))
		default:
			return nil, fmt.Errorf("unknown default metric %d", which)
		}
	}
	m.metrics = append(m.metrics, m.custom...)

	for _, metric := range m.metrics {
		if metric.Collector == nil {
			continue
		}
		if err := m.registerer.Register(metric.Collector); err != nil {
			var alreadyRegErr prometheus.AlreadyRegisteredError
			if errors.As(err, &alreadyRegErr) {
				return nil, fmt.Errorf("metric %s already registered: %w", metric.Name, err)
			}
			return nil, fmt.Errorf("failed to register metric %s: %w", metric.Name, err)
		}
		m.logger.Debug("registered metric", "name", metric.Name)
	}

	if m.runtime {
		if err := registerRuntimeCollectors(m.registerer); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Namespace returns the metric name prefix.
func (m *PrometheusMetrics) Namespace() string {
	return m.namespace
}

// Metrics returns the registered metrics, built-in ones first.
func (m *PrometheusMetrics) Metrics() []Metric {
	return append([]Metric(nil), m.metrics...)
}

// Gatherer returns the registry the metrics are served from.
func (m *PrometheusMetrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// MetricsEndpointPath returns the path of the exposition endpoint.
func (m *PrometheusMetrics) MetricsEndpointPath() string {
	return "/" + m.endpointPrefix
}

// Begin starts tracking a request: every metric's OnRequest runs, then the
// OnEndpointRequest hooks.
func (m *PrometheusMetrics) Begin(req *Request) *RequestContext {
	rc := &RequestContext{req: req, hooks: make([]EndpointMetric, 0, len(m.metrics))}
	for _, metric := range m.metrics {
		if metric.OnRequest != nil {
			rc.hooks = append(rc.hooks, metric.OnRequest(req))
		}
	}
	for _, h := range rc.hooks {
		if h.OnEndpointRequest != nil {
			h.OnEndpointRequest()
		}
	}
	return rc
}

// Ignored reports whether requests for path are excluded from measurement.
// The exposition endpoint is always excluded.
func (m *PrometheusMetrics) Ignored(path string) bool {
	if strings.TrimSuffix(path, "/") == m.MetricsEndpointPath() {
		return true
	}
	for _, pattern := range m.ignore {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return Handler(m.gatherer)
}

// Handler serves g in the Prometheus exposition format. Every request
// gathers fresh values.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
