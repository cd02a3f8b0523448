// Package metrics records HTTP request metrics with the Prometheus client
// library and serves them in the text exposition format.
//
// # Built-in Metrics
//
//   - <ns>_request_active: gauge of in-flight requests (labels: path, method)
//   - <ns>_request_total: counter of completed requests (labels: path, method, status)
//   - <ns>_request_duration_seconds: histogram (labels: path, method, status, phase)
//
// The namespace defaults to "tapir". The status label is the status class
// ("2xx", "4xx", ...) for responses and "5xx" for exceptions. The phase label
// is "headers" for the time until response headers were ready and "body"
// for the time until the response finished; both are measured from the
// arrival of the request.
//
// # Lifecycle
//
// Each Metric pairs a collector with an OnRequest hook that returns an
// EndpointMetric for one request. A RequestContext drives those hooks:
//
//	rc := m.Begin(&metrics.Request{Method: "GET", PathTemplate: "/users/{id}"})
//	rc.ResponseHeaders(200)
//	rc.ResponseBody(200) // or rc.Exception(err)
//
// Middleware does this for net/http handlers, resolving the path template
// from the chi route pattern when available.
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.New(
//	    metrics.WithRegistry(reg),
//	    metrics.WithIgnoreEndpoints("/health"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	r := chi.NewRouter()
//	r.Use(m.Middleware)
//	r.Get("/users/{id}", getUser)
//	r.Handle(m.MetricsEndpointPath(), m.Handler())
//
// Without WithRegistry, metrics are registered against DefaultRegistry.
package metrics
