package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Request is the view of an incoming request that metrics see.
type Request struct {
	Method string
	// PathTemplate is the route pattern the request matched, such as
	// "/users/{id}", or a normalized URL path when no pattern is known.
	PathTemplate string
	// HTTP is the underlying request. It is nil when lifecycle events are
	// driven directly rather than by Middleware.
	HTTP *http.Request
}

// Result describes how a request finished. Err is set for exceptions.
type Result struct {
	StatusCode int
	Err        error
}

// EndpointMetric is the set of lifecycle hooks a metric attaches to one
// request. Any hook may be nil.
//
// OnResponseBody and OnException are terminal and mutually exclusive. When
// OnResponseHeaders fires it precedes the terminal hook.
type EndpointMetric struct {
	OnEndpointRequest func()
	OnResponseHeaders func(Result)
	OnResponseBody    func(Result)
	OnException       func(error)
}

// Metric is a Prometheus collector paired with the hooks that update it.
// OnRequest is called once per request and returns that request's hooks.
type Metric struct {
	Name      string
	Collector prometheus.Collector
	OnRequest func(*Request) EndpointMetric
}

// RequestLabel derives a label value from the request.
type RequestLabel struct {
	Name  string
	Value func(*Request) string
}

// ResponseLabel derives a label value from the request and its result.
type ResponseLabel struct {
	Name  string
	Value func(*Request, Result) string
}

// MetricLabels lists the labels attached to the built-in metrics. Gauges
// use only ForRequest; counters and histograms use both.
type MetricLabels struct {
	ForRequest  []RequestLabel
	ForResponse []ResponseLabel
}

// DefaultLabels labels by path template and method, plus status class for
// completed requests.
func DefaultLabels() MetricLabels {
	return MetricLabels{
		ForRequest: []RequestLabel{
			{Name: "path", Value: func(r *Request) string { return r.PathTemplate }},
			{Name: "method", Value: func(r *Request) string { return r.Method }},
		},
		ForResponse: []ResponseLabel{
			{Name: "status", Value: func(_ *Request, res Result) string { return StatusLabel(res) }},
		},
	}
}

// StatusLabel is "5xx" for exceptions and the status class ("2xx", "4xx",
// ...) otherwise.
func StatusLabel(res Result) string {
	if res.Err != nil {
		return "5xx"
	}
	return StatusClass(res.StatusCode)
}

// StatusClass maps a status code to its class, e.g. 404 to "4xx".
func StatusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func (l MetricLabels) requestNames() []string {
	names := make([]string, 0, len(l.ForRequest))
	for _, rl := range l.ForRequest {
		names = append(names, rl.Name)
	}
	return names
}

func (l MetricLabels) responseNames() []string {
	names := l.requestNames()
	for _, rl := range l.ForResponse {
		names = append(names, rl.Name)
	}
	return names
}

func (l MetricLabels) requestValues(r *Request) []string {
	values := make([]string, 0, len(l.ForRequest)+len(l.ForResponse)+1)
	for _, rl := range l.ForRequest {
		values = append(values, rl.Value(r))
	}
	return values
}

func (l MetricLabels) responseValues(r *Request, res Result) []string {
	values := l.requestValues(r)
	for _, rl := range l.ForResponse {
		values = append(values, rl.Value(r, res))
	}
	return values
}

// RequestContext carries the hooks of one in-flight request. Terminal
// events fire at most once; later calls are no-ops.
type RequestContext struct {
	req     *Request
	hooks   []EndpointMetric
	headers atomic.Bool
	done    atomic.Bool
}

// Request returns the request this context tracks.
func (rc *RequestContext) Request() *Request {
	return rc.req
}

// ResponseHeaders reports that response headers with status are ready.
func (rc *RequestContext) ResponseHeaders(status int) {
	if rc.done.Load() || rc.headers.Swap(true) {
		return
	}
	res := Result{StatusCode: status}
	for _, h := range rc.hooks {
		if h.OnResponseHeaders != nil {
			h.OnResponseHeaders(res)
		}
	}
}

// ResponseBody reports that the response body was fully written.
func (rc *RequestContext) ResponseBody(status int) {
	if rc.done.Swap(true) {
		return
	}
	res := Result{StatusCode: status}
	for _, h := range rc.hooks {
		if h.OnResponseBody != nil {
			h.OnResponseBody(res)
		}
	}
}

// Exception reports that the request failed with err.
func (rc *RequestContext) Exception(err error) {
	if rc.done.Swap(true) {
		return
	}
	for _, h := range rc.hooks {
		if h.OnException != nil {
			h.OnException(err)
		}
	}
}

// Done reports whether a terminal event has fired.
func (rc *RequestContext) Done() bool {
	return rc.done.Load()
}
