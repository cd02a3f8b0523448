package metrics

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// metricsResponseWriter reports the headers phase on the first WriteHeader
// or Write.
type metricsResponseWriter struct {
	http.ResponseWriter
	rc          *RequestContext
	statusCode  int
	wroteHeader bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	// 1xx other than 101 are informational and may repeat.
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.statusCode = code
	w.wroteHeader = true
	w.rc.ResponseHeaders(code)
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *metricsResponseWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware measures every request that is not ignored. The headers phase
// fires on the first WriteHeader or Write, the body phase when next returns.
// If next panics the request is reported as an exception and the panic
// continues.
func (m *PrometheusMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		template := PathTemplate(r)
		if m.Ignored(template) || m.Ignored(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		rc := m.Begin(&Request{Method: r.Method, PathTemplate: template, HTTP: r})
		mw := &metricsResponseWriter{ResponseWriter: w, rc: rc, statusCode: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				rc.Exception(panicError(rec))
				panic(rec)
			}
			if !mw.wroteHeader {
				rc.ResponseHeaders(mw.statusCode)
			}
			rc.ResponseBody(mw.statusCode)
		}()

		next.ServeHTTP(mw, r)
	})
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rec)
}

// PathTemplate resolves the route pattern of r. It asks the chi router
// first, then net/http's ServeMux pattern, and falls back to the URL path
// with identifier segments replaced by placeholders.
func PathTemplate(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
		if rctx.Routes != nil {
			path := r.URL.RawPath
			if path == "" {
				path = r.URL.Path
			}
			tctx := chi.NewRouteContext()
			if rctx.Routes.Match(tctx, r.Method, path) {
				if pattern := tctx.RoutePattern(); pattern != "" {
					return pattern
				}
			}
		}
	}
	if r.Pattern != "" {
		return patternPath(r.Pattern)
	}
	return normalizePath(r.URL.Path)
}

// patternPath strips the method and host from a ServeMux pattern such as
// "GET example.com/users/{id}".
func patternPath(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimLeft(pattern[i+1:], " ")
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

// normalizePath replaces numeric IDs and 24-character hex object IDs with
// {id}, and UUIDs with {uuid}, to keep label cardinality bounded.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case seg == "":
		case isNumeric(seg), len(seg) == 24 && isHex(seg):
			segments[i] = "{id}"
		case len(seg) == 36 && uuid.Validate(seg) == nil:
			segments[i] = "{uuid}"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func isHex(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return s != ""
}
