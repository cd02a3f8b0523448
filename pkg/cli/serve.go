package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/getmockd/endpointkit/pkg/metrics"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 10 * time.Second

// maxEchoBody limits how much of a request body /echo reads back.
const maxEchoBody = 1 << 20

type serveFlags struct {
	addr        string
	metricsPath string
	namespace   string
	ignore      []string
	runtime     bool
}

func newServeCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an HTTP endpoint instrumented with Prometheus metrics",
		Long: `Start an HTTP server whose routes are instrumented by the metrics adapter.

Routes:
  GET  /healthz          always 200
  ANY  /echo             echoes the method, path, headers and body as JSON
  ANY  /status/{code}    answers with the given status code
  GET  <metrics-path>    Prometheus text exposition

Request counts, in-flight gauges and duration histograms are labelled with
the chi route template, so /status/404 and /status/500 share one path label.`,
		Example: `  endpointkit serve --addr :8080
  endpointkit serve --namespace shop --metrics-path /internal/metrics --ignore /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("metrics-path") {
				cfg.Metrics.Path = f.metricsPath
			}
			if flags.Changed("namespace") {
				cfg.Metrics.Namespace = f.namespace
			}
			if flags.Changed("ignore") {
				cfg.Metrics.Ignore = f.ignore
			}

			opts := []metrics.Option{
				metrics.WithRegistry(prometheus.NewRegistry()),
				metrics.WithNamespace(cfg.Metrics.Namespace),
				metrics.WithEndpointPrefix(cfg.Metrics.Path),
				metrics.WithIgnoreEndpoints(cfg.Metrics.Ignore...),
				metrics.WithLogger(logger),
			}
			if f.runtime {
				opts = append(opts, metrics.WithRuntimeMetrics())
			}
			m, err := metrics.New(opts...)
			if err != nil {
				return fmt.Errorf("creating metrics: %w", err)
			}

			ln, err := net.Listen("tcp", f.addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", f.addr, err)
			}
			printf(cmd.OutOrStdout(), "listening on http://%s (metrics at %s)\n", ln.Addr(), m.MetricsEndpointPath())

			return runServer(cmd.Context(), ln, newServeHandler(m, logger), logger)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&f.metricsPath, "metrics-path", "/"+metrics.DefaultEndpointPrefix, "Metrics exposition path")
	cmd.Flags().StringVar(&f.namespace, "namespace", metrics.DefaultNamespace, "Metric name namespace")
	cmd.Flags().StringSliceVar(&f.ignore, "ignore", nil, "Path patterns excluded from metrics (doublestar syntax)")
	cmd.Flags().BoolVar(&f.runtime, "runtime-metrics", true, "Also export Go runtime and process metrics")
	return cmd
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "addr", ln.Addr().String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// newServeHandler builds the instrumented router.
func newServeHandler(m *metrics.PrometheusMetrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(withLogging(logger))
	r.Use(m.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok\n")
	})
	r.HandleFunc("/echo", handleEcho)
	r.HandleFunc("/status/{code}", handleStatus)
	r.Method(http.MethodGet, m.MetricsEndpointPath(), m.Handler())
	return r
}

type echoResponse struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   string              `json:"query,omitempty"`
	Headers map[string][]string `json:"headers"`
	Body    string              `json:"body,omitempty"`
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEchoBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(echoResponse{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header,
		Body:    string(body),
	})
}

func handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil || code < 200 || code > 599 {
		http.Error(w, "status code must be between 200 and 599", http.StatusBadRequest)
		return
	}
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, "%d %s\n", code, http.StatusText(code))
}

// statusRecorder captures the response status for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging logs one debug line per request.
func withLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
