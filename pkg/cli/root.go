package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/getmockd/endpointkit/pkg/config"
	"github.com/getmockd/endpointkit/pkg/mockserver"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every subcommand. They
// override the config file and ENDPOINTKIT_* environment variables.
type globalFlags struct {
	configPath    string
	mockServerURL string
	timeout       time.Duration
	logLevel      string
	logFormat     string
}

// NewRootCmd builds the endpointkit command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "endpointkit",
		Short: "endpointkit drives a mock server and instruments HTTP endpoints",
		Long: `endpointkit registers and verifies expectations on a MockServer-compatible
mock server, and serves an HTTP endpoint instrumented with Prometheus metrics.

Configuration can be provided via flags, ENDPOINTKIT_* environment variables,
or a YAML configuration file passed with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true, // We handle errors in Execute()
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to YAML configuration file")
	pf.StringVar(&g.mockServerURL, "mockserver-url", config.DefaultMockServerURL, "Mock server REST API base URL")
	pf.DurationVar(&g.timeout, "timeout", mockserver.DefaultTimeout, "Timeout for each mock server call")
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newExpectCmd(g),
		newVerifyCmd(g),
		newClearCmd(g),
		newResetCmd(g),
		newRequestsCmd(g),
		newValidateCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command tree with the process arguments and returns the
// exit code. It is called by main.main().
func Execute() int {
	ctx, stop := signalContext(context.Background())
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// resolveConfig layers explicitly set flags over the loaded configuration
// and validates the result.
func (g *globalFlags) resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(g.configPath, nil)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("mockserver-url") {
		cfg.MockServerURL = g.mockServerURL
	}
	if flags.Changed("timeout") {
		cfg.Timeout = g.timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// setup resolves the configuration and builds a logger writing to the
// command's error stream.
func (g *globalFlags) setup(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	cfg, err := g.resolveConfig(cmd)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.Logger(cmd.ErrOrStderr()), nil
}

func newClient(cfg config.Config, logger *slog.Logger) *mockserver.Client {
	return mockserver.New(cfg.MockServerURL,
		mockserver.WithTimeout(cfg.Timeout),
		mockserver.WithLogger(logger),
	)
}

// describeError adds a hint for the errors users most often hit.
func describeError(err error, baseURL string) error {
	var statusErr *mockserver.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.StatusCode == 404:
		return fmt.Errorf("%w\n\nIs %s the mock server's REST API? MockServer serves it under /mockserver", err, baseURL)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w\n\nThe mock server at %s did not answer in time; raise --timeout", err, baseURL)
	}
	return err
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
