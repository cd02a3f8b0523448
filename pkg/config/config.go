package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/getmockd/endpointkit/pkg/logging"
	"github.com/getmockd/endpointkit/pkg/metrics"
	"github.com/getmockd/endpointkit/pkg/mockserver"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ENDPOINTKIT_"

// DefaultMockServerURL is where a locally started MockServer listens.
const DefaultMockServerURL = "http://localhost:1080/mockserver"

// Common errors for configuration loading.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
)

// Config is the endpointkit configuration.
type Config struct {
	// MockServerURL is the base URL of the mock server REST API.
	MockServerURL string        `yaml:"mockServerURL" env:"MOCKSERVER_URL"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	LogLevel      string        `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat     string        `yaml:"logFormat" env:"LOG_FORMAT"`
	Metrics       MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
}

// MetricsConfig configures the metrics adapter used by "serve".
type MetricsConfig struct {
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Path is the exposition endpoint path, e.g. "/metrics".
	Path   string   `yaml:"path" env:"PATH"`
	Ignore []string `yaml:"ignore" env:"IGNORE" envSeparator:","`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MockServerURL: DefaultMockServerURL,
		Timeout:       mockserver.DefaultTimeout,
		LogLevel:      "info",
		LogFormat:     string(logging.FormatText),
		Metrics: MetricsConfig{
			Namespace: metrics.DefaultNamespace,
			Path:      "/" + metrics.DefaultEndpointPrefix,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then environment variables prefixed with
// EnvPrefix. environ replaces the process environment when non-nil.
func Load(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w in %s: %v", ErrInvalidYAML, path, err)
	}
	return nil
}

// Validate checks every field and reports all problems at once.
func (c Config) Validate() error {
	result := &ValidationResult{}

	if c.MockServerURL == "" {
		result.AddError("mockServerURL", "required")
	} else if u, err := url.Parse(c.MockServerURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result.AddError("mockServerURL", fmt.Sprintf("invalid URL %q, expected http(s)://host[:port]/path", c.MockServerURL))
	}
	if c.Timeout <= 0 {
		result.AddError("timeout", fmt.Sprintf("must be positive, got %v", c.Timeout))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		result.AddError("logLevel", err.Error())
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		result.AddError("logFormat", err.Error())
	}

	if c.Metrics.Namespace == "" {
		result.AddError("metrics.namespace", "required")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") || strings.Trim(c.Metrics.Path, "/") == "" {
		result.AddError("metrics.path", fmt.Sprintf("invalid path %q, must start with / and not be the root", c.Metrics.Path))
	}
	for i, pattern := range c.Metrics.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			result.AddError(fmt.Sprintf("metrics.ignore[%d]", i), fmt.Sprintf("invalid pattern %q", pattern))
		}
	}

	if result.IsValid() {
		return nil
	}
	return result
}

// Logger builds the logger described by LogLevel and LogFormat. Invalid
// values fall back to the defaults.
func (c Config) Logger(out io.Writer) *slog.Logger {
	cfg := logging.DefaultConfig()
	if out != nil {
		cfg.Output = out
	}
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	if format, err := logging.ParseFormat(c.LogFormat); err == nil {
		cfg.Format = format
	}
	return logging.New(cfg)
}
