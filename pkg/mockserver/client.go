package mockserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/endpointkit/pkg/expectation"
	"github.com/getmockd/endpointkit/pkg/logging"
)

// Paths of the mock server REST API, relative to the client's base URL.
const (
	PathExpectation = "/expectation"
	PathVerify      = "/verify"
	PathClear       = "/clear"
	PathReset       = "/reset"
	PathRetrieve    = "/retrieve"
)

// DefaultTimeout bounds every call unless overridden with WithTimeout.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept in a StatusError.
const maxErrorBody = 4 << 10

// Client talks to a MockServer-compatible REST API. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for per-call debug logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.Component(logger, "mockserver")
	}
}

// New creates a client for the mock server at baseURL, for example
// "http://localhost:1080/mockserver".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the mock server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CreateExpectation registers an expectation and returns the expectations the
// server created, decoded through the wire codec.
func (c *Client) CreateExpectation(ctx context.Context, req *expectation.CreateExpectationRequest) ([]expectation.Expectation, error) {
	resp, err := c.put(ctx, PathExpectation, req)
	if err != nil {
		return nil, fmt.Errorf("create expectation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, c.statusError("create expectation", resp)
	}

	created, err := decodeExpectations(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create expectation: %w", err)
	}
	return created, nil
}

// Verify asks the server whether the requests it received satisfy req.
// A mismatch is reported as *VerificationError.
func (c *Client) Verify(ctx context.Context, req *expectation.VerifyExpectationRequest) error {
	resp, err := c.put(ctx, PathVerify, req)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		return nil
	case http.StatusNotAcceptable:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &VerificationError{Message: strings.TrimSpace(string(body))}
	default:
		return c.statusError("verify", resp)
	}
}

// VerifyRequest builds a verification for def and times and submits it.
func (c *Client) VerifyRequest(ctx context.Context, def expectation.RequestDefinition, times expectation.VerificationTimes) error {
	req, err := expectation.NewVerifyExpectationRequest(def, times)
	if err != nil {
		return err
	}
	return c.Verify(ctx, req)
}

// Clear removes expectations and recorded requests matching def. A nil def
// clears everything.
func (c *Client) Clear(ctx context.Context, def *expectation.RequestDefinition) error {
	var body any
	if def != nil {
		body = def
	}
	resp, err := c.put(ctx, PathClear, body)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.statusError("clear", resp)
	}
	return nil
}

// Reset removes all expectations and recorded requests.
func (c *Client) Reset(ctx context.Context) error {
	resp, err := c.put(ctx, PathReset, nil)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.statusError("reset", resp)
	}
	return nil
}

// RetrieveRecordedRequests returns the requests the server received that
// match def, or all of them when def is nil.
func (c *Client) RetrieveRecordedRequests(ctx context.Context, def *expectation.RequestDefinition) ([]expectation.RequestDefinition, error) {
	var body any
	if def != nil {
		body = def
	}
	resp, err := c.put(ctx, PathRetrieve+"?type=REQUESTS&format=JSON", body)
	if err != nil {
		return nil, fmt.Errorf("retrieve requests: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError("retrieve requests", resp)
	}

	var recorded []expectation.RequestDefinition
	if err := json.NewDecoder(resp.Body).Decode(&recorded); err != nil {
		return nil, fmt.Errorf("retrieve requests: %w", err)
	}
	return recorded, nil
}

// When starts an expectation for method and path. See ExpectationBuilder.
func (c *Client) When(method, path string) *ExpectationBuilder {
	return newExpectationBuilder(c, method, path)
}

// decodeExpectations accepts either a JSON array of expectations or a single
// expectation object.
func decodeExpectations(r io.Reader) ([]expectation.Expectation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var list []expectation.Expectation
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var single expectation.Expectation
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []expectation.Expectation{single}, nil
}

func (c *Client) put(ctx context.Context, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("mock server call failed", "method", req.Method, "url", req.URL.String(), "error", err)
		return nil, err
	}
	c.logger.Debug("mock server call", "method", req.Method, "url", req.URL.String(),
		"status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

func (c *Client) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
