package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getmockd/endpointkit/pkg/expectation"
)

// ExpectationBuilder builds an expectation with a fluent API. The first
// error encountered is kept and returned by Request and Submit.
//
//	created, err := client.When("GET", "/users/1").
//	    WithRequestHeader("Accept", "application/json").
//	    RespondJSON(http.StatusOK, user).
//	    Once().
//	    Submit(ctx)
type ExpectationBuilder struct {
	client   *Client
	req      expectation.RequestDefinition
	resp     expectation.ResponseDefinition
	priority *int
	times    *expectation.Times
	ttl      *expectation.TimeToLive
	err      error
}

func newExpectationBuilder(c *Client, method, path string) *ExpectationBuilder {
	return &ExpectationBuilder{
		client: c,
		req:    expectation.RequestDefinition{Method: method, Path: path},
		resp:   expectation.ResponseDefinition{StatusCode: http.StatusOK},
	}
}

func (b *ExpectationBuilder) setError(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first error recorded while building.
func (b *ExpectationBuilder) Err() error {
	return b.err
}

// WithRequestHeader adds values for a request header the matcher requires.
func (b *ExpectationBuilder) WithRequestHeader(name string, values ...string) *ExpectationBuilder {
	if b.req.Headers == nil {
		b.req.Headers = make(map[string][]string)
	}
	b.req.Headers[name] = append(b.req.Headers[name], values...)
	return b
}

// WithRequestBody matches a literal request body.
func (b *ExpectationBuilder) WithRequestBody(body, contentType string) *ExpectationBuilder {
	b.req.Body = expectation.PlainBody{String: body, ContentType: contentType}
	return b
}

// WithRequestJSON matches a request whose JSON body equals v.
func (b *ExpectationBuilder) WithRequestJSON(v any) *ExpectationBuilder {
	return b.withRequestJSON("WithRequestJSON", v, expectation.Strict)
}

// WithRequestJSONSubset matches a request whose JSON body contains the
// fields of v.
func (b *ExpectationBuilder) WithRequestJSONSubset(v any) *ExpectationBuilder {
	return b.withRequestJSON("WithRequestJSONSubset", v, expectation.OnlyMatchingFields)
}

func (b *ExpectationBuilder) withRequestJSON(op string, v any, mt expectation.JSONMatchType) *ExpectationBuilder {
	obj, err := toJSONObject(v)
	if err != nil {
		b.setError(fmt.Errorf("%s: %w", op, err))
		return b
	}
	b.req.Body = expectation.JSONBody{JSON: obj, MatchType: mt}
	return b
}

// WithStatus sets the response status code. Default is 200.
func (b *ExpectationBuilder) WithStatus(status int) *ExpectationBuilder {
	b.resp.StatusCode = status
	return b
}

// WithBody sets the response body.
func (b *ExpectationBuilder) WithBody(body string) *ExpectationBuilder {
	b.resp.Body = &body
	return b
}

// WithJSON sets the response body to v encoded as JSON and the Content-Type
// header to application/json.
func (b *ExpectationBuilder) WithJSON(v any) *ExpectationBuilder {
	data, err := json.Marshal(v)
	if err != nil {
		b.setError(fmt.Errorf("WithJSON: failed to marshal body: %w", err))
		return b
	}
	body := string(data)
	b.resp.Body = &body
	if b.resp.Headers == nil {
		b.resp.Headers = make(map[string][]string)
	}
	b.resp.Headers["Content-Type"] = []string{"application/json"}
	return b
}

// WithHeader adds values for a response header.
func (b *ExpectationBuilder) WithHeader(name string, values ...string) *ExpectationBuilder {
	if b.resp.Headers == nil {
		b.resp.Headers = make(map[string][]string)
	}
	b.resp.Headers[name] = append(b.resp.Headers[name], values...)
	return b
}

// RespondWith sets status and body together.
func (b *ExpectationBuilder) RespondWith(status int, body string) *ExpectationBuilder {
	return b.WithStatus(status).WithBody(body)
}

// RespondJSON sets status and a JSON body together.
func (b *ExpectationBuilder) RespondJSON(status int, v any) *ExpectationBuilder {
	return b.WithStatus(status).WithJSON(v)
}

// WithPriority sets the priority. Higher priorities match first.
func (b *ExpectationBuilder) WithPriority(priority int) *ExpectationBuilder {
	b.priority = &priority
	return b
}

// Times limits the expectation to n responses.
func (b *ExpectationBuilder) Times(n int) *ExpectationBuilder {
	if n < 0 {
		b.setError(fmt.Errorf("Times: must not be negative, got %d", n))
		return b
	}
	t := expectation.ExactTimes(n)
	b.times = &t
	return b
}

// Once is Times(1).
func (b *ExpectationBuilder) Once() *ExpectationBuilder {
	return b.Times(1)
}

// Twice is Times(2).
func (b *ExpectationBuilder) Twice() *ExpectationBuilder {
	return b.Times(2)
}

// Unlimited lets the expectation respond forever.
func (b *ExpectationBuilder) Unlimited() *ExpectationBuilder {
	t := expectation.UnlimitedTimes()
	b.times = &t
	return b
}

// TimeToLive expires the expectation after d.
func (b *ExpectationBuilder) TimeToLive(d time.Duration) *ExpectationBuilder {
	if d <= 0 {
		b.setError(fmt.Errorf("TimeToLive: must be positive, got %v", d))
		return b
	}
	ttl := expectation.TimeToLiveOf(d)
	b.ttl = &ttl
	return b
}

// Request validates and returns the wire payload without submitting it.
func (b *ExpectationBuilder) Request() (*expectation.CreateExpectationRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	req, err := expectation.NewCreateExpectationRequest(b.req, b.resp)
	if err != nil {
		return nil, err
	}
	req.Priority = b.priority
	req.Times = b.times
	req.TimeToLive = b.ttl
	return req, nil
}

// Submit registers the expectation with the mock server.
func (b *ExpectationBuilder) Submit(ctx context.Context) ([]expectation.Expectation, error) {
	req, err := b.Request()
	if err != nil {
		return nil, err
	}
	return b.client.CreateExpectation(ctx, req)
}

// Verify checks how often requests matching this builder's request matcher
// were received.
func (b *ExpectationBuilder) Verify(ctx context.Context, times expectation.VerificationTimes) error {
	if b.err != nil {
		return b.err
	}
	return b.client.VerifyRequest(ctx, b.req, times)
}

// toJSONObject converts v into a generic JSON object. Strings and byte slices
// are parsed as JSON text; anything else is marshaled first.
func toJSONObject(v any) (map[string]any, error) {
	var data []byte
	switch t := v.(type) {
	case string:
		data = []byte(t)
	case []byte:
		data = t
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("body is not a JSON object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("body is not a JSON object")
	}
	return obj, nil
}
