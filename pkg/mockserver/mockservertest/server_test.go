package mockservertest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/endpointkit/pkg/expectation"
	"github.com/getmockd/endpointkit/pkg/mockserver"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func call(t *testing.T, method, url, contentType, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	return call(t, http.MethodGet, url, "", "")
}

func TestServer_CreateAndServe(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	created, err := client.When("GET", "/users/1").
		WithHeader("X-Source", "fake").
		RespondWith(http.StatusOK, `{"id":"1"}`).
		Submit(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotEmpty(t, created[0].ID)
	assert.Equal(t, expectation.UnlimitedTimes(), created[0].Times)
	assert.Equal(t, expectation.UnlimitedTimeToLive(), created[0].TimeToLive)

	resp, err := http.Get(srv.URL() + "/users/1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"id":"1"}`, string(body))
	assert.Equal(t, "fake", resp.Header.Get("X-Source"))

	status, _ := get(t, srv.URL()+"/users/2")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Priority(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	_, err := client.When("GET", "/p").RespondWith(200, "low").Submit(ctx)
	require.NoError(t, err)
	_, err = client.When("GET", "/p").RespondWith(200, "high").WithPriority(10).Submit(ctx)
	require.NoError(t, err)
	_, err = client.When("GET", "/p").RespondWith(200, "later").Submit(ctx)
	require.NoError(t, err)

	_, body := get(t, srv.URL()+"/p")
	assert.Equal(t, "high", body)

	exps := srv.Expectations()
	require.Len(t, exps, 3)
	assert.Equal(t, 10, exps[0].Priority)
	assert.Equal(t, "low", *exps[1].HTTPResponse.Body)
	assert.Equal(t, "later", *exps[2].HTTPResponse.Body)
}

func TestServer_Times(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	_, err := client.When("GET", "/limited").RespondWith(200, "first").Twice().WithPriority(1).Submit(ctx)
	require.NoError(t, err)
	_, err = client.When("GET", "/limited").RespondWith(200, "fallback").Submit(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, body := get(t, srv.URL()+"/limited")
		assert.Equal(t, "first", body)
	}
	_, body := get(t, srv.URL()+"/limited")
	assert.Equal(t, "fallback", body)
	assert.Len(t, srv.Expectations(), 1)
}

func TestServer_TimesZeroNeverMatches(t *testing.T) {
	srv := New(t)
	_, err := srv.Client().When("GET", "/zero").Times(0).Submit(context.Background())
	require.NoError(t, err)

	status, _ := get(t, srv.URL()+"/zero")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_TimeToLive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	srv := New(t, WithClock(clock.Now))
	client := srv.Client()

	_, err := client.When("GET", "/ttl").RespondWith(200, "alive").TimeToLive(time.Minute).Submit(context.Background())
	require.NoError(t, err)

	_, body := get(t, srv.URL()+"/ttl")
	assert.Equal(t, "alive", body)

	clock.Advance(time.Minute)
	status, _ := get(t, srv.URL()+"/ttl")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Empty(t, srv.Expectations())
}

func TestServer_LongTimeToLiveStaysActive(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	srv := New(t, WithClock(clock.Now))
	client := srv.Client()
	ctx := context.Background()

	req, err := client.When("GET", "/long").RespondWith(200, "still here").Request()
	require.NoError(t, err)
	days := expectation.Days
	n := int64(200000)
	req.TimeToLive = &expectation.TimeToLive{TimeUnit: &days, TimeToLive: &n}
	_, err = client.CreateExpectation(ctx, req)
	require.NoError(t, err)

	clock.Advance(100 * 365 * 24 * time.Hour)
	status, body := get(t, srv.URL()+"/long")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "still here", body)
	assert.Len(t, srv.Expectations(), 1)
}

func TestServer_RejectsNegativeTimeToLive(t *testing.T) {
	srv := New(t)
	client := srv.Client()

	req, err := client.When("GET", "/neg").Request()
	require.NoError(t, err)
	seconds := expectation.Seconds
	n := int64(-10)
	req.TimeToLive = &expectation.TimeToLive{TimeUnit: &seconds, TimeToLive: &n}
	_, err = client.CreateExpectation(context.Background(), req)

	var statusErr *mockserver.StatusError
	require.True(t, errors.As(err, &statusErr), "expected *StatusError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Empty(t, srv.Expectations())
}

func TestServer_JSONBodyMatching(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	_, err := client.When("POST", "/strict").
		WithRequestJSON(`{"name":"Ada","age":36}`).
		RespondWith(201, "strict").
		Submit(ctx)
	require.NoError(t, err)
	_, err = client.When("POST", "/subset").
		WithRequestJSONSubset(map[string]any{"name": "Ada", "tags": []any{"x"}}).
		RespondWith(201, "subset").
		Submit(ctx)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"strict exact", "/strict", `{"age":36,"name":"Ada"}`, 201},
		{"strict extra field", "/strict", `{"age":36,"name":"Ada","admin":true}`, 404},
		{"strict wrong type", "/strict", `{"age":"36","name":"Ada"}`, 404},
		{"strict not json", "/strict", `name=Ada`, 404},
		{"subset extra field", "/subset", `{"name":"Ada","tags":["x"],"admin":true}`, 201},
		{"subset missing field", "/subset", `{"tags":["x"]}`, 404},
		{"subset array mismatch", "/subset", `{"name":"Ada","tags":["x","y"]}`, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := call(t, http.MethodPost, srv.URL()+tt.path, "application/json", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestServer_PlainBodyAndHeaders(t *testing.T) {
	srv := New(t)
	_, err := srv.Client().When("PUT", "/text").
		WithRequestHeader("X-Token", "secret").
		WithRequestBody("hello", "text/plain").
		RespondWith(204, "").
		Submit(context.Background())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPut, srv.URL()+"/text", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("X-Token", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	status, _ := call(t, http.MethodPut, srv.URL()+"/text", "text/plain", "hello")
	assert.Equal(t, http.StatusNotFound, status, "missing header must not match")
}

func TestServer_QueryMatching(t *testing.T) {
	srv := New(t)
	_, err := srv.Client().When("GET", "/search?q=go").RespondWith(200, "found").Submit(context.Background())
	require.NoError(t, err)

	_, body := get(t, srv.URL()+"/search?q=go&page=2")
	assert.Equal(t, "found", body)

	status, _ := get(t, srv.URL()+"/search?q=rust")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Verify(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()
	def := expectation.RequestDefinition{Method: "GET", Path: "/hit"}

	require.NoError(t, client.VerifyRequest(ctx, def, expectation.Never()))

	get(t, srv.URL()+"/hit")
	get(t, srv.URL()+"/hit")

	assert.NoError(t, client.VerifyRequest(ctx, def, expectation.Exactly(2)))
	assert.NoError(t, client.VerifyRequest(ctx, def, expectation.AtLeastOnce()))
	assert.NoError(t, client.VerifyRequest(ctx, def, expectation.AtMost(2)))

	err := client.VerifyRequest(ctx, def, expectation.ExactlyOnce())
	var vErr *mockserver.VerificationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "exactly 1 times")
	assert.Contains(t, vErr.Message, "received 2 times")

	assert.True(t, errors.Is(client.VerifyRequest(ctx, def, expectation.Never()), mockserver.ErrVerificationFailed))
	assert.Equal(t, 2, srv.RequestCount(def))
}

func TestServer_BuilderVerify(t *testing.T) {
	srv := New(t)
	b := srv.Client().When("GET", "/once").RespondWith(200, "ok")
	_, err := b.Submit(context.Background())
	require.NoError(t, err)

	get(t, srv.URL()+"/once")

	assert.NoError(t, b.Verify(context.Background(), expectation.ExactlyOnce()))
}

func TestServer_Clear(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	_, err := client.When("GET", "/a").Submit(ctx)
	require.NoError(t, err)
	_, err = client.When("GET", "/b").Submit(ctx)
	require.NoError(t, err)
	get(t, srv.URL()+"/a")
	get(t, srv.URL()+"/b")

	a := expectation.RequestDefinition{Method: "GET", Path: "/a"}
	require.NoError(t, client.Clear(ctx, &a))

	exps := srv.Expectations()
	require.Len(t, exps, 1)
	assert.Equal(t, "/b", exps[0].HTTPRequest.Path)
	assert.Equal(t, 0, srv.RequestCount(a))
	assert.Equal(t, 1, srv.RequestCount(expectation.RequestDefinition{Method: "GET", Path: "/b"}))

	require.NoError(t, client.Clear(ctx, nil))
	assert.Empty(t, srv.Expectations())
}

func TestServer_Reset(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	_, err := client.When("GET", "/a").Submit(ctx)
	require.NoError(t, err)
	get(t, srv.URL()+"/a")

	require.NoError(t, client.Reset(ctx))
	assert.Empty(t, srv.Expectations())
	assert.Equal(t, 0, srv.RequestCount(expectation.RequestDefinition{Method: "GET", Path: "/a"}))
}

func TestServer_Retrieve(t *testing.T) {
	srv := New(t)
	client := srv.Client()
	ctx := context.Background()

	call(t, http.MethodPost, srv.URL()+"/json?x=1", "application/json", `{"k":"v"}`)
	call(t, http.MethodPost, srv.URL()+"/text", "text/plain", "hi")

	all, err := client.RetrieveRecordedRequests(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, "/json?x=1", all[0].Path)
	assert.Equal(t, expectation.JSONBody{JSON: map[string]any{"k": "v"}, MatchType: expectation.Strict}, all[0].Body)
	assert.Equal(t, expectation.PlainBody{String: "hi", ContentType: "text/plain"}, all[1].Body)

	filtered, err := client.RetrieveRecordedRequests(ctx, &expectation.RequestDefinition{Method: "POST", Path: "/text"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "/text", filtered[0].Path)
}

func TestServer_RejectsMalformedExpectation(t *testing.T) {
	srv := New(t)

	status, body := call(t, http.MethodPut, srv.ControlURL()+"/expectation", "application/json",
		`{"httpRequest":{"method":"GET","path":"/","body":{"type":"XML"}},"httpResponse":{"statusCode":200}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "unknown body type: XML")

	status, body = call(t, http.MethodPut, srv.ControlURL()+"/expectation", "application/json",
		`{"httpRequest":{"method":"GET","path":"/"},"httpResponse":{}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "statusCode field not found")
	assert.Empty(t, srv.Expectations())
}

func TestAssertReceived(t *testing.T) {
	srv := New(t)
	get(t, srv.URL()+"/seen")

	srv.AssertReceived(t, expectation.RequestDefinition{Method: "GET", Path: "/seen"}, expectation.ExactlyOnce())
	srv.AssertNotReceived(t, expectation.RequestDefinition{Method: "GET", Path: "/unseen"})
}
