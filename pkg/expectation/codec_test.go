package expectation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleExpectations() map[string]Expectation {
	return map[string]Expectation{
		"plain body": {
			ID:       "e-1",
			Priority: 5,
			HTTPRequest: RequestDefinition{
				Method:  "POST",
				Path:    "/api/items?limit=10",
				Body:    PlainBody{String: "hello", ContentType: "text/plain; charset=utf-8"},
				Headers: map[string][]string{"X-Trace": {"a", "b"}},
			},
			HTTPResponse: ResponseDefinition{
				Body:       strPtr(`{"ok":true}`),
				Headers:    map[string][]string{"Content-Type": {"application/json"}},
				StatusCode: 201,
			},
			Times:      ExactTimes(3),
			TimeToLive: TimeToLiveOf(90 * time.Second),
		},
		"json strict body": {
			ID: "e-2",
			HTTPRequest: RequestDefinition{
				Method: "PUT",
				Path:   "/users/42",
				Body: JSONBody{
					JSON:      map[string]any{"name": "ann", "age": float64(30), "tags": []any{"a", "b"}},
					MatchType: Strict,
				},
			},
			HTTPResponse: ResponseDefinition{StatusCode: 204},
			Times:        UnlimitedTimes(),
			TimeToLive:   UnlimitedTimeToLive(),
		},
		"json subset body": {
			Priority: -1,
			HTTPRequest: RequestDefinition{
				Method: "PATCH",
				Path:   "/users/42",
				Body: JSONBody{
					JSON:      map[string]any{"nested": map[string]any{"k": "v"}},
					MatchType: OnlyMatchingFields,
				},
			},
			HTTPResponse: ResponseDefinition{Body: strPtr(""), StatusCode: 200},
			Times:        ExactTimes(0),
			TimeToLive:   TimeToLiveOf(2 * time.Hour),
		},
		"no body": {
			ID:           "e-4",
			HTTPRequest:  RequestDefinition{Method: "GET", Path: "/"},
			HTTPResponse: ResponseDefinition{StatusCode: 404},
		},
		"empty header maps": {
			ID:           "e-5",
			HTTPRequest:  RequestDefinition{Method: "GET", Path: "/h", Headers: map[string][]string{}},
			HTTPResponse: ResponseDefinition{StatusCode: 200, Headers: map[string][]string{}},
			Times:        UnlimitedTimes(),
		},
	}
}

func TestExpectation_RoundTrip(t *testing.T) {
	for name, want := range sampleExpectations() {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(want)
			require.NoError(t, err)

			var got Expectation
			require.NoError(t, json.Unmarshal(data, &got))
			assert.Equal(t, want, got)
		})
	}
}

func TestEncodeBody_Discriminator(t *testing.T) {
	data, err := EncodeBody(PlainBody{String: "hi", ContentType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"STRING","string":"hi","contentType":"text/plain"}`, string(data))

	data, err = EncodeBody(JSONBody{JSON: map[string]any{"a": float64(1)}, MatchType: Strict})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"JSON","json":{"a":1},"matchType":"STRICT"}`, string(data))

	data, err = EncodeBody(JSONBody{JSON: map[string]any{}, MatchType: OnlyMatchingFields})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"JSON","json":{},"matchType":"ONLY_MATCHING_FIELDS"}`, string(data))
}

type embeddedBody struct {
	PlainBody
}

func TestEncodeBody_Errors(t *testing.T) {
	tests := []struct {
		name string
		body BodyDefinition
	}{
		{"unknown variant", embeddedBody{PlainBody{String: "x"}}},
		{"nil", nil},
		{"bad content type", PlainBody{String: "x", ContentType: "not a/media type;;"}},
		{"bad match type", JSONBody{JSON: map[string]any{}, MatchType: "FUZZY"}},
		{"nil json object", JSONBody{MatchType: Strict}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeBody(tt.body)
			var encErr *EncodeError
			require.ErrorAs(t, err, &encErr)
		})
	}
}

func TestRequestDefinition_MarshalPropagatesEncodeError(t *testing.T) {
	req := RequestDefinition{Method: "GET", Path: "/", Body: embeddedBody{}}
	_, err := json.Marshal(req)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
}

func TestDecodeBody_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"missing type", `{"string":"x"}`, "type field not found"},
		{"unknown type", `{"type":"XML","xml":"<a/>"}`, "unknown body type: XML"},
		{"json not object", `{"type":"JSON","json":[1,2],"matchType":"STRICT"}`, "json body must be an object"},
		{"json null", `{"type":"JSON","json":null,"matchType":"STRICT"}`, "json body must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBody([]byte(tt.input))
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Equal(t, tt.wantMsg, decErr.Error())
		})
	}
}

func TestDecodeBody_InvalidFields(t *testing.T) {
	inputs := map[string]string{
		"bad match type":   `{"type":"JSON","json":{},"matchType":"LOOSE"}`,
		"bad content type": `{"type":"STRING","string":"x","contentType":"///"}`,
		"type not string":  `{"type":7}`,
		"not an object":    `"STRING"`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBody([]byte(input))
			var decErr *DecodeError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

func TestDecodeBody_DefaultMatchType(t *testing.T) {
	body, err := DecodeBody([]byte(`{"type":"JSON","json":{"a":"b"}}`))
	require.NoError(t, err)
	assert.Equal(t, JSONBody{JSON: map[string]any{"a": "b"}, MatchType: Strict}, body)
}

func TestExpectation_DecodeErrorsSurfaceThroughNesting(t *testing.T) {
	input := `{"httpRequest":{"method":"GET","path":"/","body":{"string":"x"}},"httpResponse":{"statusCode":200},"times":{"unlimited":true},"timeToLive":{"unlimited":true}}`

	var e Expectation
	err := json.Unmarshal([]byte(input), &e)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "type field not found", decErr.Error())
}

func TestRequestDefinition_DecodeErrors(t *testing.T) {
	inputs := map[string]string{
		"invalid method":   `{"method":"GE T","path":"/"}`,
		"empty method":     `{"method":"","path":"/"}`,
		"unparseable path": `{"method":"GET","path":"%zz"}`,
		"empty path":       `{"method":"GET","path":""}`,
		"empty header key": `{"method":"GET","path":"/","headers":{"":["x"]}}`,
		"wrong type":       `{"method":1,"path":"/"}`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			var r RequestDefinition
			err := json.Unmarshal([]byte(input), &r)
			var decErr *DecodeError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

func TestResponseDefinition_DecodeErrors(t *testing.T) {
	inputs := map[string]string{
		"missing status":   `{"body":"x"}`,
		"string status":    `{"statusCode":"200"}`,
		"fractional":       `{"statusCode":200.5}`,
		"out of range":     `{"statusCode":99}`,
		"empty header key": `{"statusCode":200,"headers":{"":["x"]}}`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			var r ResponseDefinition
			err := json.Unmarshal([]byte(input), &r)
			var decErr *DecodeError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

func TestTimeToLive_DecodeUnknownUnit(t *testing.T) {
	var ttl TimeToLive
	err := json.Unmarshal([]byte(`{"timeUnit":"FORTNIGHTS","timeToLive":1,"unlimited":false}`), &ttl)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, decErr.Error(), "FORTNIGHTS")
}

func TestTimeToLive_DecodeRejectsInconsistent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"negative", `{"timeUnit":"SECONDS","timeToLive":-5,"unlimited":false}`, "timeToLive.timeToLive"},
		{"missing unit", `{"timeToLive":5,"unlimited":false}`, "timeToLive.timeUnit"},
		{"missing value", `{"timeUnit":"DAYS","unlimited":false}`, "timeToLive.timeToLive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ttl TimeToLive
			err := json.Unmarshal([]byte(tt.input), &ttl)
			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestEmptyHeaders_WireForm(t *testing.T) {
	data, err := json.Marshal(RequestDefinition{Method: "GET", Path: "/", Headers: map[string][]string{}})
	require.NoError(t, err)
	assert.Equal(t, `{"method":"GET","path":"/","headers":{}}`, string(data))

	var req RequestDefinition
	require.NoError(t, json.Unmarshal([]byte(`{"method":"GET","path":"/"}`), &req))
	assert.Nil(t, req.Headers)
}

func TestNewCreateExpectationRequest_CanonicalJSON(t *testing.T) {
	type item struct {
		SKU string `json:"sku"`
	}
	req, err := NewCreateExpectationRequest(
		RequestDefinition{
			Method: "POST",
			Path:   "/orders",
			Body:   JSONBody{JSON: map[string]any{"qty": 3, "item": item{SKU: "abc"}}, MatchType: Strict},
		},
		ResponseDefinition{StatusCode: 201},
	)
	require.NoError(t, err)

	want := map[string]any{"qty": float64(3), "item": map[string]any{"sku": "abc"}}
	assert.Equal(t, JSONBody{JSON: want, MatchType: Strict}, req.HTTPRequest.Body)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	var decoded CreateExpectationRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *req, decoded)
}

func TestCreateExpectationRequest_WireFormat(t *testing.T) {
	req, err := NewCreateExpectationRequest(
		RequestDefinition{
			Method:  "POST",
			Path:    "/orders",
			Body:    JSONBody{JSON: map[string]any{"sku": "abc"}, MatchType: Strict},
			Headers: map[string][]string{"Accept": {"application/json"}},
		},
		ResponseDefinition{Body: strPtr("created"), StatusCode: 201},
	)
	require.NoError(t, err)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Equal(t,
		`{"httpRequest":{"method":"POST","path":"/orders","body":{"type":"JSON","json":{"sku":"abc"},"matchType":"STRICT"},"headers":{"Accept":["application/json"]}},"httpResponse":{"body":"created","statusCode":201}}`,
		string(data))
}

func TestCreateExpectationRequest_WithPolicies(t *testing.T) {
	prio := 10
	times := ExactTimes(2)
	ttl := TimeToLiveOf(30 * time.Second)
	req := CreateExpectationRequest{
		HTTPRequest:  RequestDefinition{Method: "GET", Path: "/ping"},
		HTTPResponse: ResponseDefinition{StatusCode: 200},
		Priority:     &prio,
		Times:        &times,
		TimeToLive:   &ttl,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Equal(t,
		`{"httpRequest":{"method":"GET","path":"/ping"},"httpResponse":{"statusCode":200},"priority":10,"times":{"remainingTimes":2,"unlimited":false},"timeToLive":{"timeUnit":"SECONDS","timeToLive":30,"unlimited":false}}`,
		string(data))

	var decoded CreateExpectationRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req, decoded)

	e := decoded.Expectation("id-1")
	assert.Equal(t, "id-1", e.ID)
	assert.Equal(t, 10, e.Priority)
	assert.Equal(t, times, e.Times)
	assert.Equal(t, ttl, e.TimeToLive)
}

func TestCreateExpectationRequest_ExpectationDefaults(t *testing.T) {
	req := CreateExpectationRequest{
		HTTPRequest:  RequestDefinition{Method: "GET", Path: "/"},
		HTTPResponse: ResponseDefinition{StatusCode: 200},
	}
	e := req.Expectation("x")
	assert.Equal(t, UnlimitedTimes(), e.Times)
	assert.Equal(t, UnlimitedTimeToLive(), e.TimeToLive)
	assert.Zero(t, e.Priority)
}

func TestNewCreateExpectationRequest_Validation(t *testing.T) {
	_, err := NewCreateExpectationRequest(
		RequestDefinition{Method: "BAD METHOD", Path: "/"},
		ResponseDefinition{StatusCode: 200},
	)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "httpRequest.method", vErr.Field)

	_, err = NewCreateExpectationRequest(
		RequestDefinition{Method: "GET", Path: "/"},
		ResponseDefinition{StatusCode: 1000},
	)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "httpResponse.statusCode", vErr.Field)
}

func TestDecodeError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &DecodeError{Msg: "invalid thing", Err: cause}
	assert.Equal(t, "invalid thing: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}
