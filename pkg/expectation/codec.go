package expectation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Wire shapes. Field order here is the order fields appear on the wire.

type wireExpectation struct {
	ID           string             `json:"id,omitempty"`
	Priority     int                `json:"priority"`
	HTTPRequest  RequestDefinition  `json:"httpRequest"`
	HTTPResponse ResponseDefinition `json:"httpResponse"`
	Times        Times              `json:"times"`
	TimeToLive   TimeToLive         `json:"timeToLive"`
}

type wireCreateExpectation struct {
	HTTPRequest  RequestDefinition  `json:"httpRequest"`
	HTTPResponse ResponseDefinition `json:"httpResponse"`
	Priority     *int               `json:"priority,omitempty"`
	Times        *Times             `json:"times,omitempty"`
	TimeToLive   *TimeToLive        `json:"timeToLive,omitempty"`
}

// Headers are carried by pointer so an empty map is written as {} and read
// back as an empty map, while a nil map is omitted.
type wireRequest struct {
	Method  string               `json:"method"`
	Path    string               `json:"path"`
	Body    json.RawMessage      `json:"body,omitempty"`
	Headers *map[string][]string `json:"headers,omitempty"`
}

type wireResponse struct {
	Body       *string              `json:"body,omitempty"`
	Headers    *map[string][]string `json:"headers,omitempty"`
	StatusCode json.RawMessage      `json:"statusCode"`
}

type wirePlainBody struct {
	Type        string `json:"type"`
	String      string `json:"string"`
	ContentType string `json:"contentType,omitempty"`
}

type wireJSONBody struct {
	Type      string          `json:"type"`
	JSON      json.RawMessage `json:"json"`
	MatchType JSONMatchType   `json:"matchType"`
}

type wireTimes struct {
	RemainingTimes *int `json:"remainingTimes,omitempty"`
	Unlimited      bool `json:"unlimited"`
}

type wireTimeToLive struct {
	TimeUnit   *TimeUnit `json:"timeUnit,omitempty"`
	TimeToLive *int64    `json:"timeToLive,omitempty"`
	Unlimited  bool      `json:"unlimited"`
}

// MarshalJSON implements json.Marshaler.
func (e Expectation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireExpectation(e))
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Expectation) UnmarshalJSON(data []byte) error {
	var w wireExpectation
	if err := unmarshalWire(data, &w, "expectation"); err != nil {
		return err
	}
	*e = Expectation(w)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r CreateExpectationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCreateExpectation(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *CreateExpectationRequest) UnmarshalJSON(data []byte) error {
	var w wireCreateExpectation
	if err := unmarshalWire(data, &w, "create expectation request"); err != nil {
		return err
	}
	*r = CreateExpectationRequest(w)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r RequestDefinition) MarshalJSON() ([]byte, error) {
	w := wireRequest{Method: r.Method, Path: r.Path, Headers: headersRef(r.Headers)}
	if r.Body != nil {
		body, err := EncodeBody(r.Body)
		if err != nil {
			return nil, err
		}
		w.Body = body
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. The method must be a valid
// token and the path a parseable URI.
func (r *RequestDefinition) UnmarshalJSON(data []byte) error {
	var w wireRequest
	if err := unmarshalWire(data, &w, "request definition"); err != nil {
		return err
	}
	if !ValidMethod(w.Method) {
		return decodeErrorf("invalid HTTP method: %q", w.Method)
	}
	if err := validatePath(w.Path); err != nil {
		return &DecodeError{Msg: "invalid path", Err: err}
	}
	headers := headersOf(w.Headers)
	if err := validateHeaders(headers); err != nil {
		return &DecodeError{Msg: "invalid request headers", Err: err}
	}
	def := RequestDefinition{Method: w.Method, Path: w.Path, Headers: headers}
	if len(w.Body) > 0 && !bytes.Equal(w.Body, []byte("null")) {
		body, err := DecodeBody(w.Body)
		if err != nil {
			return err
		}
		def.Body = body
	}
	*r = def
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r ResponseDefinition) MarshalJSON() ([]byte, error) {
	status, err := json.Marshal(r.StatusCode)
	if err != nil {
		return nil, &EncodeError{Msg: "encode status code", Err: err}
	}
	return json.Marshal(wireResponse{Body: r.Body, Headers: headersRef(r.Headers), StatusCode: status})
}

// UnmarshalJSON implements json.Unmarshaler. The status code must be an
// integer between 100 and 599.
func (r *ResponseDefinition) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := unmarshalWire(data, &w, "response definition"); err != nil {
		return err
	}
	if len(w.StatusCode) == 0 {
		return decodeErrorf("statusCode field not found")
	}
	var code int
	if err := json.Unmarshal(w.StatusCode, &code); err != nil {
		return decodeErrorf("invalid status code: %s", w.StatusCode)
	}
	if !validStatusCode(code) {
		return decodeErrorf("invalid status code: %d", code)
	}
	headers := headersOf(w.Headers)
	if err := validateHeaders(headers); err != nil {
		return &DecodeError{Msg: "invalid response headers", Err: err}
	}
	*r = ResponseDefinition{Body: w.Body, Headers: headers, StatusCode: code}
	return nil
}

// EncodeBody writes a body definition with its "type" discriminator.
func EncodeBody(b BodyDefinition) ([]byte, error) {
	switch v := b.(type) {
	case PlainBody:
		if err := validateContentType(v.ContentType); err != nil {
			return nil, &EncodeError{Msg: "encode plain body", Err: err}
		}
		return json.Marshal(wirePlainBody{Type: bodyTypeString, String: v.String, ContentType: v.ContentType})
	case JSONBody:
		if !v.MatchType.Valid() {
			return nil, &EncodeError{Msg: fmt.Sprintf("unknown match type: %s", v.MatchType)}
		}
		if v.JSON == nil {
			return nil, &EncodeError{Msg: "json body must be an object"}
		}
		obj, err := json.Marshal(v.JSON)
		if err != nil {
			return nil, &EncodeError{Msg: "encode json body", Err: err}
		}
		return json.Marshal(wireJSONBody{Type: bodyTypeJSON, JSON: obj, MatchType: v.MatchType})
	case nil:
		return nil, &EncodeError{Msg: "nil body definition"}
	default:
		return nil, &EncodeError{Msg: fmt.Sprintf("unknown body definition %T", b)}
	}
}

// DecodeBody reads a body definition, dispatching on its "type" field.
func DecodeBody(data []byte) (BodyDefinition, error) {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &DecodeError{Msg: "invalid body definition", Err: err}
	}
	if head.Type == nil {
		return nil, decodeErrorf("type field not found")
	}

	switch *head.Type {
	case bodyTypeString:
		var w wirePlainBody
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, &DecodeError{Msg: "invalid plain body", Err: err}
		}
		if err := validateContentType(w.ContentType); err != nil {
			return nil, &DecodeError{Msg: "invalid content type", Err: err}
		}
		return PlainBody{String: w.String, ContentType: w.ContentType}, nil
	case bodyTypeJSON:
		var w wireJSONBody
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, &DecodeError{Msg: "invalid json body", Err: err}
		}
		obj := bytes.TrimSpace(w.JSON)
		if len(obj) == 0 || obj[0] != '{' {
			return nil, decodeErrorf("json body must be an object")
		}
		var m map[string]any
		if err := json.Unmarshal(obj, &m); err != nil {
			return nil, &DecodeError{Msg: "invalid json body", Err: err}
		}
		if w.MatchType == "" {
			w.MatchType = Strict
		}
		return JSONBody{JSON: m, MatchType: w.MatchType}, nil
	default:
		return nil, decodeErrorf("unknown body type: %s", *head.Type)
	}
}

// MarshalJSON implements json.Marshaler.
func (m JSONMatchType) MarshalJSON() ([]byte, error) {
	if !m.Valid() {
		return nil, &EncodeError{Msg: fmt.Sprintf("unknown match type: %s", string(m))}
	}
	return json.Marshal(string(m))
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *JSONMatchType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DecodeError{Msg: "invalid match type", Err: err}
	}
	v := JSONMatchType(s)
	if !v.Valid() {
		return decodeErrorf("unknown match type: %s", s)
	}
	*m = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (u TimeUnit) MarshalJSON() ([]byte, error) {
	if !u.Valid() {
		return nil, &EncodeError{Msg: fmt.Sprintf("unknown time unit: %s", string(u))}
	}
	return json.Marshal(string(u))
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *TimeUnit) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DecodeError{Msg: "invalid time unit", Err: err}
	}
	v := TimeUnit(s)
	if !v.Valid() {
		return decodeErrorf("unknown time unit: %s", s)
	}
	*u = v
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Times) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTimes(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Times) UnmarshalJSON(data []byte) error {
	var w wireTimes
	if err := unmarshalWire(data, &w, "times"); err != nil {
		return err
	}
	if w.RemainingTimes != nil && *w.RemainingTimes < 0 {
		return decodeErrorf("invalid remainingTimes: %d", *w.RemainingTimes)
	}
	*t = Times(w)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t TimeToLive) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTimeToLive(t))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimeToLive) UnmarshalJSON(data []byte) error {
	var w wireTimeToLive
	if err := unmarshalWire(data, &w, "time to live"); err != nil {
		return err
	}
	ttl := TimeToLive(w)
	if err := ttl.check(); err != nil {
		return &DecodeError{Msg: "invalid time to live", Err: err}
	}
	*t = ttl
	return nil
}

func headersRef(h map[string][]string) *map[string][]string {
	if h == nil {
		return nil
	}
	return &h
}

func headersOf(p *map[string][]string) map[string][]string {
	if p == nil {
		return nil
	}
	return *p
}

// unmarshalWire decodes into a wire struct, passing *DecodeError values from
// nested decoders through and wrapping everything else.
func unmarshalWire(data []byte, v any, what string) error {
	if err := json.Unmarshal(data, v); err != nil {
		if _, ok := err.(*DecodeError); ok {
			return err
		}
		return &DecodeError{Msg: "invalid " + what, Err: err}
	}
	return nil
}
