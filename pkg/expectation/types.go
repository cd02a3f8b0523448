package expectation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Expectation is a request matcher and response pair registered on the mock
// server. Higher Priority wins when several expectations match one request.
type Expectation struct {
	ID           string
	Priority     int
	HTTPRequest  RequestDefinition
	HTTPResponse ResponseDefinition
	Times        Times
	TimeToLive   TimeToLive
}

// RequestDefinition matches incoming requests. Body and Headers are optional.
type RequestDefinition struct {
	Method  string
	Path    string
	Body    BodyDefinition
	Headers map[string][]string
}

// ResponseDefinition is what the mock returns when an expectation matches.
type ResponseDefinition struct {
	Body       *string
	Headers    map[string][]string
	StatusCode int
}

// BodyDefinition is the closed set of request body matchers: PlainBody and
// JSONBody.
type BodyDefinition interface {
	bodyType() string
}

// PlainBody matches a literal body string with a declared content type.
type PlainBody struct {
	String      string
	ContentType string
}

func (PlainBody) bodyType() string { return bodyTypeString }

// JSONBody matches a JSON object, either fully or by subset. JSON holds the
// generic encoding/json form: numbers are float64, arrays []any and objects
// map[string]any. NewCreateExpectationRequest converts other Go values, such
// as ints or structs, to that form so encoding and decoding are symmetric.
type JSONBody struct {
	JSON      map[string]any
	MatchType JSONMatchType
}

func (JSONBody) bodyType() string { return bodyTypeJSON }

// Wire discriminator values for BodyDefinition.
const (
	bodyTypeString = "STRING"
	bodyTypeJSON   = "JSON"
)

// JSONMatchType selects how a JSONBody is compared to the received body.
type JSONMatchType string

const (
	// Strict requires the received JSON to equal the expected JSON.
	Strict JSONMatchType = "STRICT"
	// OnlyMatchingFields requires the expected fields to be present in the
	// received JSON; extra fields are ignored.
	OnlyMatchingFields JSONMatchType = "ONLY_MATCHING_FIELDS"
)

// Valid reports whether m is one of the known match types.
func (m JSONMatchType) Valid() bool {
	return m == Strict || m == OnlyMatchingFields
}

// Times limits how often an expectation responds.
type Times struct {
	RemainingTimes *int
	Unlimited      bool
}

// UnlimitedTimes responds forever.
func UnlimitedTimes() Times {
	return Times{Unlimited: true}
}

// ExactTimes responds n times, after which the expectation is removed.
func ExactTimes(n int) Times {
	return Times{RemainingTimes: &n}
}

// TimeUnit is the unit of a TimeToLive value.
type TimeUnit string

// Time units understood by the mock server.
const (
	Days         TimeUnit = "DAYS"
	Hours        TimeUnit = "HOURS"
	Minutes      TimeUnit = "MINUTES"
	Seconds      TimeUnit = "SECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Nanoseconds  TimeUnit = "NANOSECONDS"
)

// timeUnits is ordered from coarsest to finest.
var timeUnits = []struct {
	unit TimeUnit
	dur  time.Duration
}{
	{Days, 24 * time.Hour},
	{Hours, time.Hour},
	{Minutes, time.Minute},
	{Seconds, time.Second},
	{Milliseconds, time.Millisecond},
	{Microseconds, time.Microsecond},
	{Nanoseconds, time.Nanosecond},
}

// Duration returns the length of one unit, or 0 for an unknown unit.
func (u TimeUnit) Duration() time.Duration {
	for _, tu := range timeUnits {
		if tu.unit == u {
			return tu.dur
		}
	}
	return 0
}

// Valid reports whether u is a known time unit.
func (u TimeUnit) Valid() bool {
	return u.Duration() != 0
}

// TimeToLive bounds the lifetime of an expectation.
type TimeToLive struct {
	TimeUnit   *TimeUnit
	TimeToLive *int64
	Unlimited  bool
}

// UnlimitedTimeToLive never expires.
func UnlimitedTimeToLive() TimeToLive {
	return TimeToLive{Unlimited: true}
}

// TimeToLiveOf expires after d, expressed in the coarsest unit that
// represents d exactly.
func TimeToLiveOf(d time.Duration) TimeToLive {
	for _, tu := range timeUnits {
		if d%tu.dur == 0 {
			unit := tu.unit
			n := int64(d / tu.dur)
			return TimeToLive{TimeUnit: &unit, TimeToLive: &n}
		}
	}
	// Unreachable: every duration is a whole number of nanoseconds.
	unit := Nanoseconds
	n := int64(d)
	return TimeToLive{TimeUnit: &unit, TimeToLive: &n}
}

// Duration returns the lifetime and whether it is bounded. Lifetimes longer
// than the largest time.Duration saturate to math.MaxInt64.
func (t TimeToLive) Duration() (time.Duration, bool) {
	if t.Unlimited || t.TimeUnit == nil || t.TimeToLive == nil {
		return 0, false
	}
	n, unit := *t.TimeToLive, t.TimeUnit.Duration()
	if n <= 0 || unit == 0 {
		return 0, true
	}
	if n > math.MaxInt64/int64(unit) {
		return math.MaxInt64, true
	}
	return time.Duration(n) * unit, true
}

// check returns the first inconsistency in t, or nil. A bounded lifetime
// needs both a known unit and a non-negative value.
func (t TimeToLive) check() *ValidationError {
	if t.TimeUnit != nil && !t.TimeUnit.Valid() {
		return &ValidationError{Field: "timeToLive.timeUnit", Message: fmt.Sprintf("unknown time unit %q", *t.TimeUnit)}
	}
	if t.TimeToLive != nil && *t.TimeToLive < 0 {
		return &ValidationError{Field: "timeToLive.timeToLive", Message: fmt.Sprintf("must not be negative, got %d", *t.TimeToLive)}
	}
	if t.Unlimited {
		return nil
	}
	switch {
	case t.TimeUnit == nil && t.TimeToLive != nil:
		return &ValidationError{Field: "timeToLive.timeUnit", Message: "required when timeToLive is set"}
	case t.TimeUnit != nil && t.TimeToLive == nil:
		return &ValidationError{Field: "timeToLive.timeToLive", Message: "required when timeUnit is set"}
	}
	return nil
}

// CreateExpectationRequest is the body of PUT /expectation. Priority, Times
// and TimeToLive are omitted from the wire when nil, leaving the mock
// server's defaults in place.
type CreateExpectationRequest struct {
	HTTPRequest  RequestDefinition
	HTTPResponse ResponseDefinition
	Priority     *int
	Times        *Times
	TimeToLive   *TimeToLive
}

// VerifyExpectationRequest is the body of PUT /verify.
type VerifyExpectationRequest struct {
	HTTPRequest RequestDefinition           `json:"httpRequest"`
	Times       VerificationTimesDefinition `json:"times"`
}

// NewCreateExpectationRequest validates the definitions and builds the
// payload for registering an expectation.
func NewCreateExpectationRequest(req RequestDefinition, resp ResponseDefinition) (*CreateExpectationRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	if body, ok := req.Body.(JSONBody); ok {
		obj, err := canonicalJSON(body.JSON)
		if err != nil {
			return nil, &ValidationError{Field: "httpRequest.body.json", Message: err.Error()}
		}
		body.JSON = obj
		req.Body = body
	}
	return &CreateExpectationRequest{HTTPRequest: req, HTTPResponse: resp}, nil
}

// canonicalJSON rewrites obj in the form encoding/json decodes to.
func canonicalJSON(obj map[string]any) (map[string]any, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewVerifyExpectationRequest validates the matcher and bounds and builds the
// payload for a verification query.
func NewVerifyExpectationRequest(req RequestDefinition, times VerificationTimes) (*VerifyExpectationRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if times == nil {
		return nil, &ValidationError{Field: "times", Message: "required"}
	}
	if err := times.Validate(); err != nil {
		return nil, err
	}
	return &VerifyExpectationRequest{HTTPRequest: req, Times: times.Definition()}, nil
}

// Expectation returns the expectation described by r with the given id.
// Unset policies default to unlimited.
func (r *CreateExpectationRequest) Expectation(id string) Expectation {
	e := Expectation{
		ID:           id,
		HTTPRequest:  r.HTTPRequest,
		HTTPResponse: r.HTTPResponse,
		Times:        UnlimitedTimes(),
		TimeToLive:   UnlimitedTimeToLive(),
	}
	if r.Priority != nil {
		e.Priority = *r.Priority
	}
	if r.Times != nil {
		e.Times = *r.Times
	}
	if r.TimeToLive != nil {
		e.TimeToLive = *r.TimeToLive
	}
	return e
}
