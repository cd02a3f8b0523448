// Package expectation models the expectations and verifications a client
// submits to a MockServer-compatible mock HTTP server, together with their
// JSON wire format.
//
// # Expectations
//
// An Expectation pairs a request matcher (RequestDefinition) with the response
// the mock should return (ResponseDefinition), plus how many times it may fire
// (Times) and how long it lives (TimeToLive):
//
//	req := expectation.RequestDefinition{
//	    Method: "POST",
//	    Path:   "/users",
//	    Body:   expectation.JSONBody{JSON: map[string]any{"name": "ann"}, MatchType: expectation.Strict},
//	}
//	body := `{"id":"1"}`
//	resp := expectation.ResponseDefinition{StatusCode: 201, Body: &body}
//
//	payload, err := expectation.NewCreateExpectationRequest(req, resp)
//
// # Request bodies
//
// BodyDefinition is a closed set of two variants, PlainBody and JSONBody. On
// the wire each carries a "type" discriminator:
//
//	{"type":"STRING","string":"hello","contentType":"text/plain"}
//	{"type":"JSON","json":{"a":1},"matchType":"STRICT"}
//
// # Verification
//
// VerificationTimes describes how many times a request is expected to have
// been received. Every variant normalizes to a pair of optional bounds:
//
//	Never()      -> atMost=0
//	Exactly(n)   -> atMost=n, atLeast=n
//	AtMost(n)    -> atMost=n
//	AtLeast(n)   -> atLeast=n
//
// # Errors
//
// Malformed wire documents fail with *DecodeError. Values that cannot be
// written (an unknown body variant, an unparseable content type) fail with
// *EncodeError. Input constraint violations are reported as *ValidationError.
package expectation
