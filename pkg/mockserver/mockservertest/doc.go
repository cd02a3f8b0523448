// Package mockservertest provides an in-process fake of the mock server REST
// API for tests.
//
//	func TestCheckout(t *testing.T) {
//	    srv := mockservertest.New(t)
//	    client := srv.Client()
//
//	    _, err := client.When("POST", "/payments").
//	        WithRequestJSONSubset(map[string]any{"currency": "EUR"}).
//	        RespondJSON(http.StatusCreated, map[string]string{"status": "ok"}).
//	        Submit(ctx)
//
//	    runCheckout(srv.URL())
//
//	    err = client.VerifyRequest(ctx,
//	        expectation.RequestDefinition{Method: "POST", Path: "/payments"},
//	        expectation.ExactlyOnce())
//	}
//
// The fake matches method, path (with query parameters as a subset), headers
// (as a subset) and bodies: STRING bodies exactly, JSON bodies strictly or by
// field subset. It honours priority, remaining times and time to live. It is
// not a full mock server.
package mockservertest
