// Package mockserver is a client for MockServer-compatible mock HTTP servers.
//
// It registers expectations (PUT /expectation), verifies received requests
// (PUT /verify) and clears or resets server state. Payloads are encoded with
// package expectation.
//
// # Usage
//
//	client := mockserver.New("http://localhost:1080/mockserver")
//
//	_, err := client.When("GET", "/users/1").
//	    RespondJSON(http.StatusOK, map[string]string{"id": "1"}).
//	    Once().
//	    Submit(ctx)
//
//	// ... exercise the code under test ...
//
//	err = client.VerifyRequest(ctx,
//	    expectation.RequestDefinition{Method: "GET", Path: "/users/1"},
//	    expectation.ExactlyOnce())
//	if errors.Is(err, mockserver.ErrVerificationFailed) {
//	    // the request was not received exactly once
//	}
//
// For tests that need a server, see package mockservertest.
package mockserver
