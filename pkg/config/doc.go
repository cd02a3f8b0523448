// Package config loads endpointkit settings and expectation files.
//
// Settings come from Default, then an optional YAML file, then environment
// variables prefixed with ENDPOINTKIT_:
//
//	cfg, err := config.Load("endpointkit.yaml", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// Expectation files hold one expectation or a list of them in the mock
// server's JSON format, written as JSON or YAML. Paths may be doublestar
// globs:
//
//	loaded, err := config.LoadExpectations([]string{"expectations/**/*.yaml"})
//
// Each document is checked against an embedded JSON schema before it is
// decoded, so schema problems are reported together with their location.
package config
