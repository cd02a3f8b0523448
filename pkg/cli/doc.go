// Package cli provides the command-line interface for endpointkit.
//
// The cli package implements these commands:
//   - expect: Register expectations from YAML or JSON files
//   - verify: Check how often the mock server received a request
//   - clear: Remove matching (or all) expectations and recorded requests
//   - reset: Remove everything from the mock server
//   - requests: List the requests the mock server received
//   - validate: Check expectation files offline
//   - serve: Run an HTTP server instrumented with Prometheus metrics
//   - version: Show version information
//
// Settings are resolved from defaults, the --config YAML file, ENDPOINTKIT_*
// environment variables and finally explicitly set flags.
package cli
