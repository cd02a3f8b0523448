// endpointkit CLI - drives a MockServer-compatible mock server and serves
// Prometheus-instrumented HTTP endpoints.
package main

import (
	"os"

	"github.com/getmockd/endpointkit/pkg/cli"
)

// Build-time variables set via ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.Version = Version
	cli.Commit = Commit
	cli.BuildDate = BuildDate
	return cli.Execute()
}
