package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/getmockd/endpointkit/pkg/cli/internal/flags"
	"github.com/getmockd/endpointkit/pkg/cli/internal/parse"
	"github.com/getmockd/endpointkit/pkg/expectation"
	"github.com/getmockd/endpointkit/pkg/mockserver"
)

type verifyFlags struct {
	method  string
	path    string
	headers flags.StringSlice
	exactly int
	atLeast int
	atMost  int
	never   bool
}

// times picks the bound from whichever flag was set; at least once when
// none was.
func (f *verifyFlags) times(cmd *cobra.Command) expectation.VerificationTimes {
	fs := cmd.Flags()
	switch {
	case f.never:
		return expectation.Never()
	case fs.Changed("exactly"):
		return expectation.Exactly(f.exactly)
	case fs.Changed("at-most"):
		return expectation.AtMost(f.atMost)
	case fs.Changed("at-least"):
		return expectation.AtLeast(f.atLeast)
	default:
		return expectation.AtLeastOnce()
	}
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	f := &verifyFlags{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check how often the mock server received a request",
		Example: `  endpointkit verify --method GET --path /ping
  endpointkit verify --method POST --path /orders --exactly 2
  endpointkit verify --method DELETE --path /orders/1 --never
  endpointkit verify -m GET -p /orders -H 'Accept: application/json' --at-least 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			headers, err := parse.Headers(f.headers)
			if err != nil {
				return err
			}
			times := f.times(cmd)
			def := expectation.RequestDefinition{Method: f.method, Path: f.path, Headers: headers}
			err = newClient(cfg, logger).VerifyRequest(cmd.Context(), def, times)

			var verr *mockserver.VerificationError
			if errors.As(err, &verr) {
				printf(cmd.ErrOrStderr(), "%s\n", verr.Message)
				return verr
			}
			if err != nil {
				return describeError(err, cfg.MockServerURL)
			}

			printf(cmd.OutOrStdout(), "verified %s %s received %s\n", f.method, f.path, times.Definition())
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.method, "method", "m", "", "HTTP method to match")
	cmd.Flags().StringVarP(&f.path, "path", "p", "", "Request path to match")
	cmd.Flags().VarP(&f.headers, "header", "H", "Header to match as \"Name: value\" (repeatable)")
	cmd.Flags().IntVar(&f.exactly, "exactly", 0, "Expect exactly N requests")
	cmd.Flags().IntVar(&f.atLeast, "at-least", 0, "Expect at least N requests")
	cmd.Flags().IntVar(&f.atMost, "at-most", 0, "Expect at most N requests")
	cmd.Flags().BoolVar(&f.never, "never", false, "Expect no requests")
	_ = cmd.MarkFlagRequired("method")
	_ = cmd.MarkFlagRequired("path")
	cmd.MarkFlagsMutuallyExclusive("never", "exactly", "at-least", "at-most")
	return cmd
}
