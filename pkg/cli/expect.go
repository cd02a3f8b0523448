package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/endpointkit/pkg/config"
)

func newExpectCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "expect <file-or-glob>...",
		Short: "Register expectations from YAML or JSON files",
		Long: `Register expectations with the mock server.

Each file holds one expectation or a list of them in MockServer's JSON format
(YAML is accepted too). Files are validated before anything is sent, so a bad
file leaves the mock server untouched.`,
		Example: `  endpointkit expect expectations/ping.json
  endpointkit expect 'expectations/**/*.yaml'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			loaded, err := config.LoadExpectations(args)
			if err != nil {
				return err
			}

			client := newClient(cfg, logger)
			for _, le := range loaded {
				created, err := client.CreateExpectation(cmd.Context(), le.Request)
				if err != nil {
					return describeError(fmt.Errorf("%s[%d]: %w", le.Source, le.Index, err), cfg.MockServerURL)
				}
				for _, e := range created {
					printf(cmd.OutOrStdout(), "created %s %s %s (%s[%d])\n",
						e.ID, e.HTTPRequest.Method, e.HTTPRequest.Path, le.Source, le.Index)
				}
			}
			logger.Info("expectations registered", "count", len(loaded), "mockServer", cfg.MockServerURL)
			return nil
		},
	}
}
