package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/endpointkit/pkg/cli/internal/output"
	"github.com/getmockd/endpointkit/pkg/expectation"
)

func newClearCmd(g *globalFlags) *cobra.Command {
	var method, path string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove expectations and recorded requests",
		Long: `Remove expectations and recorded requests from the mock server.

With --method and --path only the matching ones are removed; without them
everything is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			var def *expectation.RequestDefinition
			if cmd.Flags().Changed("method") {
				def = &expectation.RequestDefinition{Method: method, Path: path}
				if err := def.Validate(); err != nil {
					return err
				}
			} else {
				output.Warn(cmd.ErrOrStderr(), "clearing every expectation on %s", cfg.MockServerURL)
			}

			if err := newClient(cfg, logger).Clear(cmd.Context(), def); err != nil {
				return describeError(err, cfg.MockServerURL)
			}
			if def == nil {
				printf(cmd.OutOrStdout(), "cleared all expectations\n")
			} else {
				printf(cmd.OutOrStdout(), "cleared %s %s\n", method, path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "HTTP method to match")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Request path to match")
	cmd.MarkFlagsRequiredTogether("method", "path")
	return cmd
}

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Remove all expectations and recorded requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}
			if err := newClient(cfg, logger).Reset(cmd.Context()); err != nil {
				return describeError(err, cfg.MockServerURL)
			}
			printf(cmd.OutOrStdout(), "reset %s\n", cfg.MockServerURL)
			return nil
		},
	}
}

func newRequestsCmd(g *globalFlags) *cobra.Command {
	var method, path string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List the requests the mock server received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.setup(cmd)
			if err != nil {
				return err
			}

			var def *expectation.RequestDefinition
			if cmd.Flags().Changed("method") {
				def = &expectation.RequestDefinition{Method: method, Path: path}
				if err := def.Validate(); err != nil {
					return err
				}
			}

			recorded, err := newClient(cfg, logger).RetrieveRecordedRequests(cmd.Context(), def)
			if err != nil {
				return describeError(err, cfg.MockServerURL)
			}
			if jsonOutput {
				return output.JSON(cmd.OutOrStdout(), recorded)
			}

			tw := output.Table(cmd.OutOrStdout())
			_, _ = fmt.Fprintln(tw, "METHOD\tPATH")
			for _, r := range recorded {
				_, _ = fmt.Fprintf(tw, "%s\t%s\n", r.Method, r.Path)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "", "HTTP method to match")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Request path to match")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.MarkFlagsRequiredTogether("method", "path")
	return cmd
}
