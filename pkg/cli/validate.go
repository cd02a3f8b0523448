package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/getmockd/endpointkit/pkg/config"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file-or-glob>...",
		Short: "Check expectation files without contacting the mock server",
		Long: `Validate expectation files without contacting the mock server.

This command checks:
  - YAML or JSON syntax
  - The expectation schema (required fields, body types, policies)
  - Methods, paths, header names and status codes

Every file is checked and all failures are reported.`,
		Example: `  endpointkit validate expectations/*.json
  endpointkit validate 'expectations/**/*.yaml'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := g.resolveConfig(cmd); err != nil {
				return err
			}

			files, err := config.ExpandPatterns(args)
			if err != nil {
				return err
			}

			failed := 0
			for _, file := range files {
				reqs, err := config.LoadExpectationFile(file)
				if err != nil {
					failed++
					printValidationFailure(cmd, file, err)
					continue
				}
				printf(cmd.OutOrStdout(), "ok   %s (%d expectations)\n", file, len(reqs))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files failed validation", failed, len(files))
			}
			return nil
		},
	}
}

func printValidationFailure(cmd *cobra.Command, file string, err error) {
	printf(cmd.OutOrStdout(), "FAIL %s\n", file)

	var result *config.ValidationResult
	if errors.As(err, &result) {
		for _, e := range result.Errors {
			path := e.Path
			if path == "" {
				path = "(root)"
			}
			printf(cmd.OutOrStdout(), "     %s: %s\n", path, e.Message)
		}
		return
	}

	var fileErr *config.FileError
	if errors.As(err, &fileErr) {
		err = fileErr.Err
	}
	printf(cmd.OutOrStdout(), "     %v\n", err)
}
