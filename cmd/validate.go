// -- cmd/validate.go --
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/suite"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse and check the test definitions without launching a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			tests, err := suite.NewLoader(cfg.Suite().Dir, observability.GetLogger()).Load(cmd.Context())
			if err != nil {
				return err
			}
			selected := suite.Filter(tests, cfg.Features())

			out := cmd.OutOrStdout()
			steps := 0
			for _, t := range selected {
				steps += len(t.Steps)
				fmt.Fprintf(out, "  %-24s %-16s %d steps", t.ID, t.Module, len(t.Steps))
				if len(t.Cleanup) > 0 {
					fmt.Fprintf(out, ", %d cleanup", len(t.Cleanup))
				}
				if len(t.Prerequisites) > 0 {
					fmt.Fprintf(out, " (after %s)", strings.Join(t.Prerequisites, ", "))
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%d tests, %d steps", len(selected), steps)
			if len(selected) != len(tests) {
				fmt.Fprintf(out, " (%d filtered out)", len(tests)-len(selected))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringSlice("feature", nil, "Only count tests of these modules (overrides features)")
	cmd.Flags().String("tests-dir", "", "Directory of test definitions (overrides suite.dir)")
	return cmd
}
