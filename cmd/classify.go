// -- cmd/classify.go --
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/classifier"
)

func newClassifyCmd() *cobra.Command {
	var testID, step string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "classify [file|-]",
		Short: "Classify a recorded failure and print the remediation context",
		Long: `Reads a TestError JSON document (for example the "error" of a result in a
run report) from a file, or from stdin when the argument is "-" or absent,
and prints its kind, the handler it routes to and the context document a
remediation request would carry.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			data, err := readInput(cmd, src)
			if err != nil {
				return err
			}

			var te schemas.TestError
			if err := json.Unmarshal(data, &te); err != nil {
				return fmt.Errorf("parsing test error from %s: %w", src, err)
			}
			if strings.TrimSpace(te.Message) == "" {
				return fmt.Errorf("test error from %s has no message", src)
			}

			c := classifier.Explain(te)
			te.Type = c.Kind
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					classifier.Classification
					Context string `json:"context"`
				}{c, classifier.BuildErrorContext(te, testID, step)})
			}

			fmt.Fprintf(out, "Kind:     %s\n", c.Kind)
			fmt.Fprintf(out, "Handler:  %s\n", c.Handler)
			for _, e := range c.Evidence {
				fmt.Fprintf(out, "Evidence: %s\n", e)
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, classifier.BuildErrorContext(te, testID, step))
			return nil
		},
	}

	cmd.Flags().StringVar(&testID, "test-id", "unknown", "Test id shown in the context document")
	cmd.Flags().StringVar(&step, "step", "unknown", "Step description shown in the context document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the classification as JSON")
	return cmd
}

func readInput(cmd *cobra.Command, src string) ([]byte, error) {
	if src == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", src, err)
	}
	return data, nil
}
