package classifier

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

const (
	maxContextConsoleErrors = 5
	maxContextNetworkErrors = 3
)

// BuildErrorContext renders the remediation request handed to a handler.
// The kind is err.Type when already classified, otherwise it is computed.
func BuildErrorContext(err schemas.TestError, testID, stepDescription string) string {
	kind := err.Type
	if kind == "" {
		kind = Classify(err)
	}
	handler := Route(kind)

	var b strings.Builder
	fmt.Fprintf(&b, "# Remediation request: %s\n\n", testID)
	fmt.Fprintf(&b, "- Test: %s\n", testID)
	fmt.Fprintf(&b, "- Step: %s\n", stepDescription)
	fmt.Fprintf(&b, "- Error type: %s\n", kind)
	fmt.Fprintf(&b, "- Handler: %s\n\n", handler)

	b.WriteString("## Error\n\n")
	b.WriteString(err.Message)
	b.WriteString("\n\n")

	if err.Stack != "" {
		b.WriteString("## Stack trace\n\n```\n")
		b.WriteString(strings.TrimRight(err.Stack, "\n"))
		b.WriteString("\n```\n\n")
	}
	if err.Selector != "" {
		fmt.Fprintf(&b, "## Selector\n\n`%s` (found: %t)\n\n", err.Selector, err.ElementFound)
	}
	if err.Screenshot != "" {
		fmt.Fprintf(&b, "## Screenshot\n\n%s\n\n", err.Screenshot)
	}

	if len(err.ConsoleErrors) > 0 {
		b.WriteString("## Console errors\n\n")
		for i, line := range err.ConsoleErrors {
			if i == maxContextConsoleErrors {
				fmt.Fprintf(&b, "- ... %d more\n", len(err.ConsoleErrors)-maxContextConsoleErrors)
				break
			}
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}

	if len(err.NetworkErrors) > 0 {
		b.WriteString("## Network errors\n\n")
		for i, ne := range err.NetworkErrors {
			if i == maxContextNetworkErrors {
				fmt.Fprintf(&b, "- ... %d more\n", len(err.NetworkErrors)-maxContextNetworkErrors)
				break
			}
			fmt.Fprintf(&b, "- %s\n", FormatNetworkError(ne))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Task\n\nFix the root cause so that test %q passes when it is retried.\n", testID)
	return b.String()
}

// FormatNetworkError renders "METHOD URL → STATUS STATUSTEXT".
func FormatNetworkError(ne schemas.NetworkError) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s → %d %s", ne.Method, ne.URL, ne.Status, ne.StatusText))
}
