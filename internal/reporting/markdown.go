// internal/reporting/markdown.go
package reporting

import (
	"fmt"
	"os"
	"strings"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// renderMarkdown produces a summary suited to CI job pages and pull request
// comments.
func renderMarkdown(report *schemas.TestRunReport) string {
	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "# E2E Test Report `%s`\n\n", report.RunID)
	fmt.Fprintf(&b, "Started %s, took %.2fs.\n\n", report.StartTime.UTC().Format("2006-01-02 15:04:05 MST"), float64(report.Duration)/1000)
	b.WriteString("| Total | Passed | Failed | Skipped | Retried | Pass rate |\n")
	b.WriteString("|------:|-------:|-------:|--------:|--------:|----------:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %.1f%% |\n\n", s.Total, s.Passed, s.Failed, s.Skipped, s.Retried, s.PassRate())

	if len(report.Results) == 0 {
		b.WriteString("No tests were run.\n")
		return b.String()
	}

	b.WriteString("| | Test | Module | Attempts | Duration | Remediation |\n")
	b.WriteString("|---|---|---|---:|---:|---|\n")
	for _, r := range report.Results {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %.2fs | %s |\n",
			glyph(r.Status), cell(r.Name), cell(r.Module), r.Attempts, float64(r.Duration)/1000, cell(strings.Join(r.AgentsDeployed, ", ")))
	}

	var failures []schemas.TestResult
	for _, r := range report.Results {
		if r.Status == schemas.StatusFailed && r.Error != nil {
			failures = append(failures, r)
		}
	}
	if len(failures) == 0 {
		return b.String()
	}

	b.WriteString("\n## Failures\n")
	for _, r := range failures {
		fmt.Fprintf(&b, "\n### %s\n\n", r.Name)
		fmt.Fprintf(&b, "- **Kind:** %s\n", r.Error.Type)
		if r.Error.Selector != "" {
			fmt.Fprintf(&b, "- **Selector:** `%s`\n", r.Error.Selector)
		}
		if r.Error.Screenshot != "" {
			fmt.Fprintf(&b, "- **Screenshot:** %s\n", r.Error.Screenshot)
		}
		fmt.Fprintf(&b, "\n```\n%s\n```\n", r.Error.Message)
	}
	return b.String()
}

// cell escapes the characters that would break a table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func writeMarkdown(path string, report *schemas.TestRunReport) error {
	return os.WriteFile(path, []byte(renderMarkdown(report)), 0o644)
}
