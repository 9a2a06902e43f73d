// internal/reporting/html.go
package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"os"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

var htmlFuncs = template.FuncMap{
	"glyph": glyph,
	"rate": func(s schemas.Summary) string {
		return fmt.Sprintf("%.1f%%", s.PassRate())
	},
	"seconds": func(ms int64) string {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	},
}

var htmlReport = template.Must(template.New("report").Funcs(htmlFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>E2E Report {{.RunID}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem; color: #1f2328; background: #f6f8fa; }
h1 { margin-bottom: 0.25rem; }
.meta { color: #59636e; margin-bottom: 1.5rem; }
.cards { display: flex; gap: 1rem; margin-bottom: 2rem; }
.card { flex: 1; background: #fff; border: 1px solid #d1d9e0; border-radius: 6px; padding: 1rem; text-align: center; }
.card .value { font-size: 2rem; font-weight: 600; }
.card.passed .value { color: #1a7f37; }
.card.failed .value { color: #d1242f; }
.card.retried .value { color: #9a6700; }
.test { background: #fff; border: 1px solid #d1d9e0; border-left-width: 4px; border-radius: 6px; padding: 0.75rem 1rem; margin-bottom: 0.75rem; }
.test.passed { border-left-color: #1a7f37; }
.test.failed { border-left-color: #d1242f; }
.test.skipped { border-left-color: #818b98; }
.test .details { color: #59636e; font-size: 0.9rem; }
.error { margin-top: 0.5rem; padding: 0.5rem; background: #ffebe9; border-radius: 4px; font-family: ui-monospace, monospace; white-space: pre-wrap; }
</style>
</head>
<body>
<h1>E2E Test Report</h1>
<div class="meta">{{.RunID}} &middot; {{.StartTime.Format "2006-01-02 15:04:05 MST"}} &middot; {{seconds .Duration}}</div>
<div class="cards">
  <div class="card"><div class="value">{{.Summary.Total}}</div><div>Total</div></div>
  <div class="card passed"><div class="value">{{.Summary.Passed}}</div><div>Passed</div></div>
  <div class="card failed"><div class="value">{{.Summary.Failed}}</div><div>Failed</div></div>
  <div class="card retried"><div class="value">{{.Summary.Retried}}</div><div>Retried</div></div>
</div>
<p class="rate">Pass rate: <strong>{{rate .Summary}}</strong></p>
{{range .Results}}
<div class="test {{.Status}}">
  <div><strong>{{glyph .Status}} {{.Name}}</strong></div>
  <div class="details">Module: {{.Module}} &middot; Duration: {{seconds .Duration}} &middot; Attempts: {{.Attempts}}{{if .AgentsDeployed}} &middot; Remediation: {{range $i, $a := .AgentsDeployed}}{{if $i}}, {{end}}{{$a}}{{end}}{{end}}</div>
  {{- if and (eq .Status "failed") .Error}}
  <div class="error">{{.Error.Message}}</div>
  {{- end}}
</div>
{{end}}
</body>
</html>
`))

func glyph(status schemas.TestStatus) string {
	switch status {
	case schemas.StatusPassed:
		return "✓"
	case schemas.StatusFailed:
		return "✗"
	default:
		return "-"
	}
}

func writeHTML(path string, report *schemas.TestRunReport) error {
	var buf bytes.Buffer
	if err := htmlReport.Execute(&buf, report); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
