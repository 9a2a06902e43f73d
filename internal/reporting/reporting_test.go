// internal/reporting/reporting_test.go
package reporting

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

var (
	runStart = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	runEnd   = runStart.Add(42 * time.Second)
)

func sampleResults() []schemas.TestResult {
	shot := "test-results/screenshots/rfi-create-error-attempt-3.png"
	return []schemas.TestResult{
		{
			TestID:         "login",
			Name:           "Login",
			Module:         "auth",
			Status:         schemas.StatusPassed,
			Attempts:       1,
			StartTime:      runStart,
			EndTime:        runStart.Add(1500 * time.Millisecond),
			Duration:       1500,
			Steps:          []schemas.TestStepResult{{StepIndex: 0, Step: schemas.TestStep{Action: "navigate", Value: "/login"}, Status: schemas.StepPassed, Duration: 900}},
			Screenshots:    []string{},
			Logs:           []schemas.ConsoleLog{{Level: "warning", Text: "deprecated API", Timestamp: runStart}},
			AgentsDeployed: []string{},
		},
		{
			TestID:    "rfi-create",
			Name:      "Create RFI",
			Module:    "rfis",
			Status:    schemas.StatusFailed,
			Attempts:  3,
			StartTime: runStart.Add(2 * time.Second),
			EndTime:   runStart.Add(30 * time.Second),
			Duration:  28000,
			Steps: []schemas.TestStepResult{{
				StepIndex:      0,
				Step:           schemas.TestStep{Action: "click", Selector: "#submit"},
				Status:         schemas.StepFailed,
				Duration:       10000,
				Error:          &schemas.TestError{Message: "Element not found: #submit", Type: schemas.KindUI, Selector: "#submit", Screenshot: shot},
				ScreenshotPath: "test-results/screenshots/rfi-create-step-1-attempt-3.png",
			}},
			Screenshots:    []string{shot},
			Logs:           []schemas.ConsoleLog{{Level: "error", Text: "Uncaught TypeError", Timestamp: runStart}},
			AgentsDeployed: []string{"code-review", "code-review"},
			Error: &schemas.TestError{
				Message:       "Element not found: #submit",
				Type:          schemas.KindUI,
				Selector:      "#submit",
				Screenshot:    shot,
				ConsoleErrors: []string{"Uncaught TypeError"},
				NetworkErrors: []schemas.NetworkError{},
			},
		},
		{
			TestID:         "reports",
			Name:           "Export reports",
			Module:         "reports",
			Status:         schemas.StatusSkipped,
			Screenshots:    []string{},
			Logs:           []schemas.ConsoleLog{},
			AgentsDeployed: []string{},
		},
	}
}

func newTestGenerator(t *testing.T, formats ...string) *Generator {
	t.Helper()
	return NewGenerator(config.ReportingConfig{
		OutputDir:       filepath.Join(t.TempDir(), "test-results"),
		Formats:         formats,
		SaveScreenshots: true,
		SaveLogs:        true,
	}, zaptest.NewLogger(t))
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name    string
		results []schemas.TestResult
		want    schemas.Summary
		rate    float64
	}{
		{name: "empty", want: schemas.Summary{}, rate: 0},
		{
			name:    "mixed",
			results: sampleResults(),
			want:    schemas.Summary{Total: 3, Passed: 1, Failed: 1, Skipped: 1, Retried: 1},
			rate:    100.0 / 3,
		},
		{
			name: "passed after retry counts as retried",
			results: []schemas.TestResult{
				{Status: schemas.StatusPassed, Attempts: 2},
				{Status: schemas.StatusPassed, Attempts: 1},
			},
			want: schemas.Summary{Total: 2, Passed: 2, Retried: 1},
			rate: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.results)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, tt.rate, got.PassRate(), 1e-9)
		})
	}
}

// FuzzSummarize checks the count invariants for arbitrary result mixes.
func FuzzSummarize(f *testing.F) {
	f.Add([]byte{0, 1, 2, 5, 9})
	f.Add([]byte{})

	statuses := []schemas.TestStatus{schemas.StatusPassed, schemas.StatusFailed, schemas.StatusSkipped}
	f.Fuzz(func(t *testing.T, data []byte) {
		results := make([]schemas.TestResult, len(data))
		retried := 0
		for i, b := range data {
			results[i] = schemas.TestResult{Status: statuses[int(b)%3], Attempts: int(b>>2) % 4}
			if results[i].Attempts > 1 {
				retried++
			}
		}

		s := Summarize(results)
		require.Equal(t, len(results), s.Total)
		require.Equal(t, s.Total, s.Passed+s.Failed+s.Skipped)
		require.Equal(t, retried, s.Retried)
		require.GreaterOrEqual(t, s.PassRate(), 0.0)
		require.LessOrEqual(t, s.PassRate(), 100.0)
	})
}

func TestRunID(t *testing.T) {
	pattern := regexp.MustCompile(`^run-\d{8}-\d{6}\.\d{3}$`)

	at := time.Date(2031, 2, 3, 4, 5, 6, 789_000_000, time.UTC)
	first := runIDAt(at)
	second := runIDAt(at)
	assert.Regexp(t, pattern, first)
	assert.Regexp(t, pattern, second)
	assert.Less(t, first, second, "a repeated timestamp is bumped forward")

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := NewRunID()
		require.False(t, seen[id], "duplicate run id %s", id)
		seen[id] = true
	}
}

func TestBuild(t *testing.T) {
	report := Build("run-x", nil, runStart, runEnd)
	assert.Equal(t, int64(42000), report.Duration)
	assert.NotNil(t, report.Results, "an empty run still serializes a results array")
	assert.Equal(t, schemas.Summary{}, report.Summary)
}

func TestGenerate_JSONOnly(t *testing.T) {
	g := newTestGenerator(t, config.FormatJSON)

	report, paths, err := g.Generate(context.Background(), sampleResults(), runStart, runEnd)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(g.cfg.OutputDir, report.RunID+".json"), paths[0])
	assert.NoFileExists(t, filepath.Join(g.cfg.OutputDir, report.RunID+".html"))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"runId\"", "two space indentation")

	var decoded schemas.TestRunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	if diff := cmp.Diff(report, &decoded); diff != "" {
		t.Errorf("persisted report mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, schemas.Summary{Total: 3, Passed: 1, Failed: 1, Skipped: 1, Retried: 1}, decoded.Summary)
}

func TestGenerate_AllFormats(t *testing.T) {
	formats := []string{config.FormatHTML, config.FormatJSON, config.FormatMarkdown, config.FormatJUnit, config.FormatPrometheus}
	g := newTestGenerator(t, formats...)

	report, paths, err := g.Generate(context.Background(), sampleResults(), runStart, runEnd)
	require.NoError(t, err)
	require.Len(t, paths, len(formats))
	for i, ext := range []string{".html", ".json", ".md", ".xml", ".prom"} {
		assert.Equal(t, filepath.Join(g.cfg.OutputDir, report.RunID+ext), paths[i])
		assert.FileExists(t, paths[i])
	}

	t.Run("html", func(t *testing.T) {
		data, err := os.ReadFile(paths[0])
		require.NoError(t, err)
		doc := string(data)
		assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
		assert.Contains(t, doc, "<style>", "the document is self-contained")
		assert.Contains(t, doc, `<div class="value">3</div><div>Total</div>`)
		assert.Contains(t, doc, `<div class="value">1</div><div>Retried</div>`)
		assert.Contains(t, doc, "33.3%")
		assert.Contains(t, doc, "✓ Login")
		assert.Contains(t, doc, "✗ Create RFI")
		assert.Contains(t, doc, "Attempts: 3")
		assert.Contains(t, doc, "Remediation: code-review, code-review")
		assert.Contains(t, doc, "Element not found: #submit")
		assert.Equal(t, 1, strings.Count(doc, `class="error"`), "only failed tests show an error")
	})

	t.Run("markdown", func(t *testing.T) {
		data, err := os.ReadFile(paths[2])
		require.NoError(t, err)
		doc := string(data)
		assert.Contains(t, doc, "| 3 | 1 | 1 | 1 | 1 | 33.3% |")
		assert.Contains(t, doc, "| ✗ | Create RFI | rfis | 3 | 28.00s | code-review, code-review |")
		assert.Contains(t, doc, "### Create RFI")
		assert.Contains(t, doc, "- **Kind:** ui-error")
	})

	t.Run("junit", func(t *testing.T) {
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromFile(paths[3]))

		suite := doc.FindElement("/testsuites/testsuite")
		require.NotNil(t, suite)
		assert.Equal(t, report.RunID, suite.SelectAttrValue("name", ""))
		assert.Equal(t, "3", suite.SelectAttrValue("tests", ""))
		assert.Equal(t, "1", suite.SelectAttrValue("failures", ""))
		assert.Equal(t, "1", suite.SelectAttrValue("skipped", ""))
		assert.Equal(t, "42.000", suite.SelectAttrValue("time", ""))

		cases := suite.SelectElements("testcase")
		require.Len(t, cases, 3)
		assert.Equal(t, "auth", cases[0].SelectAttrValue("classname", ""))
		assert.Nil(t, cases[0].SelectElement("failure"))

		failure := cases[1].SelectElement("failure")
		require.NotNil(t, failure)
		assert.Equal(t, "ui-error", failure.SelectAttrValue("type", ""))
		assert.Contains(t, failure.Text(), "selector: #submit")
		attempts := cases[1].FindElement("properties/property[@name='attempts']")
		require.NotNil(t, attempts)
		assert.Equal(t, "3", attempts.SelectAttrValue("value", ""))
		assert.Contains(t, cases[1].SelectElement("system-out").Text(), "[error] Uncaught TypeError")

		assert.NotNil(t, cases[2].SelectElement("skipped"))
	})

	t.Run("junit drops characters XML cannot carry", func(t *testing.T) {
		results := sampleResults()
		results[1].Name = "Create\x00 RFI"
		results[1].Error.Message = "\x1b[31mboom\x1b[0m\x07"
		results[1].Logs = []schemas.ConsoleLog{{Level: "error", Text: "\x1b[1mbold\x1b[0m\ufffe"}}
		path := filepath.Join(t.TempDir(), "control.xml")
		require.NoError(t, writeJUnit(path, Build("run-control", results, runStart, runStart.Add(time.Second))))

		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromFile(path), "the document stays well-formed")
		tc := doc.FindElement("/testsuites/testsuite/testcase[@classname='rfis']")
		require.NotNil(t, tc)
		assert.Equal(t, "Create RFI", tc.SelectAttrValue("name", ""))
		assert.Equal(t, "[31mboom[0m", tc.SelectElement("failure").SelectAttrValue("message", ""))
		assert.Equal(t, "[error] [1mbold[0m", strings.TrimSpace(tc.SelectElement("system-out").Text()))
	})

	t.Run("prometheus", func(t *testing.T) {
		data, err := os.ReadFile(paths[4])
		require.NoError(t, err)
		doc := string(data)
		assert.Contains(t, doc, `flowcheck_tests_total{status="passed"} 1`)
		assert.Contains(t, doc, `flowcheck_tests_total{status="failed"} 1`)
		assert.Contains(t, doc, `flowcheck_tests_total{status="skipped"} 1`)
		assert.Contains(t, doc, `flowcheck_attempts_total{module="rfis"} 3`)
		assert.Contains(t, doc, `flowcheck_remediations_total{handler="code-review"} 2`)
		assert.Contains(t, doc, `flowcheck_test_duration_seconds_count{module="auth",status="passed"} 1`)
		assert.Contains(t, doc, "flowcheck_run_duration_seconds 42")
		assert.Contains(t, doc, `flowcheck_run_info{run_id="`+report.RunID+`"} 1`)
	})
}

func TestGenerate_Retention(t *testing.T) {
	g := newTestGenerator(t, config.FormatJSON)
	g.cfg.SaveLogs = false
	g.cfg.SaveScreenshots = false

	results := sampleResults()
	report, paths, err := g.Generate(context.Background(), results, runStart, runEnd)
	require.NoError(t, err)

	failed := report.Results[1]
	assert.Empty(t, failed.Logs)
	assert.NotNil(t, failed.Logs)
	assert.Empty(t, failed.Screenshots)
	assert.Empty(t, failed.Error.Screenshot)
	assert.Empty(t, failed.Steps[0].ScreenshotPath)
	assert.Empty(t, failed.Steps[0].Error.Screenshot)
	assert.Equal(t, "Element not found: #submit", failed.Error.Message, "everything else is kept")

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "rfi-create-error-attempt-3.png")
	assert.NotContains(t, string(data), "deprecated API")

	// The caller's results are left intact.
	assert.Len(t, results[1].Logs, 1)
	assert.NotEmpty(t, results[1].Error.Screenshot)
	assert.NotEmpty(t, results[1].Steps[0].Error.Screenshot)
	assert.NotEmpty(t, results[1].Steps[0].ScreenshotPath)
}

func TestGenerate_Errors(t *testing.T) {
	t.Run("unknown format", func(t *testing.T) {
		g := newTestGenerator(t, config.FormatJSON, "pdf")
		_, paths, err := g.Generate(context.Background(), sampleResults(), runStart, runEnd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported report format: pdf")
		assert.Nil(t, paths)
		assert.NoDirExists(t, g.cfg.OutputDir, "nothing is written")
	})

	t.Run("output dir is a file", func(t *testing.T) {
		g := newTestGenerator(t, config.FormatJSON)
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
		g.cfg.OutputDir = filepath.Join(blocker, "out")

		report, _, err := g.Generate(context.Background(), sampleResults(), runStart, runEnd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "creating report directory")
		require.NotNil(t, report, "the summary is available even when persisting fails")
		assert.Equal(t, 1, report.Summary.Failed)
	})

	t.Run("canceled", func(t *testing.T) {
		g := newTestGenerator(t, config.FormatJSON, config.FormatHTML)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := g.Generate(ctx, sampleResults(), runStart, runEnd)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
