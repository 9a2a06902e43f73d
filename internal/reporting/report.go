// internal/reporting/report.go
package reporting

import (
	"sync"
	"time"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

const runIDLayout = "20060102-150405.000"

var (
	runIDMu   sync.Mutex
	lastRunID time.Time
)

// NewRunID returns a time based run identifier. Identifiers handed out by one
// process are strictly increasing even when the clock has not moved.
func NewRunID() string {
	return runIDAt(time.Now())
}

func runIDAt(now time.Time) string {
	t := now.UTC().Truncate(time.Millisecond)

	runIDMu.Lock()
	if !t.After(lastRunID) {
		t = lastRunID.Add(time.Millisecond)
	}
	lastRunID = t
	runIDMu.Unlock()

	return "run-" + t.Format(runIDLayout)
}

// Summarize counts the results by terminal status. A result counts as retried
// when it took more than one attempt.
func Summarize(results []schemas.TestResult) schemas.Summary {
	s := schemas.Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case schemas.StatusPassed:
			s.Passed++
		case schemas.StatusFailed:
			s.Failed++
		case schemas.StatusSkipped:
			s.Skipped++
		}
		if r.Attempts > 1 {
			s.Retried++
		}
	}
	return s
}

// Build folds results into a report.
func Build(runID string, results []schemas.TestResult, start, end time.Time) *schemas.TestRunReport {
	if results == nil {
		results = []schemas.TestResult{}
	}
	return &schemas.TestRunReport{
		RunID:     runID,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start).Milliseconds(),
		Summary:   Summarize(results),
		Results:   results,
	}
}

// retain copies results, dropping console logs and screenshot paths the
// configuration does not keep. The caller's results are not modified.
func retain(results []schemas.TestResult, saveLogs, saveScreenshots bool) []schemas.TestResult {
	out := make([]schemas.TestResult, len(results))
	copy(out, results)
	if saveLogs && saveScreenshots {
		return out
	}

	for i := range out {
		r := &out[i]
		if !saveLogs {
			r.Logs = []schemas.ConsoleLog{}
		}
		if saveScreenshots {
			continue
		}
		r.Screenshots = []string{}
		r.Error = withoutScreenshot(r.Error)
		steps := make([]schemas.TestStepResult, len(r.Steps))
		for j, s := range r.Steps {
			s.ScreenshotPath = ""
			s.Error = withoutScreenshot(s.Error)
			steps[j] = s
		}
		r.Steps = steps
	}
	return out
}

func withoutScreenshot(e *schemas.TestError) *schemas.TestError {
	if e == nil || e.Screenshot == "" {
		return e
	}
	c := *e
	c.Screenshot = ""
	return &c
}
