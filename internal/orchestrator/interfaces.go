// internal/orchestrator/interfaces.go
package orchestrator

import (
	"context"
	"time"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// Browser is the single page the control loop drives. *browser.Client
// implements it.
type Browser interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)

	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	ElementExists(ctx context.Context, selector string, timeout time.Duration) bool
	Screenshot(ctx context.Context, path string, timeout time.Duration) error
	Wait(ctx context.Context, d time.Duration) error

	ConsoleLogs() []schemas.ConsoleLog
	ConsoleErrors() []string
	NetworkErrors() []schemas.NetworkError
	Exceptions() []schemas.PageException
	ClearLogs()

	ShowProgress(ctx context.Context, state schemas.OverlayState) error
}

// SuiteLoader supplies the tests of a run.
type SuiteLoader interface {
	Load(ctx context.Context) ([]schemas.FeatureTest, error)
}

// Reporter folds the results into a report and persists it, returning the
// written artifact paths.
type Reporter interface {
	Generate(ctx context.Context, results []schemas.TestResult, start, end time.Time) (*schemas.TestRunReport, []string, error)
}

// Clock abstracts time so the loop's delays can be observed in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
