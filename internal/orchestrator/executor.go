// internal/orchestrator/executor.go
package orchestrator

import (
	"context"
	"errors"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/classifier"
)

// stepExecutor maps each action kind onto one browser call.
type stepExecutor struct {
	ctx     context.Context
	browser Browser
	// shotPath picks where a screenshot step writes.
	shotPath func(requested string) string
	// shot is the path written by the last screenshot step.
	shot string
}

var _ schemas.ActionVisitor = (*stepExecutor)(nil)

func (e *stepExecutor) VisitNavigate(a schemas.NavigateAction) error {
	return e.browser.Navigate(e.ctx, a.URL, a.Timeout)
}

func (e *stepExecutor) VisitClick(a schemas.ClickAction) error {
	return e.browser.Click(e.ctx, a.Selector, a.Timeout)
}

func (e *stepExecutor) VisitType(a schemas.TypeAction) error {
	return e.browser.Type(e.ctx, a.Selector, a.Text, a.Timeout)
}

func (e *stepExecutor) VisitWait(a schemas.WaitAction) error {
	if a.Selector != "" {
		return e.browser.WaitForSelector(e.ctx, a.Selector, a.Timeout)
	}
	return e.browser.Wait(e.ctx, a.Duration)
}

func (e *stepExecutor) VisitAssert(a schemas.AssertAction) error {
	if !e.browser.ElementExists(e.ctx, a.Selector, a.Timeout) {
		return &schemas.AssertionError{Selector: a.Selector}
	}
	return nil
}

func (e *stepExecutor) VisitScreenshot(a schemas.ScreenshotAction) error {
	path := e.shotPath(a.Path)
	if err := e.browser.Screenshot(e.ctx, path, a.Timeout); err != nil {
		return err
	}
	e.shot = path
	return nil
}

// describeFailure turns a step error into a classified TestError carrying
// the diagnostics the page has produced so far in this attempt. Exceptions
// recorded after index since are attributed to the step.
func describeFailure(b Browser, step schemas.TestStep, err error, since int) *schemas.TestError {
	te := &schemas.TestError{
		Message:       err.Error(),
		Selector:      step.Selector,
		ElementFound:  step.Selector != "",
		ConsoleErrors: nonNil(b.ConsoleErrors()),
		NetworkErrors: nonNil(b.NetworkErrors()),
	}

	var notFound *schemas.ElementNotFoundError
	var assertion *schemas.AssertionError
	if errors.As(err, &notFound) || errors.As(err, &assertion) {
		te.ElementFound = false
	}

	if exc := b.Exceptions(); len(exc) > since {
		last := exc[len(exc)-1]
		te.Stack = last.Stack
		if te.Stack == "" {
			te.Stack = last.Message
		}
	}

	te.Type = classifier.Classify(*te)
	return te
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
