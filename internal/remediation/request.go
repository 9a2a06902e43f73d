// internal/remediation/request.go
package remediation

import (
	"context"

	"github.com/google/uuid"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/classifier"
)

// Request is everything a remediation handler gets about one failed attempt.
type Request struct {
	ID       string               `json:"id"`
	TestID   string               `json:"testId"`
	TestName string               `json:"testName"`
	Attempt  int                  `json:"attempt"`
	Step     string               `json:"step"`
	Kind     schemas.ErrorKind    `json:"kind"`
	Handler  classifier.HandlerID `json:"handler"`
	Error    schemas.TestError    `json:"error"`
	Context  string               `json:"context"`
}

// NewRequest classifies testErr, routes it and renders its context document.
func NewRequest(test schemas.FeatureTest, attempt int, step string, testErr schemas.TestError) Request {
	kind := testErr.Type
	if kind == "" {
		kind = classifier.Classify(testErr)
		testErr.Type = kind
	}
	return Request{
		ID:       uuid.New().String(),
		TestID:   test.ID,
		TestName: test.Name,
		Attempt:  attempt,
		Step:     step,
		Kind:     kind,
		Handler:  classifier.Route(kind),
		Error:    testErr,
		Context:  classifier.BuildErrorContext(testErr, test.ID, step),
	}
}

// Outcome reports what a dispatch achieved. Completed means the handler
// signalled that a fix is in place.
type Outcome struct {
	Handler   classifier.HandlerID `json:"handler"`
	Completed bool                 `json:"completed"`
	Detail    string               `json:"detail,omitempty"`
}

// Dispatcher hands a request to a remediation handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (Outcome, error)
}
