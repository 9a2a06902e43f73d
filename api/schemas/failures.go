package schemas

import (
	"fmt"
	"time"
)

// ElementNotFoundError is returned when a selector never appeared within its
// timeout. Its message keeps the "waiting for selector" wording so a
// classifier sees a selector wait rather than a generic timeout.
type ElementNotFoundError struct {
	Selector string
	Timeout  time.Duration
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("waiting for selector %q failed: timeout %s exceeded", e.Selector, e.Timeout)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// AssertionError is returned by an assert step whose element does not exist.
type AssertionError struct {
	Selector string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: element not found: %s", e.Selector)
}
