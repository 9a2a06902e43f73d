// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// combineContext returns a context that carries the values of base (the
// chromedp target) and is canceled when either base or caller is done. When
// caller has a deadline, the combined context inherits it so an expired
// caller surfaces as context.DeadlineExceeded rather than a plain cancel.
func combineContext(base, caller context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if deadline, ok := caller.Deadline(); ok {
		combined, cancel = context.WithDeadline(base, deadline)
	} else {
		combined, cancel = context.WithCancel(base)
	}

	go func() {
		select {
		case <-caller.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// operationContext bounds a single browser operation by timeout on top of
// combineContext. A zero timeout means no extra bound.
func operationContext(base, caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	combined, cancelCombined := combineContext(base, caller)
	if timeout <= 0 {
		return combined, cancelCombined
	}
	opCtx, cancelOp := context.WithTimeout(combined, timeout)
	return opCtx, func() {
		cancelOp()
		cancelCombined()
	}
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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
