package schemas

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ActionKind names a step action as it appears in a test definition.
type ActionKind string

const (
	ActionNavigate   ActionKind = "navigate"
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionWait       ActionKind = "wait"
	ActionAssert     ActionKind = "assert"
	ActionScreenshot ActionKind = "screenshot"
)

// Default per-action timeouts, used when a step does not set one.
const (
	DefaultNavigateTimeout   = 30 * time.Second
	DefaultClickTimeout      = 10 * time.Second
	DefaultTypeTimeout       = 10 * time.Second
	DefaultWaitTimeout       = 10 * time.Second
	DefaultAssertTimeout     = 5 * time.Second
	DefaultScreenshotTimeout = 10 * time.Second
)

// Action is the closed set of things a step can do. The marker method keeps
// implementations inside this package; callers dispatch through Accept.
type Action interface {
	Kind() ActionKind
	Accept(v ActionVisitor) error
	isAction()
}

// ActionVisitor handles every action kind. Adding a kind adds a method here,
// so every executor stops compiling until it handles it.
type ActionVisitor interface {
	VisitNavigate(NavigateAction) error
	VisitClick(ClickAction) error
	VisitType(TypeAction) error
	VisitWait(WaitAction) error
	VisitAssert(AssertAction) error
	VisitScreenshot(ScreenshotAction) error
}

type NavigateAction struct {
	URL     string
	Timeout time.Duration
}

type ClickAction struct {
	Selector string
	Timeout  time.Duration
}

type TypeAction struct {
	Selector string
	Text     string
	Timeout  time.Duration
}

// WaitAction waits for Selector when set, otherwise pauses for Duration.
type WaitAction struct {
	Selector string
	Duration time.Duration
	Timeout  time.Duration
}

type AssertAction struct {
	Selector string
	Timeout  time.Duration
}

// ScreenshotAction captures the page to Path. An empty Path lets the executor
// choose one.
type ScreenshotAction struct {
	Path    string
	Timeout time.Duration
}

func (NavigateAction) Kind() ActionKind   { return ActionNavigate }
func (ClickAction) Kind() ActionKind      { return ActionClick }
func (TypeAction) Kind() ActionKind       { return ActionType }
func (WaitAction) Kind() ActionKind       { return ActionWait }
func (AssertAction) Kind() ActionKind     { return ActionAssert }
func (ScreenshotAction) Kind() ActionKind { return ActionScreenshot }

func (a NavigateAction) Accept(v ActionVisitor) error   { return v.VisitNavigate(a) }
func (a ClickAction) Accept(v ActionVisitor) error      { return v.VisitClick(a) }
func (a TypeAction) Accept(v ActionVisitor) error       { return v.VisitType(a) }
func (a WaitAction) Accept(v ActionVisitor) error       { return v.VisitWait(a) }
func (a AssertAction) Accept(v ActionVisitor) error     { return v.VisitAssert(a) }
func (a ScreenshotAction) Accept(v ActionVisitor) error { return v.VisitScreenshot(a) }

func (NavigateAction) isAction()   {}
func (ClickAction) isAction()      {}
func (TypeAction) isAction()       {}
func (WaitAction) isAction()       {}
func (AssertAction) isAction()     {}
func (ScreenshotAction) isAction() {}

// Compile validates the step and returns its typed action.
func (s TestStep) Compile() (Action, error) {
	timeout := func(def time.Duration) time.Duration {
		if s.Timeout > 0 {
			return time.Duration(s.Timeout) * time.Millisecond
		}
		return def
	}

	switch ActionKind(strings.ToLower(strings.TrimSpace(s.Action))) {
	case ActionNavigate:
		if s.Value == "" {
			return nil, fmt.Errorf("navigate step %q requires a value (URL)", s.Label())
		}
		return NavigateAction{URL: s.Value, Timeout: timeout(DefaultNavigateTimeout)}, nil
	case ActionClick:
		if s.Selector == "" {
			return nil, fmt.Errorf("click step %q requires a selector", s.Label())
		}
		return ClickAction{Selector: s.Selector, Timeout: timeout(DefaultClickTimeout)}, nil
	case ActionType:
		if s.Selector == "" {
			return nil, fmt.Errorf("type step %q requires a selector", s.Label())
		}
		return TypeAction{Selector: s.Selector, Text: s.Value, Timeout: timeout(DefaultTypeTimeout)}, nil
	case ActionWait:
		if s.Selector != "" {
			return WaitAction{Selector: s.Selector, Timeout: timeout(DefaultWaitTimeout)}, nil
		}
		d, err := parseMillis(s.Value)
		if err != nil {
			return nil, fmt.Errorf("wait step %q: %w", s.Label(), err)
		}
		return WaitAction{Duration: d}, nil
	case ActionAssert:
		if s.Selector == "" {
			return nil, fmt.Errorf("assert step %q requires a selector", s.Label())
		}
		return AssertAction{Selector: s.Selector, Timeout: timeout(DefaultAssertTimeout)}, nil
	case ActionScreenshot:
		return ScreenshotAction{Path: s.Value, Timeout: timeout(DefaultScreenshotTimeout)}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", s.Action)
	}
}

// parseMillis accepts a bare millisecond count ("500") or a Go duration ("1.5s").
func parseMillis(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, fmt.Errorf("a duration value is required")
	}
	if ms, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(ms) || math.IsInf(ms, 0) || math.Abs(ms)*float64(time.Millisecond) >= math.MaxInt64 {
			return 0, fmt.Errorf("duration %q is out of range", v)
		}
		if ms < 0 {
			return 0, fmt.Errorf("duration %q must not be negative", v)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", v)
	}
	return d, nil
}
