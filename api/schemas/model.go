package schemas

import (
	"time"
)

// -- Enumerations --

// ErrorKind is the root-cause label the classifier assigns to a failure.
type ErrorKind string

const (
	KindBuild    ErrorKind = "build-error"
	KindDatabase ErrorKind = "database-error"
	KindRuntime  ErrorKind = "runtime-error"
	KindNetwork  ErrorKind = "network-error"
	KindUI       ErrorKind = "ui-error"
	KindTimeout  ErrorKind = "timeout-error"
	KindUnknown  ErrorKind = "unknown-error"
)

// ErrorKinds lists every kind in classification precedence order.
var ErrorKinds = []ErrorKind{
	KindBuild,
	KindDatabase,
	KindNetwork,
	KindUI,
	KindRuntime,
	KindTimeout,
	KindUnknown,
}

// TestStatus is the terminal verdict of a test.
type TestStatus string

const (
	StatusPassed  TestStatus = "passed"
	StatusFailed  TestStatus = "failed"
	StatusSkipped TestStatus = "skipped"
)

// StepStatus is the outcome of a single step execution.
type StepStatus string

const (
	StepPassed StepStatus = "passed"
	StepFailed StepStatus = "failed"
)

// -- Test Definitions --

// TestStep is one action in a scripted flow. Timeout and values are kept as
// loaded; Compile turns a step into its typed Action.
type TestStep struct {
	Action      string `json:"action"`
	Selector    string `json:"selector,omitempty"`
	Value       string `json:"value,omitempty"`
	Timeout     int64  `json:"timeout,omitempty"` // milliseconds
	Description string `json:"description"`
	Critical    *bool  `json:"critical,omitempty"`
}

// IsCritical reports whether a failure of this step aborts the attempt.
// Steps that do not say otherwise are critical.
func (s TestStep) IsCritical() bool {
	return s.Critical == nil || *s.Critical
}

// Label returns the description, falling back to the action and target.
func (s TestStep) Label() string {
	if s.Description != "" {
		return s.Description
	}
	if s.Selector != "" {
		return s.Action + " " + s.Selector
	}
	if s.Value != "" {
		return s.Action + " " + s.Value
	}
	return s.Action
}

// FeatureTest is a named, ordered sequence of steps. One test is one unit of
// pass/fail/retry.
type FeatureTest struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Module        string     `json:"module"`
	Prerequisites []string   `json:"prerequisites,omitempty"`
	Steps         []TestStep `json:"steps"`
	Cleanup       []TestStep `json:"cleanup,omitempty"`
	MaxDuration   int64      `json:"maxDuration,omitempty"` // milliseconds
}

// -- Diagnostics --

// NetworkError records an HTTP response with status >= 400.
type NetworkError struct {
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	StatusText string    `json:"statusText"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConsoleLog is a console message of level error or warning.
type ConsoleLog struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PageException is an uncaught exception thrown by page script.
type PageException struct {
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TestError is both the classifier's input and its output: Type is assigned
// once the failure has been classified.
type TestError struct {
	Message       string         `json:"message"`
	Type          ErrorKind      `json:"type"`
	Stack         string         `json:"stack,omitempty"`
	Selector      string         `json:"selector,omitempty"`
	ElementFound  bool           `json:"elementFound"`
	Screenshot    string         `json:"screenshot,omitempty"`
	ConsoleErrors []string       `json:"consoleErrors"`
	NetworkErrors []NetworkError `json:"networkErrors"`
}

// -- Results --

// TestStepResult is the outcome of one step execution.
type TestStepResult struct {
	StepIndex      int        `json:"stepIndex"`
	Step           TestStep   `json:"step"`
	Status         StepStatus `json:"status"`
	Duration       int64      `json:"duration"` // milliseconds
	Error          *TestError `json:"error,omitempty"`
	ScreenshotPath string     `json:"screenshotPath,omitempty"`
}

// TestResult is the outcome of one test across all attempts. Steps hold the
// final attempt only.
type TestResult struct {
	TestID         string           `json:"testId"`
	Name           string           `json:"name"`
	Module         string           `json:"module"`
	Status         TestStatus       `json:"status"`
	Attempts       int              `json:"attempts"`
	StartTime      time.Time        `json:"startTime"`
	EndTime        time.Time        `json:"endTime"`
	Duration       int64            `json:"duration"` // milliseconds
	Steps          []TestStepResult `json:"steps"`
	Screenshots    []string         `json:"screenshots"`
	Logs           []ConsoleLog     `json:"logs"`
	AgentsDeployed []string         `json:"agentsDeployed"`
	Error          *TestError       `json:"error,omitempty"`
}

// Summary holds the aggregate counts of a run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Retried int `json:"retried"`
}

// PassRate returns the passed percentage, or 0 for an empty run.
func (s Summary) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

// TestRunReport is the whole run.
type TestRunReport struct {
	RunID     string       `json:"runId"`
	StartTime time.Time    `json:"startTime"`
	EndTime   time.Time    `json:"endTime"`
	Duration  int64        `json:"duration"` // milliseconds
	Summary   Summary      `json:"summary"`
	Results   []TestResult `json:"results"`
}

// -- Operator Affordances --

// OverlayState is what the on-page overlay shows before each step.
type OverlayState struct {
	TestName string `json:"testName"`
	Step     int    `json:"step"`
	Total    int    `json:"total"`
	Status   string `json:"status"`
	Retries  int    `json:"retries"`
}
