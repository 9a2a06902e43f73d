// File: internal/orchestrator/orchestrator.go
// Description: Drives every loaded test to a verdict, one at a time, with
// bounded retries and remediation dispatch between attempts.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/remediation"
	"github.com/xkilldash9x/flowcheck/internal/suite"
)

// ScreenshotDir is the directory under reporting.outputDir that receives
// every screenshot taken during a run.
const ScreenshotDir = "screenshots"

// Dependencies are the collaborators of an Orchestrator. Browser, Loader,
// Dispatcher and Reporter are required.
type Dependencies struct {
	Browser    Browser
	Loader     SuiteLoader
	Dispatcher remediation.Dispatcher
	Strategy   remediation.Strategy // fire-and-forget when nil
	Reporter   Reporter
	Progress   io.Writer // per-test progress lines; discarded when nil
	Clock      Clock     // wall clock when nil
}

// Orchestrator is the control loop of a run.
type Orchestrator struct {
	cfg        config.Interface
	logger     *zap.Logger
	browser    Browser
	loader     SuiteLoader
	dispatcher remediation.Dispatcher
	strategy   remediation.Strategy
	reporter   Reporter
	progress   io.Writer
	clock      Clock
}

// New creates an Orchestrator.
func New(cfg config.Interface, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		deps.Browser == nil ||
		deps.Loader == nil ||
		deps.Dispatcher == nil ||
		deps.Reporter == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}

	o := &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		browser:    deps.Browser,
		loader:     deps.Loader,
		dispatcher: deps.Dispatcher,
		strategy:   deps.Strategy,
		reporter:   deps.Reporter,
		progress:   deps.Progress,
		clock:      deps.Clock,
	}
	if o.strategy == nil {
		o.strategy = remediation.NewFireAndForget(logger)
	}
	if o.progress == nil {
		o.progress = io.Discard
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	return o, nil
}

// Run connects the browser, runs the suite and writes the report. The
// browser is disconnected on every path out. An interrupted run still
// writes a report, with the tests it never reached marked skipped.
func (o *Orchestrator) Run(ctx context.Context) (*schemas.TestRunReport, error) {
	start := o.clock.Now()
	o.logger.Info("Starting run.")

	if err := o.browser.Connect(ctx); err != nil {
		o.browser.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer o.browser.Disconnect(context.WithoutCancel(ctx))

	tests, err := o.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load test suite: %w", err)
	}
	tests = suite.Filter(tests, o.cfg.Features())
	o.logger.Info("Suite loaded.", zap.Int("tests", len(tests)), zap.Strings("features", o.cfg.Features()))

	results := make([]schemas.TestResult, 0, len(tests))
	halted := ""
	for _, test := range tests {
		if halted == "" && ctx.Err() != nil {
			halted = "run interrupted"
		}
		if halted != "" {
			r := o.skipped(test, halted)
			results = append(results, r)
			o.printResult(r)
			continue
		}

		r := o.runTest(ctx, test)
		results = append(results, r)
		o.printResult(r)

		if r.Status == schemas.StatusFailed && !o.cfg.Orchestrator().ContinueOnFailure {
			halted = fmt.Sprintf("stopped after %q failed", test.ID)
			o.logger.Warn("Stopping run after a failed test.", zap.String("test_id", test.ID))
		}
	}

	if cooldown := o.cfg.Orchestrator().FinalCooldown; cooldown > 0 && ctx.Err() == nil {
		o.logger.Info("Suite complete; keeping the browser open.", zap.Duration("cooldown", cooldown))
		_ = o.clock.Sleep(ctx, cooldown)
	}

	report, paths, err := o.reporter.Generate(context.WithoutCancel(ctx), results, start, o.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	o.printSummary(report, paths)
	o.logger.Info("Run finished.",
		zap.String("run_id", report.RunID),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("failed", report.Summary.Failed))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run interrupted: %w", err)
	}
	return report, nil
}

// attempt is what one pass over a test's steps produced.
type attempt struct {
	steps      []schemas.TestStepResult
	err        *schemas.TestError
	failedStep string
}

func (o *Orchestrator) runTest(ctx context.Context, test schemas.FeatureTest) schemas.TestResult {
	ocfg := o.cfg.Orchestrator()
	maxAttempts := ocfg.MaxRetries + 1
	logger := o.logger.With(zap.String("test_id", test.ID))

	result := schemas.TestResult{
		TestID:         test.ID,
		Name:           test.Name,
		Module:         test.Module,
		StartTime:      o.clock.Now(),
		Steps:          []schemas.TestStepResult{},
		Screenshots:    []string{},
		Logs:           []schemas.ConsoleLog{},
		AgentsDeployed: []string{},
	}
	logger.Info("Running test.", zap.String("name", test.Name), zap.Int("max_attempts", maxAttempts))

	for n := 1; n <= maxAttempts; n++ {
		result.Attempts = n
		a := o.runAttempt(ctx, test, n)
		result.Steps = a.steps

		if a.err == nil {
			result.Status = schemas.StatusPassed
			result.Error = nil
			result.Logs = nonNil(o.browser.ConsoleLogs())
			logger.Info("Test passed.", zap.Int("attempt", n))
			break
		}

		logger.Warn("Attempt failed.",
			zap.Int("attempt", n),
			zap.String("step", a.failedStep),
			zap.String("kind", string(a.err.Type)),
			zap.String("error", a.err.Message))

		if ocfg.ScreenshotOnError {
			path := o.screenshotPath(fmt.Sprintf("%s-error-attempt-%d.png", remediation.SafeName(test.ID), n))
			if err := o.browser.Screenshot(context.WithoutCancel(ctx), path, schemas.DefaultScreenshotTimeout); err != nil {
				logger.Warn("Failed to capture error screenshot.", zap.Error(err))
			} else {
				result.Screenshots = append(result.Screenshots, path)
				a.err.Screenshot = path
			}
		}
		o.pauseOnError(ctx)

		if n < maxAttempts && ctx.Err() == nil {
			req := remediation.NewRequest(test, n, a.failedStep, *a.err)
			out := o.strategy.Remediate(ctx, o.dispatcher, req)
			result.AgentsDeployed = append(result.AgentsDeployed, string(out.Handler))
			fmt.Fprintf(o.progress, "  ↻ %s: attempt %d/%d failed (%s), dispatched %s\n",
				test.Name, n, maxAttempts, a.err.Type, out.Handler)

			_ = o.clock.Sleep(ctx, ocfg.RetryDelay)
			continue
		}

		result.Status = schemas.StatusFailed
		result.Error = a.err
		result.Logs = nonNil(o.browser.ConsoleLogs())
		logger.Error("Test failed.", zap.Int("attempts", n), zap.String("error", a.err.Message))
		break
	}

	o.runCleanup(ctx, test)

	result.EndTime = o.clock.Now()
	result.Duration = result.EndTime.Sub(result.StartTime).Milliseconds()
	return result
}

// runAttempt clears the diagnostics and executes the steps in order. The
// first failed step's error is the attempt's error; a critical failure or an
// expired attempt deadline ends the attempt.
func (o *Orchestrator) runAttempt(ctx context.Context, test schemas.FeatureTest, n int) attempt {
	if test.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(test.MaxDuration)*time.Millisecond)
		defer cancel()
	}

	o.browser.ClearLogs()

	var a attempt
	for i, step := range test.Steps {
		o.showProgress(ctx, test, i, step, n-1)

		sr := o.runStep(ctx, test, n, i, step)
		a.steps = append(a.steps, sr)
		if sr.Error == nil {
			continue
		}
		if a.err == nil {
			a.err = sr.Error
			a.failedStep = step.Label()
		}
		if step.IsCritical() || ctx.Err() != nil {
			break
		}
	}
	return a
}

func (o *Orchestrator) runStep(ctx context.Context, test schemas.FeatureTest, n, index int, step schemas.TestStep) schemas.TestStepResult {
	result := schemas.TestStepResult{StepIndex: index, Step: step}
	start := o.clock.Now()
	since := len(o.browser.Exceptions())

	exec := &stepExecutor{
		ctx:     ctx,
		browser: o.browser,
		shotPath: func(requested string) string {
			if requested == "" {
				requested = fmt.Sprintf("%s-step-%d-attempt-%d.png", remediation.SafeName(test.ID), index+1, n)
			}
			if filepath.IsAbs(requested) {
				return requested
			}
			return o.screenshotPath(requested)
		},
	}

	action, err := step.Compile()
	if err == nil {
		err = action.Accept(exec)
	}
	result.Duration = o.clock.Now().Sub(start).Milliseconds()
	result.ScreenshotPath = exec.shot

	if err == nil {
		result.Status = schemas.StepPassed
		return result
	}
	result.Status = schemas.StepFailed
	result.Error = describeFailure(o.browser, step, err, since)
	return result
}

// runCleanup runs the cleanup steps once, best effort. Their outcome never
// changes the verdict.
func (o *Orchestrator) runCleanup(ctx context.Context, test schemas.FeatureTest) {
	if len(test.Cleanup) == 0 || ctx.Err() != nil {
		return
	}
	exec := &stepExecutor{
		ctx:      ctx,
		browser:  o.browser,
		shotPath: func(string) string { return o.screenshotPath(test.ID + "-cleanup.png") },
	}
	for _, step := range test.Cleanup {
		action, err := step.Compile()
		if err == nil {
			err = action.Accept(exec)
		}
		if err != nil {
			o.logger.Warn("Cleanup step failed.",
				zap.String("test_id", test.ID),
				zap.String("step", step.Label()),
				zap.Error(err))
		}
	}
}

func (o *Orchestrator) skipped(test schemas.FeatureTest, reason string) schemas.TestResult {
	now := o.clock.Now()
	o.logger.Info("Skipping test.", zap.String("test_id", test.ID), zap.String("reason", reason))
	return schemas.TestResult{
		TestID:         test.ID,
		Name:           test.Name,
		Module:         test.Module,
		Status:         schemas.StatusSkipped,
		StartTime:      now,
		EndTime:        now,
		Steps:          []schemas.TestStepResult{},
		Screenshots:    []string{},
		Logs:           []schemas.ConsoleLog{},
		AgentsDeployed: []string{},
	}
}

func (o *Orchestrator) pauseOnError(ctx context.Context) {
	ocfg := o.cfg.Orchestrator()
	if !ocfg.PauseOnError || o.cfg.Chrome().Headless || ocfg.ErrorPause <= 0 {
		return
	}
	o.logger.Info("Pausing on error for inspection.", zap.Duration("pause", ocfg.ErrorPause))
	_ = o.clock.Sleep(ctx, ocfg.ErrorPause)
}

func (o *Orchestrator) showProgress(ctx context.Context, test schemas.FeatureTest, index int, step schemas.TestStep, retries int) {
	state := schemas.OverlayState{
		TestName: test.Name,
		Step:     index + 1,
		Total:    len(test.Steps),
		Status:   "Running: " + step.Label(),
		Retries:  retries,
	}
	if err := o.browser.ShowProgress(ctx, state); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Debug("Overlay update failed.", zap.Error(err))
	}
}

func (o *Orchestrator) screenshotPath(name string) string {
	return filepath.Join(o.cfg.Reporting().OutputDir, ScreenshotDir, name)
}

// -- Progress output --

func (o *Orchestrator) printResult(r schemas.TestResult) {
	switch r.Status {
	case schemas.StatusPassed:
		if r.Attempts > 1 {
			fmt.Fprintf(o.progress, "✓ %s (%dms, passed on attempt %d)\n", r.Name, r.Duration, r.Attempts)
		} else {
			fmt.Fprintf(o.progress, "✓ %s (%dms)\n", r.Name, r.Duration)
		}
	case schemas.StatusFailed:
		fmt.Fprintf(o.progress, "✗ %s (failed after %d attempts)\n", r.Name, r.Attempts)
	default:
		fmt.Fprintf(o.progress, "- %s (skipped)\n", r.Name)
	}
}

func (o *Orchestrator) printSummary(report *schemas.TestRunReport, paths []string) {
	s := report.Summary
	fmt.Fprintf(o.progress, "\nTotal: %d  Passed: %d  Failed: %d  Skipped: %d  Retried: %d  (%.1f%% pass rate)\n",
		s.Total, s.Passed, s.Failed, s.Skipped, s.Retried, s.PassRate())
	for _, p := range paths {
		fmt.Fprintf(o.progress, "  report: %s\n", p)
	}
}
