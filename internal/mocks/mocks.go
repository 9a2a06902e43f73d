// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/remediation"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Chrome() config.ChromeConfig {
	args := m.Called()
	return args.Get(0).(config.ChromeConfig)
}

func (m *MockConfig) Orchestrator() config.OrchestratorConfig {
	args := m.Called()
	return args.Get(0).(config.OrchestratorConfig)
}

func (m *MockConfig) Reporting() config.ReportingConfig {
	args := m.Called()
	return args.Get(0).(config.ReportingConfig)
}

func (m *MockConfig) Suite() config.SuiteConfig {
	args := m.Called()
	return args.Get(0).(config.SuiteConfig)
}

func (m *MockConfig) Remediation() config.RemediationConfig {
	args := m.Called()
	return args.Get(0).(config.RemediationConfig)
}

func (m *MockConfig) Features() []string {
	args := m.Called()
	if f := args.Get(0); f != nil {
		return f.([]string)
	}
	return nil
}

// -- Browser Mock --

// MockBrowser mocks the page the orchestrator drives.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) Connect(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockBrowser) Disconnect(ctx context.Context)    { m.Called(ctx) }

func (m *MockBrowser) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return m.Called(ctx, url, timeout).Error(0)
}

func (m *MockBrowser) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockBrowser) Type(ctx context.Context, selector, text string, timeout time.Duration) error {
	return m.Called(ctx, selector, text, timeout).Error(0)
}

func (m *MockBrowser) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return m.Called(ctx, selector, timeout).Error(0)
}

func (m *MockBrowser) ElementExists(ctx context.Context, selector string, timeout time.Duration) bool {
	return m.Called(ctx, selector, timeout).Bool(0)
}

func (m *MockBrowser) Screenshot(ctx context.Context, path string, timeout time.Duration) error {
	return m.Called(ctx, path, timeout).Error(0)
}

func (m *MockBrowser) Wait(ctx context.Context, d time.Duration) error {
	return m.Called(ctx, d).Error(0)
}

func (m *MockBrowser) ConsoleLogs() []schemas.ConsoleLog {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]schemas.ConsoleLog)
	}
	return nil
}

func (m *MockBrowser) ConsoleErrors() []string {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]string)
	}
	return nil
}

func (m *MockBrowser) NetworkErrors() []schemas.NetworkError {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]schemas.NetworkError)
	}
	return nil
}

func (m *MockBrowser) Exceptions() []schemas.PageException {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]schemas.PageException)
	}
	return nil
}

func (m *MockBrowser) ClearLogs() { m.Called() }

func (m *MockBrowser) ShowProgress(ctx context.Context, state schemas.OverlayState) error {
	return m.Called(ctx, state).Error(0)
}

// -- Suite Mock --

// MockSuiteLoader mocks the test suite source.
type MockSuiteLoader struct {
	mock.Mock
}

func (m *MockSuiteLoader) Load(ctx context.Context) ([]schemas.FeatureTest, error) {
	args := m.Called(ctx)
	var tests []schemas.FeatureTest
	if v := args.Get(0); v != nil {
		tests = v.([]schemas.FeatureTest)
	}
	return tests, args.Error(1)
}

// -- Reporting Mock --

// MockReporter mocks the report generator.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Generate(ctx context.Context, results []schemas.TestResult, start, end time.Time) (*schemas.TestRunReport, []string, error) {
	args := m.Called(ctx, results, start, end)
	var report *schemas.TestRunReport
	if v := args.Get(0); v != nil {
		report = v.(*schemas.TestRunReport)
	}
	var paths []string
	if v := args.Get(1); v != nil {
		paths = v.([]string)
	}
	return report, paths, args.Error(2)
}

// -- Remediation Mocks --

// MockDispatcher mocks a remediation handler.
type MockDispatcher struct {
	mock.Mock
}

var _ remediation.Dispatcher = (*MockDispatcher)(nil)

func (m *MockDispatcher) Dispatch(ctx context.Context, req remediation.Request) (remediation.Outcome, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(remediation.Outcome), args.Error(1)
}

// MockStrategy mocks a remediation strategy.
type MockStrategy struct {
	mock.Mock
}

var _ remediation.Strategy = (*MockStrategy)(nil)

func (m *MockStrategy) Name() string { return m.Called().String(0) }

func (m *MockStrategy) Remediate(ctx context.Context, d remediation.Dispatcher, req remediation.Request) remediation.Outcome {
	args := m.Called(ctx, d, req)
	return args.Get(0).(remediation.Outcome)
}
