// -- cmd/run.go --
package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/orchestrator"
	"github.com/xkilldash9x/flowcheck/internal/remediation"
	"github.com/xkilldash9x/flowcheck/internal/reporting"
	"github.com/xkilldash9x/flowcheck/internal/suite"
)

// remediationDir is where request documents land when remediation.requestDir
// is not set.
const remediationDir = "remediation"

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test suite against the application",
		Long: `Loads every test definition, drives the browser through each test with
bounded retries, dispatches remediation between failed attempts and writes
the run report. Exits non-zero when any test failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			orch, err := buildOrchestrator(cfg, cmd.OutOrStdout(), observability.GetLogger())
			if err != nil {
				return err
			}

			report, err := orch.Run(cmd.Context())
			if err != nil {
				return err
			}
			if report.Summary.Failed > 0 {
				return ErrTestsFailed
			}
			return nil
		},
	}

	cmd.Flags().Bool("headless", true, "Run the browser without a window (overrides chrome.headless)")
	cmd.Flags().Int("max-retries", 2, "Retries after the first attempt (overrides orchestrator.maxRetries)")
	cmd.Flags().StringSlice("feature", nil, "Only run tests of these modules (overrides features)")
	cmd.Flags().StringSlice("format", nil, "Report formats: html, json, markdown, junit, prometheus (overrides reporting.formats)")
	cmd.Flags().String("output-dir", "", "Directory for reports and screenshots (overrides reporting.outputDir)")
	cmd.Flags().String("tests-dir", "", "Directory of test definitions (overrides suite.dir)")
	cmd.Flags().String("base-url", "", "Base URL relative navigation targets resolve against (overrides suite.baseURL)")
	return cmd
}

// buildOrchestrator wires the production collaborators from cfg.
func buildOrchestrator(cfg *config.Config, progress io.Writer, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	requestDir := cfg.Remediation().RequestDir
	if requestDir == "" {
		requestDir = filepath.Join(cfg.Reporting().OutputDir, remediationDir)
	}
	dispatcher, err := remediation.NewDispatcher(cfg.Remediation(), requestDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remediation dispatcher: %w", err)
	}
	strategy, err := remediation.NewStrategy(cfg.Remediation(), logger, cfg.Reporting().OutputDir, requestDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remediation strategy: %w", err)
	}

	logger.Info("Starting run.",
		zap.String("version", Version),
		zap.String("tests_dir", cfg.Suite().Dir),
		zap.String("base_url", cfg.Suite().BaseURL),
		zap.Int("max_retries", cfg.Orchestrator().MaxRetries),
		zap.Strings("features", cfg.Features()),
		zap.String("strategy", strategy.Name()))

	return orchestrator.New(cfg, orchestrator.Dependencies{
		Browser:    browser.NewClient(cfg.Chrome(), cfg.Suite().BaseURL, nil, nil, logger),
		Loader:     suite.NewLoader(cfg.Suite().Dir, logger),
		Dispatcher: dispatcher,
		Strategy:   strategy,
		Reporter:   reporting.NewGenerator(cfg.Reporting(), logger),
		Progress:   progress,
	}, logger)
}
