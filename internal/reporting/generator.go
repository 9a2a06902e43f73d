// internal/reporting/generator.go
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/flowcheck/api/schemas"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

// writeFunc persists report in one format at path.
type writeFunc func(path string, report *schemas.TestRunReport) error

type format struct {
	ext   string
	write writeFunc
}

var formats = map[string]format{
	config.FormatJSON:       {ext: ".json", write: writeJSON},
	config.FormatHTML:       {ext: ".html", write: writeHTML},
	config.FormatMarkdown:   {ext: ".md", write: writeMarkdown},
	config.FormatJUnit:      {ext: ".xml", write: writeJUnit},
	config.FormatPrometheus: {ext: ".prom", write: writeMetrics},
}

// Generator turns the results of a run into report files.
type Generator struct {
	cfg    config.ReportingConfig
	logger *zap.Logger
}

// NewGenerator creates a Generator writing under cfg.OutputDir.
func NewGenerator(cfg config.ReportingConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, logger: logger.Named("reporting")}
}

// Generate builds the run report and writes every configured format
// concurrently. It returns the persisted report and the written paths in
// the configured order.
func (g *Generator) Generate(ctx context.Context, results []schemas.TestResult, start, end time.Time) (*schemas.TestRunReport, []string, error) {
	report := Build(NewRunID(), retain(results, g.cfg.SaveLogs, g.cfg.SaveScreenshots), start, end)

	paths := make([]string, len(g.cfg.Formats))
	for i, name := range g.cfg.Formats {
		f, ok := formats[name]
		if !ok {
			return report, nil, fmt.Errorf("unsupported report format: %s", name)
		}
		paths[i] = filepath.Join(g.cfg.OutputDir, report.RunID+f.ext)
	}

	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return report, nil, fmt.Errorf("creating report directory %s: %w", g.cfg.OutputDir, err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, name := range g.cfg.Formats {
		f, path := formats[name], paths[i]
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			if err := f.write(path, report); err != nil {
				return fmt.Errorf("writing %s report: %w", name, err)
			}
			g.logger.Debug("Report written.", zap.String("format", name), zap.String("path", path))
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return report, nil, err
	}

	g.logger.Info("Run report generated.",
		zap.String("run_id", report.RunID),
		zap.Int("total", report.Summary.Total),
		zap.Int("passed", report.Summary.Passed),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("retried", report.Summary.Retried),
		zap.Strings("files", paths))
	return report, paths, nil
}

func writeJSON(path string, report *schemas.TestRunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
