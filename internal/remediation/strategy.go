// internal/remediation/strategy.go
package remediation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// Strategy decides how a dispatch relates to the next attempt.
type Strategy interface {
	Name() string
	// Remediate dispatches req and returns once the next attempt may begin.
	// Failures are logged, never returned: a retry always follows.
	Remediate(ctx context.Context, d Dispatcher, req Request) Outcome
}

// FireAndForget dispatches and moves on without waiting for a fix.
type FireAndForget struct {
	logger *zap.Logger
}

// NewFireAndForget creates the default strategy.
func NewFireAndForget(logger *zap.Logger) *FireAndForget {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FireAndForget{logger: logger.Named("remediation")}
}

func (s *FireAndForget) Name() string { return config.StrategyFireAndForget }

func (s *FireAndForget) Remediate(ctx context.Context, d Dispatcher, req Request) Outcome {
	out, err := d.Dispatch(ctx, req)
	if err != nil {
		s.logger.Warn("Remediation dispatch failed.", zap.String("handler", string(req.Handler)), zap.Error(err))
	}
	out.Handler = req.Handler
	return out
}

// Confirmer observes the code under test so a change can be detected.
type Confirmer interface {
	Fingerprint(ctx context.Context) (string, error)
}

// Synchronous dispatches and then blocks until the handler reports
// completion or the confirmer sees a change, bounded by timeout.
type Synchronous struct {
	confirmer Confirmer
	timeout   time.Duration
	interval  time.Duration
	logger    *zap.Logger
}

// NewSynchronous creates a confirming strategy.
func NewSynchronous(confirmer Confirmer, timeout, interval time.Duration, logger *zap.Logger) *Synchronous {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Synchronous{
		confirmer: confirmer,
		timeout:   timeout,
		interval:  interval,
		logger:    logger.Named("remediation"),
	}
}

func (s *Synchronous) Name() string { return config.StrategySynchronous }

func (s *Synchronous) Remediate(ctx context.Context, d Dispatcher, req Request) Outcome {
	baseline, baseErr := s.confirmer.Fingerprint(ctx)
	if baseErr != nil {
		s.logger.Warn("Could not fingerprint the workspace; changes will not be confirmed.", zap.Error(baseErr))
	}

	out, err := d.Dispatch(ctx, req)
	out.Handler = req.Handler
	if err != nil {
		s.logger.Warn("Remediation dispatch failed.", zap.String("handler", string(req.Handler)), zap.Error(err))
		return out
	}
	if out.Completed || baseErr != nil {
		return out
	}

	s.logger.Info("Waiting for remediation to land.",
		zap.String("handler", string(req.Handler)),
		zap.Duration("timeout", s.timeout))

	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			s.logger.Warn("Remediation was not confirmed in time; retrying anyway.",
				zap.String("handler", string(req.Handler)),
				zap.String("test_id", req.TestID))
			return out
		case <-ticker.C:
			current, err := s.confirmer.Fingerprint(waitCtx)
			if err != nil {
				s.logger.Debug("Fingerprint failed.", zap.Error(err))
				continue
			}
			if current != baseline {
				out.Completed = true
				out.Detail = "workspace change detected"
				s.logger.Info("Remediation confirmed.", zap.String("handler", string(req.Handler)))
				return out
			}
		}
	}
}

// NewStrategy resolves the configured strategy. The synchronous strategy
// disregards changes under ignore when confirming a fix.
func NewStrategy(cfg config.RemediationConfig, logger *zap.Logger, ignore ...string) (Strategy, error) {
	switch cfg.Strategy {
	case "", config.StrategyFireAndForget:
		return NewFireAndForget(logger), nil
	case config.StrategySynchronous:
		return NewSynchronous(NewGitConfirmer(cfg.Confirm.RepoPath, ignore...), cfg.Confirm.Timeout, cfg.Confirm.PollInterval, logger), nil
	default:
		return nil, fmt.Errorf("unknown remediation strategy %q", cfg.Strategy)
	}
}

// NewDispatcher picks the command dispatcher when a command is configured
// and the logging dispatcher otherwise.
func NewDispatcher(cfg config.RemediationConfig, requestDir string, logger *zap.Logger) (Dispatcher, error) {
	if len(cfg.Command) > 0 {
		return NewCommandDispatcher(cfg.Command, logger)
	}
	return NewLogDispatcher(requestDir, logger), nil
}
