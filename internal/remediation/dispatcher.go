// internal/remediation/dispatcher.go
package remediation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxLoggedError bounds the error message in dispatch log lines.
const maxLoggedError = 100

// maxCapturedOutput bounds what is kept of a handler command's output.
const maxCapturedOutput = 8 << 10

// commandWaitDelay bounds how long a canceled command's output pipes may
// stay open through orphaned children.
const commandWaitDelay = 2 * time.Second

// LogDispatcher records the intended dispatch and returns at once without
// changing anything. When dir is set, the context document is written there
// for a human or an out-of-band agent to pick up.
type LogDispatcher struct {
	dir    string
	logger *zap.Logger
}

// NewLogDispatcher creates a LogDispatcher. An empty dir disables the files.
func NewLogDispatcher(dir string, logger *zap.Logger) *LogDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDispatcher{dir: dir, logger: logger.Named("remediation")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{Handler: req.Handler}
	d.logger.Info("Dispatching remediation.",
		zap.String("handler", string(req.Handler)),
		zap.String("test_id", req.TestID),
		zap.Int("attempt", req.Attempt),
		zap.String("kind", string(req.Kind)),
		zap.String("error", truncate(req.Error.Message, maxLoggedError)))

	if d.dir == "" {
		return out, nil
	}
	path, err := writeRequest(d.dir, req)
	if err != nil {
		return out, err
	}
	out.Detail = path
	return out, nil
}

// RequestFileName is the name a request's context document is written under.
func RequestFileName(req Request) string {
	return fmt.Sprintf("%s-attempt-%d-%s.md", SafeName(req.TestID), req.Attempt, req.Handler)
}

func writeRequest(dir string, req Request) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating remediation directory: %w", err)
	}
	path := filepath.Join(dir, RequestFileName(req))
	if err := os.WriteFile(path, []byte(req.Context), 0o644); err != nil {
		return "", fmt.Errorf("writing remediation request: %w", err)
	}
	return path, nil
}

// CommandDispatcher runs an external handler for each request. The context
// document is written to its stdin and the request is described in
// FLOWCHECK_* environment variables. Exit status 0 means the fix is done.
type CommandDispatcher struct {
	argv   []string
	logger *zap.Logger
}

// NewCommandDispatcher creates a CommandDispatcher for argv.
func NewCommandDispatcher(argv []string, logger *zap.Logger) (*CommandDispatcher, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("remediation command must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandDispatcher{argv: argv, logger: logger.Named("remediation")}, nil
}

func (d *CommandDispatcher) Dispatch(ctx context.Context, req Request) (Outcome, error) {
	out := Outcome{Handler: req.Handler}

	cmd := exec.CommandContext(ctx, d.argv[0], d.argv[1:]...)
	cmd.Stdin = strings.NewReader(req.Context)
	cmd.Env = append(os.Environ(), requestEnv(req)...)
	output := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.WaitDelay = commandWaitDelay

	d.logger.Info("Running remediation command.",
		zap.String("handler", string(req.Handler)),
		zap.String("test_id", req.TestID),
		zap.Int("attempt", req.Attempt),
		zap.String("command", d.argv[0]))

	err := cmd.Run()
	out.Detail = strings.TrimSpace(output.String())
	if err != nil {
		d.logger.Warn("Remediation command failed.",
			zap.String("handler", string(req.Handler)),
			zap.String("output", truncate(out.Detail, 512)),
			zap.Error(err))
		return out, fmt.Errorf("remediation command %s: %w", d.argv[0], err)
	}
	out.Completed = true
	d.logger.Debug("Remediation command finished.", zap.String("output", out.Detail))
	return out, nil
}

func requestEnv(req Request) []string {
	return []string{
		"FLOWCHECK_REQUEST_ID=" + req.ID,
		"FLOWCHECK_TEST_ID=" + req.TestID,
		"FLOWCHECK_TEST_NAME=" + req.TestName,
		"FLOWCHECK_ATTEMPT=" + strconv.Itoa(req.Attempt),
		"FLOWCHECK_STEP=" + req.Step,
		"FLOWCHECK_ERROR_KIND=" + string(req.Kind),
		"FLOWCHECK_HANDLER=" + string(req.Handler),
		"FLOWCHECK_ERROR_MESSAGE=" + req.Error.Message,
	}
}

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// SafeName replaces every rune that is not safe in a file name, path
// separators included, with an underscore.
func SafeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
