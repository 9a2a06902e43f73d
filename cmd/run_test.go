// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
)

func TestBuildOrchestrator(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		orch, err := buildOrchestrator(cfg, new(bytes.Buffer), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, orch)
	})

	t.Run("command dispatcher and synchronous strategy", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.RemediationCfg.Command = []string{"sh", "-c", "true"}
		cfg.RemediationCfg.Strategy = config.StrategySynchronous
		cfg.RemediationCfg.Confirm.RepoPath = t.TempDir()
		orch, err := buildOrchestrator(cfg, new(bytes.Buffer), zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.NotNil(t, orch)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.RemediationCfg.Strategy = "eventually"
		_, err := buildOrchestrator(cfg, new(bytes.Buffer), zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "remediation strategy")
	})
}

func TestRunCmd_DebugPortBusy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port
	t.Setenv("FLOWCHECK_CHROME_DEBUGPORT", strconv.Itoa(port))

	out := filepath.Join(t.TempDir(), "results")
	_, err = executeCommand(t, NewRootCommand(), "run", "--output-dir", out, "--tests-dir", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrDebugPortInUse)
	assert.NotErrorIs(t, err, ErrTestsFailed)
	assert.NoDirExists(t, out, "no report is written when the browser cannot start")
}

func TestRunCmd_RejectsArgs(t *testing.T) {
	_, err := executeCommand(t, NewRootCommand(), "run", "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
