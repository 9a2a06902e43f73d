// File: internal/config/config_test.go
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "flowcheck", cfg.Logger().ServiceName)
	assert.True(t, cfg.Chrome().Headless)
	assert.Equal(t, 1280, cfg.Chrome().Viewport.Width)
	assert.Equal(t, 9222, cfg.Chrome().DebugPort)
	assert.Equal(t, 2*time.Second, cfg.Chrome().LaunchSettle)
	assert.Equal(t, 2, cfg.Orchestrator().MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator().RetryDelay)
	assert.True(t, cfg.Orchestrator().ScreenshotOnError)
	assert.True(t, cfg.Orchestrator().ContinueOnFailure)
	assert.Equal(t, "test-results", cfg.Reporting().OutputDir)
	assert.ElementsMatch(t, []string{"html", "json"}, cfg.Reporting().Formats)
	assert.Equal(t, StrategyFireAndForget, cfg.Remediation().Strategy)
	assert.Empty(t, cfg.Features())

	require.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Loading Tests --

func loadYAML(t *testing.T, doc string) (*Config, error) {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(doc)))
	return NewConfigFromViper(v)
}

func TestNewConfigFromViper(t *testing.T) {
	t.Run("camelCase sidecar document", func(t *testing.T) {
		cfg, err := loadYAML(t, `
chrome:
  headless: false
  devtools: true
  viewport:
    width: 1440
    height: 900
  slowMo: 250
orchestrator:
  maxRetries: 1
  retryDelay: 1500
  screenshotOnError: false
  continueOnFailure: false
reporting:
  outputDir: out
  formats: [JSON, markdown]
features: [rfis, submittals]
`)
		require.NoError(t, err)

		assert.False(t, cfg.Chrome().Headless)
		assert.True(t, cfg.Chrome().Devtools)
		assert.Equal(t, ViewportConfig{Width: 1440, Height: 900}, cfg.Chrome().Viewport)
		assert.Equal(t, 250*time.Millisecond, cfg.Chrome().SlowMo, "bare integers are milliseconds")
		assert.Equal(t, 1, cfg.Orchestrator().MaxRetries)
		assert.Equal(t, 1500*time.Millisecond, cfg.Orchestrator().RetryDelay)
		assert.False(t, cfg.Orchestrator().ScreenshotOnError)
		assert.False(t, cfg.Orchestrator().ContinueOnFailure)
		assert.Equal(t, []string{"json", "markdown"}, cfg.Reporting().Formats, "formats are normalized")
		assert.True(t, cfg.Reporting().HasFormat("JSON"))
		assert.False(t, cfg.Reporting().HasFormat("html"))
		assert.Equal(t, []string{"rfis", "submittals"}, cfg.Features())
	})

	t.Run("duration strings", func(t *testing.T) {
		cfg, err := loadYAML(t, `
orchestrator:
  retryDelay: 3s
  finalCooldown: 0s
`)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, cfg.Orchestrator().RetryDelay)
		assert.Zero(t, cfg.Orchestrator().FinalCooldown)
	})

	t.Run("home directory is expanded", func(t *testing.T) {
		home, err := homedir.Dir()
		if err != nil {
			t.Skip("no home directory available")
		}
		cfg, err := loadYAML(t, "reporting:\n  outputDir: ~/flowcheck-out\n")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "flowcheck-out"), cfg.Reporting().OutputDir)
	})

	t.Run("invalid document is rejected", func(t *testing.T) {
		_, err := loadYAML(t, "reporting:\n  formats: [pdf]\n")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown format "pdf"`)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("FLOWCHECK_ORCHESTRATOR_MAXRETRIES", "5")
		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix("FLOWCHECK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Orchestrator().MaxRetries)
	})

	t.Run("bare millisecond strings from the environment", func(t *testing.T) {
		t.Setenv("FLOWCHECK_ORCHESTRATOR_RETRYDELAY", "500")
		t.Setenv("FLOWCHECK_ORCHESTRATOR_FINALCOOLDOWN", "1.5s")
		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix("FLOWCHECK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, cfg.Orchestrator().RetryDelay)
		assert.Equal(t, 1500*time.Millisecond, cfg.Orchestrator().FinalCooldown)
	})

	t.Run("millisecond strings that overflow are rejected", func(t *testing.T) {
		t.Setenv("FLOWCHECK_ORCHESTRATOR_RETRYDELAY", "99999999999999999999")
		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix("FLOWCHECK")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero viewport", func(c *Config) { c.ChromeCfg.Viewport.Width = 0 }, "chrome.viewport"},
		{"bad port", func(c *Config) { c.ChromeCfg.DebugPort = 70000 }, "chrome.debugPort"},
		{"negative slowMo", func(c *Config) { c.ChromeCfg.SlowMo = -time.Second }, "must not be negative"},
		{"negative retries", func(c *Config) { c.OrchestratorCfg.MaxRetries = -1 }, "orchestrator.maxRetries"},
		{"negative delay", func(c *Config) { c.OrchestratorCfg.RetryDelay = -1 }, "orchestrator delays"},
		{"no output dir", func(c *Config) { c.ReportingCfg.OutputDir = "" }, "reporting.outputDir"},
		{"no formats", func(c *Config) { c.ReportingCfg.Formats = nil }, "at least one format"},
		{"no suite dir", func(c *Config) { c.SuiteCfg.Dir = "" }, "suite.dir"},
		{"unknown strategy", func(c *Config) { c.RemediationCfg.Strategy = "eventually" }, `unknown strategy "eventually"`},
		{
			"synchronous without timeout",
			func(c *Config) {
				c.RemediationCfg.Strategy = StrategySynchronous
				c.RemediationCfg.Confirm.Timeout = 0
			},
			"confirm.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("zero retries is valid", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.OrchestratorCfg.MaxRetries = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("synchronous with defaults is valid", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.RemediationCfg.Strategy = StrategySynchronous
		assert.NoError(t, cfg.Validate())
	})
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowcheck.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"orchestrator":{"maxRetries":3,"retryDelay":500},"suite":{"baseURL":"http://localhost:3000"}}`), 0o644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Orchestrator().MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Orchestrator().RetryDelay, "JSON numbers decode as float64 milliseconds")
	assert.Equal(t, "http://localhost:3000", cfg.Suite().BaseURL)
}
