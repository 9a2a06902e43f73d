// File: internal/config/config.go
package config

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Report format names accepted in reporting.formats.
const (
	FormatJSON       = "json"
	FormatHTML       = "html"
	FormatMarkdown   = "markdown"
	FormatJUnit      = "junit"
	FormatPrometheus = "prometheus"
)

// Remediation strategy names accepted in remediation.strategy.
const (
	StrategyFireAndForget = "fire-and-forget"
	StrategySynchronous   = "synchronous"
)

var validFormats = map[string]bool{
	FormatJSON:       true,
	FormatHTML:       true,
	FormatMarkdown:   true,
	FormatJUnit:      true,
	FormatPrometheus: true,
}

// Interface exposes the configuration sections to the rest of the program.
type Interface interface {
	Logger() LoggerConfig
	Chrome() ChromeConfig
	Orchestrator() OrchestratorConfig
	Reporting() ReportingConfig
	Suite() SuiteConfig
	Remediation() RemediationConfig
	Features() []string
}

// Config is the root configuration for a run.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	ChromeCfg       ChromeConfig       `mapstructure:"chrome" yaml:"chrome"`
	OrchestratorCfg OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	ReportingCfg    ReportingConfig    `mapstructure:"reporting" yaml:"reporting"`
	SuiteCfg        SuiteConfig        `mapstructure:"suite" yaml:"suite"`
	RemediationCfg  RemediationConfig  `mapstructure:"remediation" yaml:"remediation"`
	FeaturesCfg     []string           `mapstructure:"features" yaml:"features"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Chrome() ChromeConfig             { return c.ChromeCfg }
func (c *Config) Orchestrator() OrchestratorConfig { return c.OrchestratorCfg }
func (c *Config) Reporting() ReportingConfig       { return c.ReportingCfg }
func (c *Config) Suite() SuiteConfig               { return c.SuiteCfg }
func (c *Config) Remediation() RemediationConfig   { return c.RemediationCfg }
func (c *Config) Features() []string               { return c.FeaturesCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ViewportConfig is the browser window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// ChromeConfig controls the single browser the run drives.
type ChromeConfig struct {
	Headless       bool           `mapstructure:"headless" yaml:"headless"`
	Devtools       bool           `mapstructure:"devtools" yaml:"devtools"`
	Viewport       ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	SlowMo         time.Duration  `mapstructure:"slowMo" yaml:"slowMo"`
	DebugPort      int            `mapstructure:"debugPort" yaml:"debugPort"`
	LaunchSettle   time.Duration  `mapstructure:"launchSettle" yaml:"launchSettle"`
	ExecutablePath string         `mapstructure:"executablePath" yaml:"executablePath"`
	Args           []string       `mapstructure:"args" yaml:"args"`
	Overlay        bool           `mapstructure:"overlay" yaml:"overlay"`
}

// OrchestratorConfig controls the retry loop.
type OrchestratorConfig struct {
	MaxRetries        int           `mapstructure:"maxRetries" yaml:"maxRetries"`
	RetryDelay        time.Duration `mapstructure:"retryDelay" yaml:"retryDelay"`
	ScreenshotOnError bool          `mapstructure:"screenshotOnError" yaml:"screenshotOnError"`
	PauseOnError      bool          `mapstructure:"pauseOnError" yaml:"pauseOnError"`
	ErrorPause        time.Duration `mapstructure:"errorPause" yaml:"errorPause"`
	ContinueOnFailure bool          `mapstructure:"continueOnFailure" yaml:"continueOnFailure"`
	FinalCooldown     time.Duration `mapstructure:"finalCooldown" yaml:"finalCooldown"`
}

// ReportingConfig controls where and how the run report is written.
type ReportingConfig struct {
	OutputDir       string   `mapstructure:"outputDir" yaml:"outputDir"`
	Formats         []string `mapstructure:"formats" yaml:"formats"`
	SaveScreenshots bool     `mapstructure:"saveScreenshots" yaml:"saveScreenshots"`
	SaveLogs        bool     `mapstructure:"saveLogs" yaml:"saveLogs"`
}

// HasFormat reports whether format is enabled.
func (r ReportingConfig) HasFormat(format string) bool {
	for _, f := range r.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// SuiteConfig locates the test definitions and the application under test.
type SuiteConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	BaseURL string `mapstructure:"baseURL" yaml:"baseURL"`
}

// RemediationConfig controls dispatch between attempts.
type RemediationConfig struct {
	Strategy   string        `mapstructure:"strategy" yaml:"strategy"`
	Command    []string      `mapstructure:"command" yaml:"command"`
	RequestDir string        `mapstructure:"requestDir" yaml:"requestDir"`
	Confirm    ConfirmConfig `mapstructure:"confirm" yaml:"confirm"`
}

// ConfirmConfig controls how the synchronous strategy waits for a fix.
type ConfirmConfig struct {
	RepoPath     string        `mapstructure:"repoPath" yaml:"repoPath"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"pollInterval" yaml:"pollInterval"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		// Defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "flowcheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Chrome --
	v.SetDefault("chrome.headless", true)
	v.SetDefault("chrome.devtools", false)
	v.SetDefault("chrome.viewport.width", 1280)
	v.SetDefault("chrome.viewport.height", 720)
	v.SetDefault("chrome.slowMo", "0s")
	v.SetDefault("chrome.debugPort", 9222)
	v.SetDefault("chrome.launchSettle", "2s")
	v.SetDefault("chrome.executablePath", "")
	v.SetDefault("chrome.args", []string{})
	v.SetDefault("chrome.overlay", true)

	// -- Orchestrator --
	v.SetDefault("orchestrator.maxRetries", 2)
	v.SetDefault("orchestrator.retryDelay", "2s")
	v.SetDefault("orchestrator.screenshotOnError", true)
	v.SetDefault("orchestrator.pauseOnError", false)
	v.SetDefault("orchestrator.errorPause", "5s")
	v.SetDefault("orchestrator.continueOnFailure", true)
	v.SetDefault("orchestrator.finalCooldown", "5s")

	// -- Reporting --
	v.SetDefault("reporting.outputDir", "test-results")
	v.SetDefault("reporting.formats", []string{FormatHTML, FormatJSON})
	v.SetDefault("reporting.saveScreenshots", true)
	v.SetDefault("reporting.saveLogs", true)

	// -- Suite --
	v.SetDefault("suite.dir", "e2e/tests")
	v.SetDefault("suite.baseURL", "")

	// -- Remediation --
	v.SetDefault("remediation.strategy", StrategyFireAndForget)
	v.SetDefault("remediation.command", []string{})
	v.SetDefault("remediation.requestDir", "")
	v.SetDefault("remediation.confirm.repoPath", ".")
	v.SetDefault("remediation.confirm.timeout", "5m")
	v.SetDefault("remediation.confirm.pollInterval", "2s")

	v.SetDefault("features", []string{})
}

// DecodeHook is the hook chain used when unmarshaling viper values.
// Durations accept Go duration strings or bare integers (numbers or digit
// strings) meaning milliseconds.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		millisecondsHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func millisecondsHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if t != durationType || f == durationType {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Millisecond, nil
		case int32:
			return time.Duration(n) * time.Millisecond, nil
		case int64:
			return time.Duration(n) * time.Millisecond, nil
		case uint:
			return time.Duration(n) * time.Millisecond, nil
		case uint64:
			return time.Duration(n) * time.Millisecond, nil
		case float64:
			return time.Duration(n * float64(time.Millisecond)), nil
		case string:
			// Environment values arrive as strings; bare digits are milliseconds.
			s := strings.TrimSpace(n)
			if s == "" || strings.Trim(s, "0123456789") != "" {
				return data, nil
			}
			ms, err := strconv.ParseInt(s, 10, 64)
			if err != nil || ms > int64(math.MaxInt64/time.Millisecond) {
				return nil, fmt.Errorf("duration %q is out of range", n)
			}
			return time.Duration(ms) * time.Millisecond, nil
		}
		return data, nil
	}
}

// NewConfigFromViper unmarshals, normalizes and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Normalize expands home-relative paths and lower-cases enumerations.
func (c *Config) Normalize() error {
	paths := []*string{
		&c.LoggerCfg.LogFile,
		&c.ChromeCfg.ExecutablePath,
		&c.ReportingCfg.OutputDir,
		&c.SuiteCfg.Dir,
		&c.RemediationCfg.RequestDir,
		&c.RemediationCfg.Confirm.RepoPath,
	}
	for _, p := range paths {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}

	for i, f := range c.ReportingCfg.Formats {
		c.ReportingCfg.Formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	c.RemediationCfg.Strategy = strings.ToLower(strings.TrimSpace(c.RemediationCfg.Strategy))
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ChromeCfg.Viewport.Width <= 0 || c.ChromeCfg.Viewport.Height <= 0 {
		return fmt.Errorf("chrome.viewport width and height must be positive integers")
	}
	if c.ChromeCfg.DebugPort <= 0 || c.ChromeCfg.DebugPort > 65535 {
		return fmt.Errorf("chrome.debugPort must be a valid TCP port")
	}
	if c.ChromeCfg.SlowMo < 0 || c.ChromeCfg.LaunchSettle < 0 {
		return fmt.Errorf("chrome.slowMo and chrome.launchSettle must not be negative")
	}
	if c.OrchestratorCfg.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.maxRetries must be zero or a positive integer")
	}
	if c.OrchestratorCfg.RetryDelay < 0 || c.OrchestratorCfg.ErrorPause < 0 || c.OrchestratorCfg.FinalCooldown < 0 {
		return fmt.Errorf("orchestrator delays must not be negative")
	}
	if c.ReportingCfg.OutputDir == "" {
		return fmt.Errorf("reporting.outputDir is a required configuration field")
	}
	if len(c.ReportingCfg.Formats) == 0 {
		return fmt.Errorf("reporting.formats must name at least one format")
	}
	for _, f := range c.ReportingCfg.Formats {
		if !validFormats[f] {
			return fmt.Errorf("reporting.formats contains unknown format %q", f)
		}
	}
	if c.SuiteCfg.Dir == "" {
		return fmt.Errorf("suite.dir is a required configuration field")
	}
	if err := c.RemediationCfg.Validate(); err != nil {
		return fmt.Errorf("remediation configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the remediation section.
func (r RemediationConfig) Validate() error {
	switch r.Strategy {
	case StrategyFireAndForget:
	case StrategySynchronous:
		if r.Confirm.Timeout <= 0 {
			return fmt.Errorf("confirm.timeout must be positive for the synchronous strategy")
		}
		if r.Confirm.PollInterval <= 0 {
			return fmt.Errorf("confirm.pollInterval must be positive for the synchronous strategy")
		}
	default:
		return fmt.Errorf("unknown strategy %q", r.Strategy)
	}
	return nil
}
