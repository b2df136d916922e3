package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/process"
)

// Shutdown modes.
const (
	ShutdownGraceful = "graceful"
	ShutdownForce    = "force"
)

// PoolConfig sizes both pool tiers.
type PoolConfig struct {
	BrowserMin    int `toml:"browser_min" json:"browser_min"`
	BrowserMax    int `toml:"browser_max" json:"browser_max"`
	BrowserWidth  int `toml:"browser_width" json:"browser_width"`
	BrowserHeight int `toml:"browser_height" json:"browser_height"`

	SessionMin         int  `toml:"session_min" json:"session_min"`
	SessionMax         int  `toml:"session_max" json:"session_max"`
	ViewportWidth      int  `toml:"viewport_width" json:"viewport_width"`
	ViewportHeight     int  `toml:"viewport_height" json:"viewport_height"`
	IgnoreResourceLoad bool `toml:"ignore_resource_load" json:"ignore_resource_load"`
	EnablePageCache    bool `toml:"enable_page_cache" json:"enable_page_cache"`
}

// ThresholdConfig configures the threshold watcher. CPU is in percent,
// memory in GB.
type ThresholdConfig struct {
	CPUWarn     float64       `toml:"cpu_warn" json:"cpu_warn"`
	CPUBreak    float64       `toml:"cpu_break" json:"cpu_break"`
	MemoryWarn  float64       `toml:"memory_warn" json:"memory_warn"`
	MemoryBreak float64       `toml:"memory_break" json:"memory_break"`
	Interval    time.Duration `toml:"interval" json:"interval"`
}

// ShutdownConfig selects how the process exits on a signal.
type ShutdownConfig struct {
	Mode    string        `toml:"mode" json:"mode"`
	Timeout time.Duration `toml:"timeout" json:"timeout"`
}

// BrowserConfig selects and configures the browser executable.
type BrowserConfig struct {
	Executable string   `toml:"executable" json:"executable"`
	Headless   bool     `toml:"headless" json:"headless"`
	Args       []string `toml:"args" json:"args"`
	Install    bool     `toml:"install" json:"install"`
}

// Settings is the validated, typed configuration.
type Settings struct {
	Port           string           `toml:"port" json:"port"`
	Pool           PoolConfig       `toml:"pool" json:"pool"`
	Threshold      *ThresholdConfig `toml:"threshold,omitempty" json:"threshold,omitempty"`
	ThresholdWatch bool             `toml:"threshold_watch" json:"threshold_watch"`
	SessionTimeout time.Duration    `toml:"session_timeout" json:"session_timeout"`
	Shutdown       ShutdownConfig   `toml:"shutdown" json:"shutdown"`
	Browser        BrowserConfig    `toml:"browser" json:"browser"`
	Logging        logging.Config   `toml:"logging" json:"logging"`
}

// FromOptions converts and validates flat options. Every problem found is
// reported in the returned error.
func FromOptions(opts *Options) (Settings, error) {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := Settings{
		Port: opts.Port,
		Pool: PoolConfig{
			BrowserMin:         opts.BrowserPoolMin,
			BrowserMax:         opts.BrowserPoolMax,
			BrowserWidth:       opts.BrowserPoolWidth,
			BrowserHeight:      opts.BrowserPoolHeight,
			SessionMin:         opts.SessionPoolMin,
			SessionMax:         opts.SessionPoolMax,
			ViewportWidth:      opts.SessionPoolWidth,
			ViewportHeight:     opts.SessionPoolHeight,
			IgnoreResourceLoad: opts.SessionPoolIgnoreResourceLoad,
			EnablePageCache:    opts.SessionPoolEnablePageCache,
		},
		ThresholdWatch: opts.ThresholdWatch,
		Browser: BrowserConfig{
			Executable: opts.BrowserExecutable,
			Headless:   opts.BrowserHeadless,
			Install:    opts.BrowserInstall,
		},
		Logging: LoggingConfig(opts),
	}

	if err := validateRange("browser_pool", s.Pool.BrowserMin, s.Pool.BrowserMax); err != nil {
		errs = append(errs, err)
	}
	if err := validateRange("session_pool", s.Pool.SessionMin, s.Pool.SessionMax); err != nil {
		errs = append(errs, err)
	}
	if s.Pool.ViewportWidth <= 0 || s.Pool.ViewportHeight <= 0 {
		fail("session_pool: viewport must be positive, got %dx%d", s.Pool.ViewportWidth, s.Pool.ViewportHeight)
	}
	if s.Pool.BrowserWidth <= 0 || s.Pool.BrowserHeight <= 0 {
		fail("browser_pool: window size must be positive, got %dx%d", s.Pool.BrowserWidth, s.Pool.BrowserHeight)
	}

	var err error
	if s.SessionTimeout, err = parseDuration(opts.SessionTimeout); err != nil || s.SessionTimeout < 0 {
		fail("session.timeout: invalid duration %q", opts.SessionTimeout)
	}

	if opts.ThresholdEnabled {
		t, err := thresholdsFromOptions(opts)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.Threshold = t
		}
	}

	s.Shutdown.Mode = strings.ToLower(strings.TrimSpace(opts.ShutdownMode))
	if s.Shutdown.Mode != ShutdownGraceful && s.Shutdown.Mode != ShutdownForce {
		fail("shutdown.mode: must be %q or %q, got %q", ShutdownGraceful, ShutdownForce, opts.ShutdownMode)
	}
	if s.Shutdown.Timeout, err = parseDuration(opts.ShutdownTimeout); err != nil || s.Shutdown.Timeout <= 0 {
		fail("shutdown.timeout: invalid duration %q", opts.ShutdownTimeout)
	}

	if s.Browser.Args, err = process.ParseArgs(opts.BrowserArgs); err != nil {
		fail("browser.args: %v", err)
	}

	return s, errors.Join(errs...)
}

func thresholdsFromOptions(opts *Options) (*ThresholdConfig, error) {
	var errs []error
	parse := func(key, value string) float64 {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Errorf("threshold.%s: invalid number %q", key, value))
		}
		return f
	}

	t := &ThresholdConfig{
		CPUWarn:     parse("cpu_warn", opts.ThresholdCPUWarn),
		CPUBreak:    parse("cpu_break", opts.ThresholdCPUBreak),
		MemoryWarn:  parse("memory_warn", opts.ThresholdMemoryWarn),
		MemoryBreak: parse("memory_break", opts.ThresholdMemoryBreak),
	}

	interval, err := parseDuration(opts.ThresholdInterval)
	if err != nil || interval <= 0 {
		errs = append(errs, fmt.Errorf("threshold.interval: invalid duration %q", opts.ThresholdInterval))
	}
	t.Interval = interval

	if len(errs) == 0 {
		if t.CPUWarn > t.CPUBreak {
			errs = append(errs, fmt.Errorf("threshold: cpu_warn %.2f above cpu_break %.2f", t.CPUWarn, t.CPUBreak))
		}
		if t.MemoryWarn > t.MemoryBreak {
			errs = append(errs, fmt.Errorf("threshold: memory_warn %.2f above memory_break %.2f", t.MemoryWarn, t.MemoryBreak))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return t, nil
}

func validateRange(section string, lo, hi int) error {
	switch {
	case hi < 1:
		return fmt.Errorf("%s: max must be at least 1, got %d", section, hi)
	case lo < 0:
		return fmt.Errorf("%s: min must not be negative, got %d", section, lo)
	case lo > hi:
		return fmt.Errorf("%s: min %d above max %d", section, lo, hi)
	}
	return nil
}

// parseDuration accepts Go durations ("10s") and bare numbers as seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// LoggingConfig builds the logging configuration from options.
func LoggingConfig(opts *Options) logging.Config {
	return logging.Config{
		Level:  opts.LoggingLevel,
		Format: opts.LoggingFormat,
		Modules: map[string]string{
			"pool":    opts.LoggingPool,
			"monitor": opts.LoggingMonitor,
			"api":     opts.LoggingAPI,
			"browser": opts.LoggingBrowser,
			"chrome":  opts.LoggingBrowser,
		},
	}
}

// LoadSettings re-reads path on top of base and validates the result.
// Used by the config watcher; base supplies values for keys the file omits.
func LoadSettings(path string, base Options) (Settings, error) {
	opts := base
	opts.Config = path
	if err := LoadConfig(&opts, nil); err != nil {
		return Settings{}, err
	}
	return FromOptions(&opts)
}

// MarshalTOML renders the effective options in config file layout.
func MarshalTOML(opts *Options) ([]byte, error) {
	return marshalNested(opts)
}
