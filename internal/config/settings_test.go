package config

import (
	"strings"
	"testing"
	"time"
)

func TestFromOptionsDefaults(t *testing.T) {
	opts := DefaultOptions()
	s, err := FromOptions(&opts)
	if err != nil {
		t.Fatalf("FromOptions failed: %v", err)
	}

	want := PoolConfig{
		BrowserMin: 2, BrowserMax: 5, BrowserWidth: 1080, BrowserHeight: 1024,
		SessionMin: 1, SessionMax: 5, ViewportWidth: 1080, ViewportHeight: 1024,
	}
	if s.Pool != want {
		t.Errorf("Pool = %+v, want %+v", s.Pool, want)
	}
	if s.Threshold != nil {
		t.Error("thresholds should be disabled by default")
	}
	if s.SessionTimeout != 0 {
		t.Errorf("SessionTimeout = %v, want 0", s.SessionTimeout)
	}
	if s.Shutdown.Mode != ShutdownGraceful || s.Shutdown.Timeout != 10*time.Second {
		t.Errorf("Shutdown = %+v", s.Shutdown)
	}
	if !s.Browser.Headless || len(s.Browser.Args) != 0 {
		t.Errorf("Browser = %+v", s.Browser)
	}
	if s.Logging.Modules["monitor"] != "info" {
		t.Errorf("Logging = %+v", s.Logging)
	}
}

func TestFromOptionsThresholds(t *testing.T) {
	opts := DefaultOptions()
	opts.ThresholdEnabled = true
	opts.ThresholdCPUWarn = "50"
	opts.ThresholdCPUBreak = "80"
	opts.ThresholdMemoryWarn = "0.75"
	opts.ThresholdMemoryBreak = "1.5"
	opts.ThresholdInterval = "5"

	s, err := FromOptions(&opts)
	if err != nil {
		t.Fatalf("FromOptions failed: %v", err)
	}
	want := ThresholdConfig{CPUWarn: 50, CPUBreak: 80, MemoryWarn: 0.75, MemoryBreak: 1.5, Interval: 5 * time.Second}
	if s.Threshold == nil || *s.Threshold != want {
		t.Errorf("Threshold = %+v, want %+v", s.Threshold, want)
	}
}

func TestFromOptionsValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr string
	}{
		{"browser min above max", func(o *Options) { o.BrowserPoolMin = 6 }, "browser_pool: min 6 above max 5"},
		{"browser max zero", func(o *Options) { o.BrowserPoolMin, o.BrowserPoolMax = 0, 0 }, "browser_pool: max must be at least 1"},
		{"session negative min", func(o *Options) { o.SessionPoolMin = -1 }, "session_pool: min must not be negative"},
		{"bad viewport", func(o *Options) { o.SessionPoolWidth = 0 }, "session_pool: viewport must be positive"},
		{"bad session timeout", func(o *Options) { o.SessionTimeout = "later" }, "session.timeout"},
		{"warn above break", func(o *Options) {
			o.ThresholdEnabled = true
			o.ThresholdCPUWarn = "90"
		}, "cpu_warn 90.00 above cpu_break 80.00"},
		{"bad threshold number", func(o *Options) {
			o.ThresholdEnabled = true
			o.ThresholdMemoryWarn = "lots"
		}, "threshold.memory_warn"},
		{"zero interval", func(o *Options) {
			o.ThresholdEnabled = true
			o.ThresholdInterval = "0s"
		}, "threshold.interval"},
		{"bad shutdown mode", func(o *Options) { o.ShutdownMode = "polite" }, "shutdown.mode"},
		{"bad browser args", func(o *Options) { o.BrowserArgs = `--x="open` }, "browser.args"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := FromOptions(&opts)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFromOptionsReportsAllErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.BrowserPoolMin = 9
	opts.ShutdownMode = "nope"

	_, err := FromOptions(&opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "browser_pool") || !strings.Contains(err.Error(), "shutdown.mode") {
		t.Errorf("expected both problems reported, got %q", err)
	}
}

func TestFromOptionsBrowserArgs(t *testing.T) {
	opts := DefaultOptions()
	opts.BrowserArgs = `--disable-gpu --lang="en US"`
	opts.ShutdownMode = "FORCE"

	s, err := FromOptions(&opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Browser.Args) != 2 || s.Browser.Args[1] != "--lang=en US" {
		t.Errorf("Args = %q", s.Browser.Args)
	}
	if s.Shutdown.Mode != ShutdownForce {
		t.Errorf("mode should be normalised, got %q", s.Shutdown.Mode)
	}
}

func TestLoadSettings(t *testing.T) {
	path := writeConfig(t, `
[threshold]
enabled = true
cpu_warn = 60
cpu_break = 95
`)
	s, err := LoadSettings(path, DefaultOptions())
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Threshold == nil || s.Threshold.CPUWarn != 60 || s.Threshold.CPUBreak != 95 {
		t.Errorf("Threshold = %+v", s.Threshold)
	}
	if s.Threshold.MemoryBreak != 2 {
		t.Errorf("base value lost: %+v", s.Threshold)
	}
}
