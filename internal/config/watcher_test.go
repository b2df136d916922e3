package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testDebounce = 50 * time.Millisecond

func settingsLoader(path string) (Settings, error) {
	return LoadSettings(path, DefaultOptions())
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[Settings]) *Watcher[Settings] {
	t.Helper()
	opts = append([]WatcherOption[Settings]{WithDebounce[Settings](testDebounce)}, opts...)
	w := NewWatcher(path, settingsLoader, nil, opts...)
	if err := w.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// fsnotify needs a moment before events are delivered reliably
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestWatcherReloadsThresholds(t *testing.T) {
	path := writeConfig(t, "[threshold]\nenabled = false\n")

	received := make(chan Settings, 4)
	w := NewWatcher(path, settingsLoader, nil, WithDebounce[Settings](testDebounce))
	w.OnReload(func(s Settings) { received <- s })
	if err := w.Start(t.Context()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("[threshold]\nenabled = true\ncpu_warn = 30\ncpu_break = 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-received:
		if s.Threshold == nil || s.Threshold.CPUWarn != 30 || s.Threshold.CPUBreak != 60 {
			t.Errorf("Threshold = %+v, want 30/60", s.Threshold)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestWatcherSurvivesRenameReplace(t *testing.T) {
	path := writeConfig(t, "[threshold]\nenabled = false\n")

	received := make(chan Settings, 4)
	w := startWatcher(t, path)
	w.OnReload(func(s Settings) { received <- s })

	tmp := filepath.Join(filepath.Dir(path), "config.toml.tmp")
	if err := os.WriteFile(tmp, []byte("[threshold]\nenabled = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case s := <-received:
		if s.Threshold == nil {
			t.Error("expected thresholds enabled after replace")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	path := writeConfig(t, "")

	var calls atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(Settings) { calls.Add(1) })

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for unrelated file", n)
	}
}

func TestWatcherInvalidConfigKeepsHandlersQuiet(t *testing.T) {
	path := writeConfig(t, "")

	errCh := make(chan error, 4)
	var calls atomic.Int32
	w := startWatcher(t, path, WithErrorHandler[Settings](func(err error) { errCh <- err }))
	w.OnReload(func(Settings) { calls.Add(1) })

	// valid TOML, invalid thresholds
	if err := os.WriteFile(path, []byte("[threshold]\nenabled = true\ncpu_warn = 90\ncpu_break = 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("handler called %d times for invalid config", n)
	}
}

func TestWatcherDebounce(t *testing.T) {
	path := writeConfig(t, "")

	var calls atomic.Int32
	w := startWatcher(t, path, WithDebounce[Settings](200*time.Millisecond))
	w.OnReload(func(Settings) { calls.Add(1) })

	for i := range 5 {
		content := []byte("[browser_pool]\nmax = " + string(rune('5'+i)) + "\n")
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(600 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("handler called %d times, want 1", n)
	}
}

func TestWatcherUnsubscribe(t *testing.T) {
	path := writeConfig(t, "")

	var first, second atomic.Int32
	w := startWatcher(t, path)
	unsubscribe := w.OnReload(func(Settings) { first.Add(1) })
	done := make(chan struct{}, 4)
	w.OnReload(func(Settings) {
		second.Add(1)
		done <- struct{}{}
	})
	unsubscribe()

	if err := os.WriteFile(path, []byte("[server]\nport = \":1\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if first.Load() != 0 || second.Load() != 1 {
		t.Errorf("first=%d second=%d, want 0 and 1", first.Load(), second.Load())
	}
}

func TestWatcherConcurrentSubscribe(t *testing.T) {
	path := writeConfig(t, "")
	w := NewWatcher(path, settingsLoader, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := w.OnReload(func(Settings) {})
			unsub()
		}()
	}
	wg.Wait()
}

func TestWatcherStartMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing", "config.toml"), settingsLoader, nil)
	if err := w.Start(t.Context()); err == nil {
		w.Stop()
		t.Fatal("expected error for missing directory")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestWatcherLoaderErrorIsPassedThrough(t *testing.T) {
	path := writeConfig(t, "")
	sentinel := errors.New("boom")

	errCh := make(chan error, 1)
	w := NewWatcher(path, func(string) (Settings, error) { return Settings{}, sentinel }, nil,
		WithErrorHandler[Settings](func(err error) { errCh <- err }))
	w.loadAndNotify()

	if err := <-errCh; !errors.Is(err, sentinel) {
		t.Errorf("got %v, want sentinel", err)
	}
}
