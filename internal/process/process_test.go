package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProcess creates a Process with short timeouts for testing.
func newTestProcess(args ...string) *Process {
	p := New("test", args, testLogger())
	p.gracefulTimeout = 100 * time.Millisecond
	p.killTimeout = 500 * time.Millisecond
	return p
}

func shell(script string) []string {
	return []string{"sh", "-c", script}
}

// waitDone waits for the process to exit, failing the test on timeout.
func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess(shell("trap 'exit 0' TERM; while :; do sleep 0.05; done")...)
	p.gracefulTimeout = time.Second

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if code := p.Stop(context.Background()); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	if info := p.Info(); info.State != StateExited {
		t.Errorf("expected state %s, got %s", StateExited, info.State)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess(shell("trap '' TERM; while :; do sleep 0.05; done")...)
	p.gracefulTimeout = 50 * time.Millisecond

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if code := p.Stop(context.Background()); code != ExitCodeKilled {
		t.Errorf("expected exit code %d, got %d", ExitCodeKilled, code)
	}
	waitDone(t, p, time.Second)
}

func TestStopHonorsContext(t *testing.T) {
	p := newTestProcess(shell("trap '' TERM; while :; do sleep 0.05; done")...)
	p.gracefulTimeout = 10 * time.Second

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	p.Stop(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop took too long: %v", elapsed)
	}
}

func TestStopTwice(t *testing.T) {
	p := newTestProcess("sleep", "10")
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first := p.Stop(context.Background())
	second := p.Stop(context.Background())
	if first != second {
		t.Errorf("second Stop returned %d, first returned %d", second, first)
	}
}

func TestStopBeforeStart(t *testing.T) {
	p := newTestProcess("sleep", "10")
	if code := p.Stop(context.Background()); code != 0 {
		t.Errorf("expected 0 for a process that never started, got %d", code)
	}
}

func TestProcessAlreadyExited(t *testing.T) {
	p := newTestProcess("true")
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, p, time.Second)

	if code := p.Stop(context.Background()); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestProcessExitWithError(t *testing.T) {
	p := newTestProcess(shell("exit 42")...)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, p, time.Second)

	if info := p.Info(); info.ExitCode != 42 {
		t.Errorf("expected exit code 42, got %d", info.ExitCode)
	}
}

func TestStartNonExistentCommand(t *testing.T) {
	p := newTestProcess("/nonexistent/command/that/does/not/exist")
	if err := p.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if info := p.Info(); info.State != StateError || info.LastError == nil {
		t.Errorf("expected error state, got %+v", info)
	}
	waitDone(t, p, 100*time.Millisecond)
}

func TestStartEmptyCommand(t *testing.T) {
	p := newTestProcess()
	if err := p.Start(); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestStartTwice(t *testing.T) {
	p := newTestProcess("sleep", "10")
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	if err := p.Start(); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestPIDAndGroupKill(t *testing.T) {
	p := newTestProcess(shell("trap '' TERM; sleep 10 & wait")...)
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	pid := p.PID()
	if pid <= 0 {
		t.Fatalf("expected positive pid, got %d", pid)
	}

	if err := KillGroup(pid); err != nil {
		t.Fatalf("KillGroup failed: %v", err)
	}
	waitDone(t, p, 2*time.Second)
}

func TestKillGroupExitedProcess(t *testing.T) {
	p := newTestProcess("true")
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pid := p.PID()
	waitDone(t, p, 2*time.Second)

	err := KillGroup(pid)
	if err == nil {
		t.Fatal("expected error killing an exited process")
	}
	if !errors.Is(err, unix.ESRCH) {
		t.Errorf("expected ESRCH, got %v", err)
	}
}

func TestKillGroupInvalidPID(t *testing.T) {
	if err := KillGroup(0); err == nil {
		t.Error("expected error for pid 0")
	}
}

func TestEnvPassedToChild(t *testing.T) {
	handler := &testOutputHandler{}
	p := NewWithOutput("env", shell("echo $BROWSERPOOL_TEST_VALUE"), testLogger(), handler)
	p.SetEnv("BROWSERPOOL_TEST_VALUE=hello")

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, p, time.Second)

	if lines := handler.get(); len(lines) != 1 || lines[0] != "hello" {
		t.Errorf("unexpected output: %v", lines)
	}
}

func TestOutputHandler(t *testing.T) {
	handler := &testOutputHandler{}
	p := NewWithOutput("test", shell("echo line1; echo line2 >&2"), testLogger(), handler)

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, p, time.Second)

	lines := handler.get()
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %v", len(lines), lines)
	}
	if handler.sources["stderr"] != 1 || handler.sources["stdout"] != 1 {
		t.Errorf("unexpected sources: %v", handler.sources)
	}
}

func TestStreamOutputLogLevels(t *testing.T) {
	var buf strings.Builder
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &mu}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := New("levels", shell(`echo "E boom"; echo "W careful"; echo "plain"`), testLogger())
	p.SetLogParser(logger, func(line string) (string, string) {
		switch {
		case strings.HasPrefix(line, "E "):
			return "error", line[2:]
		case strings.HasPrefix(line, "W "):
			return "warning", line[2:]
		}
		return "debug", line
	})

	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitDone(t, p, time.Second)

	mu.Lock()
	out := buf.String()
	mu.Unlock()
	for _, want := range []string{"level=ERROR msg=boom", "level=WARN msg=careful", "level=DEBUG msg=plain"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`--disable-gpu --lang=en`, []string{"--disable-gpu", "--lang=en"}},
		{`--user-agent="Mozilla 5.0"`, []string{"--user-agent=Mozilla 5.0"}},
		{`hello\ world`, []string{"hello world"}},
		{``, nil},
	}
	for _, tt := range tests {
		got, err := ParseArgs(tt.in)
		if err != nil {
			t.Errorf("ParseArgs(%q) error: %v", tt.in, err)
			continue
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("ParseArgs(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseArgs(`--flag="unclosed`); err == nil {
		t.Error("expected error for unclosed quote")
	}
}

type testOutputHandler struct {
	mu      sync.Mutex
	lines   []string
	sources map[string]int
}

func (h *testOutputHandler) HandleLine(source, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sources == nil {
		h.sources = make(map[string]int)
	}
	h.sources[source]++
	h.lines = append(h.lines, line)
}

func (h *testOutputHandler) get() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...)
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
