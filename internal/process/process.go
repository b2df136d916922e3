package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/browserpool/internal/logging"
	"golang.org/x/sys/unix"
)

// ExitCodeKilled is reported when the process had to be force-killed.
const ExitCodeKilled = 137

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// Process manages the lifecycle of a subprocess.
type Process struct {
	id              string
	args            []string
	env             []string
	cmd             *exec.Cmd
	logger          logging.Logger
	processLogger   logging.Logger // logger for process output (nil = use logger)
	logParser       LogParser      // parses process output for log level (nil = no parsing)
	outputHandler   OutputHandler
	gracefulTimeout time.Duration // timeout for graceful shutdown before force kill
	killTimeout     time.Duration // timeout after SIGKILL before giving up

	mu        sync.Mutex
	state     State
	startedAt time.Time
	exitCode  int
	lastErr   error
	done      chan struct{}
	stopOnce  sync.Once
	stopCode  int
}

// New creates a process that will run args[0] with args[1:].
func New(id string, args []string, logger logging.Logger) *Process {
	return NewWithOutput(id, args, logger, nil)
}

// NewWithOutput creates a process with an output handler.
// The handler receives each line of stdout/stderr from the subprocess.
func NewWithOutput(id string, args []string, logger logging.Logger, handler OutputHandler) *Process {
	if logger == nil {
		logger = logging.GetLogger("process")
	}
	return &Process{
		id:              id,
		args:            args,
		logger:          logger,
		outputHandler:   handler,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
		state:           StateIdle,
		done:            make(chan struct{}),
	}
}

// SetLogParser sets a custom logger and log parser for process output.
func (p *Process) SetLogParser(logger logging.Logger, parser LogParser) {
	p.processLogger = logger
	p.logParser = parser
}

// SetGracefulTimeout sets how long Stop waits after SIGTERM before killing.
func (p *Process) SetGracefulTimeout(d time.Duration) {
	if d > 0 {
		p.gracefulTimeout = d
	}
}

// SetEnv appends KEY=VALUE pairs to the inherited environment.
func (p *Process) SetEnv(env ...string) {
	p.env = append(p.env, env...)
}

// Args returns the command line.
func (p *Process) Args() []string {
	return append([]string(nil), p.args...)
}

// Start launches the subprocess without waiting for it to exit.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("process %s already started", p.id)
	}
	if len(p.args) == 0 {
		p.state = StateError
		p.lastErr = errors.New("empty command")
		close(p.done)
		p.logger.Error("Empty command", "id", p.id)
		return p.lastErr
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(p.env) > 0 {
		cmd.Env = append(cmd.Environ(), p.env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return p.failStart(fmt.Errorf("stdout pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return p.failStart(fmt.Errorf("stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return p.failStart(err)
	}

	p.cmd = cmd
	p.state = StateRunning
	p.startedAt = time.Now()
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.args[0])

	// Stream output in separate goroutines
	var output sync.WaitGroup
	output.Add(2)
	go func() {
		defer output.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer output.Done()
		p.streamOutput(stderr, "stderr")
	}()

	go func() {
		output.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitCode = exitCodeFromError(err)
		if p.state != StateStopping && err != nil && p.exitCode == 1 {
			p.lastErr = err
			p.logger.Error("Process exited with error", "id", p.id, "error", err)
		}
		p.state = StateExited
		p.mu.Unlock()
		p.logger.Debug("Process exited", "id", p.id, "exit_code", p.exitCode)
		close(p.done)
	}()

	return nil
}

func (p *Process) failStart(err error) error {
	p.state = StateError
	p.lastErr = err
	close(p.done)
	p.logger.Error("Failed to start process", "id", p.id, "error", err, "command", strings.Join(p.args, " "))
	return err
}

// PID returns the process id, or 0 if the process never started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done is closed once the process has exited or failed to start.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.id,
		State:     p.state,
		StartedAt: p.startedAt,
		ExitCode:  p.exitCode,
		LastError: p.lastErr,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

// Stop sends SIGTERM to the process group and waits for exit. If the process
// is still alive after the graceful timeout, or ctx ends first, the group is
// killed. Returns the exit code. Safe to call more than once.
func (p *Process) Stop(ctx context.Context) int {
	p.stopOnce.Do(func() {
		p.stopCode = p.stop(ctx)
	})
	return p.stopCode
}

func (p *Process) stop(ctx context.Context) int {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return 0
	}
	if p.state != StateRunning {
		code := p.exitCode
		p.mu.Unlock()
		<-p.done
		return code
	}
	p.state = StateStopping
	pid := p.cmd.Process.Pid
	p.mu.Unlock()

	p.logger.Debug("Sending SIGTERM to process", "id", p.id, "pid", pid)
	if err := signalGroup(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Warn("Failed to send SIGTERM", "id", p.id, "error", err)
	}

	timer := time.NewTimer(p.gracefulTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode
	case <-timer.C:
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	case <-ctx.Done():
		p.logger.Warn("Stop cancelled, forcing kill", "id", p.id, "error", ctx.Err())
	}

	if err := KillGroup(pid); err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}

	// Wait for process to exit with a secondary timeout to prevent hanging
	select {
	case <-p.done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return ExitCodeKilled
}

// KillGroup sends SIGKILL to the process group led by pid, falling back to
// the pid alone. A process that is already gone yields an error matching
// unix.ESRCH.
func KillGroup(pid int) error {
	return signalGroup(pid, unix.SIGKILL)
}

func signalGroup(pid int, sig unix.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := unix.Kill(-pid, sig); err == nil {
		return nil
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return nil
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

// streamOutput streams output from the subprocess.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.processLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}

		level, msg := "debug", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}

		switch level {
		case "fatal", "error":
			logger.Error(msg, "id", p.id)
		case "warning":
			logger.Warn(msg, "id", p.id)
		case "info":
			logger.Info(msg, "id", p.id)
		default:
			logger.Debug(msg, "id", p.id)
		}
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

// ParseArgs splits a command line into arguments.
// Handles quoted strings and basic escaping.
func ParseArgs(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, errors.New("unclosed quote in command")
	}

	return args, nil
}
