// Package shutdown decides how the process leaves: drain the pool within a
// budget, or kill every registered browser outright. Trap wires the decision
// to SIGINT, SIGTERM and SIGQUIT.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/browserpool/internal/config"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/manager"
	"github.com/smazurov/browserpool/internal/monitor"
	"github.com/smazurov/browserpool/internal/process"
	"github.com/smazurov/browserpool/internal/registry"
	"golang.org/x/sys/unix"
)

// DefaultTimeout bounds a graceful shutdown when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// Pool is the part of the manager the coordinator drives.
type Pool interface {
	StopWatcher()
	TerminatePool(ctx context.Context) error
	Units() []registry.Entry
}

// Options configures a Coordinator.
type Options struct {
	// Mode is config.ShutdownGraceful (default) or config.ShutdownForce.
	Mode    string
	Timeout time.Duration
	Pool    Pool

	// Kill terminates a browser's process group. Defaults to process.KillGroup.
	Kill func(pid int) error

	// OnShutdown runs once before any unit is touched.
	OnShutdown func(reason string)

	Logger logging.Logger
}

// KillError lists the units whose processes could not be killed.
type KillError struct {
	Failed map[int]error
}

func (e *KillError) Error() string {
	return fmt.Sprintf("failed to kill %d browser unit(s)", len(e.Failed))
}

// Coordinator runs the shutdown policy at most once.
type Coordinator struct {
	opts   Options
	logger logging.Logger

	once     sync.Once
	err      error
	trapOnce sync.Once
}

// New creates a coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("pool")
	}
	if opts.Mode == "" {
		opts.Mode = config.ShutdownGraceful
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Kill == nil {
		opts.Kill = process.KillGroup
	}
	return &Coordinator{opts: opts, logger: logger}
}

// Shutdown stops the threshold watcher and then either terminates the pool
// within the configured timeout, killing whatever is still registered
// afterwards, or kills every registered unit immediately. Later calls
// return the first call's result.
func (c *Coordinator) Shutdown(ctx context.Context, reason string) error {
	c.once.Do(func() {
		c.err = c.run(ctx, reason)
	})
	return c.err
}

// ExitCode is 1 when any browser could not be killed, otherwise 0.
func (c *Coordinator) ExitCode() int {
	var ke *KillError
	if errors.As(c.err, &ke) {
		return 1
	}
	return 0
}

func (c *Coordinator) run(ctx context.Context, reason string) error {
	c.logger.Info("Shutting down", "reason", reason, "mode", c.opts.Mode)
	if c.opts.OnShutdown != nil {
		c.opts.OnShutdown(reason)
	}

	c.opts.Pool.StopWatcher()

	if c.opts.Mode != config.ShutdownForce {
		tctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		err := c.opts.Pool.TerminatePool(tctx)
		cancel()
		switch {
		case err == nil:
			c.logger.Info("Pool terminated gracefully")
			return nil
		case errors.Is(err, manager.ErrNotInitialized):
			return nil
		default:
			c.logger.Warn("Graceful termination incomplete, killing remaining browsers", "error", err)
		}
	}

	return c.killAll(c.opts.Pool.Units())
}

// killAll signals every unit independently; one failure never stops the rest.
func (c *Coordinator) killAll(units []registry.Entry) error {
	failed := make(map[int]error)
	for _, u := range units {
		id := monitor.DisplayID(u.UnitID, u.PID)
		if err := c.opts.Kill(u.PID); err != nil {
			if errors.Is(err, unix.ESRCH) {
				c.logger.Warn("Browser already exited before kill", "id", id)
			} else {
				c.logger.Error("Failed to kill browser", "id", id, "error", err)
			}
			failed[u.UnitID] = err
			continue
		}
		c.logger.Info("Killed browser", "id", id)
	}
	if len(failed) > 0 {
		return &KillError{Failed: failed}
	}
	return nil
}

// Trap calls Shutdown and then exit with the exit code on the first
// SIGINT, SIGTERM or SIGQUIT. Signals are registered once per coordinator;
// cancelling ctx stops listening.
func Trap(ctx context.Context, c *Coordinator, exit func(code int)) {
	c.trapOnce.Do(func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

		go func() {
			defer signal.Stop(sigs)
			select {
			case sig := <-sigs:
				c.logger.Info("Received signal", "signal", sig.String())
				_ = c.Shutdown(context.WithoutCancel(ctx), sig.String())
				exit(c.ExitCode())
			case <-ctx.Done():
			}
		}()
	})
}
