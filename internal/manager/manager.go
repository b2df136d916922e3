package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/config"
	"github.com/smazurov/browserpool/internal/events"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/metrics"
	"github.com/smazurov/browserpool/internal/monitor"
	"github.com/smazurov/browserpool/internal/pool"
	"github.com/smazurov/browserpool/internal/registry"
)

// State is the manager lifecycle state.
type State int32

// Manager states.
const (
	StateUninitialized State = iota
	StateBooted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateBooted:
		return "booted"
	case StateTerminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

// Publisher receives unit lifecycle, alert and state events.
type Publisher interface {
	Publish(ev events.Event)
}

// Callback runs against an issued session's page. The page must not be
// retained after the callback returns.
type Callback func(ctx context.Context, page browser.Page) (any, error)

// Options configures a Manager.
type Options struct {
	Pool       config.PoolConfig
	Thresholds *config.ThresholdConfig

	// SessionTimeout bounds each callback; zero means no deadline.
	SessionTimeout time.Duration

	Backend  browser.Backend
	Headless bool

	// Bus is optional.
	Bus Publisher

	// Logger for manager operations. If nil, uses logging.GetLogger("pool").
	Logger logging.Logger
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	State string           `json:"state"`
	Units pool.Stats       `json:"units"`
	Live  []registry.Entry `json:"live"`
}

// generation is everything one boot creates. Reboot swaps it wholesale.
type generation struct {
	registry  *registry.Registry
	units     *pool.Pool[*browser.Unit]
	leases    *unitLeases
	collector *monitor.Collector
	watcher   *monitor.Watcher
}

// Manager is the two-tier pool manager.
type Manager struct {
	opts   Options
	logger logging.Logger

	// lifecycle serialises Boot, TerminatePool and Reboot.
	lifecycle sync.Mutex

	mu         sync.RWMutex
	state      State
	gen        *generation
	thresholds *config.ThresholdConfig

	// stale holds terminated generations whose units are not all closed yet.
	stale []*generation
}

// New creates an uninitialized manager.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("pool")
	}
	return &Manager{
		opts:       opts,
		logger:     logger,
		thresholds: opts.Thresholds,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Boot creates the unit pool with BrowserMin units and arms the threshold
// watcher. Booting a booted manager is a logged no-op.
func (m *Manager) Boot(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.bootLocked(ctx)
}

func (m *Manager) bootLocked(ctx context.Context) error {
	if m.State() == StateBooted {
		m.logger.Warn("Pool manager already booted. Ignore invoke signal")
		return nil
	}

	m.logger.Info("Booting pool manager",
		"browser_min", m.opts.Pool.BrowserMin,
		"browser_max", m.opts.Pool.BrowserMax,
		"session_min", m.opts.Pool.SessionMin,
		"session_max", m.opts.Pool.SessionMax)

	if n := m.pruneStale(); n > 0 {
		m.logger.Warn("Booting while units of a terminated pool are still draining", "units", n)
	}

	gen, err := m.newGeneration(ctx)
	if err != nil {
		return fmt.Errorf("boot pool manager: %w", err)
	}

	m.mu.Lock()
	m.gen = gen
	m.state = StateBooted
	m.mu.Unlock()

	m.recordPoolStats(gen)
	m.publish(events.PoolStateChangedEvent{State: StateBooted.String(), Timestamp: now()})
	m.logger.Info("Pool manager booted", "units", gen.registry.Len())
	return nil
}

func (m *Manager) newGeneration(ctx context.Context) (*generation, error) {
	reg := registry.New()
	factory := &unitFactory{
		opts:     m.opts,
		registry: reg,
		bus:      m.opts.Bus,
		logger:   m.logger,
	}

	units, err := pool.New[*browser.Unit](ctx, factory, pool.Options{
		Name:   "units",
		Min:    m.opts.Pool.BrowserMin,
		Max:    m.opts.Pool.BrowserMax,
		Logger: m.logger,
	})
	if err != nil {
		return nil, err
	}

	gen := &generation{
		registry:  reg,
		units:     units,
		leases:    newUnitLeases(units, m.opts.Pool.BrowserMax, m.opts.Pool.SessionMax),
		collector: monitor.NewCollector(reg, logging.GetLogger("monitor")),
	}

	m.mu.RLock()
	thresholds := m.thresholds
	m.mu.RUnlock()
	if thresholds != nil {
		gen.watcher = m.startWatcher(ctx, gen.collector, thresholds)
	}
	return gen, nil
}

// startWatcher runs until the generation is terminated, not until ctx ends.
func (m *Manager) startWatcher(ctx context.Context, sampler monitor.Sampler, t *config.ThresholdConfig) *monitor.Watcher {
	var bus monitor.Publisher
	if m.opts.Bus != nil {
		bus = m.opts.Bus
	}
	w := monitor.NewWatcher(monitor.WatcherOptions{
		Interval:   t.Interval,
		Thresholds: toMonitorThresholds(t),
		Sampler:    sampler,
		Bus:        bus,
		Logger:     logging.GetLogger("monitor"),
	})
	w.Start(context.WithoutCancel(ctx))
	m.logger.Info("Threshold watcher armed", "interval", t.Interval,
		"cpu_warn", t.CPUWarn, "cpu_break", t.CPUBreak,
		"memory_warn", t.MemoryWarn, "memory_break", t.MemoryBreak)
	return w
}

// current returns the live generation or NotInitializedError before boot.
func (m *Manager) current() (*generation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == StateUninitialized {
		return nil, newNotInitializedError()
	}
	return m.gen, nil
}

// IssueSession runs cb against an exclusively held session. A unit serves
// up to SessionMax callers at once, so BrowserMax*SessionMax sessions can be
// in flight. Unit-tier acquisition errors are returned unchanged; session
// acquisition and callback failures, panics included, are returned as
// *SessionCallbackError. Both tiers are always released.
func (m *Manager) IssueSession(ctx context.Context, cb Callback) (any, error) {
	gen, err := m.current()
	if err != nil {
		metrics.ObserveSession(metrics.ResultRejected, 0)
		return nil, err
	}

	start := time.Now()
	unit, err := gen.leases.Acquire(ctx)
	if err != nil {
		metrics.ObserveSession(metrics.ResultRejected, time.Since(start))
		return nil, err
	}
	defer func() {
		gen.leases.Release(unit)
		m.recordPoolStats(gen)
	}()
	m.recordPoolStats(gen)

	sessionLease, err := unit.AcquireSession(ctx)
	if err != nil {
		metrics.ObserveSession(metrics.ResultError, time.Since(start))
		m.logger.Warn("Failed to acquire session", "unit", unit.ID(), "error", err)
		return nil, newSessionCallbackError(err)
	}
	defer unit.ReleaseSession(sessionLease)

	session := sessionLease.Value()
	m.logger.Debug("Session issued", "session", session.Name(), "pid", unit.PID())

	if m.opts.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.SessionTimeout)
		defer cancel()
	}

	result, err := runCallback(ctx, cb, session.Page)
	if err != nil {
		metrics.ObserveSession(metrics.ResultError, time.Since(start))
		m.logger.Warn("Session callback failed", "session", session.Name(), "error", err)
		return nil, newSessionCallbackError(err)
	}

	metrics.ObserveSession(metrics.ResultSuccess, time.Since(start))
	return result, nil
}

func runCallback(ctx context.Context, cb Callback, page browser.Page) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cb(ctx, page)
}

// Issue is IssueSession with a typed result.
func Issue[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, page browser.Page) (T, error)) (T, error) {
	var out T
	_, err := m.IssueSession(ctx, func(ctx context.Context, page browser.Page) (any, error) {
		v, err := fn(ctx, page)
		if err != nil {
			return nil, err
		}
		out = v
		return nil, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// GetPoolMetrics samples one unit when id is set, otherwise every live unit
// in registry order. An unknown id yields an empty slice.
func (m *Manager) GetPoolMetrics(ctx context.Context, id *int) ([]monitor.Snapshot, error) {
	gen, err := m.current()
	if err != nil {
		return nil, err
	}

	if id == nil {
		return gen.collector.SampleAll(ctx), nil
	}

	snap, ok, err := gen.collector.Sample(ctx, *id)
	if !ok {
		if err != nil {
			return nil, err
		}
		return []monitor.Snapshot{}, nil
	}
	if err != nil {
		m.logger.Warn("Failed to sample browser process", "unit", *id, "error", err)
	}
	return []monitor.Snapshot{snap}, nil
}

// TerminatePool stops the watcher, drains every unit and closes it. ctx
// bounds the drain. On timeout idle units are closed at once and busy ones
// as their sessions finish; until then they stay listed by Units, and
// calling TerminatePool again waits for them.
func (m *Manager) TerminatePool(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.terminateLocked(ctx)
}

func (m *Manager) terminateLocked(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return newNotInitializedError()
	}
	booted := m.state == StateBooted
	gen := m.gen
	var watcher *monitor.Watcher
	if booted {
		m.state = StateTerminated
		m.stale = append(m.stale, gen)
		watcher = gen.watcher
		gen.watcher = nil
	}
	pending := slices.Clone(m.stale)
	m.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if booted {
		m.logger.Info("Terminating pool manager", "units", gen.registry.Len())
		if watcher != nil {
			watcher.Stop()
		}
	} else {
		m.logger.Info("Waiting for units of the terminated pool", "units", countUnits(pending))
	}

	err := m.closeGenerations(ctx, pending)
	metrics.SetPoolUnits(0, 0, 0)
	if booted {
		m.publish(events.PoolStateChangedEvent{State: StateTerminated.String(), Timestamp: now()})
	}

	if err != nil {
		m.logger.Error("Pool terminated with errors", "remaining", countUnits(pending), "error", err)
		return fmt.Errorf("terminate pool: %w", err)
	}
	metrics.ResetUnitMetrics()
	m.logger.Info("Pool manager terminated")
	return nil
}

// closeGenerations closes each generation's unit pool and forgets the ones
// that closed cleanly.
func (m *Manager) closeGenerations(ctx context.Context, gens []*generation) error {
	var errs []error
	for _, gen := range gens {
		if err := gen.units.Close(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		m.stale = slices.DeleteFunc(m.stale, func(g *generation) bool { return g == gen })
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

// pruneStale forgets stale generations whose pools closed on their own and
// returns how many units the rest still hold.
func (m *Manager) pruneStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stale = slices.DeleteFunc(m.stale, func(g *generation) bool { return g.units.Closed() })
	return countUnits(m.stale)
}

func countUnits(gens []*generation) int {
	n := 0
	for _, gen := range gens {
		n += gen.registry.Len()
	}
	return n
}

// Reboot terminates the current generation and boots a new one. If ctx ends
// before the old units drain, the manager stays terminated and Reboot can be
// retried.
func (m *Manager) Reboot(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.State() == StateUninitialized {
		return newNotInitializedError()
	}

	m.logger.Warn("Rebooting pool manager. Frequent reboots are not recommended")
	if err := m.terminateLocked(ctx); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return m.bootLocked(ctx)
}

// Stats returns the unit pool counts and live registry entries.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	state, gen := m.state, m.gen
	m.mu.RUnlock()

	s := Stats{State: state.String(), Live: []registry.Entry{}}
	if gen == nil {
		return s
	}
	s.Units = gen.units.Stats()
	s.Live = append(s.Live, m.Units()...)
	return s
}

// Units lists every unit still registered: the current generation's and
// those of terminated generations that have not finished closing.
func (m *Manager) Units() []registry.Entry {
	m.mu.RLock()
	var gens []*generation
	if m.gen != nil {
		gens = append(gens, m.gen)
	}
	for _, gen := range m.stale {
		if gen != m.gen {
			gens = append(gens, gen)
		}
	}
	m.mu.RUnlock()

	var out []registry.Entry
	for _, gen := range gens {
		out = append(out, gen.registry.List()...)
	}
	return out
}

// StopWatcher cancels the threshold watcher and waits for its current tick.
func (m *Manager) StopWatcher() {
	m.mu.Lock()
	var watcher *monitor.Watcher
	if m.gen != nil {
		watcher = m.gen.watcher
		m.gen.watcher = nil
	}
	m.mu.Unlock()

	if watcher != nil {
		watcher.Stop()
		m.logger.Debug("Threshold watcher stopped")
	}
}

// SetThresholds replaces the threshold configuration. nil disables the
// watcher. A booted manager applies the change immediately; a changed
// interval restarts the watcher.
func (m *Manager) SetThresholds(ctx context.Context, t *config.ThresholdConfig) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	m.thresholds = t
	if m.state != StateBooted {
		m.mu.Unlock()
		return
	}
	gen := m.gen
	current := gen.watcher
	m.mu.Unlock()

	if current != nil && t != nil && current.Interval() == t.Interval {
		current.SetThresholds(toMonitorThresholds(t))
		m.logger.Info("Thresholds updated",
			"cpu_warn", t.CPUWarn, "cpu_break", t.CPUBreak,
			"memory_warn", t.MemoryWarn, "memory_break", t.MemoryBreak)
		return
	}

	if current != nil {
		current.Stop()
	}
	var next *monitor.Watcher
	if t != nil {
		next = m.startWatcher(ctx, gen.collector, t)
	} else {
		m.logger.Info("Threshold watcher disabled")
	}

	m.mu.Lock()
	gen.watcher = next
	m.mu.Unlock()
}

func (m *Manager) recordPoolStats(gen *generation) {
	s := gen.units.Stats()
	metrics.SetPoolUnits(s.Total, s.Idle, s.InUse)
}

func (m *Manager) publish(ev events.Event) {
	if m.opts.Bus != nil {
		m.opts.Bus.Publish(ev)
	}
}

func toMonitorThresholds(t *config.ThresholdConfig) monitor.Thresholds {
	return monitor.Thresholds{
		CPUWarn:     t.CPUWarn,
		CPUBreak:    t.CPUBreak,
		MemoryWarn:  t.MemoryWarn,
		MemoryBreak: t.MemoryBreak,
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}

// IsUnavailable reports whether err means the pool cannot serve sessions:
// not booted, terminated or draining.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, pool.ErrDraining) ||
		errors.Is(err, pool.ErrClosed)
}
