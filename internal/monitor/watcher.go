package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/browserpool/internal/events"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/metrics"
)

// DefaultInterval is used when WatcherOptions.Interval is not set.
const DefaultInterval = 10 * time.Second

// Sampler produces snapshots for every live unit.
type Sampler interface {
	SampleAll(ctx context.Context) []Snapshot
}

// Publisher receives alert events.
type Publisher interface {
	Publish(ev events.Event)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Interval   time.Duration
	Thresholds Thresholds
	Sampler    Sampler

	// Bus is optional.
	Bus Publisher

	Logger logging.Logger
}

// Watcher periodically samples every unit and reports threshold crossings.
// It only observes; it never evicts units.
type Watcher struct {
	interval time.Duration
	sampler  Sampler
	bus      Publisher
	logger   logging.Logger

	mu         sync.RWMutex
	thresholds Thresholds

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a stopped watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("monitor")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		interval:   interval,
		sampler:    opts.Sampler,
		bus:        opts.Bus,
		logger:     logger,
		thresholds: opts.Thresholds,
	}
}

// Start begins the watch loop. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("Threshold watcher started", "interval", w.interval)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (w *Watcher) Stop() {
	w.runMu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.logger.Info("Threshold watcher successfully terminated")
}

// Interval returns the tick period.
func (w *Watcher) Interval() time.Duration {
	return w.interval
}

// SetThresholds replaces the thresholds used from the next tick on.
func (w *Watcher) SetThresholds(t Thresholds) {
	w.mu.Lock()
	w.thresholds = t
	w.mu.Unlock()
	w.logger.Info("Thresholds updated",
		"cpu_warn", t.CPUWarn, "cpu_break", t.CPUBreak,
		"memory_warn", t.MemoryWarn, "memory_break", t.MemoryBreak)
}

// Thresholds returns the current thresholds.
func (w *Watcher) Thresholds() Thresholds {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.thresholds
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one sample-and-evaluate pass and returns the alerts raised.
func (w *Watcher) tick(ctx context.Context) []Alert {
	thresholds := w.Thresholds()

	var raised []Alert
	for _, snap := range w.sampler.SampleAll(ctx) {
		for _, alert := range Evaluate(snap, thresholds) {
			w.report(alert)
			raised = append(raised, alert)
		}
	}
	return raised
}

func (w *Watcher) report(a Alert) {
	msg := alertMessage(a)
	if a.Level == events.LevelDanger {
		w.logger.Error(msg, "unit", a.Snapshot.UnitID, "pid", a.Snapshot.PID, "threshold", a.Threshold)
	} else {
		w.logger.Warn(msg, "unit", a.Snapshot.UnitID, "pid", a.Snapshot.PID, "threshold", a.Threshold)
	}

	metrics.IncAlert(a.Level, a.Metric)

	if w.bus != nil {
		w.bus.Publish(events.AlertEvent{
			Level:     a.Level,
			Metric:    a.Metric,
			ID:        a.Snapshot.ID,
			UnitID:    a.Snapshot.UnitID,
			Value:     a.Value,
			Threshold: a.Threshold,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

func alertMessage(a Alert) string {
	level := "Warn"
	if a.Level == events.LevelDanger {
		level = "Danger"
	}
	if a.Metric == events.MetricCPU {
		return fmt.Sprintf("[%s] CPU usage is over threshold --- Pool ID: %s --- CPU: %.2f%%", level, a.Snapshot.ID, a.Value)
	}
	return fmt.Sprintf("[%s] Memory usage is over threshold --- Pool ID: %s --- Memory: %.2fGB", level, a.Snapshot.ID, a.Value)
}
