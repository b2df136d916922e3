package manager

import (
	"context"
	"sync/atomic"

	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/events"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/metrics"
	"github.com/smazurov/browserpool/internal/registry"
)

// unitFactory creates and destroys browser units for one generation.
type unitFactory struct {
	opts     Options
	registry *registry.Registry
	bus      Publisher
	logger   logging.Logger
	nextID   atomic.Int64
}

func (f *unitFactory) Create(ctx context.Context) (*browser.Unit, error) {
	id := int(f.nextID.Add(1))
	f.logger.Info("Creating browser unit", "unit", id)

	unit, err := browser.NewUnit(ctx, browser.UnitOptions{
		ID:       id,
		Backend:  f.opts.Backend,
		Registry: f.registry,
		Launch: browser.LaunchOptions{
			Headless:     f.opts.Headless,
			WindowWidth:  f.opts.Pool.BrowserWidth,
			WindowHeight: f.opts.Pool.BrowserHeight,
		},
		Page: browser.PageOptions{
			Width:              f.opts.Pool.ViewportWidth,
			Height:             f.opts.Pool.ViewportHeight,
			IgnoreResourceLoad: f.opts.Pool.IgnoreResourceLoad,
			EnablePageCache:    f.opts.Pool.EnablePageCache,
		},
		SessionMin: f.opts.Pool.SessionMin,
		SessionMax: f.opts.Pool.SessionMax,
		Logger:     logging.GetLogger("browser"),
	})
	if err != nil {
		f.logger.Error("Failed to create browser unit", "unit", id, "error", err)
		return nil, err
	}

	if f.bus != nil {
		f.bus.Publish(events.UnitCreatedEvent{UnitID: id, PID: unit.PID(), Timestamp: now()})
	}
	return unit, nil
}

func (f *unitFactory) Destroy(ctx context.Context, unit *browser.Unit) error {
	err := unit.Close(ctx)
	metrics.DeleteUnitMetrics(unit.ID())

	if f.bus != nil {
		ev := events.UnitDestroyedEvent{UnitID: unit.ID(), PID: unit.PID(), Timestamp: now()}
		if err != nil {
			ev.Error = err.Error()
		}
		f.bus.Publish(ev)
	}
	f.logger.Info("Browser unit destroyed", "unit", unit.ID(), "pid", unit.PID())
	return err
}
