package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/pool"
	"github.com/smazurov/browserpool/internal/registry"
)

// UnitOptions configures a browser unit.
type UnitOptions struct {
	ID       int
	Backend  Backend
	Registry *registry.Registry
	Launch   LaunchOptions
	Page     PageOptions

	SessionMin int
	SessionMax int

	// Logger for unit operations. If nil, uses logging.GetLogger("browser").
	Logger logging.Logger
}

// Unit is one browser process with its own session pool.
type Unit struct {
	id       int
	pid      int
	instance Instance
	sessions *pool.Pool[*Session]
	registry *registry.Registry
	logger   logging.Logger
}

// NewUnit launches a browser, registers its pid, then pre-creates
// SessionMin sessions. On failure nothing is left registered or running.
func NewUnit(ctx context.Context, opts UnitOptions) (*Unit, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("browser")
	}

	launch := opts.Launch
	launch.UnitID = opts.ID
	instance, err := opts.Backend.Launch(ctx, launch)
	if err != nil {
		return nil, fmt.Errorf("unit %d: %w", opts.ID, err)
	}

	pid := instance.PID()
	opts.Registry.Register(opts.ID, pid)
	logger.Info("Browser unit launched", "unit", opts.ID, "pid", pid)

	factory := &sessionFactory{
		unitID:   opts.ID,
		instance: instance,
		page:     opts.Page,
		registry: opts.Registry,
		logger:   logger,
	}
	sessions, err := pool.New[*Session](ctx, factory, pool.Options{
		Name:   fmt.Sprintf("sessions-%d", opts.ID),
		Min:    opts.SessionMin,
		Max:    opts.SessionMax,
		Logger: logger,
	})
	if err != nil {
		opts.Registry.Unregister(opts.ID)
		closeErr := instance.Close(context.WithoutCancel(ctx))
		return nil, errors.Join(fmt.Errorf("unit %d session pool: %w", opts.ID, err), closeErr)
	}

	return &Unit{
		id:       opts.ID,
		pid:      pid,
		instance: instance,
		sessions: sessions,
		registry: opts.Registry,
		logger:   logger,
	}, nil
}

// ID returns the unit id.
func (u *Unit) ID() int { return u.id }

// PID returns the browser process id.
func (u *Unit) PID() int { return u.pid }

// AcquireSession leases a session, waiting if all SessionMax are busy.
func (u *Unit) AcquireSession(ctx context.Context) (*pool.Lease[*Session], error) {
	return u.sessions.Acquire(ctx)
}

// ReleaseSession returns a session to the unit.
func (u *Unit) ReleaseSession(lease *pool.Lease[*Session]) {
	u.sessions.Release(lease)
}

// DiscardSession closes a session that should not be reused.
func (u *Unit) DiscardSession(ctx context.Context, lease *pool.Lease[*Session]) error {
	return u.sessions.Destroy(ctx, lease)
}

// SessionStats reports the session pool counts.
func (u *Unit) SessionStats() pool.Stats {
	return u.sessions.Stats()
}

// Close drains and clears the session pool, terminates the browser and
// removes the unit from the registry.
func (u *Unit) Close(ctx context.Context) error {
	u.logger.Info("Closing browser unit", "unit", u.id, "pid", u.pid)

	var errs []error
	if err := u.sessions.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := u.instance.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	u.registry.Unregister(u.id)

	if err := errors.Join(errs...); err != nil {
		u.logger.Warn("Browser unit closed with errors", "unit", u.id, "error", err)
		return fmt.Errorf("unit %d: %w", u.id, err)
	}
	return nil
}
