package manager

import (
	"context"
	"slices"
	"sync"

	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/pool"
	"golang.org/x/sync/semaphore"
)

// unitLeases shares leased units between concurrent sessions. A unit
// carries at most perUnit callers and returns to the pool when its last
// caller leaves. seats bounds callers across every unit, so a caller that
// holds a seat finds either a unit with room or a free slot in the pool.
type unitLeases struct {
	units   *pool.Pool[*browser.Unit]
	perUnit int
	seats   *semaphore.Weighted
	grow    *semaphore.Weighted

	mu   sync.Mutex
	held []*sharedUnit
}

type sharedUnit struct {
	lease *pool.Lease[*browser.Unit]
	users int
}

func newUnitLeases(units *pool.Pool[*browser.Unit], browserMax, sessionMax int) *unitLeases {
	return &unitLeases{
		units:   units,
		perUnit: sessionMax,
		seats:   semaphore.NewWeighted(int64(browserMax * sessionMax)),
		grow:    semaphore.NewWeighted(1),
	}
}

// Acquire returns a unit with a free session slot. An idle unit is
// preferred, then the least loaded unit already in use, then a new one.
// Every successful Acquire must be paired with Release.
func (l *unitLeases) Acquire(ctx context.Context) (*browser.Unit, error) {
	if err := l.units.Err(); err != nil {
		return nil, err
	}
	if err := l.seats.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	unit, err := l.take(ctx)
	if err != nil {
		l.seats.Release(1)
		return nil, err
	}
	return unit, nil
}

func (l *unitLeases) take(ctx context.Context) (*browser.Unit, error) {
	if err := l.units.Err(); err != nil {
		return nil, err
	}
	if unit, ok := l.join(); ok {
		return unit, nil
	}

	// one caller at a time leases a new unit; the rest re-check for room
	if err := l.grow.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.grow.Release(1)

	if unit, ok := l.join(); ok {
		return unit, nil
	}
	lease, err := l.units.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.held = append(l.held, &sharedUnit{lease: lease, users: 1})
	l.mu.Unlock()
	return lease.Value(), nil
}

// join takes a slot on the least loaded held unit, but only while the pool
// has no idle unit to hand out.
func (l *unitLeases) join() (*browser.Unit, bool) {
	if l.units.Stats().Idle > 0 {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	var best *sharedUnit
	for _, s := range l.held {
		if s.users < l.perUnit && (best == nil || s.users < best.users) {
			best = s
		}
	}
	if best == nil {
		return nil, false
	}
	best.users++
	return best.lease.Value(), true
}

// Release gives up one slot on unit.
func (l *unitLeases) Release(unit *browser.Unit) {
	var last *pool.Lease[*browser.Unit]

	l.mu.Lock()
	for i, s := range l.held {
		if s.lease.Value() != unit {
			continue
		}
		s.users--
		if s.users == 0 {
			last = s.lease
			l.held = slices.Delete(l.held, i, i+1)
		}
		break
	}
	l.mu.Unlock()

	// the unit goes back before the seat so the next caller can lease it
	if last != nil {
		l.units.Release(last)
	}
	l.seats.Release(1)
}
