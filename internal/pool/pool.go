package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/puddle/v2"
	"github.com/smazurov/browserpool/internal/logging"
)

// Factory builds and tears down pooled resources.
type Factory[T any] interface {
	// Create builds a new resource. Errors propagate to the caller of Acquire.
	Create(ctx context.Context) (T, error)

	// Destroy releases everything held by the resource.
	Destroy(ctx context.Context, value T) error
}

// Options configures a Pool.
type Options struct {
	// Name identifies the pool in logs.
	Name string

	// Min resources are created up front.
	Min int

	// Max bounds the number of live resources (required, >= 1).
	Max int

	// Logger for pool operations. If nil, uses logging.GetLogger("pool").
	Logger logging.Logger
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Total int `json:"total"`
	Idle  int `json:"idle"`
	InUse int `json:"in_use"`
	Max   int `json:"max"`
}

// Lease is exclusive access to one pooled resource.
type Lease[T any] struct {
	res *puddle.Resource[T]
}

// Value returns the leased resource.
func (l *Lease[T]) Value() T {
	return l.res.Value()
}

// Pool is a bounded pool of T.
type Pool[T any] struct {
	name    string
	factory Factory[T]
	inner   *puddle.Pool[T]
	logger  logging.Logger

	mu          sync.Mutex
	draining    bool
	reclaim     bool // set when Close gave up waiting; releases destroy
	closed      bool
	outstanding int
	leases      sync.WaitGroup // outstanding leases plus in-flight acquires
}

// New configures a pool and pre-creates opts.Min resources.
func New[T any](ctx context.Context, factory Factory[T], opts Options) (*Pool[T], error) {
	if opts.Max < 1 || opts.Min < 0 || opts.Min > opts.Max {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrInvalidSize, opts.Min, opts.Max)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("pool")
	}

	p := &Pool[T]{
		name:    opts.Name,
		factory: factory,
		logger:  logger,
	}

	inner, err := puddle.NewPool(&puddle.Config[T]{
		Constructor: factory.Create,
		Destructor:  p.destroy,
		MaxSize:     int32(opts.Max),
	})
	if err != nil {
		return nil, err
	}
	p.inner = inner

	for i := 0; i < opts.Min; i++ {
		if err := inner.CreateResource(ctx); err != nil {
			p.logger.Error("Failed to pre-create resource", "pool", p.name, "error", err)
			_ = p.Clear(ctx)
			inner.Close()
			return nil, err
		}
	}

	return p, nil
}

// Acquire waits until a resource is idle or the pool can grow, then leases it.
func (p *Pool[T]) Acquire(ctx context.Context) (*Lease[T], error) {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return nil, ErrClosed
	case p.draining:
		p.mu.Unlock()
		return nil, ErrDraining
	}
	p.outstanding++
	p.leases.Add(1)
	p.mu.Unlock()

	res, err := p.inner.Acquire(ctx)
	if err != nil {
		p.done()
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return &Lease[T]{res: res}, nil
}

// Release returns a leased resource to the idle set. After a Close that
// timed out the resource is destroyed instead.
func (p *Pool[T]) Release(l *Lease[T]) {
	p.mu.Lock()
	reclaim := p.reclaim
	p.mu.Unlock()

	if reclaim {
		if err := p.Destroy(context.Background(), l); err != nil {
			p.logger.Warn("Failed to destroy released resource", "pool", p.name, "error", err)
		}
		return
	}
	l.res.Release()
	p.done()
}

// Destroy removes a leased resource from the pool, running the factory's
// Destroy synchronously. The slot becomes available to other callers.
func (p *Pool[T]) Destroy(ctx context.Context, l *Lease[T]) error {
	value := l.res.Value()
	l.res.Hijack()
	err := p.factory.Destroy(ctx, value)
	p.done()
	return err
}

// done retires one lease. The last lease out of a reclaiming pool closes it.
func (p *Pool[T]) done() {
	p.mu.Lock()
	p.outstanding--
	closeInner := p.reclaim && p.outstanding == 0 && !p.closed
	if closeInner {
		p.closed = true
	}
	p.mu.Unlock()

	if closeInner {
		p.inner.Close()
		p.logger.Debug("Pool closed after reclaiming leases", "pool", p.name)
	}
	p.leases.Done()
}

// Drain stops accepting new acquisitions and waits for every outstanding
// lease to be released. Acquisitions already waiting are still served.
func (p *Pool[T]) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.draining = true
	p.mu.Unlock()

	p.logger.Debug("Draining pool", "pool", p.name)

	done := make(chan struct{})
	go func() {
		p.leases.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain %s: %w", p.name, ctx.Err())
	}
}

// Clear destroys every idle resource. After Drain, once no lease is
// outstanding, it also closes the pool. Destroy errors are collected; every
// idle resource is attempted.
func (p *Pool[T]) Clear(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil
	}

	var errs []error
	for _, res := range p.inner.AcquireAllIdle() {
		value := res.Value()
		res.Hijack()
		if err := p.factory.Destroy(ctx, value); err != nil {
			errs = append(errs, err)
		}
	}

	p.mu.Lock()
	closeInner := p.draining && p.outstanding == 0 && !p.closed
	if closeInner {
		p.closed = true
	}
	p.mu.Unlock()

	if closeInner {
		p.inner.Close()
		p.logger.Debug("Pool closed", "pool", p.name)
	}
	return errors.Join(errs...)
}

// Close runs Drain followed by Clear. If ctx ends before the drain
// completes, idle resources are still destroyed and every lease still out
// is destroyed when released; the last one closes the pool. Close may be
// called again to wait for that.
func (p *Pool[T]) Close(ctx context.Context) error {
	if err := p.Drain(ctx); err != nil {
		p.mu.Lock()
		p.reclaim = true
		p.mu.Unlock()
		return errors.Join(err, p.Clear(context.WithoutCancel(ctx)))
	}
	return p.Clear(ctx)
}

// Err reports why Acquire would be refused: ErrClosed, ErrDraining or nil.
func (p *Pool[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return ErrClosed
	case p.draining:
		return ErrDraining
	}
	return nil
}

// Closed reports whether the pool has been closed and holds no resources.
func (p *Pool[T]) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Stats returns current counts.
func (p *Pool[T]) Stats() Stats {
	s := p.inner.Stat()
	return Stats{
		Total: int(s.TotalResources()),
		Idle:  int(s.IdleResources()),
		InUse: int(s.AcquiredResources()),
		Max:   int(s.MaxResources()),
	}
}

// destroy adapts Factory.Destroy to puddle's destructor, used when puddle
// itself discards a resource.
func (p *Pool[T]) destroy(value T) {
	if err := p.factory.Destroy(context.Background(), value); err != nil {
		p.logger.Warn("Failed to destroy resource", "pool", p.name, "error", err)
	}
}
