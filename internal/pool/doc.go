// Package pool provides a generic bounded resource pool.
//
// A Pool keeps between Min and Max live resources of one type. Resources are
// built and torn down by a Factory, acquired exclusively through a Lease and
// handed back with Release. The same primitive backs both tiers of the
// browser pool: browser units and the page sessions inside each unit.
//
//	p, err := pool.New(ctx, factory, pool.Options{Name: "sessions", Min: 1, Max: 5})
//	if err != nil {
//	    return err
//	}
//	lease, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(lease)
//	use(lease.Value())
//
// Closing is a two step affair: Drain stops new acquisitions and waits for
// every outstanding lease to come back, then Clear destroys the idle
// resources. Close runs both.
package pool
