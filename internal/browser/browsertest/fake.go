// Package browsertest provides a browser.Backend for tests. Each launched
// instance is backed by a real, idle OS process so pids can be sampled and
// signalled.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/process"
)

// Backend is a fake browser.Backend.
type Backend struct {
	// LaunchErr, if set, is returned by every Launch.
	LaunchErr error

	// PageErr, if set, is returned by every NewPage.
	PageErr error

	// Command overrides the placeholder process (default: sleep 3600).
	Command []string

	mu            sync.Mutex
	launched      int
	pagesOpened   int
	pagesClosed   int
	instances     []*Instance
	lastPageOpts  browser.PageOptions
	lastLaunchOpt browser.LaunchOptions
	closed        bool
}

// Counts reports launches and page open/close totals.
type Counts struct {
	Launched    int
	PagesOpened int
	PagesClosed int
}

// Launch starts a placeholder process.
func (b *Backend) Launch(_ context.Context, opts browser.LaunchOptions) (browser.Instance, error) {
	b.mu.Lock()
	launchErr := b.LaunchErr
	b.lastLaunchOpt = opts
	b.mu.Unlock()
	if launchErr != nil {
		return nil, launchErr
	}

	args := b.Command
	if len(args) == 0 {
		args = []string{"sleep", "3600"}
	}
	proc := process.New(fmt.Sprintf("fake-unit-%d", opts.UnitID), args, slog.New(slog.NewTextHandler(io.Discard, nil)))
	proc.SetGracefulTimeout(200 * time.Millisecond)
	if err := proc.Start(); err != nil {
		return nil, err
	}

	inst := &Instance{backend: b, proc: proc}
	b.mu.Lock()
	b.launched++
	b.instances = append(b.instances, inst)
	b.mu.Unlock()
	return inst, nil
}

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Counts returns a snapshot of the counters.
func (b *Backend) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{Launched: b.launched, PagesOpened: b.pagesOpened, PagesClosed: b.pagesClosed}
}

// Instances returns every instance launched so far.
func (b *Backend) Instances() []*Instance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Instance(nil), b.instances...)
}

// LastPageOptions returns the options of the most recent NewPage call.
func (b *Backend) LastPageOptions() browser.PageOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPageOpts
}

// LastLaunchOptions returns the options of the most recent Launch call.
func (b *Backend) LastLaunchOptions() browser.LaunchOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastLaunchOpt
}

// Closed reports whether Close was called.
func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Instance is a fake browser.Instance.
type Instance struct {
	backend *Backend
	proc    *process.Process

	mu     sync.Mutex
	closed bool
}

// PID returns the placeholder process id.
func (i *Instance) PID() int {
	return i.proc.PID()
}

// Done is closed when the placeholder process exits.
func (i *Instance) Done() <-chan struct{} {
	return i.proc.Done()
}

// Closed reports whether Close was called.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// NewPage returns a fake page.
func (i *Instance) NewPage(_ context.Context, opts browser.PageOptions) (browser.Page, error) {
	b := i.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PageErr != nil {
		return nil, b.PageErr
	}
	b.pagesOpened++
	b.lastPageOpts = opts
	return &Page{backend: b}, nil
}

// Close stops the placeholder process.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.proc.Stop(ctx)
	return nil
}

// Page is a fake browser.Page.
type Page struct {
	backend *Backend

	mu     sync.Mutex
	url    string
	closed bool
}

// Navigate records url. Navigating to a URL containing "fail" returns an error.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("page closed")
	}
	if strings.Contains(url, "fail") {
		return fmt.Errorf("navigation to %s failed", url)
	}
	p.url = url
	return nil
}

// URL returns the last navigated url.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Title returns "Title of <url>".
func (p *Page) Title() (string, error) {
	return "Title of " + p.URL(), nil
}

// Content returns a small HTML document mentioning the url.
func (p *Page) Content() (string, error) {
	return "<html><body>" + p.URL() + "</body></html>", nil
}

// Evaluate returns the expression unchanged.
func (p *Page) Evaluate(expression string) (any, error) {
	return expression, nil
}

// Close marks the page closed.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("page already closed")
	}
	p.closed = true
	p.mu.Unlock()

	p.backend.mu.Lock()
	p.backend.pagesClosed++
	p.backend.mu.Unlock()
	return nil
}
