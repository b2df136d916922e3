package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/process"
)

const (
	// DefaultLaunchTimeout bounds how long Launch waits for the DevTools endpoint.
	DefaultLaunchTimeout = 30 * time.Second

	// DefaultStopTimeout is the grace period between SIGTERM and SIGKILL.
	DefaultStopTimeout = 5 * time.Second
)

// blockedResourceTypes are aborted when IgnoreResourceLoad is set.
var blockedResourceTypes = map[string]bool{
	"image":      true,
	"stylesheet": true,
	"font":       true,
	"media":      true,
}

// PlaywrightOptions configures the playwright backend.
type PlaywrightOptions struct {
	// Executable overrides the Chromium binary. Empty uses the one
	// installed by playwright.
	Executable string

	// ExtraArgs are appended to the browser command line.
	ExtraArgs []string

	// Install downloads the driver and Chromium before starting.
	Install bool

	LaunchTimeout time.Duration
	StopTimeout   time.Duration

	Logger logging.Logger
}

// PlaywrightBackend launches Chromium processes itself and attaches to each
// one over CDP, so every unit has a known pid.
type PlaywrightBackend struct {
	pw         *playwright.Playwright
	executable string
	opts       PlaywrightOptions
	logger     logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewPlaywright starts the playwright driver.
func NewPlaywright(opts PlaywrightOptions) (*PlaywrightBackend, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("browser")
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = DefaultLaunchTimeout
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if opts.Install {
		logger.Info("Installing playwright driver and chromium")
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	executable := opts.Executable
	if executable == "" {
		executable = pw.Chromium.ExecutablePath()
	}
	if _, err := os.Stat(executable); err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("chromium executable %q: %w", executable, err)
	}

	logger.Info("Playwright started", "executable", executable)
	return &PlaywrightBackend{pw: pw, executable: executable, opts: opts, logger: logger}, nil
}

// Launch starts a Chromium process and connects to its DevTools endpoint.
func (b *PlaywrightBackend) Launch(ctx context.Context, opts LaunchOptions) (Instance, error) {
	dataDir, err := os.MkdirTemp("", fmt.Sprintf("browserpool-unit-%d-*", opts.UnitID))
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		b.executable,
		"--remote-debugging-port=0",
		"--user-data-dir=" + dataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-dev-shm-usage",
		"--disable-background-networking",
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.WindowWidth, opts.WindowHeight))
	}
	args = append(args, b.opts.ExtraArgs...)
	args = append(args, "about:blank")

	watcher := newEndpointWatcher()
	proc := process.NewWithOutput(fmt.Sprintf("unit-%d", opts.UnitID), args, b.logger, watcher)
	proc.SetLogParser(logging.GetLogger("chrome"), ParseChromeLogLevel)
	proc.SetGracefulTimeout(b.opts.StopTimeout)

	if err := proc.Start(); err != nil {
		_ = os.RemoveAll(dataDir)
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	inst := &chromeInstance{proc: proc, dataDir: dataDir, logger: b.logger}

	launchCtx, cancel := context.WithTimeout(ctx, b.opts.LaunchTimeout)
	defer cancel()

	var endpoint string
	select {
	case endpoint = <-watcher.endpoint:
	case <-proc.Done():
		inst.cleanup(context.Background())
		return nil, fmt.Errorf("chromium exited before DevTools was ready (exit code %d)", proc.Info().ExitCode)
	case <-launchCtx.Done():
		inst.cleanup(context.Background())
		return nil, fmt.Errorf("waiting for DevTools endpoint: %w", launchCtx.Err())
	}

	browser, err := b.pw.Chromium.ConnectOverCDP(endpoint)
	if err != nil {
		inst.cleanup(context.Background())
		return nil, fmt.Errorf("connect over CDP: %w", err)
	}
	inst.browser = browser

	b.logger.Debug("Browser connected", "unit", opts.UnitID, "pid", proc.PID(), "endpoint", endpoint)
	return inst, nil
}

// Close stops the playwright driver. Later calls return the first result.
func (b *PlaywrightBackend) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.pw.Stop()
	})
	return b.closeErr
}

type chromeInstance struct {
	proc    *process.Process
	browser playwright.Browser
	dataDir string
	logger  logging.Logger
}

func (i *chromeInstance) PID() int {
	return i.proc.PID()
}

// NewPage opens a page in its own browser context so cookies and cache
// settings never leak between sessions.
func (i *chromeInstance) NewPage(_ context.Context, opts PageOptions) (Page, error) {
	bctx, err := i.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if opts.IgnoreResourceLoad {
		err := page.Route("**/*", func(route playwright.Route) {
			if blockedResourceTypes[route.Request().ResourceType()] {
				_ = route.Abort()
				return
			}
			_ = route.Continue()
		})
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to install resource filter: %w", err)
		}
	}

	if opts.EnablePageCache {
		cdp, err := bctx.NewCDPSession(page)
		if err == nil {
			_, err = cdp.Send("Network.enable", map[string]interface{}{})
		}
		if err == nil {
			_, err = cdp.Send("Network.setCacheDisabled", map[string]interface{}{"cacheDisabled": false})
		}
		if err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to enable page cache: %w", err)
		}
	}

	return &playwrightPage{context: bctx, page: page}, nil
}

func (i *chromeInstance) Close(ctx context.Context) error {
	var errs []error
	if i.browser != nil {
		if err := i.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
	}
	if err := i.cleanup(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// cleanup stops the process and removes its profile directory.
func (i *chromeInstance) cleanup(ctx context.Context) error {
	code := i.proc.Stop(ctx)
	if code == process.ExitCodeKilled {
		i.logger.Warn("Browser had to be killed", "pid", i.proc.PID())
	}
	if err := os.RemoveAll(i.dataDir); err != nil {
		return fmt.Errorf("remove profile dir: %w", err)
	}
	return nil
}

type playwrightPage struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	opts := playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ctx.Err()
		}
		timeout := float64(remaining.Milliseconds())
		opts.Timeout = &timeout
	}

	if _, err := p.page.Goto(url, opts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Title() (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) Content() (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Evaluate(expression string) (any, error) {
	return p.page.Evaluate(expression)
}

func (p *playwrightPage) Close() error {
	return errors.Join(p.page.Close(), p.context.Close())
}
