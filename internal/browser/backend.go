package browser

import "context"

// Backend launches browser instances.
type Backend interface {
	// Launch starts one browser process and connects to it.
	Launch(ctx context.Context, opts LaunchOptions) (Instance, error)

	// Close releases backend-wide resources such as a driver process.
	Close() error
}

// LaunchOptions configures a single browser launch.
type LaunchOptions struct {
	// UnitID is used to name the process in logs.
	UnitID   int
	Headless bool

	// WindowWidth and WindowHeight size the browser window; zero keeps
	// the browser default.
	WindowWidth  int
	WindowHeight int
}

// Instance is one running browser.
type Instance interface {
	// PID of the browser's main OS process.
	PID() int

	// NewPage opens an isolated page with the given options applied.
	NewPage(ctx context.Context, opts PageOptions) (Page, error)

	// Close disconnects and terminates the browser process.
	Close(ctx context.Context) error
}

// PageOptions are applied to every page a session pool creates.
type PageOptions struct {
	Width  int
	Height int

	// IgnoreResourceLoad aborts image, stylesheet, font and media requests.
	IgnoreResourceLoad bool

	// EnablePageCache turns the browser network cache on for the page.
	EnablePageCache bool
}

// Page is the handle passed to session callbacks. It must not be retained
// after the callback returns.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	Title() (string, error)
	Content() (string, error)
	Evaluate(expression string) (any, error)
	Close() error
}
