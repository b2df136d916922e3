package config

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "BROWSERPOOL_"

// Options is the flat CLI/env/TOML view of the configuration. humacli turns
// every field into a flag; LoadConfig overlays the TOML file and env vars.
// Thresholds and durations are strings so they can hold fractional values
// and units; FromOptions parses and validates them.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":5200" toml:"server.port" env:"SERVER_PORT"`

	// Browser pool settings
	BrowserPoolMin    int `help:"Browser units created at boot" default:"2" toml:"browser_pool.min" env:"BROWSER_POOL_MIN"`
	BrowserPoolMax    int `help:"Maximum live browser units" default:"5" toml:"browser_pool.max" env:"BROWSER_POOL_MAX"`
	BrowserPoolWidth  int `help:"Browser window width" default:"1080" toml:"browser_pool.width" env:"BROWSER_POOL_WIDTH"`
	BrowserPoolHeight int `help:"Browser window height" default:"1024" toml:"browser_pool.height" env:"BROWSER_POOL_HEIGHT"`

	// Session pool settings
	SessionPoolMin                int  `help:"Sessions created per unit at launch" default:"1" toml:"session_pool.min" env:"SESSION_POOL_MIN"`
	SessionPoolMax                int  `help:"Maximum sessions per unit" default:"5" toml:"session_pool.max" env:"SESSION_POOL_MAX"`
	SessionPoolWidth              int  `help:"Page viewport width" default:"1080" toml:"session_pool.width" env:"SESSION_POOL_WIDTH"`
	SessionPoolHeight             int  `help:"Page viewport height" default:"1024" toml:"session_pool.height" env:"SESSION_POOL_HEIGHT"`
	SessionPoolIgnoreResourceLoad bool `help:"Abort image, stylesheet, font and media requests" default:"false" toml:"session_pool.ignore_resource_load" env:"SESSION_POOL_IGNORE_RESOURCE_LOAD"`
	SessionPoolEnablePageCache    bool `help:"Enable the browser network cache for pages" default:"false" toml:"session_pool.enable_page_cache" env:"SESSION_POOL_ENABLE_PAGE_CACHE"`

	// Session settings
	SessionTimeout string `help:"Per-session callback timeout, 0 for none" default:"0s" toml:"session.timeout" env:"SESSION_TIMEOUT"`

	// Threshold watcher settings
	ThresholdEnabled     bool   `help:"Enable the resource threshold watcher" default:"false" toml:"threshold.enabled" env:"THRESHOLD_ENABLED"`
	ThresholdCPUWarn     string `help:"CPU warn level in percent" default:"50" toml:"threshold.cpu_warn" env:"THRESHOLD_CPU_WARN"`
	ThresholdCPUBreak    string `help:"CPU break level in percent" default:"80" toml:"threshold.cpu_break" env:"THRESHOLD_CPU_BREAK"`
	ThresholdMemoryWarn  string `help:"Memory warn level in GB" default:"1" toml:"threshold.memory_warn" env:"THRESHOLD_MEMORY_WARN"`
	ThresholdMemoryBreak string `help:"Memory break level in GB" default:"2" toml:"threshold.memory_break" env:"THRESHOLD_MEMORY_BREAK"`
	ThresholdInterval    string `help:"Threshold check interval" default:"10s" toml:"threshold.interval" env:"THRESHOLD_INTERVAL"`
	ThresholdWatch       bool   `help:"Reload thresholds when the config file changes" default:"true" toml:"threshold.watch" env:"THRESHOLD_WATCH"`

	// Shutdown settings
	ShutdownMode    string `help:"Shutdown mode (graceful, force)" default:"graceful" toml:"shutdown.mode" env:"SHUTDOWN_MODE"`
	ShutdownTimeout string `help:"Graceful shutdown budget before force kill" default:"10s" toml:"shutdown.timeout" env:"SHUTDOWN_TIMEOUT"`

	// Browser settings
	BrowserExecutable string `help:"Chromium executable, empty uses the playwright build" default:"" toml:"browser.executable" env:"BROWSER_EXECUTABLE"`
	BrowserHeadless   bool   `help:"Run browsers headless" default:"true" toml:"browser.headless" env:"BROWSER_HEADLESS"`
	BrowserArgs       string `help:"Extra browser command line flags" default:"" toml:"browser.args" env:"BROWSER_ARGS"`
	BrowserInstall    bool   `help:"Download the playwright driver and chromium at startup" default:"false" toml:"browser.install" env:"BROWSER_INSTALL"`

	// Auth settings; basic auth is off while either is empty
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Systemd settings
	SystemdService   string `help:"Unit exposed through the systemd routes, empty disables them" default:"" toml:"systemd.service" env:"SYSTEMD_SERVICE"`
	SystemdSystemBus bool   `help:"Use the system bus instead of the user bus" default:"false" toml:"systemd.system_bus" env:"SYSTEMD_SYSTEM_BUS"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingPool    string `help:"Pool manager logging level" default:"info" toml:"logging.pool" env:"LOGGING_POOL"`
	LoggingMonitor string `help:"Threshold watcher logging level" default:"info" toml:"logging.monitor" env:"LOGGING_MONITOR"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingBrowser string `help:"Browser process logging level" default:"info" toml:"logging.browser" env:"LOGGING_BROWSER"`
}

// DefaultOptions returns Options populated from the default tags.
func DefaultOptions() Options {
	return Options{
		Config:               "config.toml",
		Port:                 ":5200",
		BrowserPoolMin:       2,
		BrowserPoolMax:       5,
		BrowserPoolWidth:     1080,
		BrowserPoolHeight:    1024,
		SessionPoolMin:       1,
		SessionPoolMax:       5,
		SessionPoolWidth:     1080,
		SessionPoolHeight:    1024,
		SessionTimeout:       "0s",
		ThresholdCPUWarn:     "50",
		ThresholdCPUBreak:    "80",
		ThresholdMemoryWarn:  "1",
		ThresholdMemoryBreak: "2",
		ThresholdInterval:    "10s",
		ThresholdWatch:       true,
		ShutdownMode:         ShutdownGraceful,
		ShutdownTimeout:      "10s",
		BrowserHeadless:      true,
		LoggingLevel:         "info",
		LoggingFormat:        "text",
		LoggingPool:          "info",
		LoggingMonitor:       "info",
		LoggingAPI:           "info",
		LoggingBrowser:       "info",
	}
}
