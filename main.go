package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/browserpool/cmd"
	"github.com/smazurov/browserpool/internal/api"
	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/config"
	"github.com/smazurov/browserpool/internal/events"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/manager"
	"github.com/smazurov/browserpool/internal/metrics"
	"github.com/smazurov/browserpool/internal/shutdown"
	"github.com/smazurov/browserpool/internal/systemd"
	"github.com/smazurov/browserpool/internal/version"
)

func main() {
	var cli humacli.CLI
	var coord *shutdown.Coordinator

	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration automatically; explicit flags win over the file
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(config.LoggingConfig(opts))
		logger := logging.GetLogger("main")
		logger.Debug("Starting", "version", version.String())

		settings, err := config.FromOptions(opts)
		if err != nil {
			logger.Error("Invalid configuration", "error", err)
			os.Exit(1)
		}

		ctx, cancel := context.WithCancel(context.Background())
		eventBus := events.New()
		notifier := systemd.NewNotifier(logger)

		// The backend starts the playwright driver, so it is created lazily
		// in OnStart and subcommands never pay for it.
		var backend *browser.PlaywrightBackend
		pool := manager.New(manager.Options{
			Pool:           settings.Pool,
			Thresholds:     settings.Threshold,
			SessionTimeout: settings.SessionTimeout,
			Backend:        lazyBackend{get: func() browser.Backend { return backend }},
			Headless:       settings.Browser.Headless,
			Bus:            eventBus,
		})

		coord = shutdown.New(shutdown.Options{
			Mode:    settings.Shutdown.Mode,
			Timeout: settings.Shutdown.Timeout,
			Pool:    pool,
			OnShutdown: func(reason string) {
				notifier.Stopping()
				notifier.Status("Shutting down: " + reason)
			},
		})

		apiOpts := &api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Pool:              pool,
			EventBus:          eventBus,
			PrometheusHandler: metrics.Handler(),
		}

		var systemdManager *systemd.Manager
		if opts.SystemdService != "" {
			systemdManager, err = systemd.NewManager(ctx, opts.SystemdSystemBus)
			if err != nil {
				logger.Warn("Systemd routes disabled", "error", err)
			} else {
				apiOpts.SystemdManager = systemdManager
				apiOpts.ServiceName = opts.SystemdService
			}
		}

		server := api.NewServer(apiOpts)

		var watcher *config.Watcher[config.Settings]
		if settings.ThresholdWatch {
			base := *opts
			watcher = config.NewWatcher(opts.Config, func(path string) (config.Settings, error) {
				return config.LoadSettings(path, base)
			}, logging.GetLogger("config"), config.WithErrorHandler[config.Settings](func(err error) {
				logger.Warn("Ignoring invalid config change", "error", err)
			}))
			watcher.OnReload(func(s config.Settings) {
				logger.Info("Thresholds reloaded", "enabled", s.Threshold != nil)
				pool.SetThresholds(ctx, s.Threshold)
			})
		}

		hooks.OnStart(func() {
			// SIGQUIT is not handled by humacli; the coordinator runs once either way
			shutdown.Trap(ctx, coord, func(code int) {
				if backend != nil {
					_ = backend.Close()
				}
				os.Exit(code)
			})

			backend, err = browser.NewPlaywright(browser.PlaywrightOptions{
				Executable: settings.Browser.Executable,
				ExtraArgs:  settings.Browser.Args,
				Install:    settings.Browser.Install,
			})
			if err != nil {
				logger.Error("Failed to start browser backend", "error", err)
				os.Exit(1)
			}

			if bootErr := pool.Boot(ctx); bootErr != nil {
				logger.Error("Failed to boot browser pool", "error", bootErr)
				_ = backend.Close()
				os.Exit(1)
			}

			if watcher != nil {
				if startErr := watcher.Start(ctx); startErr != nil {
					logger.Warn("Config watcher disabled", "error", startErr)
				}
			}

			notifier.Ready()
			notifier.Status("Serving on " + settings.Port)

			logger.Info("Starting HTTP server", "port", settings.Port)
			if startErr := server.Start(settings.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				_ = coord.Shutdown(ctx, "http server failed")
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			if watcher != nil {
				_ = watcher.Stop()
			}

			if stopErr := coord.Shutdown(ctx, "stop"); stopErr != nil {
				logger.Error("Browser pool shutdown incomplete", "error", stopErr)
			}

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if backend != nil {
				if closeErr := backend.Close(); closeErr != nil {
					logger.Warn("Error stopping playwright", "error", closeErr)
				}
			}
			if systemdManager != nil {
				systemdManager.Close()
			}
			cancel()
		})
	})

	cli.Root().Use = "browserpool"
	cli.Root().Short = "Headless browser pool manager"
	cli.Root().Version = version.String()

	cli.Root().AddCommand(cmd.CreateProbeCmd())
	cli.Root().AddCommand(cmd.CreateConfigCmd())

	cli.Run()

	if coord != nil {
		os.Exit(coord.ExitCode())
	}
}

// lazyBackend defers to a backend that only exists once the server starts.
type lazyBackend struct {
	get func() browser.Backend
}

func (l lazyBackend) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Instance, error) {
	return l.get().Launch(ctx, opts)
}

func (l lazyBackend) Close() error {
	return l.get().Close()
}
