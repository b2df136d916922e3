package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/browserpool/internal/browser"
	"github.com/smazurov/browserpool/internal/config"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/manager"
	"github.com/smazurov/browserpool/internal/monitor"
	"github.com/spf13/cobra"
)

type probeResult struct {
	URL      string        `json:"url"`
	Title    string        `json:"title"`
	Length   int           `json:"length"`
	Duration time.Duration `json:"duration"`
}

// CreateProbeCmd creates the probe command. It boots a single-unit pool with
// the configured browser settings, loads url, prints what it found together
// with the unit's resource usage and terminates the pool.
func CreateProbeCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe [url]",
		Short: "Load a page through a one-browser pool",
		Long: `Boots a pool with one browser unit and one session, loads the URL, ` +
			`prints its title, HTML length and the unit's CPU and memory, then terminates the pool.`,
		Args: cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.Options) {
			logger := logging.GetLogger("probe").With("url", args[0])

			settings, err := config.FromOptions(opts)
			if err != nil {
				logger.Error("Invalid configuration", "error", err)
				os.Exit(1)
			}

			backend, err := browser.NewPlaywright(browser.PlaywrightOptions{
				Executable: settings.Browser.Executable,
				ExtraArgs:  settings.Browser.Args,
				Install:    settings.Browser.Install,
			})
			if err != nil {
				logger.Error("Failed to start browser backend", "error", err)
				os.Exit(1)
			}

			poolConfig := settings.Pool
			poolConfig.BrowserMin, poolConfig.BrowserMax = 1, 1
			poolConfig.SessionMin, poolConfig.SessionMax = 1, 1

			m := manager.New(manager.Options{
				Pool:           poolConfig,
				SessionTimeout: timeout,
				Backend:        backend,
				Headless:       settings.Browser.Headless,
			})

			err = runProbe(cmd.Context(), m, args[0], timeout, cmd.OutOrStdout())
			_ = backend.Close()
			if err != nil {
				logger.Error("Probe failed", "error", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Page load timeout")
	return cmd
}

func runProbe(ctx context.Context, m *manager.Manager, url string, timeout time.Duration, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, timeout+time.Minute)
	defer cancel()

	if err := m.Boot(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	defer func() { _ = m.TerminatePool(context.WithoutCancel(ctx)) }()

	start := time.Now()
	result, err := manager.Issue(ctx, m, func(ctx context.Context, page browser.Page) (probeResult, error) {
		if err := page.Navigate(ctx, url); err != nil {
			return probeResult{}, err
		}
		title, err := page.Title()
		if err != nil {
			return probeResult{}, err
		}
		html, err := page.Content()
		if err != nil {
			return probeResult{}, err
		}
		return probeResult{URL: page.URL(), Title: title, Length: len(html)}, nil
	})
	if err != nil {
		return err
	}
	result.Duration = time.Since(start)

	snaps, err := m.GetPoolMetrics(ctx, nil)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	out := json.NewEncoder(w)
	out.SetIndent("", "  ")
	return out.Encode(struct {
		Page  probeResult        `json:"page"`
		Units []monitor.Snapshot `json:"units"`
	}{result, snaps})
}
