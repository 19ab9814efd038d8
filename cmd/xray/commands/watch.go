package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/xray/internal/health"
	"github.com/dyluth/xray/internal/printer"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <target>",
	Short: "Watch a page and fetch every new project it links to",
	Long: `Watch scans the target once, then again every time it changes, until
interrupted. Each project seen for the first time is fetched over GraphQL
and cached; projects already in the store are skipped.

The target is an http(s) URL (polled), a local HTML file (watched for
writes), or "-" to read a single document from stdin.

Examples:
  # Follow a saved page that a browser extension keeps rewriting
  xray watch ./projects.html

  # Poll a live page every 30s with a session cookie from a file
  XRAY_COOKIE_FILE=~/.xray-cookie xray watch https://home.atlassian.com/o/<cloud>/projects`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stdin, err := readStdinIfNeeded(cmd, args[0])
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	src, err := openSource(cfg, args[0], stdin)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, store, src)
	if err != nil {
		return err
	}

	var healthServer *health.Server
	if cfg.Health.Addr != "" {
		healthServer = health.NewServer(cfg.Health.Addr, store, cfg.Store.Backend, func() any {
			return p.session.Stats()
		})
		if _, err := healthServer.Start(); err != nil {
			return printer.Error(
				"health server failed to start",
				err.Error(),
				[]string{"Pick a free address for health.addr, or leave it empty to disable"},
			)
		}
	}

	if err := p.session.Start(ctx); err != nil {
		return printer.ErrorWithContext(
			"failed to start watching",
			err.Error(),
			map[string]string{"Target": src.String()},
			[]string{"Check the target exists and is readable"},
		)
	}

	printer.Step("Watching %s (instance '%s', %s store)\n", src, cfg.Instance, cfg.Store.Backend)

	<-ctx.Done()
	printer.Info("\n")
	printer.Step("Shutting down, draining pending fetches...\n")

	if err := p.session.Stop(); err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}

	if healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = healthServer.Shutdown(shutdownCtx)
	}

	stats := p.session.Stats()
	printer.Success("Stopped after %d scans\n", stats.Passes)
	printer.Detail("new", stats.New)
	printer.Detail("known", stats.Known)
	printer.Detail("failed", stats.Failed+stats.Queue.Failed)

	return nil
}
