package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/report"
	"github.com/JonMunkholm/sheetload/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serves the JSON API for file types, detection, previews and background
runs, plus /healthz and /metrics. With --watch the WATCH_DIRS directories
are also loaded every WATCH_INTERVAL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}

			slog.Info("configuration loaded",
				"port", a.cfg.Server.Port,
				"db_max_conns", a.cfg.Database.MaxConns,
				"max_concurrent_runs", a.cfg.Ingest.MaxConcurrentRuns,
				"rate_limit_enabled", a.cfg.Rate.Enabled,
			)

			server := web.NewServer(svc, a.metrics, a.cfg)

			// Background jobs stop before the server drains.
			jobCtx, cancelJobs := context.WithCancel(context.Background())
			defer cancelJobs()
			if watch {
				go svc.StartWatcher(jobCtx, a.watchConfig(cmd))
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-sigCh:
			}

			slog.Info("shutting down...")
			cancelJobs()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()

			if status := svc.LimiterStatus(); status.Active > 0 {
				slog.Info("waiting for runs to complete", "active", status.Active)
			}
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
				return err
			}
			slog.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Also load WATCH_DIRS periodically")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch [DIR...]",
		Short: "Load directories periodically",
		Long: `Scans the directories (WATCH_DIRS when none are given) immediately and
then every WATCH_INTERVAL, starting a run whenever files are present. A tick
is skipped while the previous run is still going.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				a.cfg.Watch.Dirs = args
			}
			if cmd.Flags().Changed("interval") {
				a.cfg.Watch.Interval = interval
			}
			if len(a.cfg.Watch.Dirs) == 0 {
				return errors.New("no directories to watch: pass DIR arguments or set WATCH_DIRS")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			svc.StartWatcher(ctx, a.watchConfig(cmd))
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Scan interval, e.g. 30s or 5m; overrides WATCH_INTERVAL")
	return cmd
}

func (a *app) watchConfig(cmd *cobra.Command) core.WatchConfig {
	out := cmd.OutOrStdout()
	return core.WatchConfig{
		Dirs:     a.cfg.Watch.Dirs,
		Interval: a.cfg.Watch.Interval,
		OnReport: func(rep *core.Report) { report.Run(out, rep) },
	}
}
