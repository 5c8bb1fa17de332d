package core

// scheduler.go runs ingestion periodically over watched directories.
//
// Each tick scans the directories and starts a run when any candidate file
// is present. The watcher is long-running and context-aware for graceful
// shutdown; a failed run is logged and the next tick tries again.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sheetload/internal/logging"
)

// DefaultWatchInterval is used when WatchConfig.Interval is zero.
const DefaultWatchInterval = time.Minute

// WatchConfig holds configuration for the watcher.
type WatchConfig struct {
	Dirs     []string
	Interval time.Duration

	// OnReport receives the report of every completed run.
	OnReport func(*Report)
}

// StartWatcher scans cfg.Dirs immediately and then every cfg.Interval
// until ctx is cancelled.
func (s *Service) StartWatcher(ctx context.Context, cfg WatchConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWatchInterval
	}

	slog.Info("watcher started", "dirs", cfg.Dirs, "interval", cfg.Interval)

	s.runWatchTick(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped")
			return
		case <-ticker.C:
			s.runWatchTick(ctx, cfg)
		}
	}
}

// runWatchTick performs one scan and, when there is work, one run.
func (s *Service) runWatchTick(ctx context.Context, cfg WatchConfig) {
	files, err := Scan(ctx, cfg.Dirs)
	if err != nil {
		slog.Error("watch scan failed", "error", err)
	}
	if len(files) == 0 {
		slog.Debug("watch tick: nothing to load")
		return
	}

	start := time.Now()
	rep, err := s.Run(ctx, cfg.Dirs)
	switch {
	case errors.Is(err, ErrRunInProgress):
		slog.Info("watch tick skipped, run already in progress")
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		log := slog.Default()
		if rep != nil {
			log = logging.WithFields(logging.ContextWithBatchID(ctx, rep.BatchID))
		}
		log.Error("watch run failed", "error", err)
		return
	}

	slog.Info("watch run completed",
		"batch_id", rep.BatchID,
		"files", rep.TotalFiles,
		"failed", rep.Failed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if cfg.OnReport != nil {
		cfg.OnReport(rep)
	}
}
