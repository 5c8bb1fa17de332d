package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetload/internal/config"
	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/metrics"
	"github.com/JonMunkholm/sheetload/internal/mover"
	"github.com/JonMunkholm/sheetload/internal/preflight"
	"github.com/JonMunkholm/sheetload/internal/reader"
	"github.com/JonMunkholm/sheetload/internal/settings"
	"github.com/JonMunkholm/sheetload/internal/sink"
)

// app holds the state shared by every subcommand. It is populated in the
// root command's PersistentPreRunE.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	pool    *pgxpool.Pool

	// flag overrides
	logLevel     string
	logFormat    string
	settingsPath string
	schema       string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sheetload",
		Short: "Load CSV and Excel exports into PostgreSQL",
		Long: `sheetload detects the type of each spreadsheet export by its header,
validates it against the type's column and dtype settings, and writes it to
the type's table. Replace types rebuild their table from every file in a run;
upsert types apply files one at a time, oldest first.

Configuration comes from the environment (and a .env file); flags override
selected values.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format (text or json); overrides LOG_FORMAT")
	root.PersistentFlags().StringVar(&a.settingsPath, "settings", "", "Settings document (.json, .yaml); overrides SHEETLOAD_SETTINGS")
	root.PersistentFlags().StringVar(&a.schema, "schema", "", "Target schema; overrides DB_SCHEMA")

	root.AddCommand(
		newRunCmd(a),
		newDetectCmd(a),
		newPreviewCmd(a),
		newTypesCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	// Overload overwrites existing env vars, matching the server's behaviour.
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if a.settingsPath != "" {
		cfg.Ingest.SettingsPath = a.settingsPath
	}
	if a.schema != "" {
		cfg.Database.Schema = a.schema
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	slog.Debug("configuration loaded", "config", cfg.String(), "command", cmd.Name())

	a.cfg = cfg
	a.metrics = metrics.New()
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func (a *app) settings() *settings.File {
	return settings.NewFile(a.cfg.Ingest.SettingsPath,
		settings.WithMaxBackups(a.cfg.Ingest.SettingsBackups),
		settings.WithReloadHook(a.metrics.SettingsReloaded),
	)
}

func (a *app) options() core.Options {
	in := a.cfg.Ingest
	return core.Options{
		Schema:    a.cfg.Database.Schema,
		Tolerance: in.Tolerance,
		Workers:   in.Workers,
		Read: reader.Options{
			ChunkSize:          in.ChunkSize,
			LargeFileThreshold: in.LargeFileThreshold,
		},
		MaxConcurrentRuns: in.MaxConcurrentRuns,
		RunWait:           in.RunWait,
		Metrics:           a.metrics,
	}
}

// offlineService is enough for detection and previews: nothing is written
// or moved.
func (a *app) offlineService() *core.Service {
	return core.NewService(a.settings(), sink.NewMemory(), mover.None{}, allowAll{}, a.options())
}

// service connects to the database and wires the writing collaborators.
func (a *app) service(ctx context.Context) (*core.Service, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	db := a.cfg.Database
	pool, err := sink.Connect(ctx, db.URL, sink.PoolOptions{
		MaxConns:        db.MaxConns,
		MinConns:        db.MinConns,
		MaxConnLifetime: db.MaxConnLifetime,
		MaxConnIdleTime: db.MaxConnIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.pool = pool
	slog.Info("connected to database", "schema", db.Schema, "max_conns", db.MaxConns)

	return core.NewService(
		a.settings(),
		sink.NewPostgres(pool),
		mover.NewFS(a.cfg.Ingest.ProcessedDir),
		preflight.NewChecker(pool),
		a.options(),
	), nil
}

// allowAll passes preflight without probing; used when nothing is written.
type allowAll struct{}

func (allowAll) Check(_ context.Context, schema string) (preflight.Report, error) {
	return preflight.Report{Schema: schema, OK: true}, nil
}
