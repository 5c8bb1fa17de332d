package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

const stageTable = "sheetload_stage"

// PoolOptions tunes the connection pool.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, url string, opts PoolOptions) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Postgres writes tables through a pgx pool. Each Write runs in its own
// transaction, so a failed write leaves the target table untouched.
type Postgres struct {
	pool Pool
}

// NewPostgres creates a sink over pool.
func NewPostgres(pool Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping checks connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Write loads w into its target table. Errors are returned as *errs.UploadError.
func (p *Postgres) Write(ctx context.Context, w Write) (Result, error) {
	start := time.Now()
	log := logging.WithFields(ctx, "op", "write", "type", w.Type, "table", w.Table, "mode", w.Mode.String())

	res, err := p.write(ctx, w)
	if err != nil {
		log.Error("write failed", "error", err)
		return Result{}, &errs.UploadError{Type: w.Type, Table: w.Schema + "." + w.Table, Err: err}
	}

	res.Duration = time.Since(start)
	log.Info("write committed",
		"rows", res.Rows,
		"created", res.Created,
		"recreated", res.Recreated,
		"truncated", res.Truncated,
		"deduped", res.Deduped,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (p *Postgres) write(ctx context.Context, w Write) (Result, error) {
	if len(w.Columns) == 0 {
		return Result{}, errors.New("no columns to write")
	}
	if w.BatchID == "" {
		return Result{}, errors.New("missing batch id")
	}
	mode := w.Mode
	if mode == ModeUpsert && len(w.UpsertKeys) == 0 {
		mode = ModeAppend
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var res Result
	if err := prepareTable(ctx, tx, w, mode, &res); err != nil {
		return Result{}, err
	}

	rows := w.Rows
	if len(w.UpsertKeys) > 0 {
		if _, err := tx.Exec(ctx, createUniqueIndexSQL(w.Schema, w.Table, w.UpsertKeys)); err != nil {
			return Result{}, fmt.Errorf("create unique index: %w", err)
		}
		rows, res.Deduped = dedupe(rows, w.Columns, w.UpsertKeys)
	}

	loadedAt := time.Now().UTC()
	src := copySource(rows, w.BatchID, loadedAt)
	cols := columnNames(w.Columns)

	if mode == ModeUpsert {
		res.Rows, err = upsert(ctx, tx, w, cols, src)
	} else {
		res.Rows, err = tx.CopyFrom(ctx, pgx.Identifier{w.Schema, w.Table}, cols, src)
	}
	if err != nil {
		return Result{}, err
	}

	if err := recordHistory(ctx, tx, w, mode); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// prepareTable makes sure the target table exists with the configured shape.
func prepareTable(ctx context.Context, tx DBTX, w Write, mode Mode, res *Result) error {
	if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(w.Schema)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	existing, err := introspect(ctx, tx, w.Schema, w.Table)
	if err != nil {
		return err
	}

	create := func() error {
		if _, err := tx.Exec(ctx, createTableSQL(w.Schema, w.Table, w.Columns)); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		return nil
	}

	switch {
	case len(existing) == 0:
		res.Created = true
		return create()

	case compatible(existing, w.Columns):
		if mode != ModeReplace {
			return nil
		}
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+qualified(w.Schema, w.Table)); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		res.Truncated = true
		return nil

	case mode == ModeReplace:
		if _, err := tx.Exec(ctx, "DROP TABLE "+qualified(w.Schema, w.Table)); err != nil {
			return fmt.Errorf("drop table: %w", err)
		}
		res.Recreated = true
		return create()
	}

	return errs.ErrSchemaMismatch
}

func introspect(ctx context.Context, q DBTX, schema, table string) ([]existingColumn, error) {
	rows, err := q.Query(ctx, introspectSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s.%s: %w", schema, table, err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (existingColumn, error) {
		var c existingColumn
		err := row.Scan(&c.Name, &c.Type)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("introspect %s.%s: %w", schema, table, err)
	}
	return cols, nil
}

func upsert(ctx context.Context, tx pgx.Tx, w Write, cols []string, src pgx.CopyFromSource) (int64, error) {
	stage := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		quoteIdent(stageTable), qualified(w.Schema, w.Table))
	if _, err := tx.Exec(ctx, stage); err != nil {
		return 0, fmt.Errorf("create stage: %w", err)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{stageTable}, cols, src); err != nil {
		return 0, fmt.Errorf("copy to stage: %w", err)
	}

	tag, err := tx.Exec(ctx, upsertSQL(w.Schema, w.Table, stageTable, cols, w.UpsertKeys))
	if err != nil {
		return 0, fmt.Errorf("merge stage: %w", err)
	}
	return tag.RowsAffected(), nil
}

func recordHistory(ctx context.Context, tx DBTX, w Write, mode Mode) error {
	if _, err := tx.Exec(ctx, historyTableSQL(w.Schema)); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}

	insert := historyInsertSQL(w.Schema)
	for _, s := range w.Sources {
		_, err := tx.Exec(ctx, insert,
			w.BatchID, w.Type, w.Table, mode.String(), s.Path, fmt.Sprintf("%016x", s.Checksum), s.Rows)
		if err != nil {
			return fmt.Errorf("record history for %s: %w", s.Path, err)
		}
	}
	return nil
}

// copySource appends the bookkeeping values to each row without copying the batch.
func copySource(rows [][]any, batchID string, loadedAt time.Time) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		row := make([]any, 0, len(rows[i])+2)
		row = append(row, rows[i]...)
		return append(row, batchID, loadedAt), nil
	})
}

var _ Sink = (*Postgres)(nil)
