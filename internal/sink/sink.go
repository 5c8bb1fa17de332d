// Package sink writes converted tables to PostgreSQL.
//
// Every target table carries two bookkeeping columns after the configured
// ones: _batch_id, the id of the run that wrote the row, and _loaded_at.
// Each write also records its source files in a per-schema history table.
package sink

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sheetload/internal/filetype"
)

// Bookkeeping column and table names.
const (
	BatchIDColumn  = "_batch_id"
	LoadedAtColumn = "_loaded_at"
	HistoryTable   = "_sheetload_history"
)

// Mode selects how a write treats existing rows.
type Mode int

const (
	// ModeReplace empties the table first, truncating it when its shape
	// matches the configuration and recreating it otherwise.
	ModeReplace Mode = iota
	// ModeAppend adds rows to a table whose shape must already match.
	ModeAppend
	// ModeUpsert inserts rows, updating those whose upsert keys already exist.
	ModeUpsert
)

func (m Mode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModeAppend:
		return "append"
	case ModeUpsert:
		return "upsert"
	}
	return "unknown"
}

// Source is one file contributing rows to a write.
type Source struct {
	Path     string
	Checksum uint64
	Rows     int
}

// Write is one request to the sink. Rows hold converted values in Columns order.
type Write struct {
	Type       string
	Schema     string
	Table      string
	Columns    []filetype.Column
	Rows       [][]any
	BatchID    string
	Mode       Mode
	UpsertKeys []string
	Sources    []Source
}

// Result describes what a write did.
type Result struct {
	Rows      int64
	Created   bool
	Recreated bool
	Truncated bool
	Deduped   int // rows dropped because a later row had the same upsert key
	Duration  time.Duration
}

// Sink is the write side the orchestrator depends on.
type Sink interface {
	Write(ctx context.Context, w Write) (Result, error)
	Ping(ctx context.Context) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Pool is the connection pool the Postgres sink needs. *pgxpool.Pool satisfies it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}
