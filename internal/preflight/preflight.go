// Package preflight verifies the sink grants a run needs before any file is
// touched. Every probe runs inside one transaction under its own savepoint
// and the transaction is rolled back at the end, so a check leaves nothing
// behind.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/logging"
)

// Grant names reported by Check.
const (
	CreateSchema  = "CREATE SCHEMA"
	CreateTable   = "CREATE TABLE"
	Insert        = "INSERT"
	Update        = "UPDATE"
	Delete        = "DELETE"
	AlterTable    = "ALTER TABLE"
	TruncateTable = "TRUNCATE TABLE"
	DropTable     = "DROP TABLE"
)

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Prober is what the orchestrator depends on.
type Prober interface {
	Check(ctx context.Context, schema string) (Report, error)
}

// Report is the outcome of one check.
type Report struct {
	Schema          string   `json:"schema"`
	OK              bool     `json:"ok"`
	Grants          []string `json:"grants"`
	MissingCritical []string `json:"missing_critical"`
	MissingOptional []string `json:"missing_optional"`
}

// Err returns a PermissionError when a critical grant is missing.
func (r Report) Err() error {
	if r.OK {
		return nil
	}
	return &errs.PermissionError{Schema: r.Schema, Missing: r.MissingCritical}
}

type probe struct {
	grant    string
	critical bool
	needsTbl bool
	sql      func(schema, table string) string
}

var probes = []probe{
	{CreateSchema, true, false, func(s, _ string) string {
		return "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{s}.Sanitize()
	}},
	{CreateTable, true, false, func(s, t string) string {
		return "CREATE TABLE " + pgx.Identifier{s, t}.Sanitize() + " (id integer, note varchar(20))"
	}},
	{Insert, true, true, func(s, t string) string {
		return "INSERT INTO " + pgx.Identifier{s, t}.Sanitize() + " (id, note) VALUES (1, 'probe')"
	}},
	{Update, false, true, func(s, t string) string {
		return "UPDATE " + pgx.Identifier{s, t}.Sanitize() + " SET note = 'updated' WHERE id = 1"
	}},
	{Delete, false, true, func(s, t string) string {
		return "DELETE FROM " + pgx.Identifier{s, t}.Sanitize() + " WHERE id = 1"
	}},
	{AlterTable, true, true, func(s, t string) string {
		return "ALTER TABLE " + pgx.Identifier{s, t}.Sanitize() + " ADD COLUMN extra integer"
	}},
	{TruncateTable, true, true, func(s, t string) string {
		return "TRUNCATE TABLE " + pgx.Identifier{s, t}.Sanitize()
	}},
	{DropTable, true, true, func(s, t string) string {
		return "DROP TABLE " + pgx.Identifier{s, t}.Sanitize()
	}},
}

// Checker probes grants on a database.
type Checker struct {
	db Beginner
}

// NewChecker returns a Checker using db.
func NewChecker(db Beginner) *Checker {
	return &Checker{db: db}
}

// Check probes every grant on schema. A returned error means the database
// could not be asked at all; missing grants are reported in Report.
func (c *Checker) Check(ctx context.Context, schema string) (Report, error) {
	log := logging.WithFields(ctx, "op", "preflight", "schema", schema)
	rep := Report{Schema: schema}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return rep, fmt.Errorf("begin preflight: %w", err)
	}
	defer tx.Rollback(ctx)

	table := "sheetload_probe_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	haveTable := false

	for _, p := range probes {
		if p.needsTbl && !haveTable {
			rep.missing(p)
			continue
		}

		err := runProbe(ctx, tx, p.sql(schema, table))
		if err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return rep, fmt.Errorf("preflight %s: %w", p.grant, err)
			}
			log.Debug("probe failed", "grant", p.grant, "code", pgErr.Code, "error", pgErr.Message)
			rep.missing(p)
			continue
		}

		rep.Grants = append(rep.Grants, p.grant)
		switch p.grant {
		case CreateTable:
			haveTable = true
		case DropTable:
			haveTable = false
		}
	}

	rep.OK = len(rep.MissingCritical) == 0
	if rep.OK {
		log.Info("preflight passed", "grants", len(rep.Grants), "missing_optional", rep.MissingOptional)
	} else {
		log.Warn("preflight failed", "missing_critical", rep.MissingCritical)
	}
	return rep, nil
}

// runProbe executes sql under a savepoint so a failure does not abort the
// surrounding transaction.
func runProbe(ctx context.Context, tx pgx.Tx, sql string) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := sp.Exec(ctx, sql); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return rbErr
		}
		return err
	}
	return sp.Commit(ctx)
}

func (r *Report) missing(p probe) {
	if p.critical {
		r.MissingCritical = append(r.MissingCritical, p.grant)
	} else {
		r.MissingOptional = append(r.MissingOptional, p.grant)
	}
}

// Cached remembers passing reports per schema so a long-lived process
// probes each schema once. Failing reports are not cached.
type Cached struct {
	prober Prober

	mu     sync.Mutex
	passed map[string]Report
}

// NewCached wraps p.
func NewCached(p Prober) *Cached {
	return &Cached{prober: p, passed: make(map[string]Report)}
}

func (c *Cached) Check(ctx context.Context, schema string) (Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rep, ok := c.passed[schema]; ok {
		return rep, nil
	}
	rep, err := c.prober.Check(ctx, schema)
	if err != nil {
		return rep, err
	}
	if rep.OK {
		c.passed[schema] = rep
	}
	return rep, nil
}

// Forget drops cached results.
func (c *Cached) Forget() {
	c.mu.Lock()
	c.passed = make(map[string]Report)
	c.mu.Unlock()
}
