package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
)

// Memory is an in-process sink with the same table semantics as Postgres.
// It backs dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	writes  []Write
	history []Source
	fail    map[string]error
}

type memTable struct {
	columns []string
	rows    [][]any
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		tables: make(map[string]*memTable),
		fail:   make(map[string]error),
	}
}

// FailTable makes every write to schema.table fail with err.
func (m *Memory) FailTable(schema, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[schema+"."+table] = err
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Write(ctx context.Context, w Write) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.Schema + "." + w.Table
	if err := m.fail[key]; err != nil {
		return Result{}, &errs.UploadError{Type: w.Type, Table: key, Err: err}
	}

	mode := w.Mode
	if mode == ModeUpsert && len(w.UpsertKeys) == 0 {
		mode = ModeAppend
	}

	cols := columnNames(w.Columns)
	var res Result
	t, ok := m.tables[key]
	switch {
	case !ok:
		t = &memTable{columns: cols}
		m.tables[key] = t
		res.Created = true
	case !sameColumns(t.columns, cols):
		if mode != ModeReplace {
			return Result{}, &errs.UploadError{Type: w.Type, Table: key, Err: errs.ErrSchemaMismatch}
		}
		t = &memTable{columns: cols}
		m.tables[key] = t
		res.Recreated = true
	case mode == ModeReplace:
		t.rows = nil
		res.Truncated = true
	}

	rows, deduped := dedupe(w.Rows, w.Columns, w.UpsertKeys)
	res.Deduped = deduped

	now := time.Now().UTC()
	for _, r := range rows {
		row := append(append(make([]any, 0, len(r)+2), r...), w.BatchID, now)
		if mode == ModeUpsert {
			if i := t.find(row, w.Columns, w.UpsertKeys); i >= 0 {
				t.rows[i] = row
				res.Rows++
				continue
			}
		}
		t.rows = append(t.rows, row)
		res.Rows++
	}

	m.writes = append(m.writes, w)
	m.history = append(m.history, w.Sources...)
	res.Duration = time.Since(start)
	return res, nil
}

func (t *memTable) find(row []any, cols []filetype.Column, keys []string) int {
	idx, ok := keyIndexes(cols, keys)
	if !ok {
		return -1
	}
	want, ok := rowKey(row, idx)
	if !ok {
		return -1
	}
	for i, r := range t.rows {
		if got, ok := rowKey(r, idx); ok && got == want {
			return i
		}
	}
	return -1
}

// Rows returns a copy of the rows stored in schema.table, bookkeeping columns included.
func (m *Memory) Rows(schema, table string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[schema+"."+table]
	if !ok {
		return nil
	}
	out := make([][]any, len(t.rows))
	copy(out, t.rows)
	return out
}

// Writes returns every successful write in order.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// History returns every recorded source file in write order.
func (m *Memory) History() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Source(nil), m.history...)
}

func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("memory sink (%d tables, %d writes)", len(m.tables), len(m.writes))
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ Sink = (*Memory)(nil)
