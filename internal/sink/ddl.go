package sink

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/sheetload/internal/filetype"
)

// Catalog names of the bookkeeping columns as format_type() prints them.
const (
	batchIDCatalog  = "text"
	loadedAtCatalog = "timestamp with time zone"
)

// existingColumn is one column read from the catalog.
type existingColumn struct {
	Name string
	Type string
}

const introspectSQL = `
SELECT a.attname, format_type(a.atttypid, a.atttypmod)
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND c.relkind = 'r'
  AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`

func qualified(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// createTableSQL builds the DDL for a target table.
func createTableSQL(schema, table string, cols []filetype.Column) string {
	defs := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Name)+" "+c.Type.Postgres())
	}
	defs = append(defs,
		quoteIdent(BatchIDColumn)+" text NOT NULL",
		quoteIdent(LoadedAtColumn)+" timestamptz NOT NULL DEFAULT now()",
	)
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", qualified(schema, table), strings.Join(defs, ",\n  "))
}

// uniqueIndexName derives a stable index name for a key set, within
// PostgreSQL's 63-byte identifier limit.
func uniqueIndexName(table string, keys []string) string {
	h := xxhash.Sum64String(strings.Join(keys, "\x00"))
	name := fmt.Sprintf("%s_uk_%016x", table, h)
	if len(name) > 63 {
		name = fmt.Sprintf("%s_uk_%016x", table[:63-20], h)
	}
	return name
}

func createUniqueIndexSQL(schema, table string, keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quoteIdent(k)
	}
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(uniqueIndexName(table, keys)), qualified(schema, table), strings.Join(quoted, ", "))
}

// upsertSQL moves staged rows into the target, updating rows whose keys exist.
func upsertSQL(schema, table, stage string, cols []string, keys []string) string {
	all := make([]string, len(cols))
	for i, c := range cols {
		all[i] = quoteIdent(c)
	}

	isKey := make(map[string]bool, len(keys))
	conflict := make([]string, len(keys))
	for i, k := range keys {
		isKey[k] = true
		conflict[i] = quoteIdent(k)
	}

	var sets []string
	for _, c := range cols {
		if !isKey[c] {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
		}
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s (%s)\nSELECT %s FROM %s\nON CONFLICT (%s) %s",
		qualified(schema, table), strings.Join(all, ", "),
		strings.Join(all, ", "), quoteIdent(stage),
		strings.Join(conflict, ", "), action)
}

func historyTableSQL(schema string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  batch_id text NOT NULL,
  file_type text NOT NULL,
  table_name text NOT NULL,
  mode text NOT NULL,
  source_path text NOT NULL,
  checksum text NOT NULL,
  row_count bigint NOT NULL,
  loaded_at timestamptz NOT NULL DEFAULT now()
)`, qualified(schema, HistoryTable))
}

func historyInsertSQL(schema string) string {
	return fmt.Sprintf(`INSERT INTO %s (batch_id, file_type, table_name, mode, source_path, checksum, row_count)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, qualified(schema, HistoryTable))
}

// compatible reports whether an existing table has exactly the configured
// columns, with the same types, followed by the bookkeeping columns.
func compatible(existing []existingColumn, cols []filetype.Column) bool {
	want := make(map[string]string, len(cols)+2)
	for _, c := range cols {
		want[c.Name] = c.Type.CatalogName()
	}
	want[BatchIDColumn] = batchIDCatalog
	want[LoadedAtColumn] = loadedAtCatalog

	if len(existing) != len(want) {
		return false
	}
	for _, e := range existing {
		t, ok := want[e.Name]
		if !ok || !sameCatalogType(t, e.Type) {
			return false
		}
	}
	return true
}

func sameCatalogType(want, got string) bool {
	return strings.EqualFold(strings.ReplaceAll(want, " ", ""), strings.ReplaceAll(got, " ", ""))
}

// dedupe keeps the last row for each upsert key, preserving first-seen
// order of keys. Rows with a NULL key part are kept as they are.
func dedupe(rows [][]any, cols []filetype.Column, keys []string) ([][]any, int) {
	if len(keys) == 0 {
		return rows, 0
	}

	idx, ok := keyIndexes(cols, keys)
	if !ok {
		return rows, 0
	}

	pos := make(map[string]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, row := range rows {
		key, ok := rowKey(row, idx)
		if !ok {
			out = append(out, row)
			continue
		}
		if at, seen := pos[key]; seen {
			out[at] = row
			continue
		}
		pos[key] = len(out)
		out = append(out, row)
	}
	return out, len(rows) - len(out)
}

// keyIndexes resolves key names to column positions.
func keyIndexes(cols []filetype.Column, keys []string) ([]int, bool) {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		for i, c := range cols {
			if c.Name == k {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx, len(keys) > 0 && len(idx) == len(keys)
}

func rowKey(row []any, idx []int) (string, bool) {
	var b strings.Builder
	for _, i := range idx {
		v := row[i]
		if v == nil {
			return "", false
		}
		fmt.Fprintf(&b, "%T:%v\x00", v, keyValue(v))
	}
	return b.String(), true
}

// keyValue renders values whose %v form is not canonical, such as pgtype.Numeric.
func keyValue(v any) any {
	if n, ok := v.(driver.Valuer); ok {
		if s, err := n.Value(); err == nil {
			return s
		}
	}
	return v
}

// columnNames returns configured column names followed by the bookkeeping columns.
func columnNames(cols []filetype.Column) []string {
	names := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return append(names, BatchIDColumn, LoadedAtColumn)
}
