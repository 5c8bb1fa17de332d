package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/core"
)

const testSettings = `{
  "types": {
    "orders": {
      "columns": {"Order ID": "order_id", "Amount": "amount"},
      "dtypes": {"order_id": "INT", "amount": "DECIMAL(10,2)"}
    },
    "prices": {
      "columns": {"Code": "code", "Price": "price"},
      "update_strategy": "upsert",
      "upsert_keys": ["code"]
    }
  }
}`

// execute runs the root command with args against a fresh settings file.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	settingsPath := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(settingsPath, []byte(testSettings), 0o644))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--settings", settingsPath, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Inspection commands
// =============================================================================

func TestTypesCommand(t *testing.T) {
	out, err := execute(t, "types")
	require.NoError(t, err)

	assert.Contains(t, out, "TYPE")
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "replace")
	assert.Contains(t, out, "prices")
	assert.Contains(t, out, "upsert")
}

func TestDetectCommand(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "Order ID,Amount\n1,2.50\n")
	writeCSV(t, dir, "b.csv", "Code,Price\nX,1\n")
	writeCSV(t, dir, "c.csv", "Foo,Bar\n1,2\n")

	out, err := execute(t, "detect", dir)
	require.NoError(t, err)

	assert.Regexp(t, `a\.csv\s+orders`, out)
	assert.Regexp(t, `b\.csv\s+prices`, out)
	assert.Regexp(t, `c\.csv\s+\(no match\)`, out)
}

func TestPreviewCommand(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "a.csv", "Order ID,Amount,Notes\n1,2.50,x\n")

	out, err := execute(t, "preview", path)
	require.NoError(t, err)
	assert.Contains(t, out, "order_id")
	assert.Contains(t, out, "(ignored)")

	_, err = execute(t, "preview", writeCSV(t, t.TempDir(), "z.csv", "Foo\n1\n"))
	assert.Error(t, err)
}

// =============================================================================
// Run
// =============================================================================

func TestRunCommand_DryRunJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeCSV(t, dir, "a.csv", "Order ID,Amount\n1,2.50\n2,3.75\n")

	out, err := execute(t, "run", "--dry-run", "--json", dir)
	require.NoError(t, err)

	var rep core.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	assert.Equal(t, 1, rep.TotalFiles)
	assert.Equal(t, 1, rep.Successful())
	require.Contains(t, rep.PerType, "orders")
	assert.Equal(t, int64(2), rep.PerType["orders"].RowsWritten)

	// Nothing is moved on a dry run.
	assert.FileExists(t, path)
}

func TestRunCommand_FailedRunExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "Order ID,Amount\n1,abc\n")

	_, err := execute(t, "run", "--dry-run", dir)
	assert.ErrorIs(t, err, errRunFailed)
}

func TestRunCommand_RequiresDatabase(t *testing.T) {
	_, err := execute(t, "run", t.TempDir())
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestWatchCommand_RequiresDirs(t *testing.T) {
	t.Setenv("WATCH_DIRS", "")
	_, err := execute(t, "watch")
	assert.ErrorContains(t, err, "no directories")
}
