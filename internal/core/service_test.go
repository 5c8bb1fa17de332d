package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/mover"
	"github.com/JonMunkholm/sheetload/internal/preflight"
	"github.com/JonMunkholm/sheetload/internal/settings"
	"github.com/JonMunkholm/sheetload/internal/sink"
)

// =============================================================================
// Fixtures
// =============================================================================

var base = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func ordersType() filetype.Config {
	return filetype.Config{
		Name: "orders",
		Columns: filetype.ColumnMap{
			{Source: "Order ID", Target: "order_id"},
			{Source: "Amount", Target: "amount"},
		},
		DTypes: map[string]string{"order_id": "INT", "amount": "DECIMAL(10,2)"},
	}
}

func stockType() filetype.Config {
	return filetype.Config{
		Name:           "stock",
		Columns:        filetype.ColumnMap{{Source: "sku", Target: "sku"}, {Source: "qty", Target: "qty"}},
		DTypes:         map[string]string{"qty": "INT"},
		UpdateStrategy: filetype.Upsert,
	}
}

func pricesType() filetype.Config {
	return filetype.Config{
		Name:           "prices",
		Columns:        filetype.ColumnMap{{Source: "code", Target: "code"}, {Source: "price", Target: "price"}},
		DTypes:         map[string]string{"price": "DECIMAL(10,2)"},
		UpdateStrategy: filetype.Upsert,
		UpsertKeys:     []string{"code"},
	}
}

// writeFile creates dir/name with content and the given modification time.
func writeFile(t *testing.T, dir, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

type fakeProber struct {
	report preflight.Report
	err    error
}

func (p fakeProber) Check(_ context.Context, schema string) (preflight.Report, error) {
	rep := p.report
	rep.Schema = schema
	return rep, p.err
}

func allowAll() fakeProber {
	return fakeProber{report: preflight.Report{OK: true, Grants: []string{preflight.CreateTable, preflight.Insert}}}
}

// recordingMover remembers every path it was asked to move.
type recordingMover struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (m *recordingMover) Move(_ context.Context, paths, types []string) ([]mover.Moved, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, paths...)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]mover.Moved, len(paths))
	for i, p := range paths {
		out[i] = mover.Moved{Old: p, New: filepath.Join("Uploaded", types[i]+"_"+filepath.Base(p))}
	}
	return out, nil
}

type harness struct {
	svc   *Service
	sink  *sink.Memory
	mover *recordingMover
}

func newHarness(t *testing.T, pf preflight.Prober, cfgs ...filetype.Config) *harness {
	t.Helper()
	sk := sink.NewMemory()
	mv := &recordingMover{}
	svc := NewService(settings.NewMemory(cfgs...), sk, mv, pf, Options{Workers: 2, RunWait: 100 * time.Millisecond})

	n := 0
	svc.newID = func() string {
		n++
		return "batch-" + string(rune('0'+n))
	}
	return &harness{svc: svc, sink: sk, mover: mv}
}

// =============================================================================
// Run
// =============================================================================

func TestRun_ValidationFailureBlocksFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n2,bad\n", base)

	h := newHarness(t, allowAll(), ordersType())
	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	stats := rep.PerType["orders"]
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Equal(t, 0, stats.SuccessfulFiles)
	require.Len(t, stats.Issues, 1)

	issue := stats.Issues[0]
	assert.Equal(t, "amount", issue.Column)
	assert.Equal(t, errs.CheckNumeric, issue.Check)
	assert.Equal(t, []string{"bad"}, issue.Examples)
	assert.Equal(t, 1, issue.Invalid)
	assert.InDelta(t, 50.0, issue.Percent, 0.001)

	assert.Empty(t, h.sink.Writes())
	assert.Empty(t, h.mover.paths)
	assert.Equal(t, "failed", rep.Status())
}

func TestRun_ToleranceAdmitsBadCells(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n2,bad\n", base)

	h := newHarness(t, allowAll(), ordersType())
	h.svc.opts.Tolerance = 50

	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Successful())

	rows := h.sink.Rows("public", "orders")
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1][1], "unconvertible cell is stored as NULL")
}

func TestRun_ReplacePartialFailure(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "Order ID,Amount\n1,10.00\n2,20.00\n", base)
	b := writeFile(t, dir, "b.csv", "Order ID,Amount\n3,oops\n", base)
	c := writeFile(t, dir, "c.csv", "Order ID,Amount\n4,40.00\n", base)

	h := newHarness(t, allowAll(), ordersType())
	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	stats := rep.PerType["orders"]
	assert.Equal(t, 3, stats.FilesCount)
	assert.Equal(t, 2, stats.SuccessfulFiles)
	assert.Equal(t, 1, stats.FailedFiles)
	assert.Equal(t, []string{a, c}, stats.SuccessfulFileList)
	assert.Equal(t, []string{b}, stats.FailedFileList)
	assert.EqualValues(t, 3, stats.RowsWritten)

	writes := h.sink.Writes()
	require.Len(t, writes, 1, "one replace per type")
	assert.Equal(t, sink.ModeReplace, writes[0].Mode)
	assert.Len(t, writes[0].Sources, 2)
	assert.Len(t, h.sink.Rows("public", "orders"), 3)

	assert.ElementsMatch(t, []string{a, c}, h.mover.paths)
	assert.Equal(t, "partial", rep.Status())
}

func TestRun_ReplaceTypeIgnoresUpsertKeys(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "codes.csv", "code,price\nX,1.00\nX,2.00\nY,3.00\n", base)

	cfg := pricesType()
	cfg.Name = "codes"
	cfg.UpdateStrategy = filetype.Replace

	h := newHarness(t, allowAll(), cfg)
	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, "succeeded", rep.Status())

	writes := h.sink.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, sink.ModeReplace, writes[0].Mode)
	assert.Empty(t, writes[0].UpsertKeys)

	assert.Len(t, h.sink.Rows("public", "codes"), 3, "duplicate codes are kept in a replace table")
	assert.EqualValues(t, 3, rep.PerType["codes"].RowsWritten)
}

func TestRun_UpsertOrderAcrossTypes(t *testing.T) {
	dir := t.TempDir()
	f1 := writeFile(t, dir, "z_prices.csv", "code,price\nA,1.00\n", base)
	f2 := writeFile(t, dir, "y_stock.csv", "sku,qty\nS1,5\n", base.Add(5*time.Minute))
	f3 := writeFile(t, dir, "x_prices.csv", "code,price\nA,2.00\nB,3.00\n", base.Add(10*time.Minute))

	h := newHarness(t, allowAll(), pricesType(), stockType())
	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Successful())

	writes := h.sink.Writes()
	require.Len(t, writes, 3)

	var order []string
	for _, w := range writes {
		order = append(order, w.Sources[0].Path)
	}
	assert.Equal(t, []string{f1, f2, f3}, order, "upsert files are written oldest first")

	assert.Equal(t, sink.ModeReplace, writes[0].Mode, "first write of a table in a batch replaces")
	assert.Equal(t, sink.ModeReplace, writes[1].Mode)
	assert.Equal(t, sink.ModeUpsert, writes[2].Mode)

	rows := h.sink.Rows("public", "prices")
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0][0])
	assert.Equal(t, "B", rows[1][0])
}

func TestRun_UpsertBeforeReplace(t *testing.T) {
	dir := t.TempDir()
	orders := writeFile(t, dir, "a_orders.csv", "Order ID,Amount\n1,10.00\n", base)
	prices := writeFile(t, dir, "b_prices.csv", "code,price\nA,1.00\n", base.Add(time.Hour))

	h := newHarness(t, allowAll(), ordersType(), pricesType())
	_, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	writes := h.sink.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, prices, writes[0].Sources[0].Path)
	assert.Equal(t, orders, writes[1].Sources[0].Path)
}

func TestRun_PreflightFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n", base)

	pf := fakeProber{report: preflight.Report{OK: false, MissingCritical: []string{preflight.CreateTable}}}
	h := newHarness(t, pf, ordersType())

	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.Error(t, err)

	var perr *errs.PermissionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []string{preflight.CreateTable}, perr.Missing)

	require.NotNil(t, rep)
	assert.Equal(t, 0, rep.TotalFiles)
	assert.Empty(t, h.sink.Writes())
	assert.Empty(t, h.mover.paths)
}

func TestRun_PreflightError(t *testing.T) {
	h := newHarness(t, fakeProber{err: errors.New("connection refused")}, ordersType())

	_, err := h.svc.Run(context.Background(), []string{t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preflight")
}

func TestRun_UndetectedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "mystery.csv", "foo,bar\n1,2\n", base)

	h := newHarness(t, allowAll(), ordersType())
	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	require.Len(t, rep.Undetected, 1)
	assert.Equal(t, path, rep.Undetected[0].Path)
	assert.Contains(t, rep.Undetected[0].Error, "no matching file type")
	assert.Equal(t, 1, rep.Failed())
	assert.Equal(t, "failed", rep.Status())
	assert.Empty(t, h.sink.Writes())
}

func TestRun_MissingExplicitFile(t *testing.T) {
	h := newHarness(t, allowAll(), ordersType())
	missing := filepath.Join(t.TempDir(), "gone.csv")

	rep, err := h.svc.Run(context.Background(), []string{missing})
	require.NoError(t, err)
	require.Len(t, rep.Undetected, 1)
	assert.Equal(t, 1, rep.TotalFiles)
}

func TestRun_WriteFailureDemotesFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "Order ID,Amount\n1,10.00\n", base)
	writeFile(t, dir, "b.csv", "Order ID,Amount\n2,20.00\n", base)

	h := newHarness(t, allowAll(), ordersType())
	h.sink.FailTable("public", "orders", errors.New("disk full"))

	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	stats := rep.PerType["orders"]
	assert.Equal(t, 0, stats.SuccessfulFiles)
	assert.Equal(t, 2, stats.FailedFiles)
	assert.Empty(t, stats.SuccessfulFileList)
	require.NotEmpty(t, stats.Errors)
	assert.Empty(t, h.mover.paths, "files stay in place when their write fails")
}

func TestRun_FailureLogLevels(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logging.New(&buf, "debug", "text"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,bad\n", base)
	writeFile(t, dir, "prices.csv", "code,price\nA,1.00\n", base)

	h := newHarness(t, allowAll(), ordersType(), pricesType())
	h.sink.FailTable("public", "prices", errors.New("deadlock"))

	_, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	out := buf.String()
	assert.Regexp(t, `level=WARN msg="file rejected" .*type=orders`, out, "validation failures are expected per-file outcomes")
	assert.Regexp(t, `level=ERROR msg="file failed" .*type=prices`, out, "write failures are not")
}

func TestRun_UpsertWriteFailureSkipsRestOfType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "p1.csv", "code,price\nA,1.00\n", base)
	second := writeFile(t, dir, "p2.csv", "code,price\nB,2.00\n", base.Add(time.Minute))

	h := newHarness(t, allowAll(), pricesType())
	h.sink.FailTable("public", "prices", errors.New("deadlock"))

	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	stats := rep.PerType["prices"]
	assert.Equal(t, 2, stats.FailedFiles)
	require.Len(t, stats.Errors, 2)
	assert.True(t, strings.HasPrefix(stats.Errors[1], second+": "))
}

func TestRun_MoveFailureIsWarning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n", base)

	h := newHarness(t, allowAll(), ordersType())
	h.mover.err = errors.New("move file orders.csv: permission denied")

	rep, err := h.svc.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Successful())
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "permission denied")
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	p1 := writeFile(t, dir, "p1.csv", "code,price\nA,1.00\n", base)
	p2 := writeFile(t, dir, "p2.csv", "code,price\nB,2.00\n", base.Add(time.Minute))
	o := writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n", base)

	h := newHarness(t, allowAll(), pricesType(), ordersType())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	progress := func(p Progress) {
		if p.Phase == PhaseUpsert {
			cancel()
		}
	}

	rep, err := h.svc.run(ctx, "cancel-1", []string{dir}, progress)
	require.NoError(t, err)

	assert.True(t, rep.Cancelled)
	assert.Equal(t, "cancelled", rep.Status())
	assert.ElementsMatch(t, []string{p1, p2, o}, rep.Skipped)
	assert.Empty(t, h.sink.Writes())
}

func TestRun_ProgressAndBatchID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n", base)

	h := newHarness(t, allowAll(), ordersType())

	var phases []Phase
	var last Progress
	rep, err := h.svc.run(context.Background(), "batch-x", []string{dir}, func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
		last = p
	})
	require.NoError(t, err)

	assert.Equal(t, []Phase{PhasePreflight, PhaseDetecting, PhaseReplace}, phases)
	assert.Equal(t, 1, last.FilesDone)
	assert.Equal(t, 1, last.FilesTotal)
	assert.Equal(t, "batch-x", rep.BatchID)
	assert.Equal(t, "batch-x", h.sink.Writes()[0].BatchID)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	h := newHarness(t, allowAll(), ordersType())
	require.True(t, h.svc.limiter.TryAcquire())
	defer h.svc.limiter.Release()

	_, err := h.svc.Run(context.Background(), []string{t.TempDir()})
	assert.ErrorIs(t, err, ErrRunInProgress)
}

// =============================================================================
// Background runs
// =============================================================================

func TestStartRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", "Order ID,Amount\n1,10.00\n", base)

	h := newHarness(t, allowAll(), ordersType())

	id, err := h.svc.StartRun(context.Background(), []string{dir})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := h.svc.WaitRun(ctx, id)
	require.NoError(t, err)

	assert.True(t, info.Done)
	assert.Equal(t, PhaseComplete, info.Progress.Phase)
	require.NotNil(t, info.Report)
	assert.Equal(t, 1, info.Report.Successful())

	runs := h.svc.ListRuns()
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
}

func TestStartRun_Failed(t *testing.T) {
	pf := fakeProber{report: preflight.Report{OK: false, MissingCritical: []string{preflight.Insert}}}
	h := newHarness(t, pf, ordersType())

	id, err := h.svc.StartRun(context.Background(), []string{t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := h.svc.WaitRun(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, PhaseFailed, info.Progress.Phase)
	assert.NotEmpty(t, info.Error)
}

func TestRunLookup_Unknown(t *testing.T) {
	h := newHarness(t, allowAll())

	_, err := h.svc.GetRun("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, h.svc.CancelRun("nope"), ErrRunNotFound)
}

// =============================================================================
// Detection, preview and read
// =============================================================================

func TestDetectType(t *testing.T) {
	dir := t.TempDir()
	orders := writeFile(t, dir, "o.csv", "Report generated 2024-03-05\nOrder ID,Amount\n1,10.00\n", base)
	other := writeFile(t, dir, "x.csv", "foo,bar\n1,2\n", base)

	h := newHarness(t, allowAll(), ordersType(), pricesType())

	name, ok, err := h.svc.DetectType(context.Background(), orders)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "orders", name)

	_, ok, err = h.svc.DetectType(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreviewColumns(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		ok      bool
		missing []string
		extra   []string
		message string
	}{
		{
			name:    "exact",
			content: "Order ID,Amount\n1,2\n",
			ok:      true,
			missing: []string{},
			extra:   []string{},
			message: "All 2 columns matched",
		},
		{
			name:    "extra column",
			content: "order id, AMOUNT ,Notes\n1,2,x\n",
			ok:      true,
			missing: []string{},
			extra:   []string{"Notes"},
			message: "All 2 columns matched; 1 extra column(s) will be ignored",
		},
		{
			name:    "missing column",
			content: "Order ID,Notes\n1,x\n",
			ok:      false,
			missing: []string{"amount"},
			extra:   []string{"Notes"},
			message: "Missing 1 of 2 column(s): amount",
		},
	}

	h := newHarness(t, allowAll(), ordersType())
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, string(rune('a'+i))+".csv", tt.content, base)

			p, err := h.svc.PreviewColumns(context.Background(), path, "orders")
			require.NoError(t, err)
			assert.Equal(t, tt.ok, p.OK)
			assert.Equal(t, tt.missing, p.Missing)
			assert.Equal(t, tt.extra, p.Extra)
			assert.Equal(t, tt.message, p.Message)
		})
	}
}

func TestPreviewColumns_UnknownType(t *testing.T) {
	h := newHarness(t, allowAll(), ordersType())
	path := writeFile(t, t.TempDir(), "o.csv", "Order ID,Amount\n", base)

	_, err := h.svc.PreviewColumns(context.Background(), path, "invoices")
	var cerr *errs.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
}

func TestRead_ProjectsTargetColumns(t *testing.T) {
	path := writeFile(t, t.TempDir(), "o.csv", "Notes,Amount,Order ID\nx,10.00,1\ny,20.00,2\n", base)
	h := newHarness(t, allowAll(), ordersType())

	tbl, err := h.svc.Read(context.Background(), path, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "amount"}, tbl.Columns)
	assert.Equal(t, [][]string{{"1", "10.00"}, {"2", "20.00"}}, tbl.Rows)
}

// =============================================================================
// Scan and batch
// =============================================================================

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.XLSX", ".hidden.csv", "~$lock.xlsx", "notes.md", "old.xls"} {
		writeFile(t, dir, name, "x\n", base)
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))
	explicit := filepath.Join(dir, "missing.csv")

	got, err := Scan(context.Background(), []string{dir, explicit, dir})
	require.NoError(t, err)

	want := []string{
		filepath.Join(dir, "a.XLSX"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "missing.csv"),
		filepath.Join(dir, "old.xls"),
	}
	assert.Equal(t, want, got)
}

func TestConcat_ReleasesFileBuffers(t *testing.T) {
	a := &loaded{file: CandidateFile{Path: "a.csv"}, rows: [][]any{{1}, {2}}, checksum: 7}
	b := &loaded{file: CandidateFile{Path: "b.csv"}, rows: [][]any{{3}}, checksum: 9}

	rows, sources := concat([]*loaded{a, b})

	assert.Equal(t, [][]any{{1}, {2}, {3}}, rows)
	assert.Equal(t, []sink.Source{
		{Path: "a.csv", Checksum: 7, Rows: 2},
		{Path: "b.csv", Checksum: 9, Rows: 1},
	}, sources)
	assert.Nil(t, a.rows)
	assert.Nil(t, b.rows)
}

func TestBatch_ModeFor(t *testing.T) {
	b := newBatch("b", base)

	assert.Equal(t, sink.ModeReplace, b.modeFor("t", []string{"id"}))
	b.markWritten("t")
	assert.Equal(t, sink.ModeUpsert, b.modeFor("t", []string{"id"}))
	assert.Equal(t, sink.ModeAppend, b.modeFor("t", nil))
	assert.Equal(t, sink.ModeReplace, b.modeFor("other", nil))
}

func TestBatch_SortUpsert(t *testing.T) {
	b := newBatch("b", base)
	b.Upsert = []CandidateFile{
		{Path: "c", ModifiedAt: base.Add(time.Minute)},
		{Path: "b", ModifiedAt: base},
		{Path: "a", ModifiedAt: base},
	}
	b.sortUpsert()
	assert.Equal(t, []string{"a", "b", "c"}, pathsOf(b.Upsert))
}

func TestReport_Status(t *testing.T) {
	tests := []struct {
		name string
		rep  Report
		want string
	}{
		{"empty", Report{}, "succeeded"},
		{"cancelled", Report{Cancelled: true}, "cancelled"},
		{"all failed", Report{Undetected: []FileFailure{{Path: "x"}}}, "failed"},
		{"partial", Report{
			PerType:    map[string]*TypeStats{"t": {SuccessfulFiles: 1}},
			Undetected: []FileFailure{{Path: "x"}},
		}, "partial"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rep.Status())
		})
	}
}
