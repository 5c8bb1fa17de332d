package core

// orchestrator.go drives one run:
//
//	preflight -> scan/detect -> partition -> upsert drain -> replace drain -> report
//
// Upsert files are processed one at a time in modification-time order
// across all types, so a later file always supersedes an earlier one.
// Replace files are loaded concurrently per type and written with a single
// replace per type. Every upsert file is drained before any replace file.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/logging"
	"github.com/JonMunkholm/sheetload/internal/metrics"
	"github.com/JonMunkholm/sheetload/internal/sink"
)

// runState is the mutable state of one run.
type runState struct {
	s        *Service
	batch    *Batch
	report   *Report
	cfgs     map[string]filetype.Config
	aborted  map[string]error // types whose write failed earlier in the run
	progress func(Progress)
	phase    Phase
	done     int
	total    int
	log      *slog.Logger
}

func (s *Service) run(ctx context.Context, id string, paths []string, progress func(Progress)) (*Report, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	batch := newBatch(id, s.now())
	ctx = logging.ContextWithBatchID(ctx, batch.ID)
	log := logging.WithFields(ctx, "op", "run", "schema", s.opts.Schema)

	st := &runState{
		s:        s,
		batch:    batch,
		report:   newReport(batch),
		cfgs:     make(map[string]filetype.Config),
		aborted:  make(map[string]error),
		progress: progress,
		log:      log,
	}

	s.opts.Metrics.RunStarted()
	log.Info("run started", "paths", len(paths))

	rep, err := st.execute(ctx, paths)
	rep.FinishedAt = s.now()

	status := rep.Status()
	if err != nil {
		status = "error"
	}
	s.opts.Metrics.RunFinished(status, rep.Duration())

	if err != nil {
		log.Error("run aborted", "error", err)
		return rep, err
	}
	log.Info("run finished",
		"status", status,
		"files", rep.TotalFiles,
		"successful", rep.Successful(),
		"failed", rep.Failed(),
		"duration_ms", rep.Duration().Milliseconds(),
	)
	return rep, nil
}

func (st *runState) execute(ctx context.Context, paths []string) (*Report, error) {
	s := st.s

	st.setPhase(PhasePreflight, "")
	pre, err := s.preflight.Check(ctx, s.opts.Schema)
	if err != nil {
		return st.report, fmt.Errorf("preflight: %w", err)
	}
	st.report.Preflight = &pre
	if !pre.OK {
		return st.report, pre.Err()
	}
	if len(pre.MissingOptional) > 0 {
		st.log.Warn("optional grants missing", "grants", pre.MissingOptional)
	}

	st.setPhase(PhaseDetecting, "")
	files, err := Scan(ctx, paths)
	if err != nil {
		st.report.Warnings = append(st.report.Warnings, err.Error())
	}
	st.total = len(files)
	st.report.TotalFiles = len(files)

	all, err := s.settings.All()
	if err != nil {
		return st.report, err
	}
	for _, cfg := range all {
		st.cfgs[cfg.Name] = cfg
	}

	for i, path := range files {
		if ctx.Err() != nil {
			st.cancelled(files[i:], append(pathsOf(st.batch.Upsert), pathsOf(st.batch.Replace)...)...)
			return st.report, nil
		}
		st.partition(ctx, path, all)
	}

	if st.drainUpsert(ctx) {
		return st.report, nil
	}
	st.drainReplace(ctx)
	return st.report, nil
}

// partition detects one file and assigns it to a drain, or records why it
// cannot be processed.
func (st *runState) partition(ctx context.Context, path string, all []filetype.Config) {
	f, err := detectFile(ctx, path, all)
	switch {
	case err != nil:
		st.undetected(path, err)
		return
	case f.Type == "":
		st.undetected(path, ErrNoMatch)
		return
	}

	cfg := st.cfgs[f.Type]
	st.stats(f.Type) // every detected type appears in the report
	if err := cfg.Check(); err != nil {
		st.fileFailed(f.Type, path, err)
		return
	}
	if _, err := cfg.TargetColumns(); err != nil {
		st.fileFailed(f.Type, path, err)
		return
	}

	st.log.Debug("file detected", "path", path, "type", f.Type, "score", f.Score, "side", f.Side, "header_row", f.HeaderRow)
	if cfg.Strategy() == filetype.Upsert {
		st.batch.Upsert = append(st.batch.Upsert, f)
	} else {
		st.batch.Replace = append(st.batch.Replace, f)
	}
}

// drainUpsert processes upsert files strictly in order. It reports whether
// the run was cancelled.
func (st *runState) drainUpsert(ctx context.Context) bool {
	st.batch.sortUpsert()

	for i, f := range st.batch.Upsert {
		if ctx.Err() != nil {
			st.cancelled(pathsOf(st.batch.Upsert[i:]), pathsOf(st.batch.Replace)...)
			return true
		}
		st.setPhase(PhaseUpsert, f.Path)
		st.upsertOne(ctx, f)
	}
	return false
}

func (st *runState) upsertOne(ctx context.Context, f CandidateFile) {
	start := time.Now()
	cfg := st.cfgs[f.Type]
	stats := st.stats(f.Type)
	defer func() { stats.ProcessingTime += time.Since(start) }()

	if err := st.aborted[f.Type]; err != nil {
		stats.fail(f.Path, fmt.Errorf("skipped after failed write: %w", err))
		st.fileDone(f.Type, f.Path, metrics.OutcomeFailed)
		return
	}

	ld, err := st.s.load(ctx, f, cfg)
	if interrupted(ctx, err) {
		st.cancelled([]string{f.Path})
		return
	}
	if ld != nil {
		stats.record(ld)
	}
	if err != nil {
		st.fileFailed(f.Type, f.Path, err)
		return
	}

	if err := st.write(ctx, cfg, []*loaded{ld}); err != nil {
		st.aborted[f.Type] = err
		st.fileFailed(f.Type, f.Path, err)
		return
	}

	stats.succeed(f.Path)
	st.move(ctx, []CandidateFile{f})
	st.fileDone(f.Type, f.Path, metrics.OutcomeLoaded)
}

// drainReplace loads each replace type's files concurrently, then writes
// them with one replace.
func (st *runState) drainReplace(ctx context.Context) {
	types, groups := st.batch.replaceGroups()

	for i, typeName := range types {
		if ctx.Err() != nil {
			var rest []string
			for _, t := range types[i:] {
				rest = append(rest, pathsOf(groups[t])...)
			}
			st.cancelled(rest)
			return
		}
		st.setPhase(PhaseReplace, typeName)
		st.replaceType(ctx, typeName, groups[typeName])
	}
}

func (st *runState) replaceType(ctx context.Context, typeName string, files []CandidateFile) {
	start := time.Now()
	cfg := st.cfgs[typeName]
	stats := st.stats(typeName)
	defer func() { stats.ProcessingTime += time.Since(start) }()

	if err := st.aborted[typeName]; err != nil {
		for _, f := range files {
			stats.fail(f.Path, fmt.Errorf("skipped after failed write: %w", err))
			st.fileDone(typeName, f.Path, metrics.OutcomeFailed)
		}
		return
	}

	results := make([]*loaded, len(files))
	failures := make([]error, len(files))
	started := make([]bool, len(files))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(st.s.opts.Workers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			ld, err := st.s.load(ctx, f, cfg)

			mu.Lock()
			started[i] = true
			results[i], failures[i] = ld, err
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		// A partial replace would drop the rows of files never loaded.
		var skipped []string
		for i, f := range files {
			if !started[i] || failures[i] == nil || interrupted(ctx, failures[i]) {
				skipped = append(skipped, f.Path)
				continue
			}
			st.fileFailed(typeName, f.Path, failures[i])
		}
		st.cancelled(skipped)
		return
	}

	var ok []*loaded
	for i, f := range files {
		if results[i] != nil {
			stats.record(results[i])
		}
		if failures[i] != nil {
			st.fileFailed(typeName, f.Path, failures[i])
			continue
		}
		stats.succeed(f.Path)
		ok = append(ok, results[i])
	}

	if len(ok) == 0 {
		return
	}

	err := st.write(ctx, cfg, ok)
	paths := make([]string, len(ok))
	moved := make([]CandidateFile, len(ok))
	for i, ld := range ok {
		paths[i] = ld.file.Path
		moved[i] = ld.file
	}

	if err != nil {
		st.aborted[typeName] = err
		stats.demote(paths, err)
		for _, p := range paths {
			st.fileDone(typeName, p, metrics.OutcomeFailed)
		}
		return
	}

	st.move(ctx, moved)
	for _, p := range paths {
		st.fileDone(typeName, p, metrics.OutcomeLoaded)
	}
}

// write concatenates the loaded files into one sink write. A write that
// has started completes even if the run is cancelled meanwhile.
func (st *runState) write(ctx context.Context, cfg filetype.Config, files []*loaded) error {
	ctx = context.WithoutCancel(ctx)
	table := cfg.Table()
	keys := cfg.Keys()
	mode := st.batch.modeFor(table, keys)

	columns := files[0].columns
	rows, sources := concat(files)

	w := sink.Write{
		Type:       cfg.Name,
		Schema:     st.s.opts.Schema,
		Table:      table,
		Columns:    columns,
		Rows:       rows,
		BatchID:    st.batch.ID,
		Mode:       mode,
		UpsertKeys: keys,
		Sources:    sources,
	}

	res, err := st.s.sink.Write(ctx, w)
	if err != nil {
		var ue *errs.UploadError
		if !errors.As(err, &ue) {
			err = &errs.UploadError{Type: cfg.Name, Table: table, Err: err}
		}
		return err
	}

	st.batch.markWritten(table)
	st.stats(cfg.Name).RowsWritten += res.Rows
	st.s.opts.Metrics.WriteFinished(cfg.Name, mode.String(), res.Rows, res.Duration)
	return nil
}

// concat joins the files' rows into one write buffer. Each file's rows
// are released once appended, so only the joined buffer stays live while
// the sink writes.
func concat(files []*loaded) ([][]any, []sink.Source) {
	total := 0
	for _, ld := range files {
		total += len(ld.rows)
	}
	rows := make([][]any, 0, total)
	sources := make([]sink.Source, 0, len(files))
	for _, ld := range files {
		rows = append(rows, ld.rows...)
		sources = append(sources, sink.Source{Path: ld.file.Path, Checksum: ld.checksum, Rows: len(ld.rows)})
		ld.rows = nil
	}
	return rows, sources
}

// move relocates committed files. Failures leave the data loaded and are
// reported as warnings.
func (st *runState) move(ctx context.Context, files []CandidateFile) {
	paths := make([]string, len(files))
	types := make([]string, len(files))
	for i, f := range files {
		paths[i], types[i] = f.Path, f.Type
	}

	moved, err := st.s.mover.Move(ctx, paths, types)
	st.report.Moved = append(st.report.Moved, moved...)
	if err != nil {
		st.report.Warnings = append(st.report.Warnings, errs.Summary(err)+": "+err.Error())
	}
}

func (st *runState) stats(typeName string) *TypeStats {
	stats, ok := st.report.PerType[typeName]
	if !ok {
		stats = newTypeStats(typeName, st.cfgs[typeName])
		st.report.PerType[typeName] = stats
	}
	return stats
}

func (st *runState) undetected(path string, err error) {
	st.report.Undetected = append(st.report.Undetected, newFileFailure(path, err))
	st.log.Warn("file not detected", "path", path, "error", err)
	st.fileDone("", path, metrics.OutcomeUndetected)
}

func (st *runState) cancelled(paths []string, more ...string) {
	st.report.Cancelled = true
	st.report.Skipped = append(st.report.Skipped, paths...)
	st.report.Skipped = append(st.report.Skipped, more...)
	st.log.Warn("run cancelled", "skipped", len(st.report.Skipped))
}

// fileFailed records a failed file. Expected per-file failures (unreadable,
// invalid or misconfigured) log as warnings; anything else as an error.
func (st *runState) fileFailed(typeName, path string, err error) {
	st.stats(typeName).fail(path, err)
	if errs.IsFileLevel(err) {
		st.log.Warn("file rejected", "type", typeName, "path", path, "error", err)
	} else {
		st.log.Error("file failed", "type", typeName, "path", path, "error", err)
	}
	st.fileDone(typeName, path, metrics.OutcomeFailed)
}

func (st *runState) fileDone(typeName, path, outcome string) {
	st.s.opts.Metrics.FileProcessed(typeName, outcome)
	st.done++
	st.notify(path)
}

func (st *runState) setPhase(p Phase, current string) {
	st.phase = p
	st.notify(current)
}

func (st *runState) notify(current string) {
	if st.progress == nil {
		return
	}
	st.progress(Progress{Phase: st.phase, FilesTotal: st.total, FilesDone: st.done, Current: current})
}

// record keeps the validation findings of a loaded file.
func (s *TypeStats) record(ld *loaded) {
	s.Issues = append(s.Issues, ld.report.Issues...)
	s.Warnings = append(s.Warnings, ld.report.Warnings...)
}

// interrupted reports whether err comes from the run being cancelled.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err())
}

func pathsOf(files []CandidateFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}
