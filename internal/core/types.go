package core

import (
	"sort"
	"time"

	"github.com/JonMunkholm/sheetload/internal/detect"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/mover"
	"github.com/JonMunkholm/sheetload/internal/preflight"
	"github.com/JonMunkholm/sheetload/internal/sink"
)

// CandidateFile is a scanned file after detection. It is not modified once built.
type CandidateFile struct {
	Path       string
	Type       string // empty when no configured type matched
	ModifiedAt time.Time
	HeaderRow  int
	Side       detect.Side
	Score      float64
}

// Batch is one orchestrator run's partition of candidate files.
type Batch struct {
	ID        string
	StartedAt time.Time
	Upsert    []CandidateFile
	Replace   []CandidateFile

	written map[string]bool // tables written so far in this batch
}

func newBatch(id string, startedAt time.Time) *Batch {
	return &Batch{ID: id, StartedAt: startedAt, written: make(map[string]bool)}
}

// modeFor returns the write mode for the next write to table. The first
// write in a batch replaces the table's contents; later writes append, or
// upsert when keys are configured.
func (b *Batch) modeFor(table string, upsertKeys []string) sink.Mode {
	switch {
	case !b.written[table]:
		return sink.ModeReplace
	case len(upsertKeys) > 0:
		return sink.ModeUpsert
	default:
		return sink.ModeAppend
	}
}

func (b *Batch) markWritten(table string) {
	b.written[table] = true
}

// sortUpsert orders upsert files by modification time, oldest first, with
// ties broken by path.
func (b *Batch) sortUpsert() {
	sort.SliceStable(b.Upsert, func(i, j int) bool {
		a, c := b.Upsert[i], b.Upsert[j]
		if !a.ModifiedAt.Equal(c.ModifiedAt) {
			return a.ModifiedAt.Before(c.ModifiedAt)
		}
		return a.Path < c.Path
	})
}

// replaceGroups returns replace files grouped by type, types in name order
// and files in path order.
func (b *Batch) replaceGroups() ([]string, map[string][]CandidateFile) {
	groups := make(map[string][]CandidateFile)
	for _, f := range b.Replace {
		groups[f.Type] = append(groups[f.Type], f)
	}
	types := make([]string, 0, len(groups))
	for t, files := range groups {
		types = append(types, t)
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	}
	sort.Strings(types)
	return types, groups
}

// FileFailure records a file that failed before it could be attributed to a type.
type FileFailure struct {
	Path  string           `json:"path"`
	Error string           `json:"error"`
	User  errs.UserMessage `json:"user"`
}

func newFileFailure(path string, err error) FileFailure {
	return FileFailure{Path: path, Error: err.Error(), User: errs.MapError(err)}
}

// TypeStats accumulates the outcome of one file type within a run.
type TypeStats struct {
	Type               string                  `json:"type"`
	Strategy           filetype.Strategy       `json:"strategy"`
	Table              string                  `json:"table"`
	FilesCount         int                     `json:"files_count"`
	SuccessfulFiles    int                     `json:"successful_files"`
	FailedFiles        int                     `json:"failed_files"`
	Errors             []string                `json:"errors,omitempty"`
	SuccessfulFileList []string                `json:"successful_file_list"`
	FailedFileList     []string                `json:"failed_file_list"`
	Issues             []*errs.ValidationError `json:"issues,omitempty"`
	Warnings           []*errs.ValidationError `json:"warnings,omitempty"`
	RowsWritten        int64                   `json:"rows_written"`
	ProcessingTime     time.Duration           `json:"processing_time"`
}

func newTypeStats(name string, cfg filetype.Config) *TypeStats {
	return &TypeStats{
		Type:               name,
		Strategy:           cfg.Strategy(),
		Table:              cfg.Table(),
		SuccessfulFileList: []string{},
		FailedFileList:     []string{},
	}
}

func (s *TypeStats) succeed(path string) {
	s.FilesCount++
	s.SuccessfulFiles++
	s.SuccessfulFileList = append(s.SuccessfulFileList, path)
}

func (s *TypeStats) fail(path string, err error) {
	s.FilesCount++
	s.FailedFiles++
	s.FailedFileList = append(s.FailedFileList, path)
	s.Errors = append(s.Errors, fileError(path, err))
}

// demote turns the given successes into failures after their shared write failed.
func (s *TypeStats) demote(paths []string, err error) {
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}

	kept := s.SuccessfulFileList[:0]
	for _, p := range s.SuccessfulFileList {
		if drop[p] {
			s.FailedFileList = append(s.FailedFileList, p)
			continue
		}
		kept = append(kept, p)
	}
	s.SuccessfulFileList = kept
	s.SuccessfulFiles = len(kept)
	s.FailedFiles = len(s.FailedFileList)
	s.Errors = append(s.Errors, errs.Summary(err))
}

func fileError(path string, err error) string {
	return path + ": " + errs.Summary(err)
}

// Report is the outcome of one run.
type Report struct {
	BatchID    string                `json:"batch_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	PerType    map[string]*TypeStats `json:"per_type"`
	TotalFiles int                   `json:"total_files"`
	Undetected []FileFailure         `json:"undetected,omitempty"`
	Skipped    []string              `json:"skipped,omitempty"` // not started because the run was cancelled
	Moved      []mover.Moved         `json:"moved,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Preflight  *preflight.Report     `json:"preflight,omitempty"`
	Cancelled  bool                  `json:"cancelled"`
}

func newReport(batch *Batch) *Report {
	return &Report{
		BatchID:   batch.ID,
		StartedAt: batch.StartedAt,
		PerType:   make(map[string]*TypeStats),
	}
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Successful counts files loaded across all types.
func (r *Report) Successful() int {
	n := 0
	for _, s := range r.PerType {
		n += s.SuccessfulFiles
	}
	return n
}

// Failed counts failed files, undetected files included.
func (r *Report) Failed() int {
	n := len(r.Undetected)
	for _, s := range r.PerType {
		n += s.FailedFiles
	}
	return n
}

// Types returns the type names in the report, sorted.
func (r *Report) Types() []string {
	names := make([]string, 0, len(r.PerType))
	for name := range r.PerType {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status summarizes the run for metrics and logs.
func (r *Report) Status() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Failed() == 0:
		return "succeeded"
	case r.Successful() == 0:
		return "failed"
	default:
		return "partial"
	}
}
