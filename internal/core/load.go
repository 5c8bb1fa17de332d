package core

// load.go is the per-file pipeline shared by both drains:
// read -> rename -> project -> validate -> convert.

import (
	"context"
	"errors"
	"os"

	"github.com/JonMunkholm/sheetload/internal/detect"
	"github.com/JonMunkholm/sheetload/internal/dtype"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/reader"
	"github.com/JonMunkholm/sheetload/internal/validate"
)

// ErrNoMatch is recorded for files whose header matches no configured type.
var ErrNoMatch = errors.New("no matching file type for header")

// loaded is one file read, validated and converted, ready to write.
type loaded struct {
	file     CandidateFile
	columns  []filetype.Column
	rows     [][]any
	checksum uint64
	report   validate.Report
}

// detectFile stats and peeks path and matches its header against cfgs.
// An unmatched file is returned with an empty Type and no error.
func detectFile(ctx context.Context, path string, cfgs []filetype.Config) (CandidateFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return CandidateFile{}, &errs.ReadError{Path: path, Err: err}
	}
	f := CandidateFile{Path: path, ModifiedAt: info.ModTime()}

	rows, err := reader.Peek(ctx, path, detect.MaxHeaderRows)
	if err != nil {
		return CandidateFile{}, err
	}

	m, ok := detect.Detect(rows, cfgs)
	if !ok {
		return f, nil
	}
	f.Type = m.Type
	f.HeaderRow = m.HeaderRow
	f.Side = m.Side
	f.Score = m.Score
	return f, nil
}

// readProjected reads path and returns a table whose columns are the
// target columns of cfg that could be resolved, in configuration order.
func (s *Service) readProjected(ctx context.Context, path string, headerRow int, cfg filetype.Config) (*reader.Table, error) {
	opts := s.opts.Read
	opts.HeaderRow = headerRow

	tbl, err := reader.Read(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	mapping := detect.BuildRenameMapping(tbl.Columns, cfg)
	tbl.Columns = detect.Apply(tbl.Columns, mapping)
	return project(tbl, cfg), nil
}

// resolveColumns finds, for each column map entry, the index of the table
// column that supplies it, or -1. Exact names are preferred over
// normalized matches, and target names over source names.
func resolveColumns(columns []string, cfg filetype.Config) []int {
	exact := make(map[string]int, len(columns))
	norm := make(map[string]int, len(columns))
	for i := len(columns) - 1; i >= 0; i-- {
		exact[columns[i]] = i
		norm[detect.Normalize(columns[i])] = i
	}

	idx := make([]int, len(cfg.Columns))
	for i, e := range cfg.Columns {
		idx[i] = -1
		if j, ok := exact[e.Target]; ok {
			idx[i] = j
		} else if j, ok := exact[e.Source]; ok {
			idx[i] = j
		} else if j, ok := norm[detect.Normalize(e.Target)]; ok {
			idx[i] = j
		} else if j, ok := norm[detect.Normalize(e.Source)]; ok {
			idx[i] = j
		}
	}
	return idx
}

// project keeps the resolvable target columns of cfg. Unresolved targets
// are left out so validation reports them as missing.
func project(tbl *reader.Table, cfg filetype.Config) *reader.Table {
	idx := resolveColumns(tbl.Columns, cfg)

	out := &reader.Table{
		Checksum: tbl.Checksum,
		Encoding: tbl.Encoding,
		Size:     tbl.Size,
		Chunked:  tbl.Chunked,
	}
	var keep []int
	for i, e := range cfg.Columns {
		if idx[i] < 0 {
			continue
		}
		out.Columns = append(out.Columns, e.Target)
		keep = append(keep, idx[i])
	}

	out.Rows = make([][]string, len(tbl.Rows))
	for r, row := range tbl.Rows {
		projected := make([]string, len(keep))
		for c, j := range keep {
			if j < len(row) {
				projected[c] = row[j]
			}
		}
		out.Rows[r] = projected
	}
	return out
}

// load runs the per-file pipeline. A file failing validation returns its
// report together with the error.
func (s *Service) load(ctx context.Context, f CandidateFile, cfg filetype.Config) (*loaded, error) {
	tbl, err := s.readProjected(ctx, f.Path, f.HeaderRow, cfg)
	if err != nil {
		return nil, err
	}

	rep, err := validate.Check(tbl, cfg)
	if err != nil {
		return nil, err
	}
	if err := rep.Err(s.opts.Tolerance); err != nil {
		return &loaded{file: f, report: rep}, err
	}

	cols, err := cfg.TargetColumns()
	if err != nil {
		return nil, err
	}

	return &loaded{
		file:     f,
		columns:  cols,
		rows:     convertRows(tbl, cols, cfg.Dates()),
		checksum: tbl.Checksum,
		report:   rep,
	}, nil
}

// convertRows converts every cell to its column type. Cells that fail
// conversion were tolerated by validation and are stored as NULL.
func convertRows(tbl *reader.Table, cols []filetype.Column, df dtype.DateFormat) [][]any {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = tbl.Index(c.Name)
	}

	out := make([][]any, len(tbl.Rows))
	for r, row := range tbl.Rows {
		values := make([]any, len(cols))
		for c, col := range cols {
			j := idx[c]
			if j < 0 || j >= len(row) {
				continue
			}
			v, err := dtype.Convert(row[j], col.Type, df)
			if err == nil {
				values[c] = v
			}
		}
		out[r] = values
	}
	return out
}
