package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/sheetload/internal/detect"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/reader"
)

// Preview shows how a file's header lines up with a file type.
type Preview struct {
	OK        bool     `json:"ok"`
	Message   string   `json:"message"`
	Type      string   `json:"type"`
	HeaderRow int      `json:"header_row"`
	Actual    []string `json:"actual"`  // header as found in the file
	Mapped    []string `json:"mapped"`  // header after renaming, target names where resolved
	Missing   []string `json:"missing"` // target columns no header cell supplies
	Extra     []string `json:"extra"`   // header cells that feed no target column
}

// PreviewColumns compares path's header with typeName's column map without
// reading the data. A file with missing columns yields OK=false and a
// message, not an error.
func (s *Service) PreviewColumns(ctx context.Context, path, typeName string) (Preview, error) {
	cfg, err := s.config(typeName)
	if err != nil {
		return Preview{}, err
	}

	row, err := s.headerRowFor(ctx, path, cfg)
	if err != nil {
		return Preview{}, err
	}
	rows, err := reader.Peek(ctx, path, row+1)
	if err != nil {
		return Preview{}, err
	}
	if row >= len(rows) {
		return Preview{}, &errs.ReadError{Path: path, Err: reader.ErrEmptyFile}
	}

	actual := make([]string, len(rows[row]))
	for i, c := range rows[row] {
		actual[i] = strings.TrimSpace(c)
	}

	renamed := detect.Apply(actual, detect.BuildRenameMapping(actual, cfg))
	idx := resolveColumns(renamed, cfg)

	p := Preview{
		Type:      typeName,
		HeaderRow: row,
		Actual:    actual,
		Mapped:    append([]string(nil), renamed...),
		Missing:   []string{},
		Extra:     []string{},
	}

	used := make(map[int]bool, len(idx))
	for i, e := range cfg.Columns {
		if idx[i] < 0 {
			p.Missing = append(p.Missing, e.Target)
			continue
		}
		used[idx[i]] = true
		p.Mapped[idx[i]] = e.Target
	}
	for i, c := range actual {
		if !used[i] && c != "" {
			p.Extra = append(p.Extra, c)
		}
	}

	p.OK = len(p.Missing) == 0
	switch {
	case p.OK && len(p.Extra) == 0:
		p.Message = fmt.Sprintf("All %d columns matched", len(cfg.Columns))
	case p.OK:
		p.Message = fmt.Sprintf("All %d columns matched; %d extra column(s) will be ignored", len(cfg.Columns), len(p.Extra))
	default:
		p.Message = fmt.Sprintf("Missing %d of %d column(s): %s", len(p.Missing), len(cfg.Columns), strings.Join(p.Missing, ", "))
	}
	return p, nil
}
