// Package validate checks a projected table against its file type's declared
// column types. It only reports; cells are never modified.
package validate

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/sheetload/internal/dtype"
	"github.com/JonMunkholm/sheetload/internal/errs"
	"github.com/JonMunkholm/sheetload/internal/filetype"
	"github.com/JonMunkholm/sheetload/internal/reader"
)

const (
	// MaxExamples bounds the distinct offending values kept per issue.
	MaxExamples = 3
	// HighNullPercent is the empty-cell share above which a column is flagged.
	HighNullPercent = 50.0

	exampleWidth = 30
)

// Report lists the issues found in one table.
type Report struct {
	Rows     int
	Issues   []*errs.ValidationError
	Warnings []*errs.ValidationError
}

// Blocking returns the issues that fail the file at the given tolerance,
// expressed as a percentage of rows. Missing columns always block.
func (r Report) Blocking(tolerance float64) []*errs.ValidationError {
	var out []*errs.ValidationError
	for _, issue := range r.Issues {
		if issue.Check == errs.CheckMissingColumn || issue.Percent > tolerance {
			out = append(out, issue)
		}
	}
	return out
}

// Err joins the blocking issues, or returns nil.
func (r Report) Err(tolerance float64) error {
	blocking := r.Blocking(tolerance)
	if len(blocking) == 0 {
		return nil
	}
	joined := make([]error, len(blocking))
	for i, issue := range blocking {
		joined[i] = issue
	}
	return errors.Join(joined...)
}

// Check validates every target column of cfg against tbl, whose columns
// must already carry target names.
func Check(tbl *reader.Table, cfg filetype.Config) (Report, error) {
	cols, err := cfg.TargetColumns()
	if err != nil {
		return Report{}, err
	}

	rep := Report{Rows: tbl.Len()}
	for _, col := range cols {
		idx := tbl.Index(col.Name)
		if idx < 0 {
			rep.Issues = append(rep.Issues, &errs.ValidationError{
				Column:   col.Name,
				Check:    errs.CheckMissingColumn,
				Expected: col.Type.String(),
				Total:    rep.Rows,
				Invalid:  rep.Rows,
				Percent:  100,
			})
			continue
		}

		issue, empty := checkColumn(tbl, idx, col, cfg.Dates())
		if issue != nil {
			rep.Issues = append(rep.Issues, issue)
		}
		if rep.Rows > 0 {
			if pct := percent(empty, rep.Rows); pct > HighNullPercent {
				rep.Warnings = append(rep.Warnings, &errs.ValidationError{
					Column:  col.Name,
					Check:   errs.CheckHighNull,
					Invalid: empty,
					Total:   rep.Rows,
					Percent: pct,
				})
			}
		}
	}
	return rep, nil
}

// checkColumn converts every cell of one column and collects the failures.
// It also returns the number of empty cells.
func checkColumn(tbl *reader.Table, idx int, col filetype.Column, df dtype.DateFormat) (*errs.ValidationError, int) {
	var (
		invalid  int
		empty    int
		examples []string
		seen     = make(map[string]bool, MaxExamples)
		check    = checkFor(col.Type)
	)

	for _, row := range tbl.Rows {
		raw := row[idx]
		if dtype.CleanCell(raw) == "" {
			empty++
			continue
		}
		if _, err := dtype.Convert(raw, col.Type, df); err == nil {
			continue
		}
		invalid++

		ex := example(raw, check)
		if len(examples) < MaxExamples && !seen[ex] {
			seen[ex] = true
			examples = append(examples, ex)
		}
	}

	if invalid == 0 {
		return nil, empty
	}
	return &errs.ValidationError{
		Column:   col.Name,
		Check:    check,
		Expected: col.Type.String(),
		Examples: examples,
		Invalid:  invalid,
		Total:    tbl.Len(),
		Percent:  percent(invalid, tbl.Len()),
	}, empty
}

func checkFor(t dtype.SQLType) string {
	switch {
	case t.IsNumeric():
		return errs.CheckNumeric
	case t.IsTemporal():
		return errs.CheckDate
	case t.Kind == dtype.KindBool:
		return errs.CheckBoolean
	}
	return errs.CheckStringLength
}

// example shortens overlong strings so reports stay readable.
func example(raw string, check string) string {
	s := strings.TrimSpace(raw)
	if check == errs.CheckStringLength && utf8.RuneCountInString(s) > exampleWidth {
		return string([]rune(s)[:exampleWidth]) + "..."
	}
	return s
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*100*100) / 100
}
