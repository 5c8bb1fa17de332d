package reader

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxSource reads the first sheet of a workbook, either through the
// streaming row iterator or from a fully loaded sheet.
type xlsxSource struct {
	f    *excelize.File
	iter *excelize.Rows
	rows [][]string
	pos  int
}

func openXLSX(path string, stream bool) (rowSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, errors.New("workbook has no sheets")
	}

	src := &xlsxSource{f: f}
	if stream {
		src.iter, err = f.Rows(sheets[0])
	} else {
		src.rows, err = f.GetRows(sheets[0])
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return src, nil
}

func (s *xlsxSource) Next() ([]string, error) {
	if s.iter == nil {
		if s.pos >= len(s.rows) {
			return nil, io.EOF
		}
		row := s.rows[s.pos]
		s.rows[s.pos] = nil
		s.pos++
		return row, nil
	}

	if !s.iter.Next() {
		if err := s.iter.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.iter.Columns()
}

func (s *xlsxSource) Close() error {
	if s.iter != nil {
		s.iter.Close()
	}
	return s.f.Close()
}
