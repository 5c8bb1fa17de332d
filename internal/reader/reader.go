// Package reader loads CSV and XLSX files into tables of raw cell text.
//
// Files at or above Options.LargeFileThreshold are streamed in chunks of
// Options.ChunkSize rows; smaller files are read in one pass. Both paths use
// the same row decoding, so the resulting Table is identical either way.
package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/JonMunkholm/sheetload/internal/errs"
)

// Defaults for Options.
const (
	DefaultChunkSize          = 10_000
	DefaultLargeFileThreshold = 100 << 20
)

// ErrEmptyFile is wrapped by ReadError when a file has no non-empty rows.
var ErrEmptyFile = errors.New("empty file")

// Options controls one read.
type Options struct {
	// HeaderRow is the index of the header among the file's non-empty rows.
	HeaderRow int
	// ChunkSize is the number of rows per chunk on the streaming path.
	ChunkSize int
	// LargeFileThreshold is the size in bytes at which reads are chunked.
	LargeFileThreshold int64
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.LargeFileThreshold <= 0 {
		o.LargeFileThreshold = DefaultLargeFileThreshold
	}
	return o
}

// Table is a file's header and data rows as raw text. Every row has
// exactly len(Columns) cells.
type Table struct {
	Columns  []string
	Rows     [][]string
	Checksum uint64 // xxhash64 of the file bytes
	Encoding string
	Size     int64
	Chunked  bool
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Supported reports whether path has an extension the reader accepts.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// rowSource yields raw rows until io.EOF.
type rowSource interface {
	Next() ([]string, error)
	Close() error
}

// Read loads the file at path. Failures are *errs.ReadError except context
// cancellation, which is returned as is.
func Read(ctx context.Context, path string, opts Options) (*Table, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &errs.ReadError{Path: path, Err: err}
	}

	t := &Table{Size: info.Size(), Chunked: info.Size() >= opts.LargeFileThreshold}

	var src rowSource
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		src, err = openCSV(path, t)
	case ".xlsx", ".xlsm":
		t.Encoding = EncodingXLSX
		if t.Checksum, err = checksumFile(path); err == nil {
			src, err = openXLSX(path, t.Chunked)
		}
	default:
		err = fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, &errs.ReadError{Path: path, Err: err}
	}
	defer src.Close()

	if t.Chunked {
		err = readChunked(ctx, src, t, opts)
	} else {
		err = readAll(src, t, opts)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &errs.ReadError{Path: path, Err: err}
	}
	return t, nil
}

// Peek returns up to n leading non-empty rows without reading the rest of
// the file. Used for type detection.
func Peek(ctx context.Context, path string, n int) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		src rowSource
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		src, err = peekCSV(path)
	case ".xlsx", ".xlsm":
		src, err = openXLSX(path, true)
	default:
		err = fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, &errs.ReadError{Path: path, Err: err}
	}
	defer src.Close()

	var rows [][]string
	for len(rows) < n {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errs.ReadError{Path: path, Err: err}
		}
		if !isBlank(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// assembler turns raw rows into header plus padded data rows.
type assembler struct {
	t         *Table
	headerRow int
	seen      int // non-empty rows so far
}

func (a *assembler) add(row []string, dst [][]string) [][]string {
	if isBlank(row) {
		return dst
	}
	a.seen++
	switch {
	case a.seen-1 < a.headerRow:
		return dst
	case a.seen-1 == a.headerRow:
		a.t.Columns = cleanHeader(row)
		return dst
	}
	return append(dst, fit(row, len(a.t.Columns)))
}

func (a *assembler) finish() error {
	if a.seen == 0 {
		return ErrEmptyFile
	}
	if a.t.Columns == nil {
		return fmt.Errorf("header row %d not found: file has %d non-empty rows", a.headerRow, a.seen)
	}
	return nil
}

func readAll(src rowSource, t *Table, opts Options) error {
	a := &assembler{t: t, headerRow: opts.HeaderRow}
	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		t.Rows = a.add(row, t.Rows)
	}
	return a.finish()
}

func readChunked(ctx context.Context, src rowSource, t *Table, opts Options) error {
	a := &assembler{t: t, headerRow: opts.HeaderRow}
	chunk := make([][]string, 0, opts.ChunkSize)
	flush := func() {
		t.Rows = append(t.Rows, chunk...)
		chunk = make([][]string, 0, opts.ChunkSize)
	}

	for {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		chunk = a.add(row, chunk)
		if len(chunk) >= opts.ChunkSize {
			flush()
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if len(chunk) > 0 {
		flush()
	}
	return a.finish()
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cleanHeader(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
	}
	// Trailing unnamed columns carry no data anyone can map.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

// fit pads or truncates row to width.
func fit(row []string, width int) []string {
	if len(row) == width {
		return row
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

// checksumFile hashes a file without classifying it.
func checksumFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
