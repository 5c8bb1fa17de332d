package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/JonMunkholm/sheetload/internal/errs"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func ordersCSV(rows int) []byte {
	var b strings.Builder
	b.WriteString("Order No,Amount,Note\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "A%d,%d.50,\"note, %d\"\n", i, i, i)
		if i%7 == 0 {
			b.WriteString(",,\n") // blank rows are dropped
		}
	}
	return []byte(b.String())
}

func TestRead_CSV(t *testing.T) {
	path := writeFile(t, "orders.csv", ordersCSV(3))

	tbl, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order No", "Amount", "Note"}, tbl.Columns)
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"A1", "1.50", "note, 1"}, tbl.Rows[1])
	assert.Equal(t, EncodingUTF8, tbl.Encoding)
	assert.False(t, tbl.Chunked)
	assert.NotZero(t, tbl.Checksum)
	assert.Equal(t, 1, tbl.Index("Amount"))
	assert.Equal(t, -1, tbl.Index("missing"))
}

// =============================================================================
// Chunked vs full
// =============================================================================

func TestRead_ChunkedMatchesFull_CSV(t *testing.T) {
	path := writeFile(t, "orders.csv", ordersCSV(101))

	full, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)

	chunked, err := Read(context.Background(), path, Options{ChunkSize: 10, LargeFileThreshold: 1})
	require.NoError(t, err)
	require.True(t, chunked.Chunked)

	assert.Equal(t, full.Columns, chunked.Columns)
	assert.Equal(t, full.Len(), chunked.Len())
	assert.Equal(t, full.Rows, chunked.Rows)
	assert.Equal(t, full.Checksum, chunked.Checksum)
	assert.Equal(t, full.Encoding, chunked.Encoding)
}

func TestRead_ChunkedMatchesFull_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Order No", "Amount"}))
	for i := 0; i < 25; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &[]any{fmt.Sprintf("A%d", i), fmt.Sprintf("%d.25", i)}))
	}
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	full, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)
	chunked, err := Read(context.Background(), path, Options{ChunkSize: 4, LargeFileThreshold: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order No", "Amount"}, full.Columns)
	assert.Equal(t, 25, full.Len())
	assert.Equal(t, full.Rows, chunked.Rows)
	assert.Equal(t, EncodingXLSX, chunked.Encoding)
	assert.Equal(t, full.Checksum, chunked.Checksum)
}

func TestRead_ChunkedHonorsCancellation(t *testing.T) {
	path := writeFile(t, "orders.csv", ordersCSV(50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, path, Options{ChunkSize: 5, LargeFileThreshold: 1})
	assert.ErrorIs(t, err, context.Canceled)

	var re *errs.ReadError
	assert.False(t, errors.As(err, &re), "cancellation is not a read error")
}

// =============================================================================
// Encodings
// =============================================================================

func TestRead_ThaiCP874(t *testing.T) {
	enc, err := charmap.Windows874.NewEncoder().String("ชื่อ,จำนวน\nสมชาย,10\n")
	require.NoError(t, err)
	path := writeFile(t, "thai.csv", []byte(enc))

	tbl, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, EncodingCP874, tbl.Encoding)
	assert.Equal(t, []string{"ชื่อ", "จำนวน"}, tbl.Columns)
	assert.Equal(t, "สมชาย", tbl.Rows[0][0])
}

func TestRead_Latin1Fallback(t *testing.T) {
	// A byte Windows-874 leaves undefined forces the Latin-1 fallback.
	var b byte
	for c := 0xFF; c >= 0x80; c-- {
		if !cp874Defined[c] {
			b = byte(c)
			break
		}
	}
	require.NotZero(t, b, "windows-874 should leave some bytes undefined")

	data := append([]byte("name\nM"), b, 'x', '\n')
	path := writeFile(t, "latin.csv", data)

	tbl, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, EncodingLatin1, tbl.Encoding)

	want := "M" + string(charmap.ISO8859_1.DecodeByte(b)) + "x"
	assert.Equal(t, want, tbl.Rows[0][0])
}

func TestRead_BOMStripped(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Order No,Amount\nA1,1\n")...)
	path := writeFile(t, "bom.csv", data)

	tbl, err := Read(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "Order No", tbl.Columns[0])
}

func TestRead_BinaryIsUndecodable(t *testing.T) {
	path := writeFile(t, "binary.csv", []byte("a,b\n\x00\x01,2\n"))

	_, err := Read(context.Background(), path, Options{})
	var re *errs.ReadError
	require.True(t, errors.As(err, &re))
	assert.ErrorIs(t, err, errs.ErrUndecodable)
}

func TestSniffer_SplitUTF8(t *testing.T) {
	data := []byte("café,ñandú\n")
	sn := newSniffer()
	for i := range data {
		sn.Write(data[i : i+1])
	}
	assert.Equal(t, EncodingUTF8, sn.result(true))
	assert.Equal(t, checksumOf(data), sn.sum())
}

func checksumOf(data []byte) uint64 {
	sn := newSniffer()
	sn.Write(data)
	return sn.sum()
}

// =============================================================================
// Shape handling
// =============================================================================

func TestRead_HeaderRowAndRaggedRows(t *testing.T) {
	data := "Monthly export\n\nOrder No,Amount,Note\nA1,10\nA2,20,x,extra\n"
	path := writeFile(t, "report.csv", []byte(data))

	tbl, err := Read(context.Background(), path, Options{HeaderRow: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"Order No", "Amount", "Note"}, tbl.Columns)
	assert.Equal(t, [][]string{{"A1", "10", ""}, {"A2", "20", "x"}}, tbl.Rows)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		wantErr error
	}{
		{"legacy xls", "old.xls", []byte("whatever"), errs.ErrUnsupportedFormat},
		{"unknown extension", "data.json", []byte("{}"), errs.ErrUnsupportedFormat},
		{"empty file", "empty.csv", []byte(""), ErrEmptyFile},
		{"only blank rows", "blank.csv", []byte(",,\n , \n"), ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data)
			_, err := Read(context.Background(), path, Options{})

			var re *errs.ReadError
			require.True(t, errors.As(err, &re), "got %v", err)
			assert.Equal(t, path, re.Path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Read(context.Background(), filepath.Join(t.TempDir(), "gone.csv"), Options{})
	var re *errs.ReadError
	assert.True(t, errors.As(err, &re))
}

func TestPeek(t *testing.T) {
	path := writeFile(t, "orders.csv", []byte("\n,\nOrder No,Amount\nA1,1\nA2,2\n"))

	rows, err := Peek(context.Background(), path, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Order No", "Amount"}, {"A1", "1"}}, rows)
}

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"with BOM", append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), "hello"},
		{"without BOM", []byte("hello"), "hello"},
		{"empty", nil, ""},
		{"only BOM", []byte{0xEF, 0xBB, 0xBF}, ""},
		{"partial BOM", []byte{0xEF, 0xBB, 'a'}, string([]byte{0xEF, 0xBB, 'a'})},
		{"short", []byte("a"), "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewBOMSkippingReader(bytes.NewReader(tt.input)))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
