package reader

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"

	"github.com/JonMunkholm/sheetload/internal/errs"
)

// peekSample is how much of a file Peek classifies before decoding.
const peekSample = 64 << 10

type csvSource struct {
	r      *csv.Reader
	closer io.Closer
}

func newCSVSource(r io.Reader, closer io.Closer) *csvSource {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &csvSource{r: cr, closer: closer}
}

func (s *csvSource) Next() ([]string, error) { return s.r.Read() }

func (s *csvSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// openCSV classifies the file's encoding, records checksum and encoding on
// t, and returns a source of decoded rows. Small files are held in memory;
// chunked reads stream from disk after a classification pass.
func openCSV(path string, t *Table) (rowSource, error) {
	sn := newSniffer()

	if !t.Chunked {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sn.Write(data)
		enc := sn.result(true)
		if enc == encodingUnknown {
			return nil, errs.ErrUndecodable
		}
		t.Checksum, t.Encoding = sn.sum(), enc
		return newCSVSource(decode(bytes.NewReader(data), enc), nil), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(sn, f); err != nil {
		f.Close()
		return nil, err
	}
	enc := sn.result(true)
	if enc == encodingUnknown {
		f.Close()
		return nil, errs.ErrUndecodable
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	t.Checksum, t.Encoding = sn.sum(), enc
	return newCSVSource(decode(f, enc), f), nil
}

// peekCSV classifies only a leading sample of the file.
func peekCSV(path string) (rowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sample, err := io.ReadAll(io.LimitReader(f, peekSample))
	if err != nil {
		f.Close()
		return nil, err
	}

	sn := newSniffer()
	sn.Write(sample)
	enc := sn.result(len(sample) < peekSample)
	if enc == encodingUnknown {
		f.Close()
		return nil, errs.ErrUndecodable
	}
	return newCSVSource(decode(io.MultiReader(bytes.NewReader(sample), f), enc), f), nil
}
