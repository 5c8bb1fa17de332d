package reader

import "io"

var utf8BOM = [3]byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader drops a leading UTF-8 byte order mark, which Excel and
// other Windows tools write at the start of CSV exports.
type BOMSkippingReader struct {
	r       io.Reader
	checked bool
	head    []byte // bytes read while checking that were not a BOM
}

// NewBOMSkippingReader wraps r.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{r: r}
}

func (b *BOMSkippingReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, err
		}
		if n < 3 || buf != utf8BOM {
			b.head = append(b.head, buf[:n]...)
		}
	}

	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	return b.r.Read(p)
}
