package reader

// encoding.go picks the text encoding of delimited files.
//
// Candidates are tried in order UTF-8, Windows-874 (Thai), Latin-1. An
// encoding fits when every byte maps to a defined character; text with NUL
// bytes fits none. Latin-1 defines every byte, so in practice only binary
// files are rejected. The sniff pass also feeds the file checksum.

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Encoding names reported on Table.Encoding.
const (
	EncodingUTF8    = "utf-8"
	EncodingCP874   = "windows-874"
	EncodingLatin1  = "iso-8859-1"
	EncodingXLSX    = "xlsx"
	encodingUnknown = ""
)

var cp874Defined = func() [256]bool {
	var t [256]bool
	for i := range t {
		t[i] = charmap.Windows874.DecodeByte(byte(i)) != utf8.RuneError
	}
	return t
}()

// sniffer is an io.Writer that classifies the bytes written to it and hashes them.
type sniffer struct {
	hash    *xxhash.Digest
	size    int64
	utf8OK  bool
	cp874OK bool
	hasNUL  bool
	pending []byte // incomplete UTF-8 sequence carried between writes
}

func newSniffer() *sniffer {
	return &sniffer{hash: xxhash.New(), utf8OK: true, cp874OK: true}
}

func (s *sniffer) Write(p []byte) (int, error) {
	s.hash.Write(p)
	s.size += int64(len(p))

	if !s.hasNUL && bytes.IndexByte(p, 0) >= 0 {
		s.hasNUL = true
	}
	if s.cp874OK {
		for _, b := range p {
			if !cp874Defined[b] {
				s.cp874OK = false
				break
			}
		}
	}
	if s.utf8OK {
		s.checkUTF8(p)
	}
	return len(p), nil
}

func (s *sniffer) checkUTF8(p []byte) {
	data := p
	if len(s.pending) > 0 {
		data = append(append([]byte(nil), s.pending...), p...)
		s.pending = nil
	}
	if isASCII(data) {
		return
	}
	tail := incompleteTrailingBytes(data)
	if !utf8.Valid(data[:len(data)-tail]) {
		s.utf8OK = false
		return
	}
	if tail > 0 {
		s.pending = append([]byte(nil), data[len(data)-tail:]...)
	}
}

// result names the first fitting encoding. complete reports whether the
// whole file was seen; a truncated sample may end mid-sequence.
func (s *sniffer) result(complete bool) string {
	if s.hasNUL {
		return encodingUnknown
	}
	if s.utf8OK && (len(s.pending) == 0 || !complete) {
		return EncodingUTF8
	}
	if s.cp874OK {
		return EncodingCP874
	}
	return EncodingLatin1
}

func (s *sniffer) sum() uint64 { return s.hash.Sum64() }

// decode wraps r so it yields UTF-8 text.
func decode(r io.Reader, enc string) io.Reader {
	switch enc {
	case EncodingCP874:
		return transform.NewReader(r, charmap.Windows874.NewDecoder())
	case EncodingLatin1:
		return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
	default:
		return NewBOMSkippingReader(r)
	}
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// incompleteTrailingBytes returns how many bytes at the end of data start a
// multi-byte sequence that has not finished yet.
func incompleteTrailingBytes(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	}
	return 4
}
