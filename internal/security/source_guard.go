package security

import (
	"bytes"
	"errors"
	"fmt"
)

// SourceGuard screens manual sources before they are parsed. Every
// supported manual format is plain UTF-8 text, so anything that sniffs
// as binary is a disguised or corrupted file, not a manual.

type SourceGuard struct {
	HeaderSize int // Leading bytes inspected per source
}

func NewSourceGuard() *SourceGuard {
	return &SourceGuard{
		HeaderSize: 64 * 1024, // 64KB header
	}
}

// binarySignatures are file formats that show up as mislabeled manual
// sources in practice (an image or archive renamed to .md). Signatures
// that are plain printable ASCII are excluded so ordinary prose can
// never collide with them.
var binarySignatures = []struct {
	name  string
	magic []byte
}{
	{"PNG image", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"JPEG image", []byte{0xFF, 0xD8, 0xFF}},
	{"GIF image", []byte("GIF8")},
	{"PDF document", []byte("%PDF-")},
	{"ZIP archive", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"gzip archive", []byte{0x1F, 0x8B}},
	{"ELF binary", []byte{0x7F, 0x45, 0x4C, 0x46}},
	{"SQLite database", []byte("SQLite format 3\x00")},
}

// Check inspects the leading bytes of one manual source and reports why
// it cannot be manual text. Empty content passes; an empty file is a
// manual with nothing in it, not an attack.
func (g *SourceGuard) Check(data []byte) error {
	header := data
	if len(header) > g.HeaderSize {
		header = header[:g.HeaderSize]
	}
	if len(header) == 0 {
		return nil
	}

	for _, sig := range binarySignatures {
		if bytes.HasPrefix(header, sig.magic) {
			return fmt.Errorf("content looks like a %s, not manual text (file may be disguised)", sig.name)
		}
	}

	// UTF-16 text would pass a pure signature check but the parsers
	// only speak UTF-8; reject it with a message that says how to fix it.
	if bytes.HasPrefix(header, []byte{0xFE, 0xFF}) || bytes.HasPrefix(header, []byte{0xFF, 0xFE}) {
		return errors.New("UTF-16 encoded, manual sources must be UTF-8")
	}

	if bytes.IndexByte(header, 0x00) >= 0 {
		return errors.New("contains NUL bytes, manual sources must be plain text")
	}

	if ratio := nonPrintableRatio(header); ratio > 0.3 {
		return fmt.Errorf("%.0f%% of the leading bytes are non-printable, content appears to be binary", ratio*100)
	}

	return nil
}

// nonPrintableRatio reports the fraction of control characters in data.
// Tab, LF and CR are ordinary text; everything else below 0x20, plus
// DEL, counts against the source.
func nonPrintableRatio(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}

	nonPrintable := 0
	for _, b := range data {
		if b < 9 || (b > 13 && b < 32) || b == 127 {
			nonPrintable++
		}
	}

	return float64(nonPrintable) / float64(len(data))
}
