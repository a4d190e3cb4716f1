package pngscan

// finds where PNG image ends so that whatever is glued after it can be read.
// chunk CRCs are not checked; only the length/type framing matters here.

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var Signature = [8]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

var iendType = [4]byte{'I', 'E', 'N', 'D'}

var ErrInvalidFormat = errors.New("invalid PNG container")

// FormatError describes why buffer isn't acceptable PNG container.
type FormatError struct {
	Off    int // offset relative to image start
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid PNG container at offset %d: %s", e.Off, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

func formatErr(off int, f string, v ...interface{}) error {
	return &FormatError{Off: off, Reason: fmt.Sprintf(f, v...)}
}

// chunk header + crc
const chunkOverhead = 12

// Length returns byte length of PNG image starting at buf[start],
// up to and including IEND chunk CRC.
func Length(buf []byte, start int) (int, error) {
	if start < 0 || start > len(buf) {
		return 0, formatErr(0, "start offset %d outside buffer of %d bytes", start, len(buf))
	}
	b := buf[start:]
	if len(b) < len(Signature) || !bytes.Equal(b[:len(Signature)], Signature[:]) {
		return 0, formatErr(0, "missing PNG signature")
	}
	idx := len(Signature)
	for {
		if len(b)-idx < 8 {
			return 0, formatErr(idx, "truncated chunk header before IEND")
		}
		clen := int64(binary.BigEndian.Uint32(b[idx:]))
		var ctype [4]byte
		copy(ctype[:], b[idx+4:idx+8])
		end := int64(idx) + clen + chunkOverhead
		if end > int64(len(b)) {
			return 0, formatErr(idx,
				"chunk %q of %d bytes runs past end of buffer", ctype[:], clen)
		}
		idx = int(end)
		if ctype == iendType {
			return idx, nil
		}
	}
}

// Extract reads PNG image from current position of rs.
// Position is restored before returning so caller can decide
// whether to skip image or read it again.
func Extract(rs io.ReadSeeker) (_ []byte, err error) {
	origin, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, serr := rs.Seek(origin, io.SeekStart); serr != nil && err == nil {
			err = serr
		}
	}()

	n, err := scanStream(rs)
	if err != nil {
		return nil, err
	}

	_, err = rs.Seek(origin, io.SeekStart)
	if err != nil {
		return nil, err
	}
	img := make([]byte, n)
	_, err = io.ReadFull(rs, img)
	if err != nil {
		return nil, fmt.Errorf("re-reading PNG image: %w", err)
	}
	return img, nil
}

// Skip extracts image and leaves rs positioned right after it.
func Skip(rs io.ReadSeeker) ([]byte, error) {
	img, err := Extract(rs)
	if err != nil {
		return nil, err
	}
	_, err = rs.Seek(int64(len(img)), io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func scanStream(r io.ReadSeeker) (int, error) {
	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil || sig != Signature {
		return 0, formatErr(0, "missing PNG signature")
	}
	idx := int64(len(Signature))
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return 0, formatErr(int(idx), "truncated chunk header before IEND")
			}
			return 0, err
		}
		clen := int64(binary.BigEndian.Uint32(hdr[:4]))
		var ctype [4]byte
		copy(ctype[:], hdr[4:])

		// seeking past end doesn't fail, so check what's actually there
		pos, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		end, err := r.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, err
		}
		if pos+clen+4 > end {
			return 0, formatErr(int(idx),
				"chunk %q of %d bytes runs past end of stream", ctype[:], clen)
		}
		if _, err = r.Seek(pos+clen+4, io.SeekStart); err != nil {
			return 0, err
		}
		idx += clen + chunkOverhead
		if ctype == iendType {
			return int(idx), nil
		}
	}
}
