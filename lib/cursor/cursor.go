package cursor

// sequential reader over finite in-memory buffer.
// slices handed out alias the buffer; the buffer itself is never written.

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrTruncated = errors.New("truncated stream")

var errNegativeSeek = errors.New("cursor: negative position")

// TruncatedError reports field which ran past end of buffer.
type TruncatedError struct {
	What string
	Off  int // where field started, -1 if unknown
	Need int
	Have int
}

func (e *TruncatedError) Error() string {
	if e.Off < 0 {
		return fmt.Sprintf(
			"truncated stream: %s needs %d bytes, have %d",
			e.What, e.Need, e.Have)
	}
	return fmt.Sprintf(
		"truncated stream: %s at offset %d needs %d bytes, have %d",
		e.What, e.Off, e.Need, e.Have)
}

func (e *TruncatedError) Is(target error) bool {
	return target == ErrTruncated
}

func Truncated(what string, off, need, have int) error {
	return &TruncatedError{What: what, Off: off, Need: need, Have: have}
}

type Cursor struct {
	b []byte
	p int
}

func New(b []byte) *Cursor {
	return &Cursor{b: b}
}

// Pos returns current offset from buffer start.
func (c *Cursor) Pos() int { return c.p }

// Len returns count of unread bytes.
func (c *Cursor) Len() int {
	if c.p >= len(c.b) {
		return 0
	}
	return len(c.b) - c.p
}

// Rest returns unread part without advancing.
func (c *Cursor) Rest() []byte {
	if c.p >= len(c.b) {
		return nil
	}
	return c.b[c.p:]
}

// Next consumes exactly n bytes.
func (c *Cursor) Next(what string, n int) ([]byte, error) {
	if n < 0 || n > c.Len() {
		return nil, Truncated(what, c.p, n, c.Len())
	}
	if n == 0 {
		return nil, nil
	}
	x := c.b[c.p : c.p+n : c.p+n]
	c.p += n
	return x, nil
}

// Skip is Next which doesn't care about content.
func (c *Cursor) Skip(what string, n int) error {
	_, err := c.Next(what, n)
	return err
}

func (c *Cursor) Uint32BE(what string) (uint32, error) {
	x, err := c.Next(what, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(x), nil
}

func (c *Cursor) Int32LE(what string) (int32, error) {
	x, err := c.Next(what, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(x)), nil
}

func (c *Cursor) Int64LE(what string) (int64, error) {
	x, err := c.Next(what, 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(x)), nil
}

// ReadByte implements io.ByteReader.
func (c *Cursor) ReadByte() (byte, error) {
	if c.p >= len(c.b) {
		return 0, io.EOF
	}
	x := c.b[c.p]
	c.p++
	return x, nil
}

// Read implements io.Reader.
func (c *Cursor) Read(p []byte) (int, error) {
	if c.p >= len(c.b) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, c.b[c.p:])
	c.p += n
	return n, nil
}

// Seek implements io.Seeker. It's the only way to go back.
func (c *Cursor) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(c.p) + offset
	case io.SeekEnd:
		abs = int64(len(c.b)) + offset
	default:
		return 0, errors.New("cursor: invalid whence")
	}
	if abs < 0 {
		return 0, errNegativeSeek
	}
	// like bytes.Reader, positions past end are allowed
	c.p = int(abs)
	return abs, nil
}

var (
	_ io.ReadSeeker = (*Cursor)(nil)
	_ io.ByteReader = (*Cursor)(nil)
)
