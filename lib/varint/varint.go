package varint

// 7-bit groups, least significant group first, high bit marks continuation.
// this is what card headers use for string lengths.

import (
	"errors"
	"fmt"
	"io"

	"cardmeter/lib/cursor"
)

// MaxLen64 is the longest encoding of uint64.
const MaxLen64 = 10

var ErrOverflow = errors.New("varint overflows 64 bits")

// DefaultMaxBytes caps ReadBytes payloads.
// card header strings are short; anything near this is garbage.
const DefaultMaxBytes = 1 << 20

func errTooLong(n uint64, limit int) error {
	return fmt.Errorf("varint string too long (%d, limit: %d)", n, limit)
}

// Decode reads one varint. Running out of input before terminating byte
// gives error matching cursor.ErrTruncated.
func Decode(r io.ByteReader) (v uint64, err error) {
	for i := 0; ; i++ {
		var c byte
		c, err = r.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = cursor.Truncated("varint", -1, i+1, i)
			}
			return 0, err
		}
		if i == MaxLen64-1 && c > 1 {
			return 0, ErrOverflow
		}
		v |= uint64(c&0x7F) << (7 * uint(i))
		if c&0x80 == 0 {
			return v, nil
		}
	}
}

// Append appends encoding of v to dst.
func Append(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func Encode(v uint64) []byte {
	var b [MaxLen64]byte
	return Append(b[:0], v)
}

// Len returns encoded size of v.
func Len(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

type byteReadReader interface {
	io.Reader
	io.ByteReader
}

// ReadBytes reads varint-prefixed byte string.
// limit <= 0 means DefaultMaxBytes.
func ReadBytes(r byteReadReader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	n, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if n > uint64(limit) {
		return nil, errTooLong(n, limit)
	}
	b := make([]byte, int(n))
	got, err := io.ReadFull(r, b)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = cursor.Truncated("varint string", -1, int(n), got)
		}
		return nil, err
	}
	return b, nil
}

func ReadString(r byteReadReader, limit int) (string, error) {
	b, err := ReadBytes(r, limit)
	return string(b), err
}

// AppendBytes appends varint-prefixed byte string.
func AppendBytes(dst, s []byte) []byte {
	dst = Append(dst, uint64(len(s)))
	return append(dst, s...)
}

func WriteBytes(w io.Writer, s []byte) error {
	var hdr [MaxLen64]byte
	if _, err := w.Write(Append(hdr[:0], uint64(len(s)))); err != nil {
		return err
	}
	_, err := w.Write(s)
	return err
}
