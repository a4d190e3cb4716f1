package pngscan

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"cardmeter/lib/cursor"
)

func tinyPNG(t *testing.T) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 0xFF, A: 0xFF})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func chunk(typ string, data []byte) []byte {
	b := make([]byte, 8, 12+len(data))
	binary.BigEndian.PutUint32(b, uint32(len(data)))
	copy(b[4:], typ)
	b = append(b, data...)
	return append(b, 0xDE, 0xAD, 0xBE, 0xEF) // crc is never checked
}

var trailers = [][]byte{
	nil,
	[]byte("x"),
	{0x89, 'P', 'N', 'G'},
	bytes.Repeat([]byte{0xFF}, 100),
	append(chunk("IEND", nil), 1, 2, 3),
}

func TestLengthIgnoresTrailer(t *testing.T) {
	img := tinyPNG(t)
	for i, tr := range trailers {
		buf := append(append([]byte(nil), img...), tr...)
		n, err := Length(buf, 0)
		if err != nil {
			t.Fatalf("case %d: Length failed: %v", i, err)
		}
		if n != len(img) {
			t.Errorf("case %d: Length = %d, want %d", i, n, len(img))
		}
	}
}

func TestLengthOffset(t *testing.T) {
	img := tinyPNG(t)
	buf := append([]byte("prefix"), img...)
	buf = append(buf, "payload"...)
	n, err := Length(buf, 6)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(img) {
		t.Errorf("Length = %d, want %d", n, len(img))
	}
}

func TestExtractAgreesWithLength(t *testing.T) {
	img := tinyPNG(t)
	for i, tr := range trailers {
		buf := append(append([]byte("ab"), img...), tr...)
		want, err := Length(buf, 2)
		if err != nil {
			t.Fatal(err)
		}

		for _, rs := range []io.ReadSeeker{bytes.NewReader(buf), cursor.New(buf)} {
			if _, err = rs.Seek(2, io.SeekStart); err != nil {
				t.Fatal(err)
			}
			got, err := Extract(rs)
			if err != nil {
				t.Fatalf("case %d: Extract failed: %v", i, err)
			}
			if len(got) != want || !bytes.Equal(got, img) {
				t.Errorf("case %d: Extract returned %d bytes, want %d", i, len(got), want)
			}
			pos, _ := rs.Seek(0, io.SeekCurrent)
			if pos != 2 {
				t.Errorf("case %d: cursor moved to %d", i, pos)
			}

			if _, err = Skip(rs); err != nil {
				t.Fatal(err)
			}
			pos, _ = rs.Seek(0, io.SeekCurrent)
			if pos != int64(2+want) {
				t.Errorf("case %d: Skip left cursor at %d, want %d", i, pos, 2+want)
			}
		}
	}
}

func TestInvalid(t *testing.T) {
	img := tinyPNG(t)
	noIEND := append(Signature[:], chunk("IHDR", make([]byte, 13))...)
	noIEND = append(noIEND, chunk("IDAT", []byte{1, 2, 3})...)

	cases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"no signature", img[8:]},
		{"bad signature", append([]byte{0x88}, img[1:]...)},
		{"no IEND", noIEND},
		{"truncated header", append(append([]byte(nil), noIEND...), 0, 0)},
		{"cut in IEND", img[:len(img)-2]},
		{"oversized chunk", append(Signature[:], 0x7F, 0xFF, 0xFF, 0xFF, 'I', 'D', 'A', 'T')},
	}
	for _, c := range cases {
		_, err := Length(c.buf, 0)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("%s: Length err = %v, want ErrInvalidFormat", c.name, err)
		}
		rs := bytes.NewReader(c.buf)
		_, err = Extract(rs)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("%s: Extract err = %v, want ErrInvalidFormat", c.name, err)
		}
		if pos, _ := rs.Seek(0, io.SeekCurrent); pos != 0 {
			t.Errorf("%s: failed Extract moved cursor to %d", c.name, pos)
		}
	}
}
