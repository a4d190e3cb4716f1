package varint

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"cardmeter/lib/cursor"
)

var roundTripValues = []uint64{
	0, 1, 127, 128, 16383, 16384, 1<<32 - 1, 1 << 53, math.MaxUint64,
}

func TestRoundTrip(t *testing.T) {
	for _, v := range roundTripValues {
		enc := Encode(v)
		if len(enc) != Len(v) {
			t.Errorf("Len(%d) = %d but encoding has %d bytes", v, Len(v), len(enc))
		}
		got, err := Decode(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("Decode(%x) failed: %v", enc, err)
		}
		if got != v {
			t.Errorf("round trip %d gave %d (enc %x)", v, got, enc)
		}
	}
}

func TestContinuationBits(t *testing.T) {
	for _, v := range roundTripValues {
		enc := Encode(v)
		for i, c := range enc {
			last := i == len(enc)-1
			if last && c&0x80 != 0 {
				t.Errorf("%d: last byte %02x has continuation bit", v, c)
			}
			if !last && c&0x80 == 0 {
				t.Errorf("%d: byte %d (%02x) lacks continuation bit", v, i, c)
			}
		}
	}
}

func TestKnownEncodings(t *testing.T) {
	cases := []struct {
		v   uint64
		enc []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{16384, []byte{0x80, 0x80, 0x01}},
	}
	for _, c := range cases {
		if got := Encode(c.v); !bytes.Equal(got, c.enc) {
			t.Errorf("Encode(%d) = %x, want %x", c.v, got, c.enc)
		}
	}
}

func TestTruncated(t *testing.T) {
	for _, in := range [][]byte{{}, {0x80}, {0xFF, 0xFF}} {
		_, err := Decode(bytes.NewReader(in))
		if !errors.Is(err, cursor.ErrTruncated) {
			t.Errorf("Decode(%x) err = %v, want truncated", in, err)
		}
	}
}

func TestOverflow(t *testing.T) {
	in := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x02}
	if _, err := Decode(bytes.NewReader(in)); err != ErrOverflow {
		t.Errorf("expected overflow, got %v", err)
	}
	in = append(bytes.Repeat([]byte{0x80}, 10), 0x00)
	if _, err := Decode(bytes.NewReader(in)); err != ErrOverflow {
		t.Errorf("expected overflow for 11 byte encoding, got %v", err)
	}
}

func TestBytes(t *testing.T) {
	var buf bytes.Buffer
	marker := []byte("【KoiKatuChara】")
	if err := WriteBytes(&buf, marker); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), AppendBytes(nil, marker)) {
		t.Fatalf("WriteBytes and AppendBytes disagree")
	}
	got, err := ReadBytes(cursor.New(buf.Bytes()), 0)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(got, marker) {
		t.Errorf("got %q want %q", got, marker)
	}

	short := AppendBytes(nil, []byte("abcdef"))[:4]
	if _, err = ReadBytes(cursor.New(short), 0); !errors.Is(err, cursor.ErrTruncated) {
		t.Errorf("short string err = %v, want truncated", err)
	}

	if _, err = ReadBytes(cursor.New(buf.Bytes()), 4); err == nil {
		t.Errorf("expected limit error")
	}
}
