package mpcodec

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"cardmeter/lib/dynval"
)

// f32 rounds every float in tree the way encoding does.
func f32(v dynval.Value) dynval.Value {
	switch v.Kind() {
	case dynval.Float:
		x, _ := v.AsFloat()
		return dynval.NewFloat(float64(float32(x)))
	case dynval.Array:
		a := v.Elems()
		r := make([]dynval.Value, len(a))
		for i := range a {
			r[i] = f32(a[i])
		}
		return dynval.NewArray(r...)
	case dynval.Map:
		m := v.Pairs()
		r := make([]dynval.Pair, len(m))
		for i := range m {
			r[i] = dynval.Pair{Key: f32(m[i].Key), Val: f32(m[i].Val)}
		}
		return dynval.NewMap(r...)
	}
	return v
}

var roundTripCases = []dynval.Value{
	dynval.NewNull(),
	dynval.NewBool(true),
	dynval.NewInt(-1),
	dynval.NewInt(1 << 40),
	dynval.NewUint(math.MaxUint64),
	dynval.NewFloat(0.1),
	dynval.NewString(""),
	dynval.NewString("ちびちゃん"),
	dynval.NewBytes(nil),
	dynval.NewBytes([]byte{0, 1, 2, 0xFF}),
	dynval.NewExt(7, []byte("opaque")),
	dynval.NewMap(
		dynval.P("name", dynval.NewString("Aoi")),
		dynval.P("age", dynval.NewInt(17)),
		dynval.P("shape", dynval.Floats([]float64{0.5, -1.25, 0.1, 3})),
		dynval.P("nested", dynval.NewMap(
			dynval.P("deeper", dynval.NewArray(dynval.NewNull(), dynval.NewBool(false))),
		)),
	),
	// non-string keys
	dynval.NewMap(
		dynval.Pair{Key: dynval.NewInt(1), Val: dynval.NewString("one")},
		dynval.Pair{Key: dynval.NewBytes([]byte("raw")), Val: dynval.NewInt(2)},
		dynval.Pair{Key: dynval.NewFloat(2.5), Val: dynval.NewNull()},
	),
}

func TestRoundTrip(t *testing.T) {
	for i, v := range roundTripCases {
		b, n, err := Encode(v)
		if err != nil {
			t.Fatalf("case %d: Encode failed: %v", i, err)
		}
		if n != len(b) {
			t.Errorf("case %d: Encode length %d but %d bytes", i, n, len(b))
		}
		got, mode, err := Default.DecodeDetail(b)
		if mode != Strict {
			t.Fatalf("case %d: decoded in %v mode: %v", i, mode, err)
		}
		if !dynval.Equal(got, f32(v)) {
			t.Errorf("case %d: round trip mismatch\nwant %v\ngot  %v\n%s",
				i, f32(v), got, spew.Sdump(b))
		}
	}
}

func TestEncodeForms(t *testing.T) {
	cases := []struct {
		v    dynval.Value
		want []byte
	}{
		// always single precision
		{dynval.NewFloat(1.5), []byte{0xCA, 0x3F, 0xC0, 0x00, 0x00}},
		// binary framing for bytes, str framing for text
		{dynval.NewBytes([]byte("ab")), []byte{0xC4, 0x02, 'a', 'b'}},
		{dynval.NewString("ab"), []byte{0xA2, 'a', 'b'}},
		{dynval.NewInt(5), []byte{0x05}},
		{dynval.NewInt(-33), []byte{0xD0, 0xDF}},
	}
	for _, c := range cases {
		b, _, err := Encode(c.v)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(b, c.want) {
			t.Errorf("Encode(%v) = % x, want % x", c.v, b, c.want)
		}
	}
}

func TestRawFallback(t *testing.T) {
	// {"name": <"あい" in Shift_JIS>, <"名" in Shift_JIS>: "ok"}
	in := []byte{0x82,
		0xA4, 'n', 'a', 'm', 'e', 0xA4, 0x82, 0xA0, 0x82, 0xA2,
		0xA2, 0x96, 0xBC, 0xA2, 'o', 'k',
	}
	if _, err := DecodeStrict(in); err == nil {
		t.Fatalf("strict decode accepted Shift_JIS string")
	}
	v, mode, err := Default.DecodeDetail(in)
	if mode != Raw {
		t.Fatalf("expected raw mode, got %v (%v)", mode, err)
	}
	if s, _ := v.GetString("name"); s != "あい" {
		t.Errorf("name = %q", s)
	}
	if s, _ := v.GetString("名"); s != "ok" {
		t.Errorf("recovered key missing: %v", v)
	}
}

func TestRecoverText(t *testing.T) {
	cases := []struct {
		in   []byte
		out  string
		kind TextEncoding
	}{
		{[]byte("plain"), "plain", TextUTF8},
		{[]byte("ゆい"), "ゆい", TextUTF8},
		{[]byte{0x83, 0x86, 0x83, 0x43}, "ユイ", TextShiftJIS},
		{[]byte{0xB1, 0xB2}, "ｱｲ", TextShiftJIS},
	}
	for _, c := range cases {
		s, k := RecoverTextDetail(c.in)
		if s != c.out || k != c.kind {
			t.Errorf("RecoverTextDetail(% x) = %q, %v; want %q, %v", c.in, s, k, c.out, c.kind)
		}
	}

	s, k := RecoverTextDetail([]byte{'a', 0xFF, 'b'})
	if k != TextLossy || !strings.ContainsRune(s, '�') || !strings.HasPrefix(s, "a") {
		t.Errorf("lossy decode gave %q, %v", s, k)
	}
}

func TestOpaque(t *testing.T) {
	cases := []struct {
		name  string
		codec Codec
		in    []byte
	}{
		{"empty", Default, nil},
		{"truncated", Default, []byte{0x92, 0x01}},
		{"extra data", Default, []byte{0x01, 0x02}},
		{"reserved code", Default, []byte{0xC1}},
		{"huge array", Default, []byte{0xDD, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}},
		{"huge map", Default, []byte{0xDF, 0x7F, 0xFF, 0xFF, 0xFF, 0x00, 0x00}},
		{"too large", Codec{MaxPayload: 2}, []byte{0x93, 0x01, 0x02, 0x03}},
		{"too deep", Default, append(bytes.Repeat([]byte{0x91}, DefaultMaxDepth+10), 0xC0)},
	}
	for _, c := range cases {
		v, mode, err := c.codec.DecodeDetail(c.in)
		if mode != Opaque || err == nil {
			t.Errorf("%s: got mode %v, err %v", c.name, mode, err)
			continue
		}
		b, ok := v.AsBytes()
		if !ok || !bytes.Equal(b, c.in) {
			t.Errorf("%s: opaque value %v doesn't hold input", c.name, v)
		}
	}
}

func TestDecodeNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		b := make([]byte, 16+rng.Intn(64))
		rng.Read(b)
		v, mode, _ := Default.DecodeDetail(b)
		if mode == Opaque {
			if got, _ := v.AsBytes(); !bytes.Equal(got, b) {
				t.Fatalf("opaque result lost input %x", b)
			}
		}
	}
}

func TestDecodeDoesNotMutateInput(t *testing.T) {
	b, _, err := Encode(roundTripCases[11])
	if err != nil {
		t.Fatal(err)
	}
	orig := append([]byte(nil), b...)
	_ = Decode(b)
	if !bytes.Equal(b, orig) {
		t.Errorf("input changed by Decode")
	}
}
