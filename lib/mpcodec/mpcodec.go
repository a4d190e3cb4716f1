package mpcodec

// msgpack <-> dynval.Value.
//
// decoding goes through fixed stages:
//   strict - strings must be valid UTF-8, whole input must be consumed;
//   raw    - strings are taken as bytes and recovered leaf by leaf;
//   opaque - nothing worked, caller gets input bytes back.
// decoding therefore never fails, DecodeDetail tells what happened.
//
// floats are always encoded as float32. that's what card files use and
// it loses precision of float64 inputs; that is expected.

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"cardmeter/lib/dynval"
)

const (
	DefaultMaxPayload = 64 << 20
	DefaultMaxDepth   = 256
)

type Mode int

const (
	Strict Mode = iota
	Raw
	Opaque
)

var modeNames = [...]string{Strict: "strict", Raw: "raw", Opaque: "opaque"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

var (
	errFallbackExhausted = errors.New("msgpack: strict and raw decoding both failed")
	errInvalidUTF8       = errors.New("msgpack: string is not valid UTF-8")
	errTooDeep           = errors.New("msgpack: nesting too deep")
)

func errTooLarge(n, limit int) error {
	return fmt.Errorf("msgpack: payload too large (%d, limit: %d)", n, limit)
}

func errExtraData(n int) error {
	return fmt.Errorf("msgpack: %d bytes of extra data after value", n)
}

func errBadLength(what string, n, left int) error {
	return fmt.Errorf("msgpack: %s length %d exceeds remaining %d bytes", what, n, left)
}

// Codec holds decoding limits. Zero fields mean defaults.
type Codec struct {
	MaxPayload int
	MaxDepth   int
}

var Default = Codec{}

func (c Codec) maxPayload() int {
	if c.MaxPayload > 0 {
		return c.MaxPayload
	}
	return DefaultMaxPayload
}

func (c Codec) maxDepth() int {
	if c.MaxDepth > 0 {
		return c.MaxDepth
	}
	return DefaultMaxDepth
}

func Decode(b []byte) dynval.Value { return Default.Decode(b) }

func DecodeStrict(b []byte) (dynval.Value, error) { return Default.DecodeStrict(b) }

func Encode(v dynval.Value) ([]byte, int, error) { return Default.Encode(v) }

// Decode always returns some value; see package comment.
func (c Codec) Decode(b []byte) dynval.Value {
	v, _, _ := c.DecodeDetail(b)
	return v
}

// DecodeStrict is first stage only.
func (c Codec) DecodeStrict(b []byte) (dynval.Value, error) {
	return c.decode(b, Strict)
}

// DecodeDetail returns value, stage which produced it and, unless strict
// stage worked, error explaining why earlier stage(s) were rejected.
func (c Codec) DecodeDetail(b []byte) (dynval.Value, Mode, error) {
	v, serr := c.decode(b, Strict)
	if serr == nil {
		return v, Strict, nil
	}
	v, rerr := c.decode(b, Raw)
	if rerr == nil {
		return v, Raw, serr
	}
	return dynval.NewBytes(append([]byte(nil), b...)), Opaque,
		fmt.Errorf("%w (strict: %v; raw: %v)", errFallbackExhausted, serr, rerr)
}

type decoder struct {
	d        *msgpack.Decoder
	r        *bytes.Reader // what d reads from, for remaining length checks
	mode     Mode
	maxDepth int
}

func (c Codec) decode(b []byte, mode Mode) (dynval.Value, error) {
	if len(b) > c.maxPayload() {
		return dynval.Value{}, errTooLarge(len(b), c.maxPayload())
	}
	// bytes.Reader is io.ByteScanner so msgpack won't buffer ahead of us
	r := bytes.NewReader(b)
	dd := decoder{
		d:        msgpack.NewDecoder(r),
		r:        r,
		mode:     mode,
		maxDepth: c.maxDepth(),
	}
	v, err := dd.value(0)
	if err != nil {
		return dynval.Value{}, err
	}
	if r.Len() != 0 {
		return dynval.Value{}, errExtraData(r.Len())
	}
	return v, nil
}

func (dd *decoder) value(depth int) (dynval.Value, error) {
	if depth > dd.maxDepth {
		return dynval.Value{}, errTooDeep
	}
	c, err := dd.d.PeekCode()
	if err != nil {
		return dynval.Value{}, err
	}

	switch {
	case c == msgpcode.Nil:
		return dynval.NewNull(), dd.d.DecodeNil()

	case c == msgpcode.False || c == msgpcode.True:
		x, err := dd.d.DecodeBool()
		return dynval.NewBool(x), err

	case msgpcode.IsFixedNum(c),
		c == msgpcode.Int8, c == msgpcode.Int16,
		c == msgpcode.Int32, c == msgpcode.Int64:

		x, err := dd.d.DecodeInt64()
		return dynval.NewInt(x), err

	case c == msgpcode.Uint8, c == msgpcode.Uint16,
		c == msgpcode.Uint32, c == msgpcode.Uint64:

		x, err := dd.d.DecodeUint64()
		return dynval.NewUint(x), err

	case c == msgpcode.Float:
		x, err := dd.d.DecodeFloat32()
		return dynval.NewFloat(float64(x)), err

	case c == msgpcode.Double:
		x, err := dd.d.DecodeFloat64()
		return dynval.NewFloat(x), err

	case msgpcode.IsString(c):
		return dd.str()

	case msgpcode.IsBin(c):
		x, err := dd.d.DecodeBytes()
		return dynval.NewBytes(x), err

	case msgpcode.IsFixedArray(c), c == msgpcode.Array16, c == msgpcode.Array32:
		return dd.array(depth)

	case msgpcode.IsFixedMap(c), c == msgpcode.Map16, c == msgpcode.Map32:
		return dd.dict(depth)

	case msgpcode.IsExt(c):
		id, n, err := dd.d.DecodeExtHeader()
		if err != nil {
			return dynval.Value{}, err
		}
		if n > dd.r.Len() {
			return dynval.Value{}, errBadLength("ext", n, dd.r.Len())
		}
		data := make([]byte, n)
		if err = dd.d.ReadFull(data); err != nil {
			return dynval.Value{}, err
		}
		return dynval.NewExt(id, data), nil
	}

	return dynval.Value{}, fmt.Errorf("msgpack: invalid code 0x%02x", c)
}

func (dd *decoder) str() (dynval.Value, error) {
	if dd.mode == Strict {
		s, err := dd.d.DecodeString()
		if err != nil {
			return dynval.Value{}, err
		}
		if !validUTF8(s) {
			return dynval.Value{}, errInvalidUTF8
		}
		return dynval.NewString(s), nil
	}

	b, err := dd.d.DecodeBytes()
	if err != nil {
		return dynval.Value{}, err
	}
	return dynval.NewString(RecoverText(b)), nil
}

func (dd *decoder) array(depth int) (dynval.Value, error) {
	n, err := dd.d.DecodeArrayLen()
	if err != nil {
		return dynval.Value{}, err
	}
	if n < 0 {
		// nil array
		return dynval.NewNull(), nil
	}
	// every element takes at least one byte
	if n > dd.r.Len() {
		return dynval.Value{}, errBadLength("array", n, dd.r.Len())
	}
	a := make([]dynval.Value, n)
	for i := range a {
		a[i], err = dd.value(depth + 1)
		if err != nil {
			return dynval.Value{}, err
		}
	}
	return dynval.NewArray(a...), nil
}

func (dd *decoder) dict(depth int) (dynval.Value, error) {
	n, err := dd.d.DecodeMapLen()
	if err != nil {
		return dynval.Value{}, err
	}
	if n < 0 {
		return dynval.NewNull(), nil
	}
	if n > dd.r.Len()/2 {
		return dynval.Value{}, errBadLength("map", n, dd.r.Len())
	}
	m := make([]dynval.Pair, n)
	for i := range m {
		m[i].Key, err = dd.value(depth + 1)
		if err != nil {
			return dynval.Value{}, err
		}
		m[i].Val, err = dd.value(depth + 1)
		if err != nil {
			return dynval.Value{}, err
		}
	}
	return dynval.NewMap(m...), nil
}

// Encode serializes v. Returned length is len of returned slice.
func (c Codec) Encode(v dynval.Value) ([]byte, int, error) {
	var buf bytes.Buffer
	e := msgpack.NewEncoder(&buf)
	if err := encodeValue(e, v); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), buf.Len(), nil
}

func encodeValue(e *msgpack.Encoder, v dynval.Value) error {
	switch v.Kind() {
	case dynval.Null:
		return e.EncodeNil()
	case dynval.Bool:
		x, _ := v.AsBool()
		return e.EncodeBool(x)
	case dynval.Int:
		x, _ := v.AsInt()
		return e.EncodeInt(x)
	case dynval.Uint:
		x, _ := v.AsUint()
		return e.EncodeUint(x)
	case dynval.Float:
		x, _ := v.AsFloat()
		return e.EncodeFloat32(float32(x))
	case dynval.String:
		x, _ := v.AsString()
		return e.EncodeString(x)
	case dynval.Bytes:
		x, _ := v.AsBytes()
		if x == nil {
			// EncodeBytes writes nil for nil slice
			x = []byte{}
		}
		return e.EncodeBytes(x)
	case dynval.Ext:
		id, data, _ := v.AsExt()
		if err := e.EncodeExtHeader(id, len(data)); err != nil {
			return err
		}
		_, err := e.Writer().Write(data)
		return err
	case dynval.Array:
		a := v.Elems()
		if err := e.EncodeArrayLen(len(a)); err != nil {
			return err
		}
		for i := range a {
			if err := encodeValue(e, a[i]); err != nil {
				return err
			}
		}
		return nil
	case dynval.Map:
		m := v.Pairs()
		if err := e.EncodeMapLen(len(m)); err != nil {
			return err
		}
		for i := range m {
			if err := encodeValue(e, m[i].Key); err != nil {
				return err
			}
			if err := encodeValue(e, m[i].Val); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("msgpack: can't encode %v", v.Kind())
}
