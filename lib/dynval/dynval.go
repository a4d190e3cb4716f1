package dynval

// schema-less value tree produced by mpcodec.
// values are immutable once built; accessors never hand out
// anything callers could use to change a shared tree except
// byte slices, which must be treated as read-only.

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type Kind uint8

const (
	Null Kind = iota
	Bool
	Int  // signed 64bit
	Uint // only used for values above MaxInt64
	Float
	String
	Bytes
	Array
	Map
	Ext // msgpack extension, kept opaque
)

var kindNames = [...]string{
	Null:   "null",
	Bool:   "bool",
	Int:    "int",
	Uint:   "uint",
	Float:  "float",
	String: "string",
	Bytes:  "bytes",
	Array:  "array",
	Map:    "map",
	Ext:    "ext",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a node of decoded tree. Zero Value is Null.
type Value struct {
	k Kind
	n uint64 // bool, int, uint bits; ext type for Ext
	f float64
	s string
	b []byte // Bytes, Ext data
	a []Value
	m []Pair
}

// Pair is one map entry. Keys may be any kind.
type Pair struct {
	Key Value
	Val Value
}

func NewNull() Value { return Value{} }

func NewBool(x bool) Value {
	v := Value{k: Bool}
	if x {
		v.n = 1
	}
	return v
}

func NewInt(x int64) Value { return Value{k: Int, n: uint64(x)} }

// NewUint normalizes small values to Int so that equal numbers compare equal.
func NewUint(x uint64) Value {
	if x <= math.MaxInt64 {
		return NewInt(int64(x))
	}
	return Value{k: Uint, n: x}
}

func NewFloat(x float64) Value { return Value{k: Float, f: x} }

func NewString(x string) Value { return Value{k: String, s: x} }

func NewBytes(x []byte) Value { return Value{k: Bytes, b: x} }

func NewArray(x ...Value) Value { return Value{k: Array, a: x} }

func NewMap(x ...Pair) Value { return Value{k: Map, m: x} }

func NewExt(t int8, d []byte) Value {
	return Value{k: Ext, n: uint64(uint8(t)), b: d}
}

// P is shorthand for string-keyed pair.
func P(key string, val Value) Pair {
	return Pair{Key: NewString(key), Val: val}
}

// Floats builds array of floats.
func Floats(x []float64) Value {
	a := make([]Value, len(x))
	for i := range x {
		a[i] = NewFloat(x[i])
	}
	return NewArray(a...)
}

func (v Value) Kind() Kind { return v.k }

func (v Value) IsNull() bool { return v.k == Null }

func (v Value) AsBool() (bool, bool) {
	return v.n != 0, v.k == Bool
}

func (v Value) AsInt() (int64, bool) {
	if v.k == Int {
		return int64(v.n), true
	}
	return 0, false
}

func (v Value) AsUint() (uint64, bool) {
	switch v.k {
	case Uint:
		return v.n, true
	case Int:
		if int64(v.n) >= 0 {
			return v.n, true
		}
	}
	return 0, false
}

// AsFloat converts any numeric kind.
func (v Value) AsFloat() (float64, bool) {
	switch v.k {
	case Float:
		return v.f, true
	case Int:
		return float64(int64(v.n)), true
	case Uint:
		return float64(v.n), true
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	return v.s, v.k == String
}

func (v Value) AsBytes() ([]byte, bool) {
	return v.b, v.k == Bytes
}

func (v Value) AsExt() (int8, []byte, bool) {
	return int8(uint8(v.n)), v.b, v.k == Ext
}

// Len returns element count for arrays and maps, byte count for strings and bytes.
func (v Value) Len() int {
	switch v.k {
	case Array:
		return len(v.a)
	case Map:
		return len(v.m)
	case String:
		return len(v.s)
	case Bytes, Ext:
		return len(v.b)
	}
	return 0
}

// Index returns array element or Null.
func (v Value) Index(i int) Value {
	if v.k != Array || i < 0 || i >= len(v.a) {
		return Value{}
	}
	return v.a[i]
}

func (v Value) Elems() []Value {
	if v.k != Array {
		return nil
	}
	return v.a
}

func (v Value) Pairs() []Pair {
	if v.k != Map {
		return nil
	}
	return v.m
}

// Get looks up map entry by textual key.
// Keys stored as byte strings match too.
func (v Value) Get(key string) (Value, bool) {
	if v.k != Map {
		return Value{}, false
	}
	for i := range v.m {
		k := &v.m[i].Key
		if (k.k == String && k.s == key) || (k.k == Bytes && string(k.b) == key) {
			return v.m[i].Val, true
		}
	}
	return Value{}, false
}

// Lookup looks up map entry by arbitrary key.
func (v Value) Lookup(key Value) (Value, bool) {
	if v.k != Map {
		return Value{}, false
	}
	for i := range v.m {
		if Equal(v.m[i].Key, key) {
			return v.m[i].Val, true
		}
	}
	return Value{}, false
}

// Path walks nested maps.
func (v Value) Path(keys ...string) (Value, bool) {
	for _, k := range keys {
		var ok bool
		if v, ok = v.Get(k); !ok {
			return Value{}, false
		}
	}
	return v, true
}

// GetString returns string at key, absent if missing or not a string.
func (v Value) GetString(key string) (string, bool) {
	x, ok := v.Get(key)
	if !ok {
		return "", false
	}
	return x.AsString()
}

// GetFloat returns numeric at key.
func (v Value) GetFloat(key string) (float64, bool) {
	x, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	return x.AsFloat()
}

// AsFloats converts array of numerics.
func (v Value) AsFloats() ([]float64, bool) {
	if v.k != Array {
		return nil, false
	}
	r := make([]float64, len(v.a))
	for i := range v.a {
		f, ok := v.a[i].AsFloat()
		if !ok {
			return nil, false
		}
		r[i] = f
	}
	return r, true
}

// Equal reports structural equality. Floats compare by value except
// that NaN equals NaN, so that decoded trees can be compared.
func Equal(a, b Value) bool {
	if a.k != b.k {
		return false
	}
	switch a.k {
	case Null:
		return true
	case Bool, Int, Uint:
		return a.n == b.n
	case Float:
		return a.f == b.f || (math.IsNaN(a.f) && math.IsNaN(b.f))
	case String:
		return a.s == b.s
	case Bytes:
		return bytes.Equal(a.b, b.b)
	case Ext:
		return a.n == b.n && bytes.Equal(a.b, b.b)
	case Array:
		if len(a.a) != len(b.a) {
			return false
		}
		for i := range a.a {
			if !Equal(a.a[i], b.a[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(a.m) != len(b.m) {
			return false
		}
		// order-insensitive; maps are small enough for quadratic
		used := make([]bool, len(b.m))
	outer:
		for i := range a.m {
			for j := range b.m {
				if !used[j] && Equal(a.m[i].Key, b.m[j].Key) {
					if !Equal(a.m[i].Val, b.m[j].Val) {
						return false
					}
					used[j] = true
					continue outer
				}
			}
			return false
		}
		return true
	}
	return false
}

// Native converts to plain Go values for display and JSON.
// Map keys are rendered as strings, so this is lossy.
func (v Value) Native() interface{} {
	return v.native(false)
}

func (v Value) native(forJSON bool) interface{} {
	switch v.k {
	case Null:
		return nil
	case Bool:
		return v.n != 0
	case Int:
		return int64(v.n)
	case Uint:
		return v.n
	case Float:
		if forJSON && (math.IsNaN(v.f) || math.IsInf(v.f, 0)) {
			return nil
		}
		return v.f
	case String:
		return v.s
	case Bytes:
		return v.b
	case Ext:
		return map[string]interface{}{"ext": int8(uint8(v.n)), "data": v.b}
	case Array:
		r := make([]interface{}, len(v.a))
		for i := range v.a {
			r[i] = v.a[i].native(forJSON)
		}
		return r
	case Map:
		r := make(map[string]interface{}, len(v.m))
		for i := range v.m {
			r[v.m[i].Key.keyString()] = v.m[i].Val.native(forJSON)
		}
		return r
	}
	return nil
}

func (v Value) keyString() string {
	switch v.k {
	case String:
		return v.s
	case Bytes:
		return string(v.b)
	}
	return v.String()
}

// MarshalJSON writes Native form; non-finite floats become null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.native(true))
}

// String renders compact, JSON-like form.
func (v Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v Value) format(sb *strings.Builder) {
	switch v.k {
	case Null:
		sb.WriteString("null")
	case Bool:
		sb.WriteString(strconv.FormatBool(v.n != 0))
	case Int:
		sb.WriteString(strconv.FormatInt(int64(v.n), 10))
	case Uint:
		sb.WriteString(strconv.FormatUint(v.n, 10))
	case Float:
		sb.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case String:
		sb.WriteString(strconv.Quote(v.s))
	case Bytes:
		sb.WriteString("b")
		sb.WriteString(strconv.Quote(string(v.b)))
	case Ext:
		sb.WriteString("ext(")
		sb.WriteString(strconv.Itoa(int(int8(uint8(v.n)))))
		sb.WriteString(", ")
		sb.WriteString(strconv.Itoa(len(v.b)))
		sb.WriteString(" bytes)")
	case Array:
		sb.WriteByte('[')
		for i := range v.a {
			if i != 0 {
				sb.WriteString(", ")
			}
			v.a[i].format(sb)
		}
		sb.WriteByte(']')
	case Map:
		sb.WriteByte('{')
		for i := range v.m {
			if i != 0 {
				sb.WriteString(", ")
			}
			v.m[i].Key.format(sb)
			sb.WriteString(": ")
			v.m[i].Val.format(sb)
		}
		sb.WriteByte('}')
	}
}
