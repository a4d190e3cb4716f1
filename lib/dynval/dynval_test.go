package dynval

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func sample() Value {
	return NewMap(
		P("Parameter", NewMap(
			P("fullname", NewString("Aoi Hana")),
			P("birthDay", NewInt(3)),
		)),
		Pair{Key: NewBytes([]byte("body")), Val: NewMap(
			P("shapeValueBody", Floats([]float64{0.5, 1, 0.25})),
		)},
		Pair{Key: NewInt(7), Val: NewBool(true)},
	)
}

func TestGet(t *testing.T) {
	v := sample()

	if s, ok := v.Path("Parameter", "fullname"); !ok || s.String() != `"Aoi Hana"` {
		t.Errorf("Path fullname = %v, %v", s, ok)
	}
	// byte string keys are looked up by text
	f, ok := v.Path("body", "shapeValueBody")
	if !ok {
		t.Fatalf("byte key not found in %v", v)
	}
	fl, ok := f.AsFloats()
	if !ok || len(fl) != 3 || fl[2] != 0.25 {
		t.Errorf("AsFloats = %v, %v", fl, ok)
	}
	if x, ok := v.Lookup(NewInt(7)); !ok || !Equal(x, NewBool(true)) {
		t.Errorf("Lookup(7) = %v, %v", x, ok)
	}
	if _, ok := v.Get("missing"); ok {
		t.Errorf("missing key found")
	}
	if _, ok := NewString("x").Get("x"); ok {
		t.Errorf("Get on non-map succeeded")
	}
	if n, ok := v.Path("Parameter"); !ok || n.Len() != 2 {
		t.Errorf("Parameter len = %d", n.Len())
	}
	if _, ok := v.GetString("Parameter"); ok {
		t.Errorf("GetString on map value succeeded")
	}
	if x, ok := NewMap(P("a", NewInt(2))).GetFloat("a"); !ok || x != 2 {
		t.Errorf("GetFloat = %v, %v", x, ok)
	}
}

func TestAccessors(t *testing.T) {
	if !NewNull().IsNull() || !(Value{}).IsNull() {
		t.Errorf("zero value is not null")
	}
	if x, ok := NewUint(5).AsInt(); !ok || x != 5 {
		t.Errorf("small uint not normalized: %v %v", x, ok)
	}
	if NewUint(math.MaxUint64).Kind() != Uint {
		t.Errorf("large uint normalized")
	}
	if _, ok := NewInt(-1).AsUint(); ok {
		t.Errorf("negative int converted to uint")
	}
	if id, d, ok := NewExt(-3, []byte{1}).AsExt(); !ok || id != -3 || len(d) != 1 {
		t.Errorf("AsExt = %v %v %v", id, d, ok)
	}
	if _, ok := NewArray(NewInt(1), NewString("x")).AsFloats(); ok {
		t.Errorf("AsFloats accepted string element")
	}
	if !NewArray(NewInt(1)).Index(5).IsNull() {
		t.Errorf("out of range Index not null")
	}
}

func TestEqual(t *testing.T) {
	cases := []struct {
		a, b Value
		eq   bool
	}{
		{NewInt(1), NewInt(1), true},
		{NewInt(1), NewFloat(1), false},
		{NewFloat(math.NaN()), NewFloat(math.NaN()), true},
		{NewString("a"), NewBytes([]byte("a")), false},
		{
			NewMap(P("a", NewInt(1)), P("b", NewInt(2))),
			NewMap(P("b", NewInt(2)), P("a", NewInt(1))),
			true,
		},
		{
			NewMap(P("a", NewInt(1)), P("a", NewInt(1))),
			NewMap(P("a", NewInt(1)), P("b", NewInt(1))),
			false,
		},
		{NewArray(NewInt(1), NewInt(2)), NewArray(NewInt(2), NewInt(1)), false},
		{NewExt(1, []byte("x")), NewExt(2, []byte("x")), false},
	}
	for i, c := range cases {
		if Equal(c.a, c.b) != c.eq {
			t.Errorf("case %d: Equal(%v, %v) != %v", i, c.a, c.b, c.eq)
		}
	}
}

func TestJSON(t *testing.T) {
	v := NewMap(
		P("n", NewFloat(math.NaN())),
		P("a", NewArray(NewInt(-2), NewString("ちび"))),
		Pair{Key: NewInt(3), Val: NewNull()},
	)
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]interface{}
	if err = json.Unmarshal(b, &back); err != nil {
		t.Fatalf("bad JSON %s: %v", b, err)
	}
	t.Logf("%s\n%s", b, spew.Sdump(back))
	if back["n"] != nil {
		t.Errorf("NaN not rendered as null")
	}
	if _, ok := back["3"]; !ok {
		t.Errorf("int key not stringified")
	}
}

func TestString(t *testing.T) {
	got := sample().String()
	want := `{"Parameter": {"fullname": "Aoi Hana", "birthDay": 3}, ` +
		`b"body": {"shapeValueBody": [0.5, 1, 0.25]}, 7: true}`
	if got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
}
