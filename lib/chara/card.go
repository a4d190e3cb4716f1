package chara

import (
	"strings"

	"cardmeter/lib/dynval"
	"cardmeter/lib/mpcodec"
)

// Block is one named section of block-structured card.
// Raw is what's stored in file; Value is its decoded form.
type Block struct {
	Name    string
	Version string
	Raw     []byte
	Value   dynval.Value
	Mode    mpcodec.Mode
}

// Card is decoded character card.
// Which header fields are meaningful depends on Dialect.
type Card struct {
	Dialect string
	Image   []byte // PNG container, verbatim

	ProductNo int32
	Marker    string
	Version   string

	FaceImage []byte // koikatu

	Language int32 // ais
	UserID   string
	DataID   string

	Blocks  []Block
	Trailer []byte // after block data, kept for re-encoding

	Payload dynval.Value // plain
	codec   mpcodec.Codec
}

// Block returns pointer to named block or nil.
func (c *Card) Block(name string) *Block {
	for i := range c.Blocks {
		if c.Blocks[i].Name == name {
			return &c.Blocks[i]
		}
	}
	return nil
}

// Section returns decoded value of named block.
// For plain cards sections are top-level payload keys.
func (c *Card) Section(name string) (dynval.Value, bool) {
	if c.Dialect == Plain.Name() {
		return c.Payload.Get(name)
	}
	if b := c.Block(name); b != nil {
		return b.Value, true
	}
	return dynval.Value{}, false
}

// SectionNames lists sections in stored order.
func (c *Card) SectionNames() []string {
	if c.Dialect == Plain.Name() {
		var r []string
		for _, p := range c.Payload.Pairs() {
			if s, ok := p.Key.AsString(); ok {
				r = append(r, s)
			}
		}
		return r
	}
	r := make([]string, len(c.Blocks))
	for i := range c.Blocks {
		r[i] = c.Blocks[i].Name
	}
	return r
}

// Tree renders whole card content as one map, for dumping.
func (c *Card) Tree() dynval.Value {
	if c.Dialect == Plain.Name() {
		return c.Payload
	}
	m := make([]dynval.Pair, len(c.Blocks))
	for i := range c.Blocks {
		m[i] = dynval.P(c.Blocks[i].Name, c.Blocks[i].Value)
	}
	return dynval.NewMap(m...)
}

func (c *Card) Parameter() (dynval.Value, bool) {
	return c.Section("Parameter")
}

// Body is Custom.body for block cards, top-level body otherwise.
func (c *Card) Body() (dynval.Value, bool) {
	if cu, ok := c.Section("Custom"); ok {
		if b, ok := cu.Get("body"); ok {
			return b, true
		}
	}
	return c.Section("body")
}

// ShapeVector returns body shape values. Length is whatever card stores.
func (c *Card) ShapeVector() ([]float64, error) {
	b, ok := c.Body()
	if !ok {
		return nil, ErrNoShape
	}
	sv, ok := b.Get("shapeValueBody")
	if !ok {
		return nil, ErrNoShape
	}
	r, ok := sv.AsFloats()
	if !ok {
		return nil, errCorrupt("shapeValueBody is %v, not numeric array", sv.Kind())
	}
	return r, nil
}

// Name looks up fullname, then "lastname firstname".
func (c *Card) Name() (string, bool) {
	p, ok := c.Parameter()
	if !ok {
		return "", false
	}
	if s, _ := p.GetString("fullname"); strings.TrimSpace(s) != "" {
		return s, true
	}
	last, _ := p.GetString("lastname")
	first, _ := p.GetString("firstname")
	if s := strings.TrimSpace(last + " " + first); s != "" {
		return s, true
	}
	return "", false
}

// SetSection replaces named section with v.
func (c *Card) SetSection(name string, v dynval.Value) error {
	if c.Dialect == Plain.Name() {
		pairs := append([]dynval.Pair(nil), c.Payload.Pairs()...)
		for i := range pairs {
			if k, ok := pairs[i].Key.AsString(); ok && k == name {
				pairs[i].Val = v
				c.Payload = dynval.NewMap(pairs...)
				return nil
			}
		}
		c.Payload = dynval.NewMap(append(pairs, dynval.P(name, v))...)
		return nil
	}

	b := c.Block(name)
	if b == nil {
		return fmtNoSection(name)
	}
	var raw []byte
	var err error
	if name == customBlock {
		raw, err = encodeCustom(c.codec, v)
	} else {
		raw, _, err = c.codec.Encode(v)
	}
	if err != nil {
		return err
	}
	b.Raw, b.Value, b.Mode = raw, v, mpcodec.Strict
	return nil
}

// Encode writes card back in its dialect.
func (c *Card) Encode() ([]byte, error) {
	d := DialectByName(c.Dialect)
	if d == nil {
		return nil, errCorrupt("unknown dialect %q", c.Dialect)
	}
	p, err := d.Encode(c)
	if err != nil {
		return nil, err
	}
	r := make([]byte, 0, len(c.Image)+len(p))
	r = append(r, c.Image...)
	return append(r, p...), nil
}
