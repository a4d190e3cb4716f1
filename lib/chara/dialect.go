package chara

import (
	"bytes"
	"encoding/binary"

	"cardmeter/lib/cursor"
	"cardmeter/lib/dynval"
	"cardmeter/lib/mpcodec"
	"cardmeter/lib/varint"
)

// Dialect decodes and encodes payload following PNG image.
type Dialect interface {
	Name() string
	Decode(payload []byte, codec mpcodec.Codec) (*Card, error)
	Encode(c *Card) ([]byte, error)
}

const (
	aisMarker   = "【AIS_Chara】"
	customBlock = "Custom"
	maxString   = 1 << 16
)

var koikatuMarkers = []string{
	"【KoiKatuChara】",
	"【KoiKatuCharaS】",
	"【KoiKatuCharaSP】",
	"【KoiKatuCharaSun】",
}

var (
	AIS     Dialect = aisDialect{}
	Koikatu Dialect = koikatuDialect{}
	Plain   Dialect = plainDialect{}
)

// DefaultDialects is order in which dialects are tried.
var DefaultDialects = []Dialect{AIS, Koikatu, Plain}

func DialectByName(name string) Dialect {
	for _, d := range DefaultDialects {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

type aisDialect struct{}

func (aisDialect) Name() string { return "ais" }

func (aisDialect) Decode(payload []byte, codec mpcodec.Codec) (*Card, error) {
	c := &Card{codec: codec}
	r := cursor.New(payload)
	err := readPrologue(r, c)
	if err != nil {
		return nil, err
	}
	if c.Marker != aisMarker {
		return nil, errBadMarker(c.Marker)
	}
	if c.Language, err = r.Int32LE("language"); err != nil {
		return nil, err
	}
	if c.UserID, err = varint.ReadString(r, maxString); err != nil {
		return nil, err
	}
	if c.DataID, err = varint.ReadString(r, maxString); err != nil {
		return nil, err
	}
	if err = readBlocks(r, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (aisDialect) Encode(c *Card) ([]byte, error) {
	var buf bytes.Buffer
	writePrologue(&buf, c)
	binary.Write(&buf, binary.LittleEndian, c.Language)
	varint.WriteBytes(&buf, []byte(c.UserID))
	varint.WriteBytes(&buf, []byte(c.DataID))
	if err := writeBlocks(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type koikatuDialect struct{}

func (koikatuDialect) Name() string { return "koikatu" }

func (koikatuDialect) Decode(payload []byte, codec mpcodec.Codec) (*Card, error) {
	c := &Card{codec: codec}
	r := cursor.New(payload)
	err := readPrologue(r, c)
	if err != nil {
		return nil, err
	}
	if !isKoikatuMarker(c.Marker) {
		return nil, errBadMarker(c.Marker)
	}
	n, err := r.Int32LE("face image length")
	if err != nil {
		return nil, err
	}
	face, err := r.Next("face image", int(n))
	if err != nil {
		return nil, err
	}
	c.FaceImage = append([]byte(nil), face...)
	if err = readBlocks(r, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (koikatuDialect) Encode(c *Card) ([]byte, error) {
	var buf bytes.Buffer
	writePrologue(&buf, c)
	binary.Write(&buf, binary.LittleEndian, int32(len(c.FaceImage)))
	buf.Write(c.FaceImage)
	if err := writeBlocks(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isKoikatuMarker(m string) bool {
	for _, x := range koikatuMarkers {
		if m == x {
			return true
		}
	}
	return false
}

// plain payload is single msgpack map of sections.
type plainDialect struct{}

func (plainDialect) Name() string { return "plain" }

func (plainDialect) Decode(payload []byte, codec mpcodec.Codec) (*Card, error) {
	if len(payload) == 0 {
		return nil, cursor.Truncated("payload", 0, 1, 0)
	}
	v, mode, err := codec.DecodeDetail(payload)
	if mode == mpcodec.Opaque {
		return nil, err
	}
	if v.Kind() != dynval.Map {
		return nil, errCorrupt("payload is %v, not map", v.Kind())
	}
	return &Card{Payload: v, codec: codec}, nil
}

func (plainDialect) Encode(c *Card) ([]byte, error) {
	b, _, err := c.codec.Encode(c.Payload)
	return b, err
}

func readPrologue(r *cursor.Cursor, c *Card) (err error) {
	if c.ProductNo, err = r.Int32LE("product number"); err != nil {
		return
	}
	if c.Marker, err = varint.ReadString(r, maxString); err != nil {
		return
	}
	c.Version, err = varint.ReadString(r, maxString)
	return
}

func writePrologue(buf *bytes.Buffer, c *Card) {
	binary.Write(buf, binary.LittleEndian, c.ProductNo)
	varint.WriteBytes(buf, []byte(c.Marker))
	varint.WriteBytes(buf, []byte(c.Version))
}
