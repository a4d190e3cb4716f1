package chara

import (
	"bytes"
	"encoding/binary"
	"math"

	"cardmeter/lib/cursor"
	"cardmeter/lib/dynval"
	"cardmeter/lib/mpcodec"
)

var customParts = [...]string{"face", "body", "hair"}

// readBlocks reads block header, block data and whatever follows.
func readBlocks(r *cursor.Cursor, c *Card) error {
	hn, err := r.Int32LE("block header length")
	if err != nil {
		return err
	}
	hb, err := r.Next("block header", int(hn))
	if err != nil {
		return err
	}
	hdr, err := c.codec.DecodeStrict(hb)
	if err != nil {
		return errCorrupt("block header: %v", err)
	}
	infos, ok := hdr.Get("lstInfo")
	if !ok || infos.Kind() != dynval.Array {
		return errCorrupt("block header has no lstInfo")
	}

	dn, err := r.Int64LE("block data length")
	if err != nil {
		return err
	}
	limit := c.codec.MaxPayload
	if limit <= 0 {
		limit = mpcodec.DefaultMaxPayload
	}
	if dn > int64(limit) {
		return errTooLarge("block data", dn, limit)
	}
	data, err := r.Next("block data", int(dn))
	if err != nil {
		return err
	}

	c.Blocks = make([]Block, 0, infos.Len())
	for i, info := range infos.Elems() {
		name, ok1 := info.GetString("name")
		pos, ok2 := getInt(info, "pos")
		size, ok3 := getInt(info, "size")
		if !ok1 || !ok2 || !ok3 {
			return errCorrupt("block info %d is incomplete: %v", i, info)
		}
		b := Block{Name: name}
		b.Version, _ = info.GetString("version")
		if pos < 0 || size < 0 || pos > int64(len(data)) || size > int64(len(data))-pos {
			return errCorrupt("block %q [%d+%d] outside of %d bytes of data",
				b.Name, pos, size, len(data))
		}
		b.Raw = append([]byte(nil), data[pos:pos+size]...)
		if b.Name == customBlock {
			b.Value, b.Mode = decodeCustom(c.codec, b.Raw)
		} else {
			b.Value, b.Mode, _ = c.codec.DecodeDetail(b.Raw)
		}
		c.Blocks = append(c.Blocks, b)
	}
	if r.Len() != 0 {
		c.Trailer = append([]byte(nil), r.Rest()...)
	}
	return nil
}

func getInt(v dynval.Value, key string) (int64, bool) {
	x, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	if n, ok := x.AsInt(); ok {
		return n, true
	}
	// tolerate writers which emit integral floats
	f, ok := x.AsFloat()
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// writeBlocks lays blocks out back to back in stored order.
func writeBlocks(buf *bytes.Buffer, c *Card) error {
	infos := make([]dynval.Value, len(c.Blocks))
	var pos int64
	for i := range c.Blocks {
		b := &c.Blocks[i]
		infos[i] = dynval.NewMap(
			dynval.P("name", dynval.NewString(b.Name)),
			dynval.P("version", dynval.NewString(b.Version)),
			dynval.P("pos", dynval.NewInt(pos)),
			dynval.P("size", dynval.NewInt(int64(len(b.Raw)))),
		)
		pos += int64(len(b.Raw))
	}
	hdr, _, err := c.codec.Encode(dynval.NewMap(dynval.P("lstInfo", dynval.NewArray(infos...))))
	if err != nil {
		return err
	}
	binary.Write(buf, binary.LittleEndian, int32(len(hdr)))
	buf.Write(hdr)
	binary.Write(buf, binary.LittleEndian, pos)
	for i := range c.Blocks {
		buf.Write(c.Blocks[i].Raw)
	}
	buf.Write(c.Trailer)
	return nil
}

// decodeCustom splits Custom block into face, body and hair parts,
// each stored as i32 length + msgpack. Unsplittable blocks stay opaque.
func decodeCustom(codec mpcodec.Codec, raw []byte) (dynval.Value, mpcodec.Mode) {
	r := cursor.New(raw)
	m := make([]dynval.Pair, 0, len(customParts))
	worst := mpcodec.Strict
	for _, name := range customParts {
		n, err := r.Int32LE(name)
		if err != nil {
			return dynval.NewBytes(raw), mpcodec.Opaque
		}
		b, err := r.Next(name, int(n))
		if err != nil {
			return dynval.NewBytes(raw), mpcodec.Opaque
		}
		v, mode, _ := codec.DecodeDetail(b)
		if mode > worst {
			worst = mode
		}
		m = append(m, dynval.P(name, v))
	}
	return dynval.NewMap(m...), worst
}

func encodeCustom(codec mpcodec.Codec, v dynval.Value) ([]byte, error) {
	var buf bytes.Buffer
	for _, name := range customParts {
		part, ok := v.Get(name)
		if !ok {
			return nil, errCorrupt("custom section has no %s part", name)
		}
		b, _, err := codec.Encode(part)
		if err != nil {
			return nil, err
		}
		binary.Write(&buf, binary.LittleEndian, int32(len(b)))
		buf.Write(b)
	}
	return buf.Bytes(), nil
}
