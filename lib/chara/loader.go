package chara

import (
	"fmt"
	"io"
	"os"

	"cardmeter/lib/logx"
	"cardmeter/lib/mpcodec"
	"cardmeter/lib/pngscan"
)

// DefaultMaxFile bounds payload read after image.
const DefaultMaxFile = 256 << 20

// Loader tries dialects in order; first success wins.
type Loader struct {
	Dialects []Dialect
	Codec    mpcodec.Codec
	MaxFile  int64

	log logx.Logger
}

func NewLoader(lx logx.LoggerX) *Loader {
	if lx == nil {
		lx = logx.NopLoggerX{}
	}
	return &Loader{
		Dialects: DefaultDialects,
		log:      logx.NewLogToX(lx, "chara"),
	}
}

func (l *Loader) maxFile() int64 {
	if l.MaxFile > 0 {
		return l.MaxFile
	}
	return DefaultMaxFile
}

// LoadFile streams past PNG image and decodes rest of file.
func (l *Loader) LoadFile(path string) (*Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := pngscan.Skip(f)
	if err != nil {
		return nil, err
	}
	payload, err := io.ReadAll(io.LimitReader(f, l.maxFile()+1))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) > l.maxFile() {
		return nil, fmt.Errorf("%s: payload exceeds %d bytes", path, l.maxFile())
	}
	c, err := l.decodePayload(payload)
	if err != nil {
		return nil, err
	}
	c.Image = img
	return c, nil
}

// Decode decodes whole card held in memory.
func (l *Loader) Decode(b []byte) (*Card, error) {
	n, err := pngscan.Length(b, 0)
	if err != nil {
		return nil, err
	}
	c, err := l.decodePayload(b[n:])
	if err != nil {
		return nil, err
	}
	c.Image = append([]byte(nil), b[:n]...)
	return c, nil
}

func (l *Loader) decodePayload(payload []byte) (*Card, error) {
	dialects := l.Dialects
	if len(dialects) == 0 {
		dialects = DefaultDialects
	}
	var fails []DialectFailure
	for _, d := range dialects {
		c, err := d.Decode(payload, l.Codec)
		if err == nil {
			c.Dialect = d.Name()
			l.log.LogPrintf(logx.DEBUG, "decoded %d byte payload as %s", len(payload), c.Dialect)
			return c, nil
		}
		l.log.LogPrintf(logx.DEBUG, "dialect %s rejected payload: %v", d.Name(), err)
		fails = append(fails, DialectFailure{Dialect: d.Name(), Err: err})
	}
	return nil, &DialectMismatchError{Failures: fails}
}
