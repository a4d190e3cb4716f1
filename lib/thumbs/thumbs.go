package thumbs

// JPEG previews of card images.

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"
	"strconv"

	"github.com/disintegration/imaging"

	"cardmeter/lib/fstore"
	. "cardmeter/lib/logx"
)

type Config struct {
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	MaxPixels  int    `toml:"max_pixels"`
	Quality    int    `toml:"quality"`
	Background string `toml:"background"` // "#rgb" or "#rrggbb", alpha is flattened onto it
}

var DefaultConfig = Config{
	Width:      256,
	Height:     256,
	MaxPixels:  8192 * 8192,
	Quality:    80,
	Background: "#fff",
}

var (
	errColorFormat = errors.New("unknown color format")
	errTooLarge    = errors.New("image too large for thumbnailing")
)

func decodeColor(c string) (color.NRGBA, error) {
	if (len(c) != 4 && len(c) != 7) || c[0] != '#' {
		return color.NRGBA{}, errColorFormat
	}

	i, err := strconv.ParseUint(c[1:], 16, 32)
	if err != nil {
		return color.NRGBA{}, errColorFormat
	}

	if len(c) == 7 {
		return color.NRGBA{
			R: uint8(i >> 16),
			G: uint8(i >> 8),
			B: uint8(i),
			A: 0xFF,
		}, nil
	}
	convol := func(x uint8) uint8 { return 0x11 * (0x0F & x) }
	return color.NRGBA{
		R: convol(uint8(i >> 8)),
		G: convol(uint8(i >> 4)),
		B: convol(uint8(i)),
		A: 0xFF,
	}, nil
}

type Thumbnailer struct {
	cfg Config
	bg  color.NRGBA
	fs  *fstore.FStore
	log Logger
}

// New makes thumbnailer using fs for temporary files.
func New(cfg Config, fs *fstore.FStore, lx LoggerX) (*Thumbnailer, error) {
	bg, err := decodeColor(cfg.Background)
	if err != nil {
		return nil, fmt.Errorf("thumbnail background %q: %w", cfg.Background, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("bad thumbnail size %dx%d", cfg.Width, cfg.Height)
	}
	return &Thumbnailer{cfg: cfg, bg: bg, fs: fs, log: NewLogToX(lx, "thumbs")}, nil
}

// Make writes JPEG preview of PNG image img to dst.
// Returns thumbnail dimensions.
func (t *Thumbnailer) Make(img []byte, dst string) (w, h int, err error) {
	imgcfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return
	}
	if format != "png" {
		err = fmt.Errorf("unexpected image format %q", format)
		return
	}
	if t.cfg.MaxPixels > 0 && imgcfg.Width*imgcfg.Height > t.cfg.MaxPixels {
		t.log.LogPrintf(DEBUG, "not decoding %dx%d image", imgcfg.Width, imgcfg.Height)
		err = errTooLarge
		return
	}

	oimg, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return
	}

	timg := imaging.Fit(oimg, t.cfg.Width, t.cfg.Height, imaging.Lanczos)
	tsz := timg.Bounds().Size()

	// jpeg has no alpha
	bimg := imaging.New(tsz.X, tsz.Y, t.bg)
	timg = imaging.Overlay(bimg, timg, image.Pt(0, 0), 1.0)

	tf, err := t.fs.TempFile("t-", ".jpg")
	if err != nil {
		return
	}
	tfn := tf.Name()
	defer func() {
		if err != nil {
			tf.Close()
			os.Remove(tfn)
		}
	}()

	err = jpeg.Encode(tf, timg, &jpeg.Options{Quality: t.cfg.Quality})
	if err != nil {
		return
	}
	err = tf.Close()
	if err != nil {
		return
	}
	err = os.Rename(tfn, dst)
	if err != nil {
		return
	}

	t.log.LogPrintf(DEBUG, "thumbnail %s: %dx%d -> %dx%d",
		dst, imgcfg.Width, imgcfg.Height, tsz.X, tsz.Y)
	return tsz.X, tsz.Y, nil
}
