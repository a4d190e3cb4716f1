package cardcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"cardmeter/lib/classify"
	"cardmeter/lib/logx"
)

func TestDefaults(t *testing.T) {
	c, err := Parse("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Log.Level != logx.INFO || c.Reorg.OutDir != "categorized" ||
		c.Reorg.BatchSize != 20 || c.Analyzer.Pattern != "*.png" {
		t.Errorf("unexpected defaults:\n%s", spew.Sdump(c))
	}
	if len(c.Classify.Height) != 3 || c.Classify.Defaults["muscle"] != 0.35 {
		t.Errorf("classify defaults lost:\n%s", spew.Sdump(c.Classify))
	}
}

func TestOverrides(t *testing.T) {
	c, err := Parse(`
model_path = "/models/h.json"

[log]
level = "debug"
color = "off"

[codec]
dialects = ["plain", "ais"]
max_depth = 32

[analyzer]
workers = 3

[reorg]
copy = true
checksum = "blake3"

[reorg.thumbs]
width = 64

[classify.defaults]
muscle = 0.9

[classify.aesthetic.muscle]
low = 0.1
high = 0.2
small = "s"
mid = "m"
large = "l"
`)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("%s", spew.Sdump(c))
	if c.ModelPath != "/models/h.json" || c.Log.Level != logx.DEBUG || c.Log.Color != "off" {
		t.Errorf("top level not applied")
	}
	if c.Codec.MaxDepth != 32 || c.Codec.MaxPayload == 0 {
		t.Errorf("codec = %+v", c.Codec)
	}
	if !c.Reorg.Copy || c.Reorg.Checksum != "blake3" || c.Reorg.BatchSize != 20 {
		t.Errorf("reorg = %+v", c.Reorg)
	}
	if c.Reorg.Thumbs.Width != 64 || c.Reorg.Thumbs.Height != 256 {
		t.Errorf("thumbs = %+v", c.Reorg.Thumbs)
	}
	if c.Classify.Defaults["muscle"] != 0.9 || c.Classify.Defaults["hipSize"] != 0.8 {
		t.Errorf("defaults = %v", c.Classify.Defaults)
	}
	if c.Classify.Aesthetic["muscle"].Mid != "m" || c.Classify.Aesthetic["hipSize"].Mid != "balanced" {
		t.Errorf("aesthetic = %v", c.Classify.Aesthetic)
	}
	// overriding must not leak into package defaults
	if classify.DefaultConfig.Defaults["muscle"] != 0.35 ||
		classify.DefaultConfig.Aesthetic["muscle"].Mid != "healthy" {
		t.Errorf("DefaultConfig modified")
	}

	l := c.Loader(nil)
	if len(l.Dialects) != 2 || l.Dialects[0].Name() != "plain" || l.Codec.MaxDepth != 32 {
		t.Errorf("loader = %s", spew.Sdump(l))
	}
}

func TestErrors(t *testing.T) {
	cases := []struct {
		in  string
		err string
	}{
		{`bogus = 1`, "unknown config keys: bogus"},
		{"[reorg]\ncopy = true\nsome = 1", "reorg.some"},
		{"[log]\nlevel = \"loud\"", "unknown log level"},
		{"[log]\ncolor = \"rainbow\"", "unknown color mode"},
		{"[codec]\ndialects = [\"sims\"]", "unknown card dialect"},
		{"[codec]\ndialects = []", "no card dialects"},
		{"[codec]\nmax_file = -1", "must not be negative"},
		{"[reorg]\nout_dir = \"\"", "empty reorg out_dir"},
		{"model_path = ", ""},
	}
	for _, c := range cases {
		_, err := Parse(c.in)
		if err == nil {
			t.Errorf("%q: no error", c.in)
			continue
		}
		if !strings.Contains(err.Error(), c.err) {
			t.Errorf("%q: error %q doesn't mention %q", c.in, err, c.err)
		}
	}
}

func TestLoad(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "cardmeter.toml")
	if err := os.WriteFile(fn, []byte("[analyzer]\nworkers = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(fn)
	if err != nil {
		t.Fatal(err)
	}
	if c.Analyzer.Workers != 1 {
		t.Errorf("workers = %d", c.Analyzer.Workers)
	}
	if _, err = Load(fn + ".missing"); err == nil {
		t.Errorf("missing file loaded")
	}
}
