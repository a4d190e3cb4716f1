package cardcfg

// TOML configuration of cardmeter.
// Missing keys keep values of DefaultConfig; unknown keys are errors.

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"cardmeter/lib/analyzer"
	"cardmeter/lib/chara"
	"cardmeter/lib/classify"
	"cardmeter/lib/filelogger"
	"cardmeter/lib/logx"
	"cardmeter/lib/mpcodec"
	"cardmeter/lib/reorg"
)

type LogConfig struct {
	Level logx.Level `toml:"level"`
	File  string     `toml:"file"` // empty means stderr
	Color string     `toml:"color"`
}

type CodecConfig struct {
	MaxPayload int      `toml:"max_payload"`
	MaxDepth   int      `toml:"max_depth"`
	MaxFile    int64    `toml:"max_file"`
	Dialects   []string `toml:"dialects"` // tried in this order
}

type Config struct {
	ModelPath string          `toml:"model_path"`
	Log       LogConfig       `toml:"log"`
	Codec     CodecConfig     `toml:"codec"`
	Analyzer  analyzer.Config `toml:"analyzer"`
	Classify  classify.Config `toml:"classify"`
	Reorg     reorg.Config    `toml:"reorg"`
}

var DefaultConfig = Config{
	ModelPath: "height_model.json",
	Log: LogConfig{
		Level: logx.INFO,
		Color: "auto",
	},
	Codec: CodecConfig{
		MaxPayload: mpcodec.DefaultMaxPayload,
		MaxDepth:   mpcodec.DefaultMaxDepth,
		MaxFile:    chara.DefaultMaxFile,
		Dialects:   []string{"ais", "koikatu", "plain"},
	},
	Analyzer: analyzer.DefaultConfig,
	Classify: classify.DefaultConfig,
	Reorg:    reorg.DefaultConfig,
}

// Default returns copy of DefaultConfig safe to modify.
func Default() Config {
	c := DefaultConfig
	c.Codec.Dialects = append([]string(nil), c.Codec.Dialects...)
	c.Classify = c.Classify.Clone()
	return c
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(string(b))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(s string) (Config, error) {
	c := Default()
	md, err := toml.Decode(s, &c)
	if err != nil {
		return Config{}, err
	}
	if und := md.Undecoded(); len(und) != 0 {
		keys := make([]string, len(und))
		for i := range und {
			keys[i] = und[i].String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err = c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Log.Level < 0 || c.Log.Level >= logx.LevelCount {
		return fmt.Errorf("bad log level %v", c.Log.Level)
	}
	if _, err := filelogger.ParseColorMode(c.Log.Color); err != nil {
		return err
	}
	if c.Codec.MaxPayload < 0 || c.Codec.MaxDepth < 0 || c.Codec.MaxFile < 0 {
		return errors.New("codec limits must not be negative")
	}
	if len(c.Codec.Dialects) == 0 {
		return errors.New("no card dialects enabled")
	}
	for _, d := range c.Codec.Dialects {
		if chara.DialectByName(d) == nil {
			return fmt.Errorf("unknown card dialect %q", d)
		}
	}
	if c.Analyzer.Workers < 0 || c.Reorg.Workers < 0 {
		return errors.New("worker count must not be negative")
	}
	if c.Reorg.OutDir == "" {
		return errors.New("empty reorg out_dir")
	}
	return c.Classify.Validate()
}

// Loader makes card loader with configured limits and dialects.
func (c *Config) Loader(lx logx.LoggerX) *chara.Loader {
	l := chara.NewLoader(lx)
	l.Codec = mpcodec.Codec{MaxPayload: c.Codec.MaxPayload, MaxDepth: c.Codec.MaxDepth}
	l.MaxFile = c.Codec.MaxFile
	l.Dialects = make([]chara.Dialect, len(c.Codec.Dialects))
	for i, d := range c.Codec.Dialects {
		l.Dialects[i] = chara.DialectByName(d)
	}
	return l
}
