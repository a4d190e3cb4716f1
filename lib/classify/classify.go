package classify

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"cardmeter/lib/dynval"
)

// Bucket is height category; heights below Below fall into it.
// Below of 0 means unbounded.
type Bucket struct {
	Name  string  `toml:"name"`
	Below float64 `toml:"below"`
}

// Range maps numeric parameter to one of three labels:
// value < Low is Small, value <= High is Mid, else Large.
type Range struct {
	Low   float64 `toml:"low"`
	High  float64 `toml:"high"`
	Small string  `toml:"small"`
	Mid   string  `toml:"mid"`
	Large string  `toml:"large"`
}

func (r Range) Label(x float64) string {
	switch {
	case x < r.Low:
		return r.Small
	case x <= r.High:
		return r.Mid
	default:
		return r.Large
	}
}

type Config struct {
	Height    []Bucket           `toml:"height"`
	Aesthetic map[string]Range   `toml:"aesthetic"`
	TagOrder  []string           `toml:"tag_order"`
	Defaults  map[string]float64 `toml:"defaults"`
}

const HeightParam = "bodyHeight"

var DefaultConfig = Config{
	Height: []Bucket{
		{Name: "petite", Below: 150},
		{Name: "average", Below: 170},
		{Name: "tall"},
	},
	Aesthetic: map[string]Range{
		HeightParam:    {Low: 0.92, High: 1.08, Small: "petite", Mid: "average", Large: "tall"},
		"bustSize":     {Low: 0.65, High: 0.80, Small: "small", Mid: "medium", Large: "full"},
		"waistSize":    {Low: 0.50, High: 0.60, Small: "slim", Mid: "standard", Large: "thick"},
		"hipSize":      {Low: 0.70, High: 0.85, Small: "narrow", Mid: "balanced", Large: "curvy"},
		"bustSoftness": {Low: 0.30, High: 0.70, Small: "firm", Mid: "natural", Large: "soft"},
		"muscle":       {Low: 0.20, High: 0.50, Small: "slender", Mid: "healthy", Large: "athletic"},
	},
	TagOrder: []string{HeightParam, "bustSize", "hipSize", "muscle", "bustSoftness"},
	Defaults: map[string]float64{
		"bustSize":     0.75,
		"waistSize":    0.55,
		"hipSize":      0.80,
		"bustSoftness": 0.50,
		"muscle":       0.35,
	},
}

// Clone deep copies c, so decoding config on top of it
// doesn't touch maps of DefaultConfig.
func (c Config) Clone() Config {
	r := c
	r.Height = append([]Bucket(nil), c.Height...)
	r.TagOrder = append([]string(nil), c.TagOrder...)
	r.Aesthetic = make(map[string]Range, len(c.Aesthetic))
	for k, v := range c.Aesthetic {
		r.Aesthetic[k] = v
	}
	r.Defaults = make(map[string]float64, len(c.Defaults))
	for k, v := range c.Defaults {
		r.Defaults[k] = v
	}
	return r
}

func (c *Config) Validate() error {
	if len(c.Height) == 0 {
		return errors.New("no height buckets")
	}
	for i, b := range c.Height {
		if b.Name == "" || strings.ContainsAny(b.Name, `/\`) || b.Name == "." || b.Name == ".." {
			return fmt.Errorf("height bucket %d has bad name %q", i, b.Name)
		}
		last := i == len(c.Height)-1
		if !last && b.Below <= 0 {
			return fmt.Errorf("height bucket %q is unbounded but not last", b.Name)
		}
		if i > 0 && !last && b.Below <= c.Height[i-1].Below {
			return fmt.Errorf("height bucket %q isn't above %q", b.Name, c.Height[i-1].Name)
		}
	}
	for n, r := range c.Aesthetic {
		if r.Low > r.High {
			return fmt.Errorf("aesthetic %q: low %v above high %v", n, r.Low, r.High)
		}
	}
	for _, n := range c.TagOrder {
		if _, ok := c.Aesthetic[n]; !ok && n != HeightParam {
			return fmt.Errorf("tag_order names unknown parameter %q", n)
		}
	}
	return nil
}

// HeightBucket returns first bucket whose bound exceeds cm.
func (c *Config) HeightBucket(cm float64) string {
	for _, b := range c.Height {
		if b.Below <= 0 || cm < b.Below {
			return b.Name
		}
	}
	// NaN, or config without unbounded tail
	return c.Height[len(c.Height)-1].Name
}

// Params collects aesthetic parameter values from card sections.
// Lookup order: param[name], maps nested one level inside param, body[name].
// If nothing at all is found, configured defaults are used.
func (c *Config) Params(param, body dynval.Value) (map[string]float64, bool) {
	r := make(map[string]float64)
	for name := range c.Aesthetic {
		if name == HeightParam {
			continue
		}
		if x, ok := number(param, name); ok {
			r[name] = x
			continue
		}
		found := false
		for _, p := range param.Pairs() {
			if p.Val.Kind() != dynval.Map {
				continue
			}
			if x, ok := number(p.Val, name); ok {
				r[name] = x
				found = true
				break
			}
		}
		if found {
			continue
		}
		if x, ok := number(body, name); ok {
			r[name] = x
		}
	}
	if len(r) != 0 {
		return r, true
	}
	for k, v := range c.Defaults {
		r[k] = v
	}
	return r, false
}

func number(v dynval.Value, key string) (float64, bool) {
	x, ok := v.GetFloat(key)
	if !ok || math.IsNaN(x) {
		return 0, false
	}
	return x, true
}

// Result of classification.
type Result struct {
	HeightCategory string
	Labels         map[string]string
	Tag            string
	Defaulted      bool // no parameters found, defaults used
}

// Classify labels card by predicted height and aesthetic parameters.
// bodyHeight always reflects predicted height.
func (c *Config) Classify(cm float64, param, body dynval.Value) Result {
	var res Result
	res.HeightCategory = c.HeightBucket(cm)
	res.Labels = map[string]string{HeightParam: res.HeightCategory}

	params, found := c.Params(param, body)
	res.Defaulted = !found
	for n, x := range params {
		if r, ok := c.Aesthetic[n]; ok && n != HeightParam {
			res.Labels[n] = r.Label(x)
		}
	}

	parts := make([]string, 0, len(c.TagOrder))
	for _, n := range c.TagOrder {
		if l, ok := res.Labels[n]; ok {
			parts = append(parts, l)
		}
	}
	res.Tag = strings.Join(parts, "_")
	return res
}
