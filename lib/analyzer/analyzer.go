package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"cardmeter/lib/chara"
	"cardmeter/lib/classify"
	"cardmeter/lib/heightmodel"
	. "cardmeter/lib/logx"
)

type Config struct {
	Workers     int    `toml:"workers"`
	Pattern     string `toml:"pattern"` // matched against lowercased file names
	UnknownName string `toml:"unknown_name"`
}

var DefaultConfig = Config{
	Pattern:     "*.png",
	UnknownName: "unknown",
}

// Result is analysis report of one card file.
type Result struct {
	FilePath       string            `json:"file_path"`
	FileName       string            `json:"file_name"`
	Success        bool              `json:"success"`
	HeightCM       *float64          `json:"height_cm"`
	HeightCategory *string           `json:"height_category"`
	CharacterName  string            `json:"character_name,omitempty"`
	Dialect        string            `json:"dialect,omitempty"`
	Aesthetic      map[string]string `json:"aesthetic_classifications,omitempty"`
	CombinedTag    string            `json:"combined_tag,omitempty"`
	Defaulted      bool              `json:"aesthetic_defaults,omitempty"`
	CurrentPath    string            `json:"current_path,omitempty"`
	Error          *string           `json:"error"`
}

func (r *Result) fail(err error) {
	s := err.Error()
	r.Error = &s
}

type Analyzer struct {
	cfg    Config
	loader *chara.Loader
	model  heightmodel.Predictor
	cls    classify.Config
	match  glob.Glob
	log    Logger
}

var errNoModel = errors.New("no height model loaded")

// New makes analyzer. model may be nil if only training data is extracted.
func New(cfg Config, loader *chara.Loader, model heightmodel.Predictor,
	cls classify.Config, lx LoggerX) (*Analyzer, error) {

	if lx == nil {
		lx = NopLoggerX{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultConfig.Pattern
	}
	g, err := glob.Compile(strings.ToLower(cfg.Pattern))
	if err != nil {
		return nil, fmt.Errorf("bad file pattern %q: %w", cfg.Pattern, err)
	}
	if err = cls.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		loader = chara.NewLoader(lx)
	}
	return &Analyzer{
		cfg:    cfg,
		loader: loader,
		model:  model,
		cls:    cls,
		match:  g,
		log:    NewLogToX(lx, "analyzer"),
	}, nil
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// AnalyzeFile never fails; errors end up in result.
func (a *Analyzer) AnalyzeFile(path string) Result {
	r := Result{
		FilePath: path,
		FileName: filepath.Base(path),
	}
	if a.model == nil {
		r.fail(errNoModel)
		return r
	}

	card, err := a.loader.LoadFile(path)
	if err != nil {
		r.fail(err)
		return r
	}
	r.Dialect = card.Dialect
	r.CharacterName = a.cfg.UnknownName
	if name, ok := card.Name(); ok {
		r.CharacterName = name
	}

	sv, err := card.ShapeVector()
	if err != nil {
		r.fail(err)
		return r
	}
	cm, err := a.model.Predict(sv)
	if err != nil {
		r.fail(err)
		return r
	}
	if !finite(cm) {
		r.fail(fmt.Errorf("model predicted %v", cm))
		return r
	}

	param, _ := card.Parameter()
	body, _ := card.Body()
	cls := a.cls.Classify(cm, param, body)

	h := round1(cm)
	r.HeightCM = &h
	r.HeightCategory = &cls.HeightCategory
	r.Aesthetic = cls.Labels
	r.CombinedTag = cls.Tag
	r.Defaulted = cls.Defaulted
	r.Success = true
	return r
}

// ListDir returns paths of matching regular files in dir, sorted by name.
func (a *Analyzer) ListDir(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var r []string
	for _, e := range ents {
		if !e.Type().IsRegular() || !a.match.Match(strings.ToLower(e.Name())) {
			continue
		}
		r = append(r, filepath.Join(dir, e.Name()))
	}
	return r, nil
}

// forEach runs fn over 0..n-1 on worker goroutines.
// Each index is handled by exactly one worker.
func forEach(ctx context.Context, n, workers int, fn func(i int)) error {
	if workers > n {
		workers = n
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	var err error
feed:
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return err
}

// AnalyzeDir analyses every matching file of dir. Results come in
// directory order; on cancellation only analysed files are returned.
func (a *Analyzer) AnalyzeDir(ctx context.Context, dir string) ([]Result, error) {
	files, err := a.ListDir(dir)
	if err != nil {
		return nil, err
	}
	a.log.LogPrintf(INFO, "analysing %d files in %s", len(files), dir)

	res := make([]Result, len(files))
	done := make([]bool, len(files))
	err = forEach(ctx, len(files), a.cfg.Workers, func(i int) {
		res[i] = a.AnalyzeFile(files[i])
		done[i] = true
		if res[i].Success {
			a.log.LogPrintf(DEBUG, "%s: %.1f cm, %s", res[i].FileName,
				*res[i].HeightCM, res[i].CombinedTag)
		} else {
			a.log.LogPrintf(WARN, "%s: %s", res[i].FileName, *res[i].Error)
		}
	})
	if err != nil {
		var part []Result
		for i := range res {
			if done[i] {
				part = append(part, res[i])
			}
		}
		return part, err
	}
	return res, nil
}
