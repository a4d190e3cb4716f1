package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/davecgh/go-spew/spew"

	"cardmeter/lib/analyzer"
	"cardmeter/lib/cardcfg"
	fl "cardmeter/lib/filelogger"
	"cardmeter/lib/heightmodel"
	"cardmeter/lib/logx"
	"cardmeter/lib/reorg"
)

const usage = `usage: %s [global flags] <command> [flags] <args>

commands:
  analyze [-out dir] [-copy] [-nocategorize] [-results file] <dir>
  restore <outdir>
  dump [-json] <card>
  extract [-o file] <dir>

global flags:
`

type app struct {
	cfg cardcfg.Config
	lgr *fl.FileLogger
	mlg logx.Logger
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	cfgfile := flag.String("config", "", "TOML config file")
	loglevel := flag.String("loglevel", "", "override log level (debug..critical)")
	color := flag.String("color", "", "override log color mode (auto, on, off)")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := cardcfg.Default()
	if *cfgfile != "" {
		var err error
		if cfg, err = cardcfg.Load(*cfgfile); err != nil {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			os.Exit(1)
		}
	}
	if *loglevel != "" {
		lvl, err := logx.ParseLevel(*loglevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		cfg.Log.Level = lvl
	}
	if *color != "" {
		cfg.Log.Color = *color
	}

	a := &app{cfg: cfg}
	if err := a.openLog(); err != nil {
		fmt.Fprintf(os.Stderr, "can't open log: %v\n", err)
		os.Exit(1)
	}

	// first signal cancels work in progress, second kills
	ctx, cancel := context.WithCancel(context.Background())
	killc := make(chan os.Signal, 2)
	signal.Notify(killc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-killc
		signal.Reset(os.Interrupt, syscall.SIGTERM)
		a.mlg.LogPrint(logx.WARN, "interrupted, finishing current files")
		cancel()
	}()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "analyze":
		err = a.analyze(ctx, args)
	case "restore":
		err = a.restore(args)
	case "dump":
		err = a.dump(args)
	case "extract":
		err = a.extract(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	cancel()

	code := 0
	if err != nil {
		a.mlg.LogPrintf(logx.CRITICAL, "%s: %v", cmd, err)
		code = 1
	}
	a.lgr.Shutdown()
	os.Exit(code)
}

func (a *app) openLog() (err error) {
	if a.cfg.Log.File != "" {
		a.lgr, err = fl.OpenFileLogger(a.cfg.Log.File, a.cfg.Log.Level)
		if err != nil {
			return
		}
	} else {
		cm, err := fl.ParseColorMode(a.cfg.Log.Color)
		if err != nil {
			return err
		}
		a.lgr = fl.NewFileLogger(os.Stderr, a.cfg.Log.Level, cm)
	}
	a.mlg = logx.NewLogToX(a.lgr, "main")
	return nil
}

func (a *app) newAnalyzer(withModel bool) (*analyzer.Analyzer, error) {
	var model heightmodel.Predictor
	if withModel {
		e, err := heightmodel.LoadXGBoost(a.cfg.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("loading height model: %w", err)
		}
		a.mlg.LogPrintf(logx.INFO, "loaded model %s: %d trees, %d features",
			a.cfg.ModelPath, e.NumTrees(), e.Arity())
		model = e
	}
	return analyzer.New(a.cfg.Analyzer, a.cfg.Loader(a.lgr), model, a.cfg.Classify, a.lgr)
}

func (a *app) analyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	out := fs.String("out", "", "categorized output dir (default from config, relative to input dir)")
	cp := fs.Bool("copy", a.cfg.Reorg.Copy, "copy files instead of moving them")
	nocat := fs.Bool("nocategorize", false, "only analyse, don't reorganize files")
	resfile := fs.String("results", "", "results JSON file (default <dir>/analysis_results.json)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("analyze needs exactly one directory")
	}
	dir := fs.Arg(0)

	an, err := a.newAnalyzer(true)
	if err != nil {
		return err
	}
	results, aerr := an.AnalyzeDir(ctx, dir)
	if aerr != nil && results == nil {
		return aerr
	}
	ok, failed, per := analyzer.Summary(results)
	a.mlg.LogPrintf(logx.NOTICE, "analysed %d cards, %d failed", ok, failed)
	for c, n := range per {
		a.mlg.LogPrintf(logx.INFO, "  %s: %d", c, n)
	}

	if !*nocat && aerr == nil {
		rcfg := a.cfg.Reorg
		rcfg.Copy = *cp
		if *out != "" {
			rcfg.OutDir = *out
		}
		if err = a.categorize(ctx, rcfg, dir, results); err != nil {
			// results are still worth saving
			a.mlg.LogPrintf(logx.ERROR, "categorizing: %v", err)
		}
	}

	if *resfile == "" {
		*resfile = filepath.Join(dir, "analysis_results.json")
	}
	if err = analyzer.SaveResults(results, *resfile); err != nil {
		return err
	}
	a.mlg.LogPrintf(logx.NOTICE, "results written to %s", *resfile)
	return aerr
}

func (a *app) categorize(ctx context.Context, rcfg reorg.Config, dir string, results []analyzer.Result) error {
	r, err := reorg.New(rcfg, a.lgr)
	if err != nil {
		return err
	}
	var items []reorg.Item
	var idx []int
	for i := range results {
		if results[i].Success {
			items = append(items, reorg.Item{
				Path:     results[i].FilePath,
				Category: *results[i].HeightCategory,
			})
			idx = append(idx, i)
		}
	}
	outDir := r.ResolveOutDir(dir)
	pl, err := r.Categorize(ctx, items, outDir)
	moved := 0
	for k := range pl {
		if pl[k].Err == nil {
			results[idx[k]].CurrentPath = pl[k].CurrentPath
			moved++
		}
	}
	a.mlg.LogPrintf(logx.NOTICE, "placed %d of %d files into %s", moved, len(items), outDir)
	return err
}

func (a *app) restore(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("restore needs exactly one output directory")
	}
	r, err := reorg.New(a.cfg.Reorg, a.lgr)
	if err != nil {
		return err
	}
	rep, err := r.Restore(args[0])
	if err != nil {
		return err
	}
	for _, f := range rep.Failed {
		a.mlg.LogPrintf(logx.ERROR, "not restored %s: %v", f.Entry.CurrentPath, f.Err)
	}
	if len(rep.Failed) != 0 {
		return fmt.Errorf("%d files not restored, manifest kept", len(rep.Failed))
	}
	return nil
}

func (a *app) dump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "print decoded tree as JSON")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("dump needs exactly one card file")
	}
	card, err := a.cfg.Loader(a.lgr).LoadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(card.Tree())
	}

	fmt.Printf("dialect:  %s\n", card.Dialect)
	if card.Marker != "" {
		fmt.Printf("product:  %d\nmarker:   %s\nversion:  %s\n",
			card.ProductNo, card.Marker, card.Version)
	}
	for _, b := range card.Blocks {
		fmt.Printf("block %-12s %-8s %6d bytes (%v)\n", b.Name, b.Version, len(b.Raw), b.Mode)
	}
	if name, ok := card.Name(); ok {
		fmt.Printf("name:     %s\n", name)
	}
	if sv, err := card.ShapeVector(); err == nil {
		fmt.Printf("shape:    %d values\n", len(sv))
	}
	spew.Dump(card.Tree().Native())
	return nil
}

func (a *app) extract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	out := fs.String("o", "training_data.json", "output JSON file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("extract needs exactly one directory")
	}
	an, err := a.newAnalyzer(false)
	if err != nil {
		return err
	}
	rows, err := an.ExtractTraining(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if err = analyzer.SaveTraining(rows, *out); err != nil {
		return err
	}
	a.mlg.LogPrintf(logx.NOTICE, "%d training rows written to %s", len(rows), *out)
	return nil
}
