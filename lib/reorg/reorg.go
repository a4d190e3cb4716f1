package reorg

// moving analysed cards into per-category folders, and back.

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"cardmeter/lib/fstore"
	"cardmeter/lib/hashtools"
	. "cardmeter/lib/logx"
	"cardmeter/lib/pngscan"
	"cardmeter/lib/thumbs"
)

const thumbDir = "_thumbs"

type Config struct {
	OutDir     string        `toml:"out_dir"` // relative paths are under input dir
	Copy       bool          `toml:"copy"`
	BatchSize  int           `toml:"batch_size"`
	Workers    int           `toml:"workers"`
	Checksum   string        `toml:"checksum"` // hash name, "auto" or "none"
	Thumbnails bool          `toml:"thumbnails"`
	Thumbs     thumbs.Config `toml:"thumbs"`
}

var DefaultConfig = Config{
	OutDir:    "categorized",
	BatchSize: 20,
	Checksum:  "auto",
	Thumbs:    thumbs.DefaultConfig,
}

// Item is file to be placed into Category folder.
// Image, if set, is used for thumbnail instead of reading file again.
type Item struct {
	Path     string
	Category string
	Image    []byte
}

// Placement is outcome for one Item.
type Placement struct {
	Entry
	Err error
}

type Reorganizer struct {
	cfg      Config
	hashType hashtools.HashTypeIDType
	lx       LoggerX
	log      Logger
}

func New(cfg Config, lx LoggerX) (*Reorganizer, error) {
	if lx == nil {
		lx = NopLoggerX{}
	}
	r := &Reorganizer{cfg: cfg, lx: lx, log: NewLogToX(lx, "reorg")}
	if !strings.EqualFold(cfg.Checksum, "none") {
		var err error
		if r.hashType, err = hashtools.ParseHashType(cfg.Checksum); err != nil {
			return nil, err
		}
	}
	if r.cfg.BatchSize <= 0 {
		r.cfg.BatchSize = 1
	}
	if r.cfg.Workers <= 0 {
		r.cfg.Workers = runtime.NumCPU()
	}
	return r, nil
}

// ResolveOutDir applies OutDir relative to input directory.
func (r *Reorganizer) ResolveOutDir(inDir string) string {
	if filepath.IsAbs(r.cfg.OutDir) {
		return r.cfg.OutDir
	}
	return filepath.Join(inDir, r.cfg.OutDir)
}

func badCategory(c string) bool {
	return c == "" || c == "." || c == ".." || c == thumbDir || c == "_tmp" ||
		strings.ContainsAny(c, `/\`)
}

func fileChecksum(path string, t hashtools.HashTypeIDType) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	s, _, err := hashtools.MakeCustomFileHash(f, t)
	return s, err
}

type placer struct {
	r     *Reorganizer
	fs    *fstore.FStore
	mover *fstore.Mover
	th    *thumbs.Thumbnailer
	j     *journal
}

func (p *placer) place(it Item) (e Entry, err error) {
	if badCategory(it.Category) {
		return e, fmt.Errorf("bad category %q", it.Category)
	}
	if e.OriginalPath, err = filepath.Abs(it.Path); err != nil {
		return
	}
	if p.r.hashType != 0 {
		if e.Checksum, err = fileChecksum(e.OriginalPath, p.r.hashType); err != nil {
			return
		}
	}

	dst, err := p.fs.UniqueName(it.Category, filepath.Base(it.Path))
	if err != nil {
		return
	}
	defer p.fs.Release(dst)

	if p.r.cfg.Copy {
		err = p.mover.HardlinkOrCopy(e.OriginalPath, dst)
		e.Copied = true
	} else {
		err = p.mover.Move(e.OriginalPath, dst)
	}
	if err != nil {
		return
	}
	e.CurrentPath = dst

	if p.th != nil {
		if tfn, terr := p.thumbnail(it, dst); terr != nil {
			p.r.log.LogPrintf(WARN, "thumbnail for %s: %v", dst, terr)
		} else {
			e.Thumbnail = tfn
		}
	}

	err = p.j.add(e)
	return
}

func readImage(fn string) ([]byte, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return pngscan.Extract(f)
}

func (p *placer) thumbnail(it Item, dst string) (string, error) {
	img := it.Image
	if img == nil {
		var err error
		if img, err = readImage(dst); err != nil {
			return "", err
		}
	}
	tdir := filepath.Join(thumbDir, it.Category)
	if err := p.fs.MakeDir(tdir); err != nil {
		return "", err
	}
	tfn := p.fs.Path(tdir, filepath.Base(dst)+".jpg")
	if _, _, err := p.th.Make(img, tfn); err != nil {
		return "", err
	}
	return tfn, nil
}

// Categorize places items into outDir/<category>/ and records every
// placement in manifest, which is appended to if it already exists.
// Per item failures are reported in placements; returned error is for
// failures affecting whole run.
func (r *Reorganizer) Categorize(ctx context.Context, items []Item, outDir string) ([]Placement, error) {
	fs, err := fstore.OpenFStore(outDir)
	if err != nil {
		return nil, err
	}
	defer fs.CleanTemp()

	j, err := openJournal(fs, outDir, r.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	p := &placer{r: r, fs: fs, mover: fstore.NewMover(fs), j: j}
	if r.cfg.Thumbnails {
		if p.th, err = thumbs.New(r.cfg.Thumbs, fs, r.lx); err != nil {
			return nil, err
		}
	}

	res := make([]Placement, len(items))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				e, err := p.place(items[i])
				res[i] = Placement{Entry: e, Err: err}
				if err != nil {
					r.log.LogPrintf(WARN, "can't place %s: %v", items[i].Path, err)
				} else {
					r.log.LogPrintf(DEBUG, "%s -> %s", e.OriginalPath, e.CurrentPath)
				}
			}
		}()
	}

	cerr := ctx.Err()
feed:
	for i := range items {
		select {
		case jobs <- i:
		case <-ctx.Done():
			cerr = ctx.Err()
			for k := i; k < len(items); k++ {
				res[k].Err = cerr
			}
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err = j.flush(); err != nil {
		return res, fmt.Errorf("writing manifest: %w", err)
	}
	return res, cerr
}

// Failure is manifest entry which couldn't be restored.
type Failure struct {
	Entry Entry
	Err   error
}

type RestoreReport struct {
	Restored int
	Failed   []Failure
}

var (
	errWouldOverwrite   = errors.New("original path is occupied")
	errChecksumMismatch = errors.New("file changed since it was placed")
	errNoOutDir         = errors.New("empty output directory")
)

func (r *Reorganizer) restoreOne(e Entry, mover *fstore.Mover) error {
	if e.Checksum != "" {
		f, err := os.Open(e.CurrentPath)
		if err != nil {
			return err
		}
		ok, err := hashtools.VerifyFileHash(f, e.Checksum)
		f.Close()
		if err != nil {
			return err
		}
		if !ok {
			return errChecksumMismatch
		}
	}

	_, err := os.Lstat(e.OriginalPath)
	originalThere := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if e.Copied && originalThere {
		// original never went anywhere
		return os.Remove(e.CurrentPath)
	}
	if originalThere {
		return errWouldOverwrite
	}
	if err = os.MkdirAll(filepath.Dir(e.OriginalPath), 0777); err != nil {
		return err
	}
	return mover.Move(e.CurrentPath, e.OriginalPath)
}

// Restore moves files recorded in outDir manifest back. Manifest is
// rewritten with entries which failed, or removed if none did. Empty
// folders left behind are removed, outDir included.
func (r *Reorganizer) Restore(outDir string) (*RestoreReport, error) {
	if outDir == "" {
		return nil, errNoOutDir
	}
	m, err := ReadManifest(outDir)
	if err != nil {
		return nil, err
	}
	fs, err := fstore.OpenFStore(outDir)
	if err != nil {
		return nil, err
	}
	mover := fstore.NewMover(fs)

	rep := &RestoreReport{}
	var left []Entry
	for _, e := range m.Files {
		if err := r.restoreOne(e, mover); err != nil {
			r.log.LogPrintf(WARN, "can't restore %s: %v", e.CurrentPath, err)
			rep.Failed = append(rep.Failed, Failure{Entry: e, Err: err})
			left = append(left, e)
			continue
		}
		rep.Restored++
		r.log.LogPrintf(DEBUG, "%s -> %s", e.CurrentPath, e.OriginalPath)
		if e.Thumbnail != "" {
			if err := os.Remove(e.Thumbnail); err != nil && !os.IsNotExist(err) {
				r.log.LogPrintf(NOTICE, "removing thumbnail: %v", err)
			}
		}
	}

	if len(left) != 0 {
		m.Files = left
		err = writeManifest(fs, outDir, m)
	} else {
		err = os.Remove(ManifestPath(outDir))
	}
	fs.CleanTemp()
	if err != nil {
		return rep, err
	}

	removeEmptyDirs(outDir)
	r.log.LogPrintf(INFO, "restored %d files, %d failed", rep.Restored, len(rep.Failed))
	return rep, nil
}

// removeEmptyDirs removes empty directories under root, deepest first,
// root included. Non-empty ones stay.
func removeEmptyDirs(root string) {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		// fails for non-empty
		_ = os.Remove(d)
	}
}
