package reorg

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func setup(t *testing.T, names ...string) (string, []Item) {
	in := t.TempDir()
	cats := []string{"petite", "average", "tall"}
	var items []Item
	for i, n := range names {
		fn := filepath.Join(in, n)
		if err := os.WriteFile(fn, []byte("card "+n), 0644); err != nil {
			t.Fatal(err)
		}
		items = append(items, Item{Path: fn, Category: cats[i%len(cats)]})
	}
	return in, items
}

func newReorg(t *testing.T, f func(c *Config)) *Reorganizer {
	cfg := DefaultConfig
	cfg.BatchSize = 2
	cfg.Workers = 3
	if f != nil {
		f(&cfg)
	}
	r, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func exists(fn string) bool {
	_, err := os.Lstat(fn)
	return err == nil
}

func TestCategorizeRestore(t *testing.T) {
	in, items := setup(t, "a.png", "b.png", "c.png", "d.png", "e.png")
	r := newReorg(t, nil)
	out := r.ResolveOutDir(in)

	res, err := r.Categorize(context.Background(), items, out)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range res {
		if p.Err != nil {
			t.Fatalf("item %d: %v", i, p.Err)
		}
		if exists(items[i].Path) {
			t.Errorf("%s still in place after move", items[i].Path)
		}
		if filepath.Base(filepath.Dir(p.CurrentPath)) != items[i].Category {
			t.Errorf("%s placed into %s", items[i].Path, p.CurrentPath)
		}
		if p.Checksum == "" || p.Copied {
			t.Errorf("entry %s", spew.Sdump(p.Entry))
		}
	}

	m, err := ReadManifest(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != len(items) || m.Timestamp == 0 {
		t.Fatalf("manifest %s", spew.Sdump(m))
	}
	if exists(filepath.Join(out, "_tmp")) {
		t.Errorf("temp dir left")
	}

	rep, err := r.Restore(out)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Restored != len(items) || len(rep.Failed) != 0 {
		t.Errorf("report %s", spew.Sdump(rep))
	}
	for _, it := range items {
		b, err := os.ReadFile(it.Path)
		if err != nil || string(b) != "card "+filepath.Base(it.Path) {
			t.Errorf("%s not restored: %v", it.Path, err)
		}
	}
	if exists(out) {
		t.Errorf("output dir not removed")
	}
	if _, err = r.Restore(out); !errors.Is(err, ErrNoManifest) {
		t.Errorf("second restore: %v", err)
	}
}

func TestNameCollision(t *testing.T) {
	in, items := setup(t, "x.png")
	sub := filepath.Join(in, "sub")
	os.Mkdir(sub, 0755)
	other := filepath.Join(sub, "x.png")
	os.WriteFile(other, []byte("other"), 0644)
	items = append(items, Item{Path: other, Category: items[0].Category})

	r := newReorg(t, func(c *Config) { c.Workers = 1 })
	out := r.ResolveOutDir(in)
	res, err := r.Categorize(context.Background(), items, out)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Err != nil || res[1].Err != nil {
		t.Fatalf("%v / %v", res[0].Err, res[1].Err)
	}
	names := map[string]bool{
		filepath.Base(res[0].CurrentPath): true,
		filepath.Base(res[1].CurrentPath): true,
	}
	if !names["x.png"] || !names["x_1.png"] {
		t.Errorf("names %v", names)
	}

	if rep, err := r.Restore(out); err != nil || rep.Restored != 2 {
		t.Fatalf("restore: %v %v", rep, err)
	}
	if b, _ := os.ReadFile(other); string(b) != "other" {
		t.Errorf("files swapped on restore")
	}
}

func TestCopyMode(t *testing.T) {
	in, items := setup(t, "a.png", "b.png")
	r := newReorg(t, func(c *Config) { c.Copy = true })
	out := r.ResolveOutDir(in)
	res, err := r.Categorize(context.Background(), items, out)
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range res {
		if p.Err != nil || !p.Copied {
			t.Fatalf("item %d: %s", i, spew.Sdump(p))
		}
		if !exists(items[i].Path) || !exists(p.CurrentPath) {
			t.Errorf("copy mode lost a file")
		}
	}
	// original gone: copy is moved back instead of deleted
	os.Remove(items[1].Path)

	rep, err := r.Restore(out)
	if err != nil || rep.Restored != 2 {
		t.Fatalf("restore: %v %v", rep, err)
	}
	for _, it := range items {
		if !exists(it.Path) {
			t.Errorf("%s missing after restore", it.Path)
		}
	}
	if exists(out) {
		t.Errorf("output dir not removed")
	}
}

func TestRestoreRefusals(t *testing.T) {
	in, items := setup(t, "a.png", "b.png", "c.png")
	r := newReorg(t, nil)
	out := r.ResolveOutDir(in)
	res, err := r.Categorize(context.Background(), items, out)
	if err != nil {
		t.Fatal(err)
	}

	// a: changed after placement, b: original path taken
	os.WriteFile(res[0].CurrentPath, []byte("edited"), 0644)
	os.WriteFile(items[1].Path, []byte("newcomer"), 0644)

	rep, err := r.Restore(out)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Restored != 1 || len(rep.Failed) != 2 {
		t.Fatalf("report %s", spew.Sdump(rep))
	}
	for _, f := range rep.Failed {
		switch f.Entry.OriginalPath {
		case res[0].OriginalPath:
			if !errors.Is(f.Err, errChecksumMismatch) {
				t.Errorf("edited file: %v", f.Err)
			}
		case res[1].OriginalPath:
			if !errors.Is(f.Err, errWouldOverwrite) {
				t.Errorf("occupied original: %v", f.Err)
			}
		default:
			t.Errorf("unexpected failure %v", f.Err)
		}
	}
	if b, _ := os.ReadFile(items[1].Path); string(b) != "newcomer" {
		t.Errorf("occupying file overwritten")
	}

	m, err := ReadManifest(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 2 {
		t.Errorf("manifest keeps %d entries, want 2", len(m.Files))
	}
	if !exists(out) {
		t.Errorf("output dir removed while files remain")
	}
}

func TestManifestAppends(t *testing.T) {
	in, items := setup(t, "a.png", "b.png", "c.png")
	r := newReorg(t, func(c *Config) { c.BatchSize = 100; c.Checksum = "none" })
	out := r.ResolveOutDir(in)
	if _, err := r.Categorize(context.Background(), items[:1], out); err != nil {
		t.Fatal(err)
	}
	res, err := r.Categorize(context.Background(), items[1:], out)
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Checksum != "" {
		t.Errorf("checksum computed with none")
	}
	m, err := ReadManifest(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Files) != 3 {
		t.Errorf("manifest has %d entries", len(m.Files))
	}
}

func TestBadInput(t *testing.T) {
	in, items := setup(t, "a.png")
	items = append(items,
		Item{Path: filepath.Join(in, "missing.png"), Category: "tall"},
		Item{Path: items[0].Path, Category: "../up"},
	)
	r := newReorg(t, nil)
	res, err := r.Categorize(context.Background(), items, r.ResolveOutDir(in))
	if err != nil {
		t.Fatal(err)
	}
	if res[0].Err != nil || res[1].Err == nil || res[2].Err == nil {
		t.Errorf("errors: %v / %v / %v", res[0].Err, res[1].Err, res[2].Err)
	}

	if _, err = New(Config{Checksum: "crc"}, nil); err == nil {
		t.Errorf("unknown checksum accepted")
	}
	if _, err = r.Restore(""); err == nil {
		t.Errorf("restore from empty dir name accepted")
	}
	if _, err = r.Categorize(context.Background(), items[:1], ""); err == nil {
		t.Errorf("categorize into empty dir name accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, items = setup(t, "z.png")
	res, err = r.Categorize(ctx, items, t.TempDir())
	if err == nil && res[0].Err == nil {
		// worker may have won the race; then file must be placed
		if res[0].CurrentPath == "" {
			t.Errorf("neither placed nor cancelled")
		}
	}
}

func TestThumbnails(t *testing.T) {
	in, items := setup(t, "a.png")
	var buf bytes.Buffer
	png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)))
	items[0].Image = buf.Bytes()

	r := newReorg(t, func(c *Config) { c.Thumbnails = true })
	out := r.ResolveOutDir(in)
	res, err := r.Categorize(context.Background(), items, out)
	if err != nil || res[0].Err != nil {
		t.Fatal(err, res[0].Err)
	}
	want := filepath.Join(out, thumbDir, items[0].Category, "a.png.jpg")
	if res[0].Thumbnail != want || !exists(want) {
		t.Errorf("thumbnail %q, want %q", res[0].Thumbnail, want)
	}
	if _, err = r.Restore(out); err != nil {
		t.Fatal(err)
	}
	if exists(out) {
		t.Errorf("thumbnails kept output dir alive")
	}
}

func TestThumbnailFromFile(t *testing.T) {
	in := t.TempDir()
	var buf bytes.Buffer
	png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)))
	buf.WriteString("trailing card payload")
	fn := filepath.Join(in, "card.png")
	os.WriteFile(fn, buf.Bytes(), 0644)

	r := newReorg(t, func(c *Config) { c.Thumbnails = true; c.Copy = true })
	out := r.ResolveOutDir(in)
	res, err := r.Categorize(context.Background(), []Item{{Path: fn, Category: "tall"}}, out)
	if err != nil || res[0].Err != nil {
		t.Fatal(err, res[0].Err)
	}
	if res[0].Thumbnail == "" || !exists(res[0].Thumbnail) {
		t.Errorf("no thumbnail made from card file")
	}
}
