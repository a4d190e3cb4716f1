package reorg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cardmeter/lib/fstore"
)

const ManifestName = "recovery_info.json"

var ErrNoManifest = errors.New("no recovery manifest")

// Entry records where one file went.
type Entry struct {
	OriginalPath string `json:"original_path"`
	CurrentPath  string `json:"current_path"`
	Checksum     string `json:"checksum,omitempty"`
	Copied       bool   `json:"copied,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
}

type Manifest struct {
	Timestamp int64   `json:"timestamp"`
	Files     []Entry `json:"files"`
}

func ManifestPath(outDir string) string {
	return filepath.Join(outDir, ManifestName)
}

// ReadManifest loads manifest of outDir.
func ReadManifest(outDir string) (*Manifest, error) {
	b, err := os.ReadFile(ManifestPath(outDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoManifest, outDir)
		}
		return nil, err
	}
	m := new(Manifest)
	if err = json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%s: %w", ManifestPath(outDir), err)
	}
	return m, nil
}

func encodeManifest(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeManifest replaces manifest atomically via temp file in fs.
func writeManifest(fs *fstore.FStore, outDir string, m *Manifest) (err error) {
	b, err := encodeManifest(m)
	if err != nil {
		return
	}
	f, err := fs.TempFile("manifest-", ".json")
	if err != nil {
		return
	}
	fn := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(fn)
		}
	}()
	if _, err = f.Write(b); err != nil {
		return
	}
	if err = f.Sync(); err != nil {
		return
	}
	if err = f.Close(); err != nil {
		return
	}
	return os.Rename(fn, ManifestPath(outDir))
}

// journal is manifest shared by placing workers.
// It is flushed to disk every batch entries.
type journal struct {
	mu      sync.Mutex
	m       Manifest
	pending int
	batch   int
	fs      *fstore.FStore
	outDir  string
}

func openJournal(fs *fstore.FStore, outDir string, batch int) (*journal, error) {
	j := &journal{fs: fs, outDir: outDir, batch: batch}
	old, err := ReadManifest(outDir)
	switch {
	case err == nil:
		j.m = *old
	case errors.Is(err, ErrNoManifest):
	default:
		return nil, err
	}
	return j, nil
}

func (j *journal) add(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.m.Files = append(j.m.Files, e)
	j.pending++
	if j.pending >= j.batch {
		return j.flushLocked()
	}
	return nil
}

func (j *journal) flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.pending == 0 {
		return nil
	}
	return j.flushLocked()
}

func (j *journal) flushLocked() error {
	j.m.Timestamp = time.Now().Unix()
	if err := writeManifest(j.fs, j.outDir, &j.m); err != nil {
		return err
	}
	j.pending = 0
	return nil
}
