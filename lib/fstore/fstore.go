package fstore

// abstracts and automates some filestore operations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

type FStore struct {
	root     string // root folder + path separator
	initMu   sync.Mutex
	initDirs map[string]struct{}
	reserved map[string]struct{}
}

// tempfile logic based on stdlib' io/ioutil/tempfile.go

var (
	rand   uint32
	randMu sync.Mutex
)

func reseed() uint32 {
	return uint32(time.Now().UnixNano() + int64(os.Getpid()))
}

func nextSuffix() string {
	randMu.Lock()
	r := rand
	if r == 0 {
		r = reseed()
	}
	r = r*1664525 + 1013904223 // constants from Numerical Recipes
	rand = r
	randMu.Unlock()
	return strconv.Itoa(int(1e9 + r%1e9))[1:]
}

func cleanWSlash(p string) string {
	p = filepath.Clean(p)
	if p != "." {
		return p + string(os.PathSeparator)
	}
	return ""
}

var errEmptyPath = errors.New("empty fstore path")

func OpenFStore(dir string) (*FStore, error) {
	if dir == "" {
		return nil, errEmptyPath
	}
	s := &FStore{
		root:     cleanWSlash(dir),
		initDirs: make(map[string]struct{}),
		reserved: make(map[string]struct{}),
	}
	if s.root != "" {
		if err := os.MkdirAll(s.root, 0777); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Main returns main directory with slash if needed.
func (fs *FStore) Main() string {
	return fs.root
}

// Path joins dir and name under store root.
func (fs *FStore) Path(dir, name string) string {
	return filepath.Join(fs.root+dir, name)
}

func (fs *FStore) ensureDir(dir string, mode os.FileMode) (err error) {
	fs.initMu.Lock()
	defer fs.initMu.Unlock()

	if _, inited := fs.initDirs[dir]; !inited {
		err = os.MkdirAll(fs.root+dir, mode)
		if err != nil {
			return fmt.Errorf("error at os.MkdirAll: %v", err)
		}
		fs.initDirs[dir] = struct{}{}
	}
	return
}

func (fs *FStore) MakeDir(dir string) error {
	return fs.ensureDir(dir, 0777)
}

func (fs *FStore) RemoveDir(dir string) (err error) {
	fs.initMu.Lock()
	defer fs.initMu.Unlock()

	err = os.RemoveAll(fs.root + dir)
	delete(fs.initDirs, dir)
	return
}

func (fs *FStore) NewFile(dir, pfx, ext string) (f *os.File, err error) {
	err = fs.ensureDir(dir, 0700)
	if err != nil {
		return
	}

	nconflict := 0
	for i := 0; i < 10000; i++ {
		name := filepath.Join(fs.root+dir, pfx+nextSuffix()+ext)
		f, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if os.IsExist(err) {
			if nconflict++; nconflict > 10 {
				randMu.Lock()
				rand = reseed()
				randMu.Unlock()
			}
			continue
		}
		break
	}
	return
}

const tmpDir = "_tmp"

func (fs *FStore) TempFile(pfx, ext string) (*os.File, error) {
	return fs.NewFile(tmpDir, pfx, ext)
}

// CleanTemp removes temporary directory and whatever was left there.
func (fs *FStore) CleanTemp() error {
	return fs.RemoveDir(tmpDir)
}

// UniqueName returns path in dir named like name which neither exists
// nor was handed out before: name, then stem_1.ext, stem_2.ext and so on.
func (fs *FStore) UniqueName(dir, name string) (string, error) {
	if err := fs.ensureDir(dir, 0777); err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	fs.initMu.Lock()
	defer fs.initMu.Unlock()

	for i := 0; i < 100000; i++ {
		cand := name
		if i != 0 {
			cand = stem + "_" + strconv.Itoa(i) + ext
		}
		full := filepath.Join(fs.root+dir, cand)
		if _, taken := fs.reserved[full]; taken {
			continue
		}
		_, err := os.Lstat(full)
		if err == nil {
			continue
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		fs.reserved[full] = struct{}{}
		return full, nil
	}
	return "", fmt.Errorf("no free name for %q in %q", name, fs.root+dir)
}

// Release forgets reservation made by UniqueName.
func (fs *FStore) Release(full string) {
	fs.initMu.Lock()
	delete(fs.reserved, full)
	fs.initMu.Unlock()
}
