package fstore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// replaced in tests to simulate separate devices
var (
	osRename    = os.Rename
	crossDevice = isCrossDevice
)

func NewMover(tmpstor *FStore) *Mover {
	return &Mover{tmpstor: tmpstor}
}

func errExists(to string) error {
	return &os.PathError{Op: "place", Path: to, Err: os.ErrExist}
}

// Move renames from to to, copying across devices. Never overwrites.
func (m *Mover) Move(from, to string) error {
	_, err := os.Lstat(to)
	if err == nil {
		return errExists(to)
	}
	if !os.IsNotExist(err) {
		return err
	}

	err = osRename(from, to)
	if err == nil || !crossDevice(err) {
		return err
	}
	if err = m.statCopy(from, to); err != nil {
		return err
	}
	return os.Remove(from)
}

// tempFor opens temp file on same filesystem as to, so that final
// rename stays within one device. Store's temp dir is used when to is
// inside store, otherwise temp file is made next to to.
func (m *Mover) tempFor(to string) (*os.File, error) {
	if root := m.tmpstor.Main(); root != "" && strings.HasPrefix(to, root) {
		return m.tmpstor.TempFile("mover-", "")
	}
	return os.CreateTemp(filepath.Dir(to), ".mover-*")
}

// statCopy copies via temp file renamed into place.
// Mode bits and modification time are carried over.
func (m *Mover) statCopy(from, to string) (err error) {

	// first check if exists
	_, err = os.Lstat(to)
	if err == nil {
		// exists - don't overwrite
		return errExists(to)
	}
	if !os.IsNotExist(err) {
		// shouldn't happen
		return
	}

	// copy from
	rf, err := os.Open(from)
	if err != nil {
		return
	}
	defer rf.Close()

	st, err := rf.Stat()
	if err != nil {
		return
	}

	// copy dest - tmp file for atomicity
	wf, err := m.tempFor(to)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			n := wf.Name()
			_ = wf.Close()
			_ = os.Remove(n)
		}
	}()

	// perform copy
	_, err = io.Copy(wf, rf)
	if err != nil {
		return
	}

	err = wf.Chmod(st.Mode().Perm())
	if err != nil {
		return
	}

	// sync to ensure consistency
	err = wf.Sync()
	if err != nil {
		return
	}

	fn := wf.Name()

	err = wf.Close()
	if err != nil {
		return
	}

	err = os.Chtimes(fn, st.ModTime(), st.ModTime())
	if err != nil {
		return
	}

	// perform rename
	err = osRename(fn, to)
	if err != nil {
		_ = os.Remove(fn)
	}
	return
}
