// +build windows

package fstore

import (
	"errors"
	"os"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

type Mover struct {
	nohardlink uint32
	tmpstor    *FStore
}

func (m *Mover) HardlinkOrCopy(from, to string) error {
	if atomic.LoadUint32(&m.nohardlink) == 0 {
		e := os.Link(from, to)
		if e == nil {
			return nil // OK
		}
		var n windows.Errno
		if !errors.As(e, &n) {
			return e
		}
		switch n {
		case windows.ERROR_FILE_EXISTS, windows.ERROR_ALREADY_EXISTS:
			return errExists(to)
		case windows.ERROR_NOT_SUPPORTED, windows.ERROR_NOT_SAME_DEVICE:
			// will need to use copy
			atomic.StoreUint32(&m.nohardlink, 1)
		default:
			return e
		}
	}

	// fast path failed, do slow instead
	return m.statCopy(from, to)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}
