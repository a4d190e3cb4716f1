// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package fstore

import (
	"errors"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type Mover struct {
	nohardlink uint32
	tmpstor    *FStore
}

// HardlinkOrCopy makes to share content with from. Never overwrites.
func (m *Mover) HardlinkOrCopy(from, to string) error {
	if atomic.LoadUint32(&m.nohardlink) == 0 {
		// hardlink syscall aborts incase file already exists
		// using unix.Link instead of os.Link is simpler
		e := unix.Link(from, to)
		if e == nil {
			return nil // OK
		}
		switch e {
		case unix.EEXIST:
			return errExists(to)
		case unix.EXDEV, /* cross device */
			unix.EOPNOTSUPP, /* not supported by FS */
			unix.EPERM /* used by linux to mark no support */ :
			// will need to use copy
			atomic.StoreUint32(&m.nohardlink, 1)
		default:
			return &os.LinkError{Op: "link", Old: from, New: to, Err: e}
		}
	}

	// fast path failed, do slow instead
	return m.statCopy(from, to)
}

func isCrossDevice(err error) bool {
	return errors.Is(err, unix.EXDEV)
}
