//go:build linux

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const seals = unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_SEAL

func createAnonymous(name string, size uint64, seal bool) (int, error) {
	flags := unix.MFD_CLOEXEC
	if seal {
		flags |= unix.MFD_ALLOW_SEALING
	}

	fd, err := unix.MemfdCreate("mediagraph-"+name, flags)
	if err != nil {
		return createTempFile(name, size)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("ftruncate: %w", err)
	}

	if seal {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
			_ = unix.Close(fd)
			return -1, fmt.Errorf("add seals: %w", err)
		}
	}

	return fd, nil
}

// Sealed reports whether the size of the block is sealed.
func (b *Block) Sealed() bool {
	if b.fd < 0 {
		return false
	}

	got, err := unix.FcntlInt(uintptr(b.fd), unix.F_GET_SEALS, 0)
	if err != nil {
		return false
	}

	return got&unix.F_SEAL_GROW != 0 && got&unix.F_SEAL_SHRINK != 0
}
