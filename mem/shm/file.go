package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// createTempFile is the fallback when anonymous memory files are not
// available. The file is unlinked right away so only the descriptor keeps it
// alive.
func createTempFile(name string, size uint64) (int, error) {
	dir := "/dev/shm"
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, "mediagraph-"+name+"-*")
	if err != nil {
		return -1, fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if err := os.Remove(f.Name()); err != nil {
		return -1, fmt.Errorf("unlink %s: %w", f.Name(), err)
	}

	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("dup temp file: %w", err)
	}

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("ftruncate: %w", err)
	}

	return fd, nil
}

func identify(fd int) (fileID, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fileID{}, fmt.Errorf("fstat fd %d: %w", fd, err)
	}

	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}
