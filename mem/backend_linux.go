//go:build linux

package mem

import (
	"golang.org/x/sys/unix"
	"tlog.app/go/errors"
)

// linuxBackend reserves the code mapping inaccessible, commits it
// read-write, and moves it between read-write and read-execute with
// mprotect. The mapping is never writable and executable at once.
type linuxBackend struct{}

func newBackend() (backend, error) { return linuxBackend{}, nil }

func (linuxBackend) mapCode(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}

	err = unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		_ = unix.Munmap(b)

		return nil, errors.Wrap(err, "commit read-write")
	}

	return b, nil
}

func (linuxBackend) mapData(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}

	return b, nil
}

func (linuxBackend) protect(b []byte, st State) error {
	prot := unix.PROT_READ | unix.PROT_WRITE
	if st == Executable {
		prot = unix.PROT_READ | unix.PROT_EXEC
	}

	return unix.Mprotect(b, prot)
}

func (linuxBackend) flush(b []byte) error {
	flushICache(b)

	return nil
}

func (linuxBackend) unmap(b []byte) error { return unix.Munmap(b) }
