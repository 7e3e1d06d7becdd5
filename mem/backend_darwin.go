//go:build darwin

package mem

import (
	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
	"tlog.app/go/errors"
)

// darwinBackend maps code writable and executable at once with MAP_JIT
// and toggles the per-thread write gate instead of changing page
// protections. The hardened runtime rejects plain w+x mappings, and
// mprotect on a MAP_JIT mapping does not work either.
//
// The gate is per thread, so the caller must keep the goroutine locked
// to one OS thread from the first code write through the flip to
// Executable.
type darwinBackend struct {
	writeProtect uintptr // pthread_jit_write_protect_np
	icacheInval  uintptr // sys_icache_invalidate
}

func newBackend() (backend, error) {
	lib, err := purego.Dlopen("/usr/lib/libSystem.B.dylib", purego.RTLD_LAZY|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Wrap(err, "libSystem")
	}

	be := &darwinBackend{}

	be.writeProtect, err = purego.Dlsym(lib, "pthread_jit_write_protect_np")
	if err != nil {
		return nil, errors.Wrap(err, "pthread_jit_write_protect_np")
	}

	be.icacheInval, err = purego.Dlsym(lib, "sys_icache_invalidate")
	if err != nil {
		return nil, errors.Wrap(err, "sys_icache_invalidate")
	}

	return be, nil
}

func (be *darwinBackend) mapCode(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_JIT)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}

	// open the write gate for the mapping thread
	purego.SyscallN(be.writeProtect, 0)

	return b, nil
}

func (be *darwinBackend) mapData(size int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}

	return b, nil
}

func (be *darwinBackend) protect(b []byte, st State) error {
	v := uintptr(1)
	if st == Writable {
		v = 0
	}

	purego.SyscallN(be.writeProtect, v)

	return nil
}

func (be *darwinBackend) flush(b []byte) error {
	if len(b) == 0 {
		return nil
	}

	purego.SyscallN(be.icacheInval, uintptr(addrOf(b)), uintptr(len(b)))

	return nil
}

func (be *darwinBackend) unmap(b []byte) error { return unix.Munmap(b) }
