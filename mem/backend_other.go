//go:build !linux && !darwin

package mem

import (
	"runtime"

	"tlog.app/go/errors"
)

func newBackend() (backend, error) {
	return nil, errors.New("jit memory is not supported on %v", runtime.GOOS)
}
