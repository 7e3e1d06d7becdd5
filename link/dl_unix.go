//go:build linux || darwin

package link

import (
	"runtime"

	"github.com/ebitengine/purego"
)

// DynResolver looks symbols up in the images already loaded into the
// process. Mach-O exports carry a leading underscore, so the bare name
// is retried with one prepended.
type DynResolver struct{}

func (DynResolver) Resolve(name string) (uintptr, bool) {
	addr, err := purego.Dlsym(purego.RTLD_DEFAULT, name)
	if err == nil && addr != 0 {
		return addr, true
	}

	if runtime.GOOS == "darwin" {
		addr, err = purego.Dlsym(purego.RTLD_DEFAULT, "_"+name)
		if err == nil && addr != 0 {
			return addr, true
		}
	}

	return 0, false
}
