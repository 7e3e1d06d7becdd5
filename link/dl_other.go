//go:build !linux && !darwin

package link

// DynResolver never resolves on platforms without a dynamic loader we
// can reach.
type DynResolver struct{}

func (DynResolver) Resolve(name string) (uintptr, bool) { return 0, false }
