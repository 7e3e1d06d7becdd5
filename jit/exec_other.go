//go:build !arm64

package jit

const canExecute = false

func enter(entry, a0, a1, a2, a3 uintptr) uintptr {
	panic("generated code cannot run on this architecture")
}
