//go:build arm64

package jit

const canExecute = true

// enter calls generated code at entry with up to four integer
// arguments in x0-x3 and returns x0.
//
//go:noescape
func enter(entry, a0, a1, a2, a3 uintptr) uintptr
