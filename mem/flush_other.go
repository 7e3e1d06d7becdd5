//go:build !arm64

package mem

// Foreign-arch builds can assemble and link but never execute, so there
// is no instruction cache to maintain.
func flushICache(b []byte) {}
