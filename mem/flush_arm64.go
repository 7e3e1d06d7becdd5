//go:build arm64

package mem

// cacheFlush cleans the data cache and invalidates the instruction
// cache over [begin, end). Implemented in assembly; discovers the cache
// line sizes from CTR_EL0.
//
//go:noescape
func cacheFlush(begin, end uintptr)

func flushICache(b []byte) {
	if len(b) == 0 {
		return
	}

	p := uintptr(addrOf(b))

	cacheFlush(p, p+uintptr(len(b)))
}
