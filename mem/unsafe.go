package mem

import (
	"os"
	"unsafe"
)

func addrOf(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

func pageCeil(n int) int {
	p := os.Getpagesize()

	return (n + p - 1) / p * p
}
