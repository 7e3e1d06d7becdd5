//go:build linux || darwin

package mem

import (
	"bytes"
	"context"
	"runtime"
	"testing"
)

func TestRegionLifecycle(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := context.Background()

	r, err := Alloc(ctx, 64, 32, 16)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}

	if r.State() != Writable {
		t.Errorf("fresh region is %v", r.State())
	}

	nop := []byte{0x1f, 0x20, 0x03, 0xd5}

	if err = r.WriteCode(0, nop); err != nil {
		t.Errorf("write code: %v", err)
	}
	if err = r.WriteTramp(0, make([]byte, 16)); err != nil {
		t.Errorf("write tramp: %v", err)
	}
	if err = r.WriteData(0, []byte{1, 2, 3}); err != nil {
		t.Errorf("write data: %v", err)
	}

	if err = r.WriteCode(62, nop); err == nil {
		t.Errorf("out-of-bounds code write accepted")
	}
	if err = r.WriteData(-1, nop); err == nil {
		t.Errorf("negative data offset accepted")
	}

	if _, err = r.Entry(0); err == nil {
		t.Errorf("entry of a writable region accepted")
	}

	if err = r.MakeExecutable(ctx); err != nil {
		t.Fatalf("make executable: %v", err)
	}

	if r.State() != Executable {
		t.Errorf("region is %v after the flip", r.State())
	}

	if err = r.WriteCode(0, nop); err == nil {
		t.Errorf("code write into executable region accepted")
	}
	if err = r.WriteTramp(0, nop); err == nil {
		t.Errorf("tramp write into executable region accepted")
	}
	if err = r.WriteData(4, []byte{4}); err != nil {
		t.Errorf("data stays writable: %v", err)
	}

	pc, err := r.Entry(0)
	if err != nil || pc != r.CodeBase() {
		t.Errorf("entry: %#x, %v", pc, err)
	}
	if _, err = r.Entry(100); err == nil {
		t.Errorf("out-of-bounds entry accepted")
	}

	if off, ok := r.Contains(pc); !ok || off != 0 {
		t.Errorf("contains(base): %d, %v", off, ok)
	}
	if _, ok := r.Contains(pc + 64); ok {
		t.Errorf("contains past the code end")
	}

	if err = r.MakeWritable(ctx); err != nil {
		t.Fatalf("make writable: %v", err)
	}

	if err = r.WriteCode(0, nop); err != nil {
		t.Errorf("write after reopen: %v", err)
	}

	got := make([]byte, 4)
	if err = r.ReadCode(0, got); err != nil || !bytes.Equal(got, nop) {
		t.Errorf("read back %x, %v", got, err)
	}

	if err = r.Free(); err != nil {
		t.Errorf("free: %v", err)
	}
	if err = r.Free(); err == nil {
		t.Errorf("double free accepted")
	}
	if err = r.WriteData(0, nop); err == nil {
		t.Errorf("write after free accepted")
	}
}

func TestAllocRejectsBadSizes(t *testing.T) {
	ctx := context.Background()

	for _, tc := range [][3]int{{0, 0, 0}, {-1, 0, 0}, {64, -1, 0}, {64, 0, -1}} {
		_, err := Alloc(ctx, tc[0], tc[1], tc[2])
		if err == nil {
			t.Errorf("sizes %v accepted", tc)
		}
	}
}
