//go:build linux || darwin

package link

import (
	"context"
	"encoding/binary"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/jit/asm/arm64"
	"github.com/slowlang/jit/ir"
)

func TestTrampolineDedup(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := context.Background()

	frag, err := arm64.Assemble(ctx, []ir.Instr{
		ir.FuncBegin{Name: "f"},
		ir.CallExt{Sym: "foo"},
		ir.CallExt{Sym: "bar"},
		ir.CallExt{Sym: "foo"},
		ir.Ret{},
		ir.FuncEnd{},
	})
	require.NoError(t, err)

	l, err := Link(ctx, frag, Options{Resolver: HostTable{"foo": 0xdead0, "bar": 0xbeef0}})
	require.NoError(t, err)

	defer func() { assert.NoError(t, l.Region.Free()) }()

	assert.Len(t, l.Tramps, 2, "one stub per unique symbol")

	target := func(off int) uintptr {
		return uintptr(int64(l.Region.CodeBase()) + int64(off) + arm64.Branch26.Extract(frag.Word32(off)))
	}

	assert.Equal(t, target(0), target(8), "both foo sites share one stub")
	assert.NotEqual(t, target(0), target(4))

	tb := l.Region.TrampBase()

	for _, off := range []int{0, 4, 8} {
		tg := target(off)

		assert.True(t, tg >= tb && tg < tb+uintptr(2*stubSize), "site %#x targets %#x outside stubs", off, tg)
		assert.Zero(t, (tg-tb)%stubSize, "stub not aligned")
	}
}

func TestStubWords(t *testing.T) {
	l := &Linked{Tramps: map[string]int{"a": 0}}

	stubs, err := l.buildStubs(nil, HostTable{"a": 0x1234_5678_9abc})
	require.NoError(t, err)
	require.Len(t, stubs, stubSize)

	assert.Equal(t, uint32(stubLdr), binary.LittleEndian.Uint32(stubs))
	assert.Equal(t, uint32(stubBr), binary.LittleEndian.Uint32(stubs[4:]))
	assert.Equal(t, uint64(0x1234_5678_9abc), binary.LittleEndian.Uint64(stubs[8:]))
}

func TestLinkUnresolved(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := context.Background()

	frag, err := arm64.Assemble(ctx, []ir.Instr{
		ir.CallExt{Sym: "nope"},
		ir.Ret{},
	})
	require.NoError(t, err)

	_, err = Link(ctx, frag, Options{Resolver: HostTable{}})
	assert.ErrorContains(t, err, "unresolved")

	se, ok := err.(arm64.SiteError)
	if assert.True(t, ok, "error carries no site: %v", err) {
		assert.Equal(t, 0, se.Inst)
		assert.Equal(t, 0, se.Off)
	}

	frag, err = arm64.Assemble(ctx, []ir.Instr{
		ir.CallExt{Sym: "nope"},
		ir.Ret{},
	})
	require.NoError(t, err)

	_, err = Link(ctx, frag, Options{})
	assert.ErrorContains(t, err, "unresolved")
}

func TestDataRelocs(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ctx := context.Background()

	frag, err := arm64.Assemble(ctx, []ir.Instr{
		ir.DataStart{Name: "tbl"},
		ir.DataInt{Size: 8, Value: 42},
		ir.DataSymRef{Sym: "tbl"},
		ir.DataEnd{},
		ir.FuncBegin{Name: "f"},
		ir.LoadAddr{Rd: 0, Sym: "tbl"},
		ir.Mem{Op: ir.LDR, Cls: ir.X, Rt: 0, Rn: 0},
		ir.Ret{},
		ir.FuncEnd{},
	})
	require.NoError(t, err)

	l, err := Link(ctx, frag, Options{})
	require.NoError(t, err)

	defer func() { assert.NoError(t, l.Region.Free()) }()

	db := l.Region.DataBase()

	assert.Equal(t, uint64(db), binary.LittleEndian.Uint64(frag.Data[8:]), "abs64 slot")

	wantPages := int64(db)>>12 - int64(l.Region.CodeBase())>>12
	assert.Equal(t, wantPages, adrPages(frag.Word32(0)), "adrp page delta")
	assert.Equal(t, uint32(db)&0xfff, frag.Word32(4)>>10&0xfff, "add low offset")

	got := make([]byte, len(frag.Data))
	require.NoError(t, l.Region.ReadData(0, got))
	assert.Equal(t, frag.Data, got, "data copied into the region")
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(got))
}

// adrPages recovers the signed 21-bit page immediate of an adrp word.
func adrPages(w uint32) int64 {
	imm := w>>29&3 | (w>>5&0x7ffff)<<2

	return int64(int32(imm<<11)) >> 11
}
