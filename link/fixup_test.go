package link

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/jit/asm/arm64"
	"github.com/slowlang/jit/ir"
)

// A conditional branch at 0x10 reaching 0x28 must decode to offset
// 0x18, and an unconditional one at 0x24 reaching 0x38 to 0x14.
func TestResolveFixupOffsets(t *testing.T) {
	p := []ir.Instr{
		ir.Nop{}, ir.Nop{}, ir.Nop{}, ir.Nop{},
		ir.BCond{Cond: ir.NE, Label: 0}, // 0x10
		ir.Nop{}, ir.Nop{}, ir.Nop{}, ir.Nop{},
		ir.B{Label: 1},        // 0x24
		ir.LabelDef{Label: 0}, // 0x28
		ir.Nop{}, ir.Nop{}, ir.Nop{}, ir.Nop{},
		ir.LabelDef{Label: 1}, // 0x38
		ir.Ret{},
	}

	f, err := arm64.Assemble(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, f.Fixups, 2)

	n, err := ResolveFixups(f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, int64(0x18), arm64.Branch19.Extract(f.Word32(0x10)))
	assert.Equal(t, int64(0x14), arm64.Branch26.Extract(f.Word32(0x24)))
}

func TestResolveFixupsUndefined(t *testing.T) {
	f := &arm64.Fragment{
		Text:   make([]byte, 4),
		Fixups: []arm64.Fixup{{Off: 0, Label: 3, Class: arm64.Branch26}},
	}

	_, err := ResolveFixups(f)
	assert.Error(t, err)
}
