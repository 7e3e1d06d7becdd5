package arm64

import (
	"context"
	"testing"

	"github.com/slowlang/jit/ir"
)

func TestBackwardBranch(t *testing.T) {
	f := testAssemble(t, []ir.Instr{
		ir.LabelDef{Label: 0},
		ir.Nop{},
		ir.Nop{},
		ir.B{Label: 0},
	})

	if len(f.Fixups) != 0 {
		t.Errorf("backward branch produced %d fixups", len(f.Fixups))
	}

	if w := f.Word32(8); w != 0x17fffffe { // b .-8
		t.Errorf("branch word %08x, wanted 17fffffe", w)
	}
}

func TestForwardBranchFixup(t *testing.T) {
	f := testAssemble(t, []ir.Instr{
		ir.CBZ{Cls: ir.X, Rt: 0, Label: 0},
		ir.Nop{},
		ir.LabelDef{Label: 0},
		ir.Ret{},
	})

	if len(f.Fixups) != 1 {
		t.Fatalf("fixups: %d, wanted 1", len(f.Fixups))
	}

	fx := f.Fixups[0]

	if fx.Off != 0 || fx.Label != 0 || fx.Class != Branch19 {
		t.Errorf("fixup %+v, wanted off 0, label 0, b19", fx)
	}

	if off, ok := f.LabelOff(0); !ok || off != 8 {
		t.Errorf("label off %d (%v), wanted 8", off, ok)
	}

	// placeholder keeps a zero immediate
	if d := Branch19.Extract(f.Word32(0)); d != 0 {
		t.Errorf("placeholder delta %#x, wanted 0", d)
	}
}

func TestMovImmExpansion(t *testing.T) {
	for _, tc := range []struct {
		name string
		imm  int64
		want []uint32
	}{
		{"zero", 0, []uint32{0xd2800000}},
		{"small", 0x1234, []uint32{0xd2824680}},
		{"minus one", -1, []uint32{0x92800000}},
		{"high chunk", 0x1_0000_0000, []uint32{0xd2c00020}},
		{"two chunks", 0x12345678, []uint32{0xd28acf00, 0xf2a24680}},
		{"mostly ones", -0x1235, []uint32{0x92824680}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := testAssemble(t, []ir.Instr{ir.MovImm{Cls: ir.X, Rd: 0, Imm: tc.imm}})

			if len(f.Text) != len(tc.want)*4 {
				t.Fatalf("%d words, wanted %d", len(f.Text)/4, len(tc.want))
			}

			for i, want := range tc.want {
				if w := f.Word32(i * 4); w != want {
					t.Errorf("word %d: %08x, wanted %08x", i, w, want)
				}
			}
		})
	}
}

func TestLabelErrors(t *testing.T) {
	_, err := Assemble(context.Background(), []ir.Instr{
		ir.LabelDef{Label: 0},
		ir.LabelDef{Label: 0},
	})
	if err == nil {
		t.Errorf("duplicate label accepted")
	}

	_, err = Assemble(context.Background(), []ir.Instr{
		ir.B{Label: 7},
		ir.Ret{},
	})
	if err == nil {
		t.Errorf("undefined label accepted")
	}
}

func TestSymbolErrors(t *testing.T) {
	_, err := Assemble(context.Background(), []ir.Instr{
		ir.FuncBegin{Name: "f"},
		ir.Ret{},
		ir.FuncEnd{},
		ir.FuncBegin{Name: "f"},
		ir.Ret{},
		ir.FuncEnd{},
	})
	if err == nil {
		t.Errorf("duplicate symbol accepted")
	}
}

func TestDataBlock(t *testing.T) {
	f := testAssemble(t, []ir.Instr{
		ir.DataStart{Name: "tbl"},
		ir.DataInt{Size: 4, Value: 42},
		ir.DataAlign{N: 8},
		ir.DataSymRef{Sym: "tbl"},
		ir.DataEnd{},
		ir.FuncBegin{Name: "f"},
		ir.LoadAddr{Rd: 0, Sym: "tbl"},
		ir.Ret{},
		ir.FuncEnd{},
	})

	s, ok := f.Syms["tbl"]
	if !ok || s.Region != RegionData || s.Off != 0 {
		t.Errorf("tbl sym: %+v (%v)", s, ok)
	}

	if len(f.Data) != 16 {
		t.Errorf("data size %d, wanted 16", len(f.Data))
	}

	if len(f.Relocs) != 2 {
		t.Fatalf("relocs: %d, wanted 2", len(f.Relocs))
	}

	if r := f.Relocs[0]; r.Kind != RelocAbs64 || r.Off != 8 || r.Sym != "tbl" {
		t.Errorf("data reloc %+v, wanted abs64 at 8", r)
	}
	if r := f.Relocs[1]; r.Kind != RelocPagePair || r.Off != 0 || r.Sym != "tbl" {
		t.Errorf("code reloc %+v, wanted page pair at 0", r)
	}
}

func TestDataBlockErrors(t *testing.T) {
	_, err := Assemble(context.Background(), []ir.Instr{
		ir.DataInt{Size: 4, Value: 1},
	})
	if err == nil {
		t.Errorf("data directive outside block accepted")
	}

	_, err = Assemble(context.Background(), []ir.Instr{
		ir.DataStart{Name: "d"},
		ir.Nop{},
	})
	if err == nil {
		t.Errorf("code inside data block accepted")
	}

	_, err = Assemble(context.Background(), []ir.Instr{
		ir.DataStart{Name: "d"},
		ir.DataStart{Name: "e"},
	})
	if err == nil {
		t.Errorf("nested data block accepted")
	}

	_, err = Assemble(context.Background(), []ir.Instr{
		ir.DataStart{Name: "d"},
		ir.DataInt{Size: 1, Value: 300},
	})
	if err == nil {
		t.Errorf("oversized data int accepted")
	}
}

func TestSourceMap(t *testing.T) {
	f := testAssemble(t, []ir.Instr{
		ir.SourceLoc{Line: 1, Col: 1},
		ir.Nop{},
		ir.Nop{},
		ir.SourceLoc{Line: 2, Col: 5},
		ir.Ret{},
	})

	want := []SrcEntry{
		{Off: 0, Line: 1, Col: 1},
		{Off: 8, Line: 2, Col: 5},
	}

	if len(f.SrcMap) != len(want) {
		t.Fatalf("src map: %+v", f.SrcMap)
	}

	for i, w := range want {
		if f.SrcMap[i] != w {
			t.Errorf("entry %d: %+v, wanted %+v", i, f.SrcMap[i], w)
		}
	}
}

func TestExternalCalls(t *testing.T) {
	f := testAssemble(t, []ir.Instr{
		ir.CallExt{Sym: "foo"},
		ir.CallExt{Sym: "bar"},
		ir.CallExt{Sym: "foo"},
		ir.Ret{},
	})

	if len(f.Calls) != 3 {
		t.Fatalf("calls: %d, wanted 3", len(f.Calls))
	}

	for i, want := range []ExtCall{
		{Off: 0, Sym: "foo", Index: 0},
		{Off: 4, Sym: "bar", Index: 1},
		{Off: 8, Sym: "foo", Index: 2},
	} {
		if f.Calls[i] != want {
			t.Errorf("call %d: %+v, wanted %+v", i, f.Calls[i], want)
		}
	}
}

func testAssemble(t *testing.T, p []ir.Instr) *Fragment {
	t.Helper()

	f, err := Assemble(context.Background(), p)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	return f
}
