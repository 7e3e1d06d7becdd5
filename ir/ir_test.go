package ir

import "testing"

func TestCondInvert(t *testing.T) {
	for _, tc := range [][2]Cond{
		{EQ, NE}, {CS, CC}, {MI, PL}, {VS, VC},
		{HI, LS}, {GE, LT}, {GT, LE},
	} {
		if got := tc[0].Invert(); got != tc[1] {
			t.Errorf("%v inverted: %v, wanted %v", tc[0], got, tc[1])
		}
		if got := tc[1].Invert(); got != tc[0] {
			t.Errorf("%v inverted: %v, wanted %v", tc[1], got, tc[0])
		}
	}

	if AL.Invert() != AL || NV.Invert() != NV {
		t.Errorf("al/nv must invert to themselves")
	}
}

func TestCls(t *testing.T) {
	for _, tc := range []struct {
		c     Cls
		is64  bool
		isFlt bool
		s     string
	}{
		{W, false, false, "w"},
		{X, true, false, "x"},
		{S, false, true, "s"},
		{D, true, true, "d"},
	} {
		if tc.c.Is64() != tc.is64 || tc.c.IsFloat() != tc.isFlt || tc.c.String() != tc.s {
			t.Errorf("%v: is64 %v, float %v", tc.c, tc.c.Is64(), tc.c.IsFloat())
		}
	}
}

func TestNameAndStats(t *testing.T) {
	p := []Instr{
		FuncBegin{Name: "f"},
		ALU{Op: OpADD, Cls: X},
		ALU{Op: OpADD, Cls: W},
		ALUImm{Op: OpSUB, Cls: X},
		BCond{Cond: NE},
		MemPair{Load: true},
		Ret{},
		FuncEnd{},
	}

	st := Stats(p)

	for name, want := range map[string]int{
		"add":     2,
		"sub_imm": 1,
		"b.ne":    1,
		"ldp":     1,
		"ret":     1,
	} {
		if st[name] != want {
			t.Errorf("%v: %d, wanted %d", name, st[name], want)
		}
	}

	if !IsPseudo(FuncBegin{}) || IsPseudo(Ret{}) {
		t.Errorf("pseudo classification broken")
	}
}
