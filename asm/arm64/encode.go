package arm64

import (
	"tlog.app/go/errors"

	"github.com/slowlang/jit/ir"
)

// Pure word builders. Each returns the fully encoded 32-bit instruction
// word, or an error when an operand cannot be represented. Branch words
// are built with a zero immediate and patched via BranchClass.Patch.

func sf(c ir.Cls) uint32 {
	if c.Is64() {
		return 1 << 31
	}

	return 0
}

func gpr(r ir.Reg) (uint32, error) {
	if r < 0 || r > 30 {
		return 0, errors.New("bad general register: %d", int(r))
	}

	return uint32(r), nil
}

// gprZR also admits 31 (ZR or SP depending on the form).
func gprZR(r ir.Reg) (uint32, error) {
	if r < 0 || r > 31 {
		return 0, errors.New("bad general register: %d", int(r))
	}

	return uint32(r), nil
}

func fpr(r ir.VReg) (uint32, error) {
	if r < 0 || r > 31 {
		return 0, errors.New("bad vector register: %d", int(r))
	}

	return uint32(r), nil
}

func intCls(c ir.Cls) error {
	if c.IsFloat() {
		return errors.New("integer class required, got %v", c)
	}

	return nil
}

func fltCls(c ir.Cls) error {
	if !c.IsFloat() {
		return errors.New("float class required, got %v", c)
	}

	return nil
}

// ftype is the scalar FP type field at bits 22-23: S=00, D=01.
func ftype(c ir.Cls) uint32 {
	if c == ir.D {
		return 1 << 22
	}

	return 0
}

func encALU(x ir.ALU) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gprZR(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gprZR(x.Rm)
	if err != nil {
		return 0, err
	}

	var base uint32

	switch x.Op {
	case ir.OpADD:
		base = 0x0b00_0000
	case ir.OpSUB:
		base = 0x4b00_0000
	case ir.OpAND:
		base = 0x0a00_0000
	case ir.OpORR:
		base = 0x2a00_0000
	case ir.OpEOR:
		base = 0x4a00_0000
	default:
		return 0, errors.New("bad alu op: %d", x.Op)
	}

	// ror exists only in the logical shifted-register form
	if x.Shift > ir.ROR || (x.Op == ir.OpADD || x.Op == ir.OpSUB) && x.Shift == ir.ROR {
		return 0, errors.New("bad shift %d for alu op", x.Shift)
	}

	lim := 31
	if x.Cls.Is64() {
		lim = 63
	}
	if x.Amount < 0 || x.Amount > lim {
		return 0, errors.New("shift amount %d out of range 0..%d", x.Amount, lim)
	}

	w := base | sf(x.Cls) | uint32(x.Shift)<<22 | rm<<16 | uint32(x.Amount)<<10 | rn<<5 | rd

	return w, nil
}

func encALUImm(x ir.ALUImm) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gprZR(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	var base uint32

	switch x.Op {
	case ir.OpADD:
		base = 0x1100_0000
	case ir.OpSUB:
		base = 0x5100_0000
	default:
		return 0, errors.New("op %d has no immediate form", x.Op)
	}

	imm, sh := x.Imm, uint32(0)
	if imm > 0xfff {
		if imm&0xfff != 0 || imm > 0xfff_000 {
			return 0, errors.New("immediate %#x not encodable in 12 bits (optionally shifted)", x.Imm)
		}

		imm, sh = imm>>12, 1
	}

	return base | sf(x.Cls) | sh<<22 | imm<<10 | rn<<5 | rd, nil
}

func encShiftReg(x ir.ShiftReg) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gpr(x.Rm)
	if err != nil {
		return 0, err
	}

	if x.Op > ir.ROR {
		return 0, errors.New("bad shift op: %d", x.Op)
	}

	return 0x1ac0_2000 | sf(x.Cls) | rm<<16 | uint32(x.Op)<<10 | rn<<5 | rd, nil
}

func encShiftImm(x ir.ShiftImm) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}

	width := 32
	ubfm := uint32(0x5300_0000)
	sbfm := uint32(0x1300_0000)
	if x.Cls.Is64() {
		width = 64
		ubfm = 0xd340_0000 // sf=1 N=1
		sbfm = 0x9340_0000
	}

	if x.Amount < 0 || x.Amount >= width {
		return 0, errors.New("shift amount %d out of range 0..%d", x.Amount, width-1)
	}

	sh := uint32(x.Amount)

	switch x.Op {
	case ir.LSL:
		immr := uint32(width-x.Amount) % uint32(width)
		imms := uint32(width-1) - sh

		return ubfm | immr<<16 | imms<<10 | rn<<5 | rd, nil
	case ir.LSR:
		return ubfm | sh<<16 | uint32(width-1)<<10 | rn<<5 | rd, nil
	case ir.ASR:
		return sbfm | sh<<16 | uint32(width-1)<<10 | rn<<5 | rd, nil
	}

	return 0, errors.New("bad immediate shift op: %d", x.Op)
}

func encMul(x ir.Mul) (uint32, error) {
	return encMulAdd(ir.MulAdd{Cls: x.Cls, Rd: x.Rd, Rn: x.Rn, Rm: x.Rm, Ra: ir.XZR})
}

func encMulAdd(x ir.MulAdd) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gpr(x.Rm)
	if err != nil {
		return 0, err
	}
	ra, err := gprZR(x.Ra)
	if err != nil {
		return 0, err
	}

	w := uint32(0x1b00_0000) | sf(x.Cls) | rm<<16 | ra<<10 | rn<<5 | rd
	if x.Sub {
		w |= 1 << 15
	}

	return w, nil
}

func encDiv(x ir.Div) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gpr(x.Rm)
	if err != nil {
		return 0, err
	}

	w := uint32(0x1ac0_0800) | sf(x.Cls) | rm<<16 | rn<<5 | rd
	if x.Signed {
		w |= 1 << 10
	}

	return w, nil
}

func encNeg(x ir.Neg) (uint32, error) {
	// SUB rd, zr, rn
	return encALU(ir.ALU{Op: ir.OpSUB, Cls: x.Cls, Rd: x.Rd, Rn: ir.XZR, Rm: x.Rn})
}

func encExt(x ir.Ext) (uint32, error) {
	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}

	var w uint32

	switch x.Op {
	case ir.SXTB:
		w = 0x9340_1c00 // sbfm xd, xn, #0, #7
	case ir.SXTH:
		w = 0x9340_3c00
	case ir.SXTW:
		w = 0x9340_7c00
	case ir.UXTB:
		w = 0x5300_1c00 // ubfm wd, wn, #0, #7
	case ir.UXTH:
		w = 0x5300_3c00
	case ir.UXTW:
		return 0x2a00_03e0 | rn<<16 | rd, nil // mov wd, wn
	default:
		return 0, errors.New("bad extend op: %d", x.Op)
	}

	return w | rn<<5 | rd, nil
}

func encMovWide(x ir.MovWide) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}

	var base uint32

	switch x.Op {
	case ir.MOVZ:
		base = 0x5280_0000
	case ir.MOVN:
		base = 0x1280_0000
	case ir.MOVK:
		base = 0x7280_0000
	default:
		return 0, errors.New("bad wide move op: %d", x.Op)
	}

	lim := 16
	if x.Cls.Is64() {
		lim = 48
	}
	if x.Shift < 0 || x.Shift > lim || x.Shift%16 != 0 {
		return 0, errors.New("bad wide move shift: %d", x.Shift)
	}

	return base | sf(x.Cls) | uint32(x.Shift/16)<<21 | uint32(x.Imm)<<5 | rd, nil
}

func encMovReg(x ir.MovReg) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	if x.Rd == ir.SP || x.Rn == ir.SP {
		// add rd, rn, #0 reads and writes SP
		return encALUImm(ir.ALUImm{Op: ir.OpADD, Cls: x.Cls, Rd: x.Rd, Rn: x.Rn})
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}

	return 0x2a00_03e0 | sf(x.Cls) | rn<<16 | rd, nil // orr rd, zr, rn
}

func encCmp(x ir.Cmp) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gprZR(x.Rm)
	if err != nil {
		return 0, err
	}

	base := uint32(0x6b00_001f) // subs zr, rn, rm
	if x.Neg {
		base = 0x2b00_001f // adds zr, rn, rm
	}

	return base | sf(x.Cls) | rm<<16 | rn<<5, nil
}

func encCmpImm(x ir.CmpImm) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	if x.Imm > 0xfff {
		return 0, errors.New("compare immediate %#x out of 12-bit range", x.Imm)
	}

	return 0x7100_001f | sf(x.Cls) | x.Imm<<10 | rn<<5, nil // subs zr, rn, #imm
}

func encTst(x ir.Tst) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gprZR(x.Rm)
	if err != nil {
		return 0, err
	}

	return 0x6a00_001f | sf(x.Cls) | rm<<16 | rn<<5, nil // ands zr, rn, rm
}

func encCSel(x ir.CSel) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gprZR(x.Rm)
	if err != nil {
		return 0, err
	}

	return 0x1a80_0000 | sf(x.Cls) | rm<<16 | uint32(x.Cond)<<12 | rn<<5 | rd, nil
}

func encCSet(x ir.CSet) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}

	if x.Cond >= ir.AL {
		return 0, errors.New("cset condition %v not invertible", x.Cond)
	}

	// csinc rd, zr, zr, inv(cond)
	return 0x1a9f_07e0 | sf(x.Cls) | uint32(x.Cond.Invert())<<12 | rd, nil
}

// Branch words with zero immediates; the caller patches the offset.

func encB() uint32 { return 0x1400_0000 }

func encBL() uint32 { return 0x9400_0000 }

func encRet() uint32 { return 0xd65f_03c0 }

func encNop() uint32 { return 0xd503_201f }

func encBCond(x ir.BCond) (uint32, error) {
	if x.Cond > ir.NV {
		return 0, errors.New("bad condition: %d", x.Cond)
	}

	return 0x5400_0000 | uint32(x.Cond), nil
}

func encCBZ(x ir.CBZ) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rt, err := gpr(x.Rt)
	if err != nil {
		return 0, err
	}

	w := uint32(0x3400_0000) | sf(x.Cls) | rt
	if x.NonZero {
		w |= 1 << 24
	}

	return w, nil
}

func encTBZ(x ir.TBZ) (uint32, error) {
	rt, err := gpr(x.Rt)
	if err != nil {
		return 0, err
	}

	if x.Bit < 0 || x.Bit > 63 {
		return 0, errors.New("test bit %d out of range 0..63", x.Bit)
	}

	w := uint32(0x3600_0000) | uint32(x.Bit>>5)<<31 | uint32(x.Bit&31)<<19 | rt
	if x.NonZero {
		w |= 1 << 24
	}

	return w, nil
}

func encBr(x ir.Br) (uint32, error) {
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}

	return 0xd61f_0000 | rn<<5, nil
}

func encBlr(x ir.Blr) (uint32, error) {
	rn, err := gpr(x.Rn)
	if err != nil {
		return 0, err
	}

	return 0xd63f_0000 | rn<<5, nil
}

func encBrk(x ir.Brk) uint32 {
	return 0xd420_0000 | uint32(x.Imm)<<5
}

func encHint(x ir.Hint) (uint32, error) {
	if x.Imm < 0 || x.Imm > 127 {
		return 0, errors.New("hint %d out of range 0..127", x.Imm)
	}

	return 0xd503_2000 | uint32(x.Imm)<<5 | 0x1f, nil
}

// encAdr builds ADR/ADRP with a zero delta; the linker patches it.
func encAdr(page bool, rd ir.Reg) (uint32, error) {
	r, err := gpr(rd)
	if err != nil {
		return 0, err
	}

	if page {
		return 0x9000_0000 | r, nil
	}

	return 0x1000_0000 | r, nil
}

// encAddLo builds the ADD immediate companion of an ADRP with a zero
// low offset.
func encAddLo(rd ir.Reg) (uint32, error) {
	return encALUImm(ir.ALUImm{Op: ir.OpADD, Cls: ir.X, Rd: rd, Rn: rd})
}

// PatchAdr inserts a page delta (in pages) into an ADR/ADRP word.
func PatchAdr(w uint32, pages int64) (uint32, error) {
	if pages < -(1<<20) || pages >= 1<<20 {
		return 0, errors.New("page delta %d out of ±1M page range", pages)
	}

	imm := uint32(pages) & (1<<21 - 1)

	w &^= uint32(3)<<29 | (1<<19-1)<<5

	return w | (imm&3)<<29 | (imm>>2)<<5, nil
}

// PatchAddLo inserts the in-page byte offset into an ADD immediate word.
func PatchAddLo(w uint32, off int64) (uint32, error) {
	if off < 0 || off > 0xfff {
		return 0, errors.New("page offset %#x out of 12-bit range", off)
	}

	return w&^(uint32(0xfff)<<10) | uint32(off)<<10, nil
}
