package arm64

import (
	"tlog.app/go/errors"

	"github.com/slowlang/jit/ir"
)

// memForm describes one load/store op for one class: the scaled
// unsigned-offset base word, the unscaled (LDUR-style) base word, the
// register-offset base word and the transfer size in bytes.
type memForm struct {
	scaled   uint32
	unscaled uint32
	regoff   uint32
	size     int64
	fp       bool
}

func memFormOf(op ir.MemOp, cls ir.Cls) (memForm, error) {
	if cls.IsFloat() {
		// FP transfers exist only for plain LDR/STR.
		switch {
		case op == ir.LDR && cls == ir.S:
			return memForm{0xbd40_0000, 0xbc40_0000, 0xbc60_6800, 4, true}, nil
		case op == ir.LDR && cls == ir.D:
			return memForm{0xfd40_0000, 0xfc40_0000, 0xfc60_6800, 8, true}, nil
		case op == ir.STR && cls == ir.S:
			return memForm{0xbd00_0000, 0xbc00_0000, 0xbc20_6800, 4, true}, nil
		case op == ir.STR && cls == ir.D:
			return memForm{0xfd00_0000, 0xfc00_0000, 0xfc20_6800, 8, true}, nil
		}

		return memForm{}, errors.New("no float form for %v", op)
	}

	x64 := cls.Is64()

	switch op {
	case ir.LDR:
		if x64 {
			return memForm{0xf940_0000, 0xf840_0000, 0xf860_6800, 8, false}, nil
		}
		return memForm{0xb940_0000, 0xb840_0000, 0xb860_6800, 4, false}, nil
	case ir.STR:
		if x64 {
			return memForm{0xf900_0000, 0xf800_0000, 0xf820_6800, 8, false}, nil
		}
		return memForm{0xb900_0000, 0xb800_0000, 0xb820_6800, 4, false}, nil
	case ir.LDRB:
		return memForm{0x3940_0000, 0x3840_0000, 0x3860_6800, 1, false}, nil
	case ir.STRB:
		return memForm{0x3900_0000, 0x3800_0000, 0x3820_6800, 1, false}, nil
	case ir.LDRH:
		return memForm{0x7940_0000, 0x7840_0000, 0x7860_6800, 2, false}, nil
	case ir.STRH:
		return memForm{0x7900_0000, 0x7800_0000, 0x7820_6800, 2, false}, nil
	case ir.LDRSB:
		if x64 {
			return memForm{0x3980_0000, 0x3880_0000, 0x38a0_6800, 1, false}, nil
		}
		return memForm{0x39c0_0000, 0x38c0_0000, 0x38e0_6800, 1, false}, nil
	case ir.LDRSH:
		if x64 {
			return memForm{0x7980_0000, 0x7880_0000, 0x78a0_6800, 2, false}, nil
		}
		return memForm{0x79c0_0000, 0x78c0_0000, 0x78e0_6800, 2, false}, nil
	case ir.LDRSW:
		return memForm{0xb980_0000, 0xb880_0000, 0xb8a0_6800, 4, false}, nil
	}

	return memForm{}, errors.New("bad memory op: %d", op)
}

func encMem(x ir.Mem) (uint32, error) {
	f, err := memFormOf(x.Op, x.Cls)
	if err != nil {
		return 0, err
	}

	rt, err := memRt(f, x.Rt)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn) // 31 is SP as a base
	if err != nil {
		return 0, err
	}

	if x.Off >= 0 && x.Off%f.size == 0 && x.Off/f.size <= 0xfff {
		return f.scaled | uint32(x.Off/f.size)<<10 | rn<<5 | rt, nil
	}

	if x.Off >= -256 && x.Off <= 255 {
		return f.unscaled | (uint32(x.Off)&0x1ff)<<12 | rn<<5 | rt, nil
	}

	return 0, errors.New("memory offset %d not encodable for %v", x.Off, x.Op)
}

func encMemReg(x ir.MemReg) (uint32, error) {
	f, err := memFormOf(x.Op, x.Cls)
	if err != nil {
		return 0, err
	}

	rt, err := memRt(f, x.Rt)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}
	rm, err := gpr(x.Rm)
	if err != nil {
		return 0, err
	}

	return f.regoff | rm<<16 | rn<<5 | rt, nil
}

func memRt(f memForm, rt ir.Reg) (uint32, error) {
	if f.fp {
		return fpr(ir.VReg(rt))
	}

	return gprZR(rt)
}

func encMemPair(x ir.MemPair) (uint32, error) {
	var opc, v uint32
	var scale int64

	switch x.Cls {
	case ir.W:
		opc, scale = 0, 4
	case ir.X:
		opc, scale = 2, 8
	case ir.S:
		opc, v, scale = 0, 1, 4
	case ir.D:
		opc, v, scale = 1, 1, 8
	default:
		return 0, errors.New("bad pair class: %v", x.Cls)
	}

	var rt, rt2 uint32
	var err error

	if v == 1 {
		rt, err = fpr(ir.VReg(x.Rt))
		if err == nil {
			rt2, err = fpr(ir.VReg(x.Rt2))
		}
	} else {
		rt, err = gprZR(x.Rt)
		if err == nil {
			rt2, err = gprZR(x.Rt2)
		}
	}
	if err != nil {
		return 0, err
	}

	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	var mode uint32

	switch x.Index {
	case ir.NoIndex:
		mode = 0b010
	case ir.PreIndex:
		mode = 0b011
	case ir.PostIndex:
		mode = 0b001
	default:
		return 0, errors.New("bad pair index mode: %d", x.Index)
	}

	if x.Off%scale != 0 {
		return 0, errors.New("pair offset %d not a multiple of %d", x.Off, scale)
	}

	imm := x.Off / scale
	if imm < -64 || imm > 63 {
		return 0, errors.New("pair offset %d out of 7-bit scaled range", x.Off)
	}

	var l uint32
	if x.Load {
		l = 1
	}

	w := opc<<30 | 0b101<<27 | v<<26 | mode<<23 | l<<22 |
		(uint32(imm)&0x7f)<<15 | rt2<<10 | rn<<5 | rt

	return w, nil
}

func encMemAtomic(x ir.MemAtomic) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rt, err := gprZR(x.Rt)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	var big uint32
	if x.Cls.Is64() {
		big = 1 << 30
	}

	switch x.Op {
	case ir.LDAR:
		return 0x88df_fc00 | big | rn<<5 | rt, nil
	case ir.STLR:
		return 0x889f_fc00 | big | rn<<5 | rt, nil
	}

	rs, err := gprZR(x.Rs)
	if err != nil {
		return 0, err
	}

	switch x.Op {
	case ir.LDADDAL:
		return 0xb8e0_0000 | big | rs<<16 | rn<<5 | rt, nil
	case ir.SWPAL:
		return 0xb8e0_8000 | big | rs<<16 | rn<<5 | rt, nil
	}

	return 0, errors.New("bad atomic op: %d", x.Op)
}
