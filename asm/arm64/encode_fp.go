package arm64

import (
	"tlog.app/go/errors"

	"github.com/slowlang/jit/ir"
)

func encFALU(x ir.FALU) (uint32, error) {
	if err := fltCls(x.Cls); err != nil {
		return 0, err
	}

	fd, err := fpr(x.Fd)
	if err != nil {
		return 0, err
	}
	fn, err := fpr(x.Fn)
	if err != nil {
		return 0, err
	}
	fm, err := fpr(x.Fm)
	if err != nil {
		return 0, err
	}

	var base uint32

	switch x.Op {
	case ir.FADD:
		base = 0x1e20_2800
	case ir.FSUB:
		base = 0x1e20_3800
	case ir.FMUL:
		base = 0x1e20_0800
	case ir.FDIV:
		base = 0x1e20_1800
	case ir.FMAX:
		base = 0x1e20_4800
	case ir.FMIN:
		base = 0x1e20_5800
	default:
		return 0, errors.New("bad float op: %d", x.Op)
	}

	return base | ftype(x.Cls) | fm<<16 | fn<<5 | fd, nil
}

func encFUnary(x ir.FUnary) (uint32, error) {
	if err := fltCls(x.Cls); err != nil {
		return 0, err
	}

	fd, err := fpr(x.Fd)
	if err != nil {
		return 0, err
	}
	fn, err := fpr(x.Fn)
	if err != nil {
		return 0, err
	}

	var base uint32

	switch x.Op {
	case ir.FMOV:
		base = 0x1e20_4000
	case ir.FABS:
		base = 0x1e20_c000
	case ir.FNEG:
		base = 0x1e21_4000
	case ir.FSQRT:
		base = 0x1e21_c000
	default:
		return 0, errors.New("bad float unary op: %d", x.Op)
	}

	return base | ftype(x.Cls) | fn<<5 | fd, nil
}

func encFCmp(x ir.FCmp) (uint32, error) {
	if err := fltCls(x.Cls); err != nil {
		return 0, err
	}

	fn, err := fpr(x.Fn)
	if err != nil {
		return 0, err
	}
	fm, err := fpr(x.Fm)
	if err != nil {
		return 0, err
	}

	return 0x1e20_2000 | ftype(x.Cls) | fm<<16 | fn<<5, nil
}

func encFCvtF(x ir.FCvtF) (uint32, error) {
	fd, err := fpr(x.Fd)
	if err != nil {
		return 0, err
	}
	fn, err := fpr(x.Fn)
	if err != nil {
		return 0, err
	}

	if x.ToDouble {
		return 0x1e22_c000 | fn<<5 | fd, nil // fcvt dd, sn
	}

	return 0x1e62_4000 | fn<<5 | fd, nil // fcvt sd, dn
}

func encFCvtZ(x ir.FCvtZ) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}
	if err := fltCls(x.FCls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	fn, err := fpr(x.Fn)
	if err != nil {
		return 0, err
	}

	w := uint32(0x1e38_0000) | sf(x.Cls) | ftype(x.FCls) | fn<<5 | rd
	if !x.Signed {
		w |= 1 << 16
	}

	return w, nil
}

func encICvtF(x ir.ICvtF) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}
	if err := fltCls(x.FCls); err != nil {
		return 0, err
	}

	fd, err := fpr(x.Fd)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	w := uint32(0x1e22_0000) | sf(x.Cls) | ftype(x.FCls) | rn<<5 | fd
	if !x.Signed {
		w |= 1 << 16
	}

	return w, nil
}

func encFMovGF(x ir.FMovGF) (uint32, error) {
	if err := intCls(x.Cls); err != nil {
		return 0, err
	}

	rd, err := gpr(x.Rd)
	if err != nil {
		return 0, err
	}
	vd, err := fpr(x.Vd)
	if err != nil {
		return 0, err
	}

	// W pairs with S, X with D.
	var w uint32
	if x.Cls.Is64() {
		w = 0x9e66_0000
	} else {
		w = 0x1e26_0000
	}

	if x.ToFP {
		w |= 1 << 16

		return w | rd<<5 | vd, nil
	}

	return w | vd<<5 | rd, nil
}

// NEON. All operands are 128-bit (Q=1).

func arrSize(a ir.Arr) (uint32, error) {
	switch a {
	case ir.Arr16B:
		return 0, nil
	case ir.Arr8H:
		return 1, nil
	case ir.Arr4S, ir.Arr4SF:
		return 2, nil
	case ir.Arr2D, ir.Arr2DF:
		return 3, nil
	}

	return 0, errors.New("bad arrangement: %d", a)
}

// fsz is the float size bit for float arrangements: 4SF=0, 2DF=1.
func fsz(a ir.Arr) uint32 {
	if a == ir.Arr2DF {
		return 1 << 22
	}

	return 0
}

func encVecALU(x ir.VecALU) (uint32, error) {
	vd, err := fpr(x.Vd)
	if err != nil {
		return 0, err
	}
	vn, err := fpr(x.Vn)
	if err != nil {
		return 0, err
	}

	size, err := arrSize(x.Arr)
	if err != nil {
		return 0, err
	}

	unary := x.Op == ir.VNEG || x.Op == ir.VABS

	var vm uint32
	if !unary {
		vm, err = fpr(x.Vm)
		if err != nil {
			return 0, err
		}
	}

	if x.Arr.IsFloat() {
		var base uint32

		switch x.Op {
		case ir.VADD:
			base = 0x4e20_d400
		case ir.VSUB:
			base = 0x4ea0_d400
		case ir.VMUL:
			base = 0x6e20_dc00
		case ir.VDIV:
			base = 0x6e20_fc00
		case ir.VFMA:
			base = 0x4e20_cc00
		case ir.VMIN:
			base = 0x4ea0_f400
		case ir.VMAX:
			base = 0x4e20_f400
		case ir.VNEG:
			return 0x6ea0_f800 | fsz2d(x.Arr) | vn<<5 | vd, nil
		case ir.VABS:
			return 0x4ea0_f800 | fsz2d(x.Arr) | vn<<5 | vd, nil
		default:
			return 0, errors.New("bad vector float op: %d", x.Op)
		}

		return base | fsz(x.Arr) | vm<<16 | vn<<5 | vd, nil
	}

	var base uint32

	switch x.Op {
	case ir.VADD:
		base = 0x4e20_8400
	case ir.VSUB:
		base = 0x6e20_8400
	case ir.VMUL:
		base = 0x4e20_9c00
	case ir.VFMA:
		base = 0x4e20_9400 // mla
	case ir.VMIN:
		base = 0x4e20_6c00 // smin
	case ir.VMAX:
		base = 0x4e20_6400 // smax
	case ir.VNEG:
		return 0x6e20_b800 | size<<22 | vn<<5 | vd, nil
	case ir.VABS:
		return 0x4e20_b800 | size<<22 | vn<<5 | vd, nil
	case ir.VDIV:
		return 0, errors.New("integer vector division is not available")
	default:
		return 0, errors.New("bad vector op: %d", x.Op)
	}

	if x.Arr == ir.Arr2D && x.Op != ir.VADD && x.Op != ir.VSUB {
		return 0, errors.New("%v has no 2d arrangement", ir.Name(x))
	}

	return base | size<<22 | vm<<16 | vn<<5 | vd, nil
}

// fsz2d is the sz bit for two-register float ops where it lives in bit 22.
func fsz2d(a ir.Arr) uint32 {
	if a == ir.Arr2DF {
		return 1 << 22
	}

	return 0
}

func encVecDup(x ir.VecDup) (uint32, error) {
	vd, err := fpr(x.Vd)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	var imm5 uint32

	switch x.Arr {
	case ir.Arr16B:
		imm5 = 0b00001
	case ir.Arr8H:
		imm5 = 0b00010
	case ir.Arr4S, ir.Arr4SF:
		imm5 = 0b00100
	case ir.Arr2D, ir.Arr2DF:
		imm5 = 0b01000
	default:
		return 0, errors.New("bad arrangement: %d", x.Arr)
	}

	return 0x4e00_0c00 | imm5<<16 | rn<<5 | vd, nil
}

// encVecAddV builds the two-word horizontal-sum sequence: a cross-lane
// reduce into lane 0, then a move of lane 0 to the general register.
func encVecAddV(x ir.VecAddV) ([2]uint32, error) {
	rd, err := gpr(x.Rd)
	if err != nil {
		return [2]uint32{}, err
	}
	vn, err := fpr(x.Vn)
	if err != nil {
		return [2]uint32{}, err
	}

	if x.Arr.IsFloat() {
		return [2]uint32{}, errors.New("addv has no float arrangement")
	}

	switch x.Arr {
	case ir.Arr16B:
		return [2]uint32{
			0x4e31_b800 | vn<<5 | vn, // addv b, v.16b (reduce in place)
			0x0e01_3c00 | vn<<5 | rd, // umov wd, v.b[0]
		}, nil
	case ir.Arr8H:
		return [2]uint32{
			0x4e71_b800 | vn<<5 | vn,
			0x0e02_3c00 | vn<<5 | rd, // umov wd, v.h[0]
		}, nil
	case ir.Arr4S:
		return [2]uint32{
			0x4eb1_b800 | vn<<5 | vn,
			0x0e04_3c00 | vn<<5 | rd, // umov wd, v.s[0]
		}, nil
	case ir.Arr2D:
		return [2]uint32{
			0x5ef1_b800 | vn<<5 | vn, // addp d, v.2d
			0x4e08_3c00 | vn<<5 | rd, // umov xd, v.d[0]
		}, nil
	}

	return [2]uint32{}, errors.New("bad arrangement: %d", x.Arr)
}

func encVecMem(x ir.VecMem) (uint32, error) {
	vt, err := fpr(x.Vt)
	if err != nil {
		return 0, err
	}
	rn, err := gprZR(x.Rn)
	if err != nil {
		return 0, err
	}

	if x.Load {
		return 0x3dc0_0000 | rn<<5 | vt, nil // ldr qt, [xn]
	}

	return 0x3d80_0000 | rn<<5 | vt, nil // str qt, [xn]
}
