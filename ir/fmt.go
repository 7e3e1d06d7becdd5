package ir

import "fmt"

// Name returns a short mnemonic-like name for a record, used for
// histograms and diagnostics.
func Name(x Instr) string {
	switch x := x.(type) {
	case LabelDef:
		return "label"
	case FuncBegin:
		return "func_begin"
	case FuncEnd:
		return "func_end"
	case SourceLoc:
		return "srcloc"
	case Comment:
		return "comment"
	case ALU:
		return aluName(x.Op)
	case ALUImm:
		return aluName(x.Op) + "_imm"
	case ShiftReg:
		return shiftName(x.Op) + "v"
	case ShiftImm:
		return shiftName(x.Op)
	case Mul:
		return "mul"
	case MulAdd:
		if x.Sub {
			return "msub"
		}
		return "madd"
	case Div:
		if x.Signed {
			return "sdiv"
		}
		return "udiv"
	case Neg:
		return "neg"
	case Ext:
		return [...]string{"sxtb", "uxtb", "sxth", "uxth", "sxtw", "uxtw"}[x.Op]
	case MovWide:
		return [...]string{"movz", "movn", "movk"}[x.Op]
	case MovImm:
		return "mov_imm"
	case MovReg:
		return "mov"
	case Cmp:
		if x.Neg {
			return "cmn"
		}
		return "cmp"
	case CmpImm:
		return "cmp_imm"
	case Tst:
		return "tst"
	case CSel:
		return "csel"
	case CSet:
		return "cset"
	case B:
		return "b"
	case BL:
		return "bl"
	case BCond:
		return "b." + x.Cond.String()
	case CBZ:
		if x.NonZero {
			return "cbnz"
		}
		return "cbz"
	case TBZ:
		if x.NonZero {
			return "tbnz"
		}
		return "tbz"
	case Br:
		return "br"
	case Blr:
		return "blr"
	case Ret:
		return "ret"
	case CallExt:
		return "call_ext"
	case Mem:
		return memName(x.Op)
	case MemReg:
		return memName(x.Op) + "_rr"
	case MemPair:
		if x.Load {
			return "ldp"
		}
		return "stp"
	case MemAtomic:
		return [...]string{"ldar", "stlr", "ldaddal", "swpal"}[x.Op]
	case Adr:
		if x.Page {
			return "adrp"
		}
		return "adr"
	case LoadAddr:
		return "load_addr"
	case FALU:
		return fopName(x.Op)
	case FUnary:
		return fopName(x.Op)
	case FCmp:
		return "fcmp"
	case FCvtF:
		return "fcvt"
	case FCvtZ:
		if x.Signed {
			return "fcvtzs"
		}
		return "fcvtzu"
	case ICvtF:
		if x.Signed {
			return "scvtf"
		}
		return "ucvtf"
	case FMovGF:
		return "fmov_gf"
	case VecALU:
		return "v" + vecName(x.Op)
	case VecDup:
		return "dup"
	case VecAddV:
		return "addv"
	case VecMem:
		if x.Load {
			return "ldr_q"
		}
		return "str_q"
	case Nop:
		return "nop"
	case Brk:
		return "brk"
	case Hint:
		return "hint"
	case DataStart:
		return "data_start"
	case DataEnd:
		return "data_end"
	case DataBytes:
		return "data_bytes"
	case DataInt:
		return "data_int"
	case DataZero:
		return "data_zero"
	case DataAlign:
		return "data_align"
	case DataSymRef:
		return "data_symref"
	}

	return fmt.Sprintf("%T", x)
}

// Stats counts records by Name over a stream.
func Stats(p []Instr) map[string]int {
	h := map[string]int{}

	for _, x := range p {
		h[Name(x)]++
	}

	return h
}

// IsPseudo reports whether a record emits no machine words of its own.
func IsPseudo(x Instr) bool {
	switch x.(type) {
	case LabelDef, FuncBegin, FuncEnd, SourceLoc, Comment,
		DataStart, DataEnd, DataBytes, DataInt, DataZero, DataAlign, DataSymRef:
		return true
	}

	return false
}

func aluName(op ALUOp) string {
	return [...]string{"add", "sub", "and", "orr", "eor"}[op]
}

func shiftName(op ShiftOp) string {
	return [...]string{"lsl", "lsr", "asr", "ror"}[op]
}

func memName(op MemOp) string {
	return [...]string{"ldr", "ldrb", "ldrh", "ldrsb", "ldrsh", "ldrsw", "str", "strb", "strh"}[op]
}

func fopName(op FOp) string {
	return [...]string{"fadd", "fsub", "fmul", "fdiv", "fmin", "fmax", "fmov", "fneg", "fabs", "fsqrt"}[op]
}

func vecName(op VecOp) string {
	return [...]string{"add", "sub", "mul", "div", "neg", "abs", "fma", "min", "max"}[op]
}
