// Package ir defines the flat, machine-independent instruction stream
// consumed by the arm64 encoder. It is produced by an external code
// generator after instruction selection and register allocation.
//
// The stream is an ordered []Instr. Every record is one of the closed set
// of variant structs below; the variant fully determines which operand
// fields are meaningful. Pseudo records (Label, FuncBegin, SourceLoc,
// data directives) emit no machine words by themselves.
package ir

type (
	// Reg is a general-purpose register number, 0..30.
	// Number 31 means SP or ZR depending on the instruction form,
	// exactly as in the architecture: immediate ALU forms and memory
	// bases read it as SP, register ALU forms as the zero register.
	Reg int

	// VReg is a SIMD/FP register number, 0..31.
	VReg int

	// Cls is the operand width/type class.
	Cls uint8

	// Label is a dense small-integer label id assigned by the producer.
	Label int

	// Instr is one instruction record. It is always one of the variant
	// structs in this package; the encoder matches the closed set and
	// rejects anything else.
	Instr any
)

const (
	FP  Reg = 29
	LR  Reg = 30
	SP  Reg = 31
	XZR Reg = 31
)

const (
	W Cls = iota // 32-bit integer
	X            // 64-bit integer
	S            // 32-bit float
	D            // 64-bit float
)

func (c Cls) Is64() bool { return c == X || c == D }

func (c Cls) IsFloat() bool { return c == S || c == D }

func (c Cls) String() string {
	switch c {
	case W:
		return "w"
	case X:
		return "x"
	case S:
		return "s"
	case D:
		return "d"
	}

	return "?"
}

// Operation selectors for grouped variants.

type (
	ALUOp    uint8
	ShiftOp  uint8
	MovOp    uint8
	ExtOp    uint8
	MemOp    uint8
	AtomicOp uint8
	FOp      uint8
	VecOp    uint8
	Index    uint8
)

const (
	OpADD ALUOp = iota
	OpSUB
	OpAND
	OpORR
	OpEOR
)

const (
	LSL ShiftOp = iota
	LSR
	ASR
	ROR
)

const (
	MOVZ MovOp = iota
	MOVN
	MOVK
)

const (
	SXTB ExtOp = iota
	UXTB
	SXTH
	UXTH
	SXTW
	UXTW
)

const (
	LDR MemOp = iota
	LDRB
	LDRH
	LDRSB
	LDRSH
	LDRSW
	STR
	STRB
	STRH
)

func (op MemOp) IsLoad() bool { return op < STR }

const (
	LDAR AtomicOp = iota // load-acquire
	STLR                 // store-release
	LDADDAL              // atomic add, acquire+release
	SWPAL                // atomic swap, acquire+release
)

const (
	FADD FOp = iota
	FSUB
	FMUL
	FDIV
	FMIN
	FMAX
	FMOV
	FNEG
	FABS
	FSQRT
)

const (
	VADD VecOp = iota
	VSUB
	VMUL
	VDIV // float arrangements only
	VNEG
	VABS
	VFMA
	VMIN
	VMAX
)

const (
	NoIndex Index = iota
	PreIndex
	PostIndex
)

// Pseudo records.

type (
	// LabelDef marks the current offset as the definition of Label.
	// A label id must be defined exactly once per stream.
	LabelDef struct {
		Label Label
	}

	// FuncBegin defines Name as an internal code symbol at the current
	// offset. FrameSize is informational; the producer emits the actual
	// prologue instructions itself.
	FuncBegin struct {
		Name      string
		FrameSize int
	}

	FuncEnd struct{}

	// SourceLoc appends a (code offset, line, col) entry to the source map.
	SourceLoc struct {
		Line int
		Col  int
	}

	Comment struct {
		Text string
	}
)

// Integer data processing.

type (
	// ALU is a three-register operation, optionally with a shifted last
	// operand: Rd = Rn op (Rm shift Amount).
	ALU struct {
		Op     ALUOp
		Cls    Cls
		Rd     Reg
		Rn     Reg
		Rm     Reg
		Shift  ShiftOp
		Amount int
	}

	// ALUImm is Rd = Rn op imm for ADD/SUB. Imm must fit in 12 bits,
	// or in 24 bits with the low 12 clear. Rd/Rn 31 means SP here.
	ALUImm struct {
		Op  ALUOp
		Cls Cls
		Rd  Reg
		Rn  Reg
		Imm uint32
	}

	// ShiftReg is a variable shift: Rd = Rn shift Rm.
	ShiftReg struct {
		Op  ShiftOp
		Cls Cls
		Rd  Reg
		Rn  Reg
		Rm  Reg
	}

	// ShiftImm is an immediate shift: Rd = Rn shift Amount.
	ShiftImm struct {
		Op     ShiftOp
		Cls    Cls
		Rd     Reg
		Rn     Reg
		Amount int
	}

	Mul struct {
		Cls Cls
		Rd  Reg
		Rn  Reg
		Rm  Reg
	}

	// MulAdd is Rd = Ra ± Rn*Rm (MADD, or MSUB when Sub is set).
	MulAdd struct {
		Sub bool
		Cls Cls
		Rd  Reg
		Rn  Reg
		Rm  Reg
		Ra  Reg
	}

	Div struct {
		Signed bool
		Cls    Cls
		Rd     Reg
		Rn     Reg
		Rm     Reg
	}

	Neg struct {
		Cls Cls
		Rd  Reg
		Rn  Reg
	}

	// Ext sign- or zero-extends a narrow value in Rn into Rd.
	Ext struct {
		Op ExtOp
		Rd Reg
		Rn Reg
	}
)

// Moves.

type (
	// MovWide is MOVZ/MOVN/MOVK: a 16-bit immediate at shift 0/16/32/48.
	MovWide struct {
		Op    MovOp
		Cls   Cls
		Rd    Reg
		Imm   uint16
		Shift int
	}

	// MovImm loads an arbitrary immediate, expanding to a MOVZ/MOVK run.
	MovImm struct {
		Cls Cls
		Rd  Reg
		Imm int64
	}

	// MovReg is a register move. If either side is SP the encoder uses
	// the ADD-immediate form, otherwise ORR with the zero register.
	MovReg struct {
		Cls Cls
		Rd  Reg
		Rn  Reg
	}
)

// Compare and conditional select.

type (
	// Cmp sets flags from Rn - Rm (or Rn + Rm when Neg, i.e. CMN).
	Cmp struct {
		Neg bool
		Cls Cls
		Rn  Reg
		Rm  Reg
	}

	CmpImm struct {
		Cls Cls
		Rn  Reg
		Imm uint32
	}

	// Tst sets flags from Rn & Rm.
	Tst struct {
		Cls Cls
		Rn  Reg
		Rm  Reg
	}

	CSel struct {
		Cls  Cls
		Rd   Reg
		Rn   Reg
		Rm   Reg
		Cond Cond
	}

	// CSet is Rd = Cond ? 1 : 0.
	CSet struct {
		Cls  Cls
		Rd   Reg
		Cond Cond
	}
)

// Branches.

type (
	B struct {
		Label Label
	}

	// BL is an intra-module call to a label.
	BL struct {
		Label Label
	}

	BCond struct {
		Cond  Cond
		Label Label
	}

	// CBZ branches if Rt is zero (nonzero when NonZero is set).
	CBZ struct {
		NonZero bool
		Cls     Cls
		Rt      Reg
		Label   Label
	}

	// TBZ branches on bit Bit of Rt being clear (set when NonZero).
	TBZ struct {
		NonZero bool
		Rt      Reg
		Bit     int
		Label   Label
	}

	Br struct {
		Rn Reg
	}

	Blr struct {
		Rn Reg
	}

	Ret struct{}

	// CallExt is a call to an external symbol by name. It is always
	// linked through a trampoline stub, never patched to the raw target.
	CallExt struct {
		Sym string
	}
)

// Loads and stores. For Cls S/D the transfer register indexes the
// SIMD/FP file.

type (
	// Mem is a load or store with a base register and immediate offset.
	Mem struct {
		Op  MemOp
		Cls Cls
		Rt  Reg
		Rn  Reg
		Off int64
	}

	// MemReg is a load or store with a register offset: [Rn + Rm].
	MemReg struct {
		Op  MemOp
		Cls Cls
		Rt  Reg
		Rn  Reg
		Rm  Reg
	}

	// MemPair is LDP/STP with optional pre/post indexing.
	MemPair struct {
		Load  bool
		Cls   Cls
		Rt    Reg
		Rt2   Reg
		Rn    Reg
		Off   int64
		Index Index
	}

	// MemAtomic is an atomic or ordered access at [Rn].
	// Rs is the value operand for LDADDAL/SWPAL.
	MemAtomic struct {
		Op  AtomicOp
		Cls Cls
		Rt  Reg
		Rn  Reg
		Rs  Reg
	}
)

// PC-relative addressing.

type (
	// Adr loads a PC-relative (page when Page is set) address of Sym.
	// The delta is a zero placeholder until link time.
	Adr struct {
		Page bool
		Rd   Reg
		Sym  string
	}

	// LoadAddr materializes the absolute address of Sym+Addend via an
	// ADRP+ADD pair, recorded as a page-relative relocation.
	LoadAddr struct {
		Rd     Reg
		Sym    string
		Addend int64
	}
)

// Scalar floating point. Cls must be S or D unless stated otherwise.

type (
	FALU struct {
		Op  FOp // FADD..FMAX
		Cls Cls
		Fd  VReg
		Fn  VReg
		Fm  VReg
	}

	FUnary struct {
		Op  FOp // FMOV, FNEG, FABS, FSQRT
		Cls Cls
		Fd  VReg
		Fn  VReg
	}

	FCmp struct {
		Cls Cls
		Fn  VReg
		Fm  VReg
	}

	// FCvtF converts between the two float widths.
	FCvtF struct {
		ToDouble bool
		Fd       VReg
		Fn       VReg
	}

	// FCvtZ truncates a float in Fn to an integer in Rd.
	FCvtZ struct {
		Signed bool
		Cls    Cls // integer class of Rd: W or X
		FCls   Cls // S or D
		Rd     Reg
		Fn     VReg
	}

	// ICvtF converts an integer in Rn to a float in Fd.
	ICvtF struct {
		Signed bool
		Cls    Cls // integer class of Rn: W or X
		FCls   Cls // S or D
		Fd     VReg
		Rn     Reg
	}

	// FMovGF is a raw bitcast move between the register files.
	// W pairs with S, X with D.
	FMovGF struct {
		ToFP bool
		Cls  Cls // integer class: W or X
		Rd   Reg
		Vd   VReg
	}
)

// NEON vector subset (128-bit operands).

type (
	Arr uint8

	VecALU struct {
		Op  VecOp
		Arr Arr
		Vd  VReg
		Vn  VReg
		Vm  VReg // unused for VNEG/VABS
	}

	// VecDup broadcasts the general register Rn to all lanes.
	VecDup struct {
		Arr Arr
		Vd  VReg
		Rn  Reg
	}

	// VecAddV horizontally sums Vn into the general register Rd.
	VecAddV struct {
		Arr Arr
		Rd  Reg
		Vn  VReg
	}

	// VecMem is a 128-bit load or store of Vt at [Rn].
	VecMem struct {
		Load bool
		Vt   VReg
		Rn   Reg
	}
)

const (
	Arr4S Arr = iota // 4 × 32-bit integer
	Arr2D            // 2 × 64-bit integer
	Arr4SF           // 4 × 32-bit float
	Arr2DF           // 2 × 64-bit float
	Arr8H            // 8 × 16-bit integer
	Arr16B           // 16 × 8-bit integer
)

func (a Arr) IsFloat() bool { return a == Arr4SF || a == Arr2DF }

func (a Arr) String() string {
	switch a {
	case Arr4S, Arr4SF:
		return "4s"
	case Arr2D, Arr2DF:
		return "2d"
	case Arr8H:
		return "8h"
	case Arr16B:
		return "16b"
	}

	return "?"
}

// System.

type (
	Nop struct{}

	Brk struct {
		Imm uint16
	}

	Hint struct {
		Imm int
	}
)
