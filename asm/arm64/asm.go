// Package arm64 encodes the machine-independent instruction stream into
// arm64 machine words and collects everything the linker needs to make
// the result position-correct: the label table, branch fixups, data
// relocations, external call sites, the symbol table and the source map.
package arm64

import (
	"context"
	"encoding/binary"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/jit/ir"
)

type (
	// RegionKind tells which sub-region a symbol's offset refers to.
	RegionKind uint8

	// RelocKind is the patch shape of a data relocation.
	RelocKind uint8

	Sym struct {
		Region RegionKind
		Off    int
	}

	// Reloc is a deferred address patch, resolvable only once the final
	// region addresses are known.
	Reloc struct {
		Off    int // byte offset: text for page kinds, data for Abs64
		Kind   RelocKind
		Sym    string
		Addend int64
		Index  int
	}

	// ExtCall is a call site referencing an external symbol, to be
	// patched to that symbol's trampoline stub.
	ExtCall struct {
		Off   int
		Sym   string
		Index int
	}

	SrcEntry struct {
		Off  int
		Line int
		Col  int
	}

	// Fragment is the output of the encoding pass: raw text and data
	// bytes plus the tables consumed by the linker.
	Fragment struct {
		Text []byte
		Data []byte

		Labels []int // label id -> text offset, -1 while undefined
		Fixups []Fixup
		Relocs []Reloc
		Calls  []ExtCall
		Syms   map[string]Sym
		SrcMap []SrcEntry

		Insts int // machine instructions encoded
	}

	asm struct {
		f *Fragment

		inData bool
		index  int // current instruction index
	}
)

const (
	RegionCode RegionKind = iota
	RegionData
)

// SiteError ties a pipeline error to the instruction it came from, so a
// diagnostics consumer gets the source record index and the code offset
// as data, not just text.
type SiteError struct {
	Inst int // source instruction index, -1 when unknown
	Off  int // code byte offset, -1 when unknown
	Err  error
}

func (e SiteError) Error() string { return e.Err.Error() }

func (e SiteError) Unwrap() error { return e.Err }

const (
	// RelocPagePair is an ADRP+ADD pair: page delta into the first
	// word, in-page offset into the second.
	RelocPagePair RelocKind = iota

	// RelocPage is a lone ADRP.
	RelocPage

	// RelocAdr is a lone ADR: a 21-bit signed byte delta.
	RelocAdr

	// RelocAbs64 is an 8-byte little-endian slot in the data region
	// holding an absolute address.
	RelocAbs64
)

// Assemble encodes the stream. Any error is an encoder defect in the
// producer and aborts the pass, reported with the instruction index.
func Assemble(ctx context.Context, p []ir.Instr) (_ *Fragment, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "asm: encode stream", "insts", len(p))
	defer tr.Finish("err", &err)

	a := &asm{
		f: &Fragment{
			Syms: map[string]Sym{},
		},
	}

	for i, x := range p {
		a.index = i

		err = a.inst(x)
		if err != nil {
			return nil, SiteError{Inst: i, Off: len(a.f.Text), Err: errors.Wrap(err, "inst %d (%v)", i, ir.Name(x))}
		}
	}

	for _, fx := range a.f.Fixups {
		if int(fx.Label) >= len(a.f.Labels) || a.f.Labels[fx.Label] < 0 {
			return nil, SiteError{Inst: fx.Index, Off: fx.Off, Err: errors.New("label %d used but never defined", fx.Label)}
		}
	}

	tr.Printw("encoded", "text", len(a.f.Text), "data", len(a.f.Data),
		"insts", a.f.Insts, "fixups", len(a.f.Fixups), "relocs", len(a.f.Relocs),
		"calls", len(a.f.Calls), "syms", len(a.f.Syms))

	return a.f, nil
}

func (a *asm) inst(x ir.Instr) error {
	if a.inData {
		return a.data(x)
	}

	switch x := x.(type) {
	case ir.LabelDef:
		return a.defineLabel(x.Label)
	case ir.FuncBegin:
		return a.defineSym(x.Name, RegionCode, len(a.f.Text))
	case ir.FuncEnd:
		return nil
	case ir.SourceLoc:
		a.f.SrcMap = append(a.f.SrcMap, SrcEntry{Off: len(a.f.Text), Line: x.Line, Col: x.Col})

		return nil
	case ir.Comment:
		if tlog.If("asm") {
			tlog.Printw("asm comment", "off", tlog.FormatNext("%#x"), len(a.f.Text), "text", x.Text)
		}

		return nil
	case ir.DataStart:
		a.inData = true

		return a.dataStart(x)
	}

	w, err := a.code(x)
	if err != nil {
		return err
	}
	if w == skipWord {
		return nil
	}

	a.word(w)

	return nil
}

// skipWord marks records that emitted their own words (or none).
const skipWord = ^uint32(0) - 1

func (a *asm) code(x ir.Instr) (uint32, error) {
	switch x := x.(type) {
	case ir.ALU:
		return encALU(x)
	case ir.ALUImm:
		return encALUImm(x)
	case ir.ShiftReg:
		return encShiftReg(x)
	case ir.ShiftImm:
		return encShiftImm(x)
	case ir.Mul:
		return encMul(x)
	case ir.MulAdd:
		return encMulAdd(x)
	case ir.Div:
		return encDiv(x)
	case ir.Neg:
		return encNeg(x)
	case ir.Ext:
		return encExt(x)
	case ir.MovWide:
		return encMovWide(x)
	case ir.MovImm:
		return skipWord, a.movImm(x)
	case ir.MovReg:
		return encMovReg(x)
	case ir.Cmp:
		return encCmp(x)
	case ir.CmpImm:
		return encCmpImm(x)
	case ir.Tst:
		return encTst(x)
	case ir.CSel:
		return encCSel(x)
	case ir.CSet:
		return encCSet(x)
	case ir.B:
		return skipWord, a.branch(encB(), Branch26, x.Label)
	case ir.BL:
		return skipWord, a.branch(encBL(), Branch26, x.Label)
	case ir.BCond:
		w, err := encBCond(x)
		if err != nil {
			return 0, err
		}

		return skipWord, a.branch(w, Branch19, x.Label)
	case ir.CBZ:
		w, err := encCBZ(x)
		if err != nil {
			return 0, err
		}

		return skipWord, a.branch(w, Branch19, x.Label)
	case ir.TBZ:
		w, err := encTBZ(x)
		if err != nil {
			return 0, err
		}

		return skipWord, a.branch(w, Branch14, x.Label)
	case ir.Br:
		return encBr(x)
	case ir.Blr:
		return encBlr(x)
	case ir.Ret:
		return encRet(), nil
	case ir.CallExt:
		if x.Sym == "" {
			return 0, errors.New("empty call symbol")
		}

		a.f.Calls = append(a.f.Calls, ExtCall{Off: len(a.f.Text), Sym: x.Sym, Index: a.index})

		return encBL(), nil
	case ir.Mem:
		return encMem(x)
	case ir.MemReg:
		return encMemReg(x)
	case ir.MemPair:
		return encMemPair(x)
	case ir.MemAtomic:
		return encMemAtomic(x)
	case ir.Adr:
		w, err := encAdr(x.Page, x.Rd)
		if err != nil {
			return 0, err
		}

		kind := RelocAdr
		if x.Page {
			kind = RelocPage
		}

		a.f.Relocs = append(a.f.Relocs, Reloc{Off: len(a.f.Text), Kind: kind, Sym: x.Sym, Index: a.index})

		return w, nil
	case ir.LoadAddr:
		return skipWord, a.loadAddr(x)
	case ir.FALU:
		return encFALU(x)
	case ir.FUnary:
		return encFUnary(x)
	case ir.FCmp:
		return encFCmp(x)
	case ir.FCvtF:
		return encFCvtF(x)
	case ir.FCvtZ:
		return encFCvtZ(x)
	case ir.ICvtF:
		return encICvtF(x)
	case ir.FMovGF:
		return encFMovGF(x)
	case ir.VecALU:
		return encVecALU(x)
	case ir.VecDup:
		return encVecDup(x)
	case ir.VecAddV:
		ws, err := encVecAddV(x)
		if err != nil {
			return 0, err
		}

		a.word(ws[0])
		a.word(ws[1])

		return skipWord, nil
	case ir.VecMem:
		return encVecMem(x)
	case ir.Nop:
		return encNop(), nil
	case ir.Brk:
		return encBrk(x), nil
	case ir.Hint:
		return encHint(x)
	case ir.DataEnd, ir.DataBytes, ir.DataInt, ir.DataZero, ir.DataAlign, ir.DataSymRef:
		return 0, errors.New("data directive outside data block")
	}

	return 0, errors.New("unsupported record: %T", x)
}

func (a *asm) word(w uint32) {
	var b [4]byte

	binary.LittleEndian.PutUint32(b[:], w)

	a.f.Text = append(a.f.Text, b[:]...)
	a.f.Insts++
}

func (a *asm) defineLabel(l ir.Label) error {
	if l < 0 {
		return errors.New("bad label id: %d", l)
	}

	for len(a.f.Labels) <= int(l) {
		a.f.Labels = append(a.f.Labels, -1)
	}

	if a.f.Labels[l] >= 0 {
		return errors.New("label %d defined twice", l)
	}

	a.f.Labels[l] = len(a.f.Text)

	return nil
}

func (a *asm) defineSym(name string, reg RegionKind, off int) error {
	if name == "" {
		return errors.New("empty symbol name")
	}
	if _, ok := a.f.Syms[name]; ok {
		return errors.New("symbol %v defined twice", name)
	}

	a.f.Syms[name] = Sym{Region: reg, Off: off}

	return nil
}

// branch encodes a branch word. A backward branch (target label already
// defined) is resolved in place; a forward one gets a zero placeholder
// and a fixup.
func (a *asm) branch(w uint32, class BranchClass, l ir.Label) error {
	if l < 0 {
		return errors.New("bad label id: %d", l)
	}

	if int(l) < len(a.f.Labels) && a.f.Labels[l] >= 0 {
		delta := int64(a.f.Labels[l]) - int64(len(a.f.Text))

		w, err := class.Patch(w, delta)
		if err != nil {
			return errors.Wrap(err, "backward branch to label %d", l)
		}

		a.word(w)

		return nil
	}

	a.f.Fixups = append(a.f.Fixups, Fixup{Off: len(a.f.Text), Label: l, Class: class, Index: a.index})
	a.word(w)

	return nil
}

func (a *asm) loadAddr(x ir.LoadAddr) error {
	if x.Sym == "" {
		return errors.New("empty symbol name")
	}

	w0, err := encAdr(true, x.Rd)
	if err != nil {
		return err
	}

	w1, err := encAddLo(x.Rd)
	if err != nil {
		return err
	}

	a.f.Relocs = append(a.f.Relocs, Reloc{
		Off:    len(a.f.Text),
		Kind:   RelocPagePair,
		Sym:    x.Sym,
		Addend: x.Addend,
		Index:  a.index,
	})

	a.word(w0)
	a.word(w1)

	return nil
}

func (a *asm) movImm(x ir.MovImm) error {
	if err := intCls(x.Cls); err != nil {
		return err
	}

	mask, chunks := ^uint64(0), 4
	if !x.Cls.Is64() {
		mask, chunks = 0xffff_ffff, 2
	}

	u := uint64(x.Imm) & mask

	zeros, ones := 0, 0
	for i := 0; i < chunks; i++ {
		switch u >> (16 * i) & 0xffff {
		case 0:
			zeros++
		case 0xffff:
			ones++
		}
	}

	if ones > zeros {
		inv := ^u & mask

		first := 0
		for i := 0; i < chunks; i++ {
			if inv>>(16*i)&0xffff != 0 {
				first = i
				break
			}
		}

		w, err := encMovWide(ir.MovWide{Op: ir.MOVN, Cls: x.Cls, Rd: x.Rd, Imm: uint16(inv >> (16 * first)), Shift: 16 * first})
		if err != nil {
			return err
		}

		a.word(w)

		for i := first + 1; i < chunks; i++ {
			c := u >> (16 * i) & 0xffff
			if c == 0xffff {
				continue
			}

			w, err := encMovWide(ir.MovWide{Op: ir.MOVK, Cls: x.Cls, Rd: x.Rd, Imm: uint16(c), Shift: 16 * i})
			if err != nil {
				return err
			}

			a.word(w)
		}

		return nil
	}

	first := -1
	for i := 0; i < chunks; i++ {
		if u>>(16*i)&0xffff != 0 {
			first = i
			break
		}
	}

	if first < 0 { // zero
		w, err := encMovWide(ir.MovWide{Op: ir.MOVZ, Cls: x.Cls, Rd: x.Rd})
		if err != nil {
			return err
		}

		a.word(w)

		return nil
	}

	w, err := encMovWide(ir.MovWide{Op: ir.MOVZ, Cls: x.Cls, Rd: x.Rd, Imm: uint16(u >> (16 * first)), Shift: 16 * first})
	if err != nil {
		return err
	}

	a.word(w)

	for i := first + 1; i < chunks; i++ {
		c := u >> (16 * i) & 0xffff
		if c == 0 {
			continue
		}

		w, err := encMovWide(ir.MovWide{Op: ir.MOVK, Cls: x.Cls, Rd: x.Rd, Imm: uint16(c), Shift: 16 * i})
		if err != nil {
			return err
		}

		a.word(w)
	}

	return nil
}

// Word32 reads the instruction word at a text byte offset.
func (f *Fragment) Word32(off int) uint32 {
	return binary.LittleEndian.Uint32(f.Text[off:])
}

// PutWord32 overwrites the instruction word at a text byte offset.
func (f *Fragment) PutWord32(off int, w uint32) {
	binary.LittleEndian.PutUint32(f.Text[off:], w)
}

// LabelOff returns the text offset a label was defined at.
func (f *Fragment) LabelOff(l ir.Label) (int, bool) {
	if int(l) >= len(f.Labels) || f.Labels[l] < 0 {
		return 0, false
	}

	return f.Labels[l], true
}
