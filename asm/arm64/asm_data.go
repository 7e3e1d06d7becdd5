package arm64

import (
	"encoding/binary"

	"tlog.app/go/errors"

	"github.com/slowlang/jit/ir"
)

// Data directives fill the data buffer. Between DataStart and DataEnd
// only data records are legal; code records must not appear.

func (a *asm) dataStart(x ir.DataStart) error {
	align := x.Align
	if align == 0 {
		align = 8
	}

	if err := a.dataAlign(align); err != nil {
		return err
	}

	return a.defineSym(x.Name, RegionData, len(a.f.Data))
}

func (a *asm) data(x ir.Instr) error {
	switch x := x.(type) {
	case ir.DataEnd:
		a.inData = false

		return nil
	case ir.DataBytes:
		a.f.Data = append(a.f.Data, x.Data...)

		return nil
	case ir.DataInt:
		return a.dataInt(x)
	case ir.DataZero:
		if x.N < 0 {
			return errors.New("negative zero-fill size: %d", x.N)
		}

		a.f.Data = append(a.f.Data, make([]byte, x.N)...)

		return nil
	case ir.DataAlign:
		return a.dataAlign(x.N)
	case ir.DataSymRef:
		if x.Sym == "" {
			return errors.New("empty symbol name")
		}

		if err := a.dataAlign(8); err != nil {
			return err
		}

		a.f.Relocs = append(a.f.Relocs, Reloc{
			Off:    len(a.f.Data),
			Kind:   RelocAbs64,
			Sym:    x.Sym,
			Addend: x.Addend,
			Index:  a.index,
		})

		a.f.Data = append(a.f.Data, make([]byte, 8)...)

		return nil
	case ir.Comment:
		return nil
	case ir.DataStart:
		return errors.New("nested data block")
	}

	return errors.New("code record inside data block: %T", x)
}

func (a *asm) dataInt(x ir.DataInt) error {
	var b [8]byte

	binary.LittleEndian.PutUint64(b[:], uint64(x.Value))

	switch x.Size {
	case 1, 2, 4, 8:
	default:
		return errors.New("bad data int size: %d", x.Size)
	}

	if x.Size < 8 && (x.Value < -(1<<(8*x.Size-1)) || x.Value >= 1<<(8*x.Size)) {
		return errors.New("value %d does not fit in %d bytes", x.Value, x.Size)
	}

	a.f.Data = append(a.f.Data, b[:x.Size]...)

	return nil
}

func (a *asm) dataAlign(n int) error {
	if n <= 0 || n&(n-1) != 0 {
		return errors.New("alignment %d is not a power of two", n)
	}

	for len(a.f.Data)%n != 0 {
		a.f.Data = append(a.f.Data, 0)
	}

	return nil
}
