// Package mem owns the virtual memory the generated code lives in.
//
// A Region is one code+trampoline mapping plus a separate data mapping.
// The code mapping moves between exactly two states, Writable and
// Executable; all writes go through bounds-checked methods that refuse
// to touch code in the Executable state. The data mapping stays
// writable for the region's whole life: the running program may store
// to globals placed there. Keeping it a separate mapping also means
// backends whose protection toggle covers a whole mapping do not lock
// global data when code becomes executable.
package mem

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

// State is the protection state of the code+trampoline mapping.
type State uint8

const (
	Writable State = iota
	Executable
)

func (s State) String() string {
	if s == Executable {
		return "executable"
	}

	return "writable"
}

type (
	Region struct {
		code []byte // code then trampolines, one mapping
		data []byte

		codeSize  int // code sub-region bytes; trampolines follow
		trampSize int

		state State
		freed bool

		be backend
	}

	// backend is the platform protection mechanism. Two shapes exist:
	// reserve-then-commit with an mprotect-style flip, and a unified
	// writable+executable mapping with a runtime toggle.
	backend interface {
		mapCode(size int) ([]byte, error)
		mapData(size int) ([]byte, error)
		protect(b []byte, st State) error
		flush(b []byte) error
		unmap(b []byte) error
	}
)

// Alloc reserves a region with the given sub-region capacities.
// Failure is fatal to the caller's pipeline and carries the requested
// size and the underlying cause.
func Alloc(ctx context.Context, codeSize, trampSize, dataSize int) (_ *Region, err error) {
	tr := tlog.SpanFromContext(ctx)

	if codeSize <= 0 || trampSize < 0 || dataSize < 0 {
		return nil, errors.New("bad region sizes: code %d, tramp %d, data %d", codeSize, trampSize, dataSize)
	}

	be, err := newBackend()
	if err != nil {
		return nil, errors.Wrap(err, "backend")
	}

	r := &Region{
		codeSize:  codeSize,
		trampSize: trampSize,
		be:        be,
	}

	r.code, err = be.mapCode(pageCeil(codeSize + trampSize))
	if err != nil {
		return nil, errors.Wrap(err, "map code+trampoline: %d bytes", codeSize+trampSize)
	}

	if dataSize > 0 {
		r.data, err = be.mapData(pageCeil(dataSize))
		if err != nil {
			_ = be.unmap(r.code)

			return nil, errors.Wrap(err, "map data: %d bytes", dataSize)
		}
	}

	tr.Printw("region allocated",
		"code", tlog.FormatNext("%#x"), r.CodeBase(),
		"tramp", tlog.FormatNext("%#x"), r.TrampBase(),
		"data", tlog.FormatNext("%#x"), r.DataBase(),
		"code_size", codeSize, "tramp_size", trampSize, "data_size", dataSize)

	return r, nil
}

func (r *Region) State() State { return r.state }

func (r *Region) CodeBase() uintptr { return base(r.code) }

func (r *Region) TrampBase() uintptr { return base(r.code) + uintptr(r.codeSize) }

func (r *Region) DataBase() uintptr { return base(r.data) }

func (r *Region) CodeCapacity() int { return r.codeSize }

func (r *Region) TrampCapacity() int { return r.trampSize }

func (r *Region) DataCapacity() int { return len(r.data) }

// WriteCode copies p into the code sub-region at off. It is rejected
// while the region is executable.
func (r *Region) WriteCode(off int, p []byte) error {
	if err := r.writable(); err != nil {
		return err
	}
	if off < 0 || off+len(p) > r.codeSize {
		return errors.New("code write out of bounds: [%d, %d) of %d", off, off+len(p), r.codeSize)
	}

	copy(r.code[off:], p)

	return nil
}

// WriteTramp copies p into the trampoline sub-region at off (relative
// to the trampoline base).
func (r *Region) WriteTramp(off int, p []byte) error {
	if err := r.writable(); err != nil {
		return err
	}
	if off < 0 || off+len(p) > r.trampSize {
		return errors.New("trampoline write out of bounds: [%d, %d) of %d", off, off+len(p), r.trampSize)
	}

	copy(r.code[r.codeSize+off:], p)

	return nil
}

// WriteData copies p into the data sub-region. Allowed in any state:
// data stays writable even while code executes.
func (r *Region) WriteData(off int, p []byte) error {
	if r.freed {
		return errors.New("region is freed")
	}
	if off < 0 || off+len(p) > len(r.data) {
		return errors.New("data write out of bounds: [%d, %d) of %d", off, off+len(p), len(r.data))
	}

	copy(r.data[off:], p)

	return nil
}

// ReadCode copies the code sub-region at off into p.
func (r *Region) ReadCode(off int, p []byte) error {
	if r.freed {
		return errors.New("region is freed")
	}
	if off < 0 || off+len(p) > r.codeSize {
		return errors.New("code read out of bounds: [%d, %d) of %d", off, off+len(p), r.codeSize)
	}

	copy(p, r.code[off:])

	return nil
}

// ReadData copies the data sub-region at off into p.
func (r *Region) ReadData(off int, p []byte) error {
	if r.freed {
		return errors.New("region is freed")
	}
	if off < 0 || off+len(p) > len(r.data) {
		return errors.New("data read out of bounds: [%d, %d) of %d", off, off+len(p), len(r.data))
	}

	copy(p, r.data[off:])

	return nil
}

// MakeExecutable flips the code+trampoline mapping to Executable and
// invalidates the instruction cache for it, so the processor observes
// the newly written instructions.
func (r *Region) MakeExecutable(ctx context.Context) (err error) {
	if r.freed {
		return errors.New("region is freed")
	}
	if r.state == Executable {
		return nil
	}

	err = r.be.protect(r.code, Executable)
	if err != nil {
		return errors.Wrap(err, "protect %d bytes", len(r.code))
	}

	err = r.be.flush(r.code)
	if err != nil {
		return errors.Wrap(err, "flush icache")
	}

	r.state = Executable

	tlog.SpanFromContext(ctx).V("mem").Printw("region executable", "base", tlog.FormatNext("%#x"), r.CodeBase())

	return nil
}

// MakeWritable re-enters the Writable state for hot patching. The
// executable flip (and icache invalidation) must be reapplied before
// the code runs again.
func (r *Region) MakeWritable(ctx context.Context) (err error) {
	if r.freed {
		return errors.New("region is freed")
	}
	if r.state == Writable {
		return nil
	}

	err = r.be.protect(r.code, Writable)
	if err != nil {
		return errors.Wrap(err, "protect %d bytes", len(r.code))
	}

	r.state = Writable

	tlog.SpanFromContext(ctx).V("mem").Printw("region writable", "base", tlog.FormatNext("%#x"), r.CodeBase())

	return nil
}

// Entry returns the callable address of a code offset. The region must
// be Executable.
func (r *Region) Entry(off int) (uintptr, error) {
	if r.freed {
		return 0, errors.New("region is freed")
	}
	if r.state != Executable {
		return 0, errors.New("region is %v, not executable", r.state)
	}
	if off < 0 || off >= r.codeSize {
		return 0, errors.New("entry offset %d out of code bounds %d", off, r.codeSize)
	}

	return r.CodeBase() + uintptr(off), nil
}

// Contains reports whether pc falls inside the code sub-region, and the
// code offset if it does.
func (r *Region) Contains(pc uintptr) (int, bool) {
	b := r.CodeBase()
	if pc < b || pc >= b+uintptr(r.codeSize) {
		return 0, false
	}

	return int(pc - b), true
}

// Free releases both mappings. A region is freed exactly once; any use
// after that is a caller error.
func (r *Region) Free() error {
	if r.freed {
		return errors.New("region already freed")
	}

	r.freed = true

	err := r.be.unmap(r.code)
	if r.data != nil {
		e := r.be.unmap(r.data)
		if err == nil {
			err = e
		}
	}

	if err != nil {
		return errors.Wrap(err, "unmap")
	}

	return nil
}

func (r *Region) writable() error {
	if r.freed {
		return errors.New("region is freed")
	}
	if r.state != Writable {
		return errors.New("region is %v: write rejected", r.state)
	}

	return nil
}

func base(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}

	return uintptr(addrOf(b))
}
