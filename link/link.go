// Package link places an encoded fragment into executable memory. The
// first pass resolves branch fixups in the heap buffer, where only
// relative offsets matter. Then a region is reserved, the final
// addresses become known, and the second pass patches everything
// position-dependent: address-forming pairs, absolute data slots and
// external call sites, which are routed through trampoline stubs. The
// region is handed back still writable; the caller flips it.
package link

import (
	"context"
	"encoding/binary"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/jit/asm/arm64"
	"github.com/slowlang/jit/mem"
)

type (
	Options struct {
		Resolver Resolver
	}

	// Linked is a fragment bound to its region. The fragment tables stay
	// valid: the source map and symbol table offsets are region offsets.
	Linked struct {
		Region *mem.Region
		Frag   *arm64.Fragment

		Tramps map[string]int // external symbol -> trampoline offset

		Fixups int // branch fixups resolved
		Relocs int // relocations applied
	}
)

// Stub layout: a literal load of the target address and an indirect
// branch, then the 8-byte address itself.
//
//	ldr x17, #8
//	br  x17
//	.quad target
const (
	stubSize = 16

	stubLdr = 0x5800_0051 // ldr x17, #8
	stubBr  = 0xd61f_0220 // br x17
)

// Link resolves the fragment against final addresses and writes it into
// a fresh region.
func Link(ctx context.Context, f *arm64.Fragment, opt Options) (_ *Linked, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "link fragment",
		"text", len(f.Text), "data", len(f.Data), "fixups", len(f.Fixups), "calls", len(f.Calls))
	defer tr.Finish("err", &err)

	l := &Linked{
		Frag:   f,
		Tramps: map[string]int{},
	}

	l.Fixups, err = ResolveFixups(f)
	if err != nil {
		return nil, err
	}

	// one stub per unique symbol, in first-use order
	for _, c := range f.Calls {
		if _, ok := l.Tramps[c.Sym]; ok {
			continue
		}

		l.Tramps[c.Sym] = len(l.Tramps) * stubSize
	}

	l.Region, err = mem.Alloc(ctx, max(len(f.Text), 4), len(l.Tramps)*stubSize, len(f.Data))
	if err != nil {
		return nil, errors.Wrap(err, "alloc region")
	}

	defer func() {
		if err != nil {
			_ = l.Region.Free()
		}
	}()

	stubs, err := l.buildStubs(f, opt.Resolver)
	if err != nil {
		return nil, err
	}

	err = l.resolveRelocs(f, opt.Resolver)
	if err != nil {
		return nil, err
	}

	err = l.patchCalls(f)
	if err != nil {
		return nil, err
	}

	err = l.Region.WriteCode(0, f.Text)
	if err == nil && len(stubs) != 0 {
		err = l.Region.WriteTramp(0, stubs)
	}
	if err == nil && len(f.Data) != 0 {
		err = l.Region.WriteData(0, f.Data)
	}
	if err != nil {
		return nil, errors.Wrap(err, "write region")
	}

	tr.Printw("linked",
		"code", tlog.FormatNext("%#x"), l.Region.CodeBase(),
		"fixups", l.Fixups, "relocs", l.Relocs, "tramps", len(l.Tramps))

	return l, nil
}

// ResolveFixups patches forward branches in place. Deltas are label
// offset minus branch offset, independent of where the text ends up, so
// this pass needs no region.
func ResolveFixups(f *arm64.Fragment) (n int, err error) {
	for _, fx := range f.Fixups {
		target, ok := f.LabelOff(fx.Label)
		if !ok {
			return n, arm64.SiteError{Inst: fx.Index, Off: fx.Off, Err: errors.New("label %d never defined", fx.Label)}
		}

		delta := int64(target) - int64(fx.Off)

		w, err := fx.Class.Patch(f.Word32(fx.Off), delta)
		if err != nil {
			return n, arm64.SiteError{Inst: fx.Index, Off: fx.Off, Err: errors.Wrap(err, "branch at %#x to %#x", fx.Off, target)}
		}

		f.PutWord32(fx.Off, w)

		n++
	}

	return n, nil
}

func (l *Linked) buildStubs(f *arm64.Fragment, res Resolver) ([]byte, error) {
	if len(l.Tramps) == 0 {
		return nil, nil
	}

	stubs := make([]byte, len(l.Tramps)*stubSize)

	for sym, off := range l.Tramps {
		addr, err := resolveSym(res, sym)
		if err != nil {
			inst, coff := callSite(f, sym)

			return nil, arm64.SiteError{Inst: inst, Off: coff, Err: err}
		}

		binary.LittleEndian.PutUint32(stubs[off:], stubLdr)
		binary.LittleEndian.PutUint32(stubs[off+4:], stubBr)
		binary.LittleEndian.PutUint64(stubs[off+8:], uint64(addr))
	}

	return stubs, nil
}

// patchCalls points every external call site at its symbol's shared
// stub.
func (l *Linked) patchCalls(f *arm64.Fragment) error {
	for _, c := range f.Calls {
		stub := l.Region.TrampBase() + uintptr(l.Tramps[c.Sym])
		delta := int64(stub) - int64(l.Region.CodeBase()+uintptr(c.Off))

		w, err := arm64.Branch26.Patch(f.Word32(c.Off), delta)
		if err != nil {
			return arm64.SiteError{Inst: c.Index, Off: c.Off, Err: errors.Wrap(err, "call %v at %#x", c.Sym, c.Off)}
		}

		f.PutWord32(c.Off, w)
	}

	return nil
}

func (l *Linked) resolveRelocs(f *arm64.Fragment, res Resolver) error {
	for _, rl := range f.Relocs {
		target, err := l.symAddr(f, res, rl.Sym)
		if err != nil {
			return arm64.SiteError{Inst: rl.Index, Off: rl.Off, Err: err}
		}

		target += uintptr(rl.Addend)

		err = l.applyReloc(f, rl, target)
		if err != nil {
			return arm64.SiteError{Inst: rl.Index, Off: rl.Off, Err: errors.Wrap(err, "%v at %#x", rl.Sym, rl.Off)}
		}

		l.Relocs++
	}

	return nil
}

func (l *Linked) applyReloc(f *arm64.Fragment, rl arm64.Reloc, target uintptr) error {
	pc := int64(l.Region.CodeBase()) + int64(rl.Off)

	switch rl.Kind {
	case arm64.RelocPagePair:
		pages := int64(target)>>12 - pc>>12

		w0, err := arm64.PatchAdr(f.Word32(rl.Off), pages)
		if err != nil {
			return err
		}

		w1, err := arm64.PatchAddLo(f.Word32(rl.Off+4), int64(target)&0xfff)
		if err != nil {
			return err
		}

		f.PutWord32(rl.Off, w0)
		f.PutWord32(rl.Off+4, w1)
	case arm64.RelocPage:
		pages := int64(target)>>12 - pc>>12

		w, err := arm64.PatchAdr(f.Word32(rl.Off), pages)
		if err != nil {
			return err
		}

		f.PutWord32(rl.Off, w)
	case arm64.RelocAdr:
		delta := int64(target) - pc

		w, err := arm64.PatchAdr(f.Word32(rl.Off), delta)
		if err != nil {
			return err
		}

		f.PutWord32(rl.Off, w)
	case arm64.RelocAbs64:
		// data slot, offset is into the data buffer
		if rl.Off+8 > len(f.Data) {
			return errors.New("abs64 slot out of data bounds")
		}

		binary.LittleEndian.PutUint64(f.Data[rl.Off:], uint64(target))
	default:
		return errors.New("bad reloc kind: %d", rl.Kind)
	}

	return nil
}

// symAddr resolves a name to its final address: fragment symbols map
// into the region, anything else goes to the external resolver.
func (l *Linked) symAddr(f *arm64.Fragment, res Resolver, name string) (uintptr, error) {
	s, ok := f.Syms[name]
	if !ok {
		return resolveSym(res, name)
	}

	switch s.Region {
	case arm64.RegionCode:
		return l.Region.CodeBase() + uintptr(s.Off), nil
	case arm64.RegionData:
		return l.Region.DataBase() + uintptr(s.Off), nil
	}

	return 0, errors.New("symbol %v: bad region %d", name, s.Region)
}

// callSite finds the first call referencing a symbol, for diagnostics.
func callSite(f *arm64.Fragment, sym string) (inst, off int) {
	for _, c := range f.Calls {
		if c.Sym == sym {
			return c.Index, c.Off
		}
	}

	return -1, -1
}

func resolveSym(res Resolver, name string) (uintptr, error) {
	if res == nil {
		return 0, errors.New("unresolved symbol: %v (no resolver)", name)
	}

	addr, ok := res.Resolve(name)
	if !ok {
		return 0, errors.New("unresolved symbol: %v", name)
	}
	if addr == 0 {
		return 0, errors.New("symbol %v resolved to null", name)
	}

	return addr, nil
}
