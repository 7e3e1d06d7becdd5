// Package jit drives the pipeline end to end: encode the instruction
// stream, link it into executable memory, seal the region and call into
// it. A Session is single-use and moves forward through its states; it
// collects a diagnostics report along the way.
package jit

import (
	"context"
	"runtime"
	"runtime/debug"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/jit/asm/arm64"
	"github.com/slowlang/jit/ir"
	"github.com/slowlang/jit/link"
	"github.com/slowlang/jit/report"
)

type State uint8

const (
	StateNew State = iota
	StateCompiled
	StateLinked
	StateExecutable
	StateDown
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateCompiled:
		return "compiled"
	case StateLinked:
		return "linked"
	case StateExecutable:
		return "executable"
	case StateDown:
		return "down"
	}

	return "???"
}

type (
	Options struct {
		// Resolver binds symbols the host registers explicitly. Names it
		// misses fall back to the images loaded into the process. Pass a
		// link.Chain to control the full order yourself.
		Resolver link.Resolver
	}

	Session struct {
		opts Options

		state State
		frag  *arm64.Fragment
		lnk   *link.Linked
		rep   report.Report

		locked bool
		execs  int
	}
)

func New(opts Options) *Session {
	switch opts.Resolver.(type) {
	case nil:
		opts.Resolver = link.DynResolver{}
	case link.Chain:
	default:
		opts.Resolver = link.Chain{opts.Resolver, link.DynResolver{}}
	}

	return &Session{opts: opts}
}

func (s *Session) State() State { return s.state }

func (s *Session) Report() *report.Report { return &s.rep }

func (s *Session) Fragment() *arm64.Fragment { return s.frag }

func (s *Session) Executions() int { return s.execs }

// Compile encodes the stream into machine words and collects the link
// tables.
func (s *Session) Compile(ctx context.Context, p []ir.Instr) (err error) {
	if s.state != StateNew {
		return errors.New("session is %v, expected new", s.state)
	}

	s.frag, err = arm64.Assemble(ctx, p)
	if err != nil {
		inst, off := site(err)
		s.rep.Add(report.Error, "compile", inst, off, "%v", err)

		return errors.Wrap(err, "assemble")
	}

	s.rep.Infof("compile", "%d instructions, %d text bytes, %d data bytes",
		s.frag.Insts, len(s.frag.Text), len(s.frag.Data))

	s.state = StateCompiled

	return nil
}

// Link resolves the fragment into a fresh writable region. The
// goroutine stays pinned to its OS thread until Seal: on platforms with
// a per-thread write gate the writes and the flip must share a thread.
func (s *Session) Link(ctx context.Context) (err error) {
	if s.state != StateCompiled {
		return errors.New("session is %v, expected compiled", s.state)
	}

	runtime.LockOSThread()
	s.locked = true

	s.lnk, err = link.Link(ctx, s.frag, link.Options{Resolver: s.opts.Resolver})
	if err != nil {
		inst, off := site(err)
		s.rep.Add(report.Error, "link", inst, off, "%v", err)

		return errors.Wrap(err, "link")
	}

	s.rep.Infof("link", "%d fixups, %d relocs, %d trampolines",
		s.lnk.Fixups, s.lnk.Relocs, len(s.lnk.Tramps))

	s.state = StateLinked

	return nil
}

// Seal makes the region executable.
func (s *Session) Seal(ctx context.Context) (err error) {
	if s.state != StateLinked {
		return errors.New("session is %v, expected linked", s.state)
	}

	err = s.lnk.Region.MakeExecutable(ctx)
	if err != nil {
		s.rep.Errorf("seal", "%v", err)

		return errors.Wrap(err, "make executable")
	}

	if s.locked {
		runtime.UnlockOSThread()
		s.locked = false
	}

	s.rep.Infof("seal", "code at %#x", s.lnk.Region.CodeBase())

	s.state = StateExecutable

	return nil
}

// Execute calls an entry symbol with up to four integer arguments and
// returns the integer result.
func (s *Session) Execute(ctx context.Context, entry string, args ...uintptr) (ret uintptr, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "execute", "entry", entry, "args", len(args))
	defer tr.Finish("err", &err)

	if s.state != StateExecutable {
		return 0, errors.New("session is %v, not executable", s.state)
	}
	if !canExecute {
		return 0, errors.New("execution requires an arm64 host")
	}
	if len(args) > 4 {
		return 0, errors.New("at most 4 arguments, got %d", len(args))
	}

	sym, ok := s.frag.Syms[entry]
	if !ok || sym.Region != arm64.RegionCode {
		return 0, errors.New("no code symbol %v", entry)
	}

	pc, err := s.lnk.Region.Entry(sym.Off)
	if err != nil {
		return 0, errors.Wrap(err, "entry %v", entry)
	}

	var a [4]uintptr
	copy(a[:], args)

	ret, err = s.call(pc, a)
	if err != nil {
		s.rep.Errorf("execute", "%v: %v", entry, err)

		return 0, err
	}

	s.execs++
	s.rep.Infof("execute", "%v returned %#x", entry, ret)

	return ret, nil
}

// site extracts the failing instruction position when the error carries
// one.
func site(err error) (inst, off int) {
	if se, ok := err.(arm64.SiteError); ok {
		return se.Inst, se.Off
	}

	return -1, -1
}

// call runs the generated code with faults converted to errors. This is
// best effort: a hardware fault in the code unwinds here via the
// runtime's fault panic, but the faulting pc is not portably
// recoverable, so the error carries only the runtime's message.
func (s *Session) call(entry uintptr, a [4]uintptr) (ret uintptr, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.New("fault in generated code: %v", p)
		}
	}()

	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	ret = enter(entry, a[0], a[1], a[2], a[3])

	return ret, nil
}

// Reopen flips an executable region back to writable for patching.
// Seal must be called again before the next Execute.
func (s *Session) Reopen(ctx context.Context) (err error) {
	if s.state != StateExecutable {
		return errors.New("session is %v, not executable", s.state)
	}

	runtime.LockOSThread()
	s.locked = true

	err = s.lnk.Region.MakeWritable(ctx)
	if err != nil {
		return errors.Wrap(err, "make writable")
	}

	s.state = StateLinked

	return nil
}

// Teardown frees the region. A session is torn down exactly once and is
// unusable after.
func (s *Session) Teardown(ctx context.Context) (err error) {
	if s.state == StateDown {
		return errors.New("session already torn down")
	}

	if s.locked {
		runtime.UnlockOSThread()
		s.locked = false
	}

	s.state = StateDown

	if s.lnk == nil {
		return nil
	}

	err = s.lnk.Region.Free()
	if err != nil {
		return errors.Wrap(err, "free region")
	}

	return nil
}

// Run drives a one-shot program through the whole pipeline. The session
// is torn down before returning.
func Run(ctx context.Context, p []ir.Instr, entry string, args ...uintptr) (ret uintptr, err error) {
	s := New(Options{})

	defer func() {
		e := s.Teardown(ctx)
		if err == nil {
			err = e
		}
	}()

	err = s.Compile(ctx, p)
	if err != nil {
		return 0, err
	}

	err = s.Link(ctx)
	if err != nil {
		return 0, err
	}

	err = s.Seal(ctx)
	if err != nil {
		return 0, err
	}

	return s.Execute(ctx, entry, args...)
}
