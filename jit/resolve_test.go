//go:build linux || darwin

package jit

import (
	"context"
	"strings"
	"testing"

	"github.com/slowlang/jit/ir"
	"github.com/slowlang/jit/link"
	"github.com/slowlang/jit/report"
)

// A host table miss must not kill linking: names it does not know fall
// back to the images loaded into the process.
func TestLinkHostTableMissFallsBack(t *testing.T) {
	ctx := context.Background()

	s := New(Options{Resolver: link.HostTable{"something_else": 1}})
	defer func() { _ = s.Teardown(ctx) }()

	if err := s.Compile(ctx, callProg("getpid")); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := s.Link(ctx); err != nil {
		t.Fatalf("link: %v", err)
	}

	if len(s.lnk.Tramps) != 1 {
		t.Errorf("%d trampolines, wanted 1", len(s.lnk.Tramps))
	}
}

func TestLinkUnresolvedReported(t *testing.T) {
	ctx := context.Background()

	const sym = "no_such_symbol_anywhere"

	s := New(Options{})
	defer func() { _ = s.Teardown(ctx) }()

	if err := s.Compile(ctx, callProg(sym)); err != nil {
		t.Fatalf("compile: %v", err)
	}

	if err := s.Link(ctx); err == nil {
		t.Fatalf("link resolved a symbol that does not exist")
	}

	if s.State() != StateCompiled {
		t.Errorf("session is %v after a failed link", s.State())
	}
	if _, err := s.Execute(ctx, "f"); err == nil {
		t.Errorf("execute accepted after a failed link")
	}

	rep := s.Report()
	if n := rep.Count(report.Error); n != 1 {
		t.Fatalf("%d error entries, wanted 1:\n%s", n, rep.Render())
	}

	e := rep.Entries[len(rep.Entries)-1]
	if e.Sev != report.Error || !strings.Contains(e.Msg, sym) {
		t.Errorf("error entry misses the symbol: %+v", e)
	}
	if e.Inst != 2 {
		t.Errorf("error entry points at inst %d, wanted 2", e.Inst)
	}
}

func callProg(sym string) []ir.Instr {
	return []ir.Instr{
		ir.FuncBegin{Name: "f"},
		ir.MemPair{Cls: ir.X, Rt: ir.FP, Rt2: ir.LR, Rn: ir.SP, Off: -16, Index: ir.PreIndex},
		ir.CallExt{Sym: sym},
		ir.MemPair{Load: true, Cls: ir.X, Rt: ir.FP, Rt2: ir.LR, Rn: ir.SP, Off: 16, Index: ir.PostIndex},
		ir.Ret{},
		ir.FuncEnd{},
	}
}
