//go:build arm64 && (linux || darwin)

package jit

import (
	"context"
	"testing"

	"github.com/ebitengine/purego"

	"github.com/slowlang/jit/ir"
	"github.com/slowlang/jit/link"
)

func TestExecuteSum(t *testing.T) {
	ret, err := Run(context.Background(), sumProg(), "sum", 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if ret != 55 {
		t.Errorf("sum(10) = %d, wanted 55", ret)
	}
}

func TestExecuteSelect(t *testing.T) {
	p := []ir.Instr{
		ir.FuncBegin{Name: "max"},
		ir.Cmp{Cls: ir.X, Rn: 0, Rm: 1},
		ir.CSel{Cls: ir.X, Rd: 0, Rn: 0, Rm: 1, Cond: ir.GT},
		ir.Ret{},
		ir.FuncEnd{},
	}

	for _, tc := range [][3]uintptr{{7, 3, 7}, {2, 9, 9}, {4, 4, 4}} {
		ret, err := Run(context.Background(), p, "max", tc[0], tc[1])
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if ret != tc[2] {
			t.Errorf("max(%d, %d) = %d, wanted %d", tc[0], tc[1], ret, tc[2])
		}
	}
}

func TestExecuteExternalCall(t *testing.T) {
	ctx := context.Background()

	cb := purego.NewCallback(func(a, b uintptr) uintptr { return a + b })

	p := []ir.Instr{
		ir.FuncBegin{Name: "f"},
		ir.MemPair{Cls: ir.X, Rt: ir.FP, Rt2: ir.LR, Rn: ir.SP, Off: -16, Index: ir.PreIndex},
		ir.CallExt{Sym: "host_add"},
		ir.MemPair{Load: true, Cls: ir.X, Rt: ir.FP, Rt2: ir.LR, Rn: ir.SP, Off: 16, Index: ir.PostIndex},
		ir.Ret{},
		ir.FuncEnd{},
	}

	s := New(Options{Resolver: link.HostTable{"host_add": cb}})
	defer func() { _ = s.Teardown(ctx) }()

	if err := s.Compile(ctx, p); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := s.Link(ctx); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.Seal(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}

	ret, err := s.Execute(ctx, "f", 2, 3)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if ret != 5 {
		t.Errorf("f(2, 3) = %d, wanted 5", ret)
	}

	if len(s.lnk.Tramps) != 1 {
		t.Errorf("%d trampolines, wanted 1", len(s.lnk.Tramps))
	}
}

func TestExecuteDataCounter(t *testing.T) {
	ctx := context.Background()

	p := []ir.Instr{
		ir.DataStart{Name: "counter"},
		ir.DataInt{Size: 8, Value: 41},
		ir.DataEnd{},
		ir.FuncBegin{Name: "bump"},
		ir.LoadAddr{Rd: 1, Sym: "counter"},
		ir.Mem{Op: ir.LDR, Cls: ir.X, Rt: 0, Rn: 1},
		ir.ALUImm{Op: ir.OpADD, Cls: ir.X, Rd: 0, Rn: 0, Imm: 1},
		ir.Mem{Op: ir.STR, Cls: ir.X, Rt: 0, Rn: 1},
		ir.Ret{},
		ir.FuncEnd{},
	}

	s := New(Options{})
	defer func() { _ = s.Teardown(ctx) }()

	if err := s.Compile(ctx, p); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := s.Link(ctx); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := s.Seal(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}

	for i, want := range []uintptr{42, 43} {
		ret, err := s.Execute(ctx, "bump")
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}

		if ret != want {
			t.Errorf("bump %d = %d, wanted %d", i, ret, want)
		}
	}

	if s.Executions() != 2 {
		t.Errorf("executions: %d", s.Executions())
	}
}
