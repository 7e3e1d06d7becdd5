package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/jit/ir"
	"github.com/slowlang/jit/jit"
)

func main() {
	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile the demo program and run it: jit run [n]",
		Action:      runAct,
		Args:        cli.Args{},
	}

	dumpCmd := &cli.Command{
		Name:        "dump",
		Description: "disassemble the demo program and print instruction stats",
		Action:      dumpAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "jit",
		Description: "jit compiles instruction streams to machine code and runs them in-process",
		Commands: []*cli.Command{
			runCmd,
			dumpCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	n := uintptr(10)

	if len(c.Args) != 0 {
		v, err := strconv.Atoi(c.Args[0])
		if err != nil || v < 0 {
			return errors.New("bad argument: %v", c.Args[0])
		}

		n = uintptr(v)
	}

	ret, err := jit.Run(ctx, demo(), "sum", n)
	if err != nil {
		return errors.Wrap(err, "run")
	}

	fmt.Printf("sum(%d) = %d\n", n, ret)

	return nil
}

func dumpAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	p := demo()

	s := jit.New(jit.Options{})
	defer func() {
		e := s.Teardown(ctx)
		if err == nil {
			err = e
		}
	}()

	err = s.Compile(ctx, p)
	if err != nil {
		return errors.Wrap(err, "compile")
	}

	err = s.Dump(os.Stdout)
	if err != nil {
		return errors.Wrap(err, "dump")
	}

	st := ir.Stats(p)

	names := make([]string, 0, len(st))
	for name := range st {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Printf("\ninstruction stats\n")

	for _, name := range names {
		fmt.Printf("%8d  %s\n", st[name], name)
	}

	return nil
}

// demo sums the integers 1..n the hard way, with a loop.
func demo() []ir.Instr {
	const (
		loop ir.Label = iota
		done
	)

	return []ir.Instr{
		ir.FuncBegin{Name: "sum"},
		ir.MovImm{Cls: ir.X, Rd: 1, Imm: 0},
		ir.LabelDef{Label: loop},
		ir.CBZ{Cls: ir.X, Rt: 0, Label: done},
		ir.ALU{Op: ir.OpADD, Cls: ir.X, Rd: 1, Rn: 1, Rm: 0},
		ir.ALUImm{Op: ir.OpSUB, Cls: ir.X, Rd: 0, Rn: 0, Imm: 1},
		ir.B{Label: loop},
		ir.LabelDef{Label: done},
		ir.MovReg{Cls: ir.X, Rd: 0, Rn: 1},
		ir.Ret{},
		ir.FuncEnd{},
	}
}
