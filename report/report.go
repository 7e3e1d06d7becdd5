// Package report accumulates per-phase diagnostics of a jit session:
// which pipeline phase produced a note, which source instruction it
// refers to, and where in the generated code it points.
package report

import (
	"fmt"
	"strings"

	"tlog.app/go/loc"
)

type (
	Severity uint8

	Entry struct {
		Sev   Severity
		Phase string
		Msg   string

		Inst int // source instruction index, -1 when not tied to one
		Off  int // code byte offset, -1 when unknown

		Caller loc.PC
	}

	Report struct {
		Entries []Entry
	}
)

const (
	Info Severity = iota
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	}

	return fmt.Sprintf("sev%d", int(s))
}

func (r *Report) Add(sev Severity, phase string, inst, off int, msg string, args ...interface{}) {
	r.Entries = append(r.Entries, Entry{
		Sev:    sev,
		Phase:  phase,
		Msg:    fmt.Sprintf(msg, args...),
		Inst:   inst,
		Off:    off,
		Caller: loc.Caller(1),
	})
}

func (r *Report) Infof(phase, msg string, args ...interface{}) { r.add(Info, phase, msg, args...) }

func (r *Report) Warnf(phase, msg string, args ...interface{}) { r.add(Warn, phase, msg, args...) }

func (r *Report) Errorf(phase, msg string, args ...interface{}) {
	r.add(Error, phase, msg, args...)
}

func (r *Report) add(sev Severity, phase, msg string, args ...interface{}) {
	r.Entries = append(r.Entries, Entry{
		Sev:    sev,
		Phase:  phase,
		Msg:    fmt.Sprintf(msg, args...),
		Inst:   -1,
		Off:    -1,
		Caller: loc.Caller(2),
	})
}

func (r *Report) Count(sev Severity) (n int) {
	for _, e := range r.Entries {
		if e.Sev == sev {
			n++
		}
	}

	return n
}

func (r *Report) HasErrors() bool { return r.Count(Error) != 0 }

// Render formats the whole report, one line per entry plus a summary.
func (r *Report) Render() string {
	var b strings.Builder

	for _, e := range r.Entries {
		fmt.Fprintf(&b, "%-5v %s: %s", e.Sev, e.Phase, e.Msg)

		if e.Inst >= 0 {
			fmt.Fprintf(&b, " (inst %d)", e.Inst)
		}
		if e.Off >= 0 {
			fmt.Fprintf(&b, " (off %#x)", e.Off)
		}

		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%d errors, %d warnings, %d notes\n", r.Count(Error), r.Count(Warn), r.Count(Info))

	return b.String()
}
