package arm64

import (
	"tlog.app/go/errors"

	"github.com/slowlang/jit/ir"
)

// BranchClass is the bit-width category of a branch instruction's signed
// word-offset immediate, which bounds its reach.
type BranchClass uint8

const (
	// Branch26 is the unconditional branch/call class, ±128 MiB.
	Branch26 BranchClass = iota

	// Branch19 is the conditional and compare-and-branch class, ±1 MiB.
	Branch19

	// Branch14 is the test-bit-and-branch class, ±32 KiB.
	Branch14
)

func (c BranchClass) String() string {
	switch c {
	case Branch26:
		return "b26"
	case Branch19:
		return "b19"
	case Branch14:
		return "b14"
	}

	return "b??"
}

func (c BranchClass) bits() int {
	switch c {
	case Branch26:
		return 26
	case Branch19:
		return 19
	default:
		return 14
	}
}

// Range returns the class's reach in bytes: [min, max] inclusive.
func (c BranchClass) Range() (min, max int64) {
	n := c.bits()

	return -(1 << (n + 1)), 1<<(n+1) - 4
}

// Patch inserts the signed byte delta into the word's immediate field.
// The delta must be word-aligned and within the class's range; out of
// range is an error, never a silent wrap.
func (c BranchClass) Patch(w uint32, delta int64) (uint32, error) {
	if delta&3 != 0 {
		return 0, errors.New("unaligned branch delta: %#x", delta)
	}

	min, max := c.Range()
	if delta < min || delta > max {
		return 0, errors.New("branch delta %#x out of %v range [%#x, %#x]", delta, c, min, max)
	}

	imm := uint32(delta>>2) & (1<<c.bits() - 1)

	switch c {
	case Branch26:
		w = w&^uint32(1<<26-1) | imm
	case Branch19:
		w = w&^(uint32(1<<19-1)<<5) | imm<<5
	case Branch14:
		w = w&^(uint32(1<<14-1)<<5) | imm<<5
	}

	return w, nil
}

// Extract recovers the signed byte delta from the word's immediate field.
func (c BranchClass) Extract(w uint32) int64 {
	var imm uint32

	switch c {
	case Branch26:
		imm = w & (1<<26 - 1)
	default:
		imm = w >> 5 & (1<<uint(c.bits()) - 1)
	}

	n := c.bits()
	v := int64(int32(imm<<(32-n)) >> (32 - n)) // sign extend

	return v * 4
}

// Fixup is a deferred branch patch, created when a branch's target label
// was not yet defined at encode time.
type Fixup struct {
	Off   int // byte offset of the placeholder word in the text buffer
	Label ir.Label
	Class BranchClass
	Index int // originating instruction index, for diagnostics
}
