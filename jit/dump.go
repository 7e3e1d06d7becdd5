package jit

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/arch/arm64/arm64asm"
	"tlog.app/go/errors"
)

// Dump disassembles the compiled text for inspection, one word per
// line. Words the decoder rejects are printed raw.
func (s *Session) Dump(w io.Writer) error {
	if s.frag == nil {
		return errors.New("nothing compiled")
	}

	text := s.frag.Text

	for off := 0; off+4 <= len(text); off += 4 {
		raw := binary.LittleEndian.Uint32(text[off:])

		inst, err := arm64asm.Decode(text[off : off+4])
		if err != nil {
			_, err = fmt.Fprintf(w, "%6x:\t%08x\t.word\n", off, raw)
		} else {
			_, err = fmt.Fprintf(w, "%6x:\t%08x\t%v\n", off, raw, arm64asm.GNUSyntax(inst))
		}

		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}
