package jit

import "sort"

// SrcLoc is a source position recovered from the generated code.
type SrcLoc struct {
	Line int
	Col  int
}

// LookupPC maps a machine pc inside the generated code back to the
// closest preceding source marker.
func (s *Session) LookupPC(pc uintptr) (SrcLoc, bool) {
	if s.lnk == nil {
		return SrcLoc{}, false
	}

	off, ok := s.lnk.Region.Contains(pc)
	if !ok {
		return SrcLoc{}, false
	}

	return s.LookupOff(off)
}

// LookupOff is LookupPC for a code byte offset.
func (s *Session) LookupOff(off int) (SrcLoc, bool) {
	if s.frag == nil {
		return SrcLoc{}, false
	}

	m := s.frag.SrcMap

	i := sort.Search(len(m), func(i int) bool { return m[i].Off > off })
	if i == 0 {
		return SrcLoc{}, false
	}

	return SrcLoc{Line: m[i-1].Line, Col: m[i-1].Col}, true
}
