package ir

// Cond is a condition code. The values match the architecture's 4-bit
// condition field so they can be placed into instruction words directly.
type Cond uint8

const (
	EQ Cond = 0x0
	NE Cond = 0x1
	CS Cond = 0x2
	CC Cond = 0x3
	MI Cond = 0x4
	PL Cond = 0x5
	VS Cond = 0x6
	VC Cond = 0x7
	HI Cond = 0x8
	LS Cond = 0x9
	GE Cond = 0xA
	LT Cond = 0xB
	GT Cond = 0xC
	LE Cond = 0xD
	AL Cond = 0xE
	NV Cond = 0xF
)

// Invert flips the condition. AL/NV have no inverse and are returned as is.
func (c Cond) Invert() Cond {
	if c >= AL {
		return c
	}

	return c ^ 1
}

func (c Cond) String() string {
	names := [...]string{
		"eq", "ne", "cs", "cc", "mi", "pl", "vs", "vc",
		"hi", "ls", "ge", "lt", "gt", "le", "al", "nv",
	}

	if int(c) < len(names) {
		return names[c]
	}

	return "??"
}
