package ir

// Data directives. Between DataStart and DataEnd the stream describes
// bytes for the data sub-region instead of code. DataStart defines Name
// as a data symbol at the current (aligned) data offset.

type (
	DataStart struct {
		Name  string
		Align int
	}

	DataEnd struct{}

	// DataBytes emits raw bytes (covers byte/ascii runs).
	DataBytes struct {
		Data []byte
	}

	// DataInt emits Value as a little-endian integer of Size bytes
	// (1, 2, 4 or 8).
	DataInt struct {
		Size  int
		Value int64
	}

	// DataZero emits N zero bytes.
	DataZero struct {
		N int
	}

	// DataAlign pads the data cursor up to a multiple of N.
	DataAlign struct {
		N int
	}

	// DataSymRef emits an 8-byte slot holding the absolute address of
	// Sym+Addend, patched at link time.
	DataSymRef struct {
		Sym    string
		Addend int64
	}
)
