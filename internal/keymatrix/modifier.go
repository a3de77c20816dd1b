package keymatrix

// Modifier names one of the three dedicated modifier lines.
type Modifier int

const (
	Shift Modifier = iota
	Sym
	Fn

	// ModifierCount is the number of dedicated modifier lines.
	ModifierCount = 3
)

func (m Modifier) String() string {
	switch m {
	case Shift:
		return "shift"
	case Sym:
		return "sym"
	case Fn:
		return "fn"
	}
	return "unknown"
}

// ModifierLines reports the raw state of the modifier lines.
type ModifierLines interface {
	// Modifier reports whether the line for m is asserted.
	Modifier(m Modifier) bool
}
