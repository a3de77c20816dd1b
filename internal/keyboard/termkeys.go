package keyboard

// TermDecoder converts bytes typed on a host terminal (an SSH client or the
// local tty) into key codes, so a remote keyboard can stand in for the
// matrix. Cursor and editing keys arrive as escape sequences and map to the
// private function codes. Bytes outside ASCII are dropped.
type TermDecoder struct {
	seq    []byte // escape sequence in progress, starting with ESC
	lastCR bool
}

// csiTilde maps the parameter of "ESC [ n ~" to a code.
var csiTilde = map[string]byte{
	"1": FnHome,
	"2": FnInsert,
	"3": FnDelete,
	"4": FnEnd,
	"5": FnPageUp,
	"6": FnPageDn,
	"7": FnHome,
	"8": FnEnd,
}

// csiFinal maps the final byte of "ESC [ X" and "ESC O X" to a code.
var csiFinal = map[byte]byte{
	'A': FnUp,
	'B': FnDown,
	'C': FnRight,
	'D': FnLeft,
	'H': FnHome,
	'F': FnEnd,
}

// Decode returns the codes for p. A lone ESC at the end of p is taken as
// the escape key, since terminals send a whole sequence in one write.
func (d *TermDecoder) Decode(p []byte) []byte {
	var codes []byte
	for _, b := range p {
		codes = d.feed(codes, b)
	}
	if len(d.seq) == 1 {
		codes = append(codes, CodeEscape)
		d.seq = d.seq[:0]
	}
	return codes
}

func (d *TermDecoder) feed(codes []byte, b byte) []byte {
	if len(d.seq) > 0 {
		return d.feedSequence(codes, b)
	}

	cr := d.lastCR
	d.lastCR = b == '\r'
	switch {
	case b == 0x1B:
		d.seq = append(d.seq, b)
	case b == '\r':
		codes = append(codes, CodeEnter)
	case b == '\n':
		if !cr {
			codes = append(codes, CodeEnter)
		}
	case b == 0x7F || b == 0x08:
		codes = append(codes, CodeBackspace)
	case b == '\t':
		codes = append(codes, CodeTab)
	case b == 0x03:
		codes = append(codes, FnBreak)
	case IsPrintable(b):
		codes = append(codes, b)
	}
	return codes
}

func (d *TermDecoder) feedSequence(codes []byte, b byte) []byte {
	if len(d.seq) == 1 {
		if b == '[' || b == 'O' {
			d.seq = append(d.seq, b)
			return codes
		}
		// ESC followed by an ordinary key
		d.seq = d.seq[:0]
		codes = append(codes, CodeEscape)
		return d.feed(codes, b)
	}

	d.seq = append(d.seq, b)
	if b < 0x40 || b > 0x7E {
		if len(d.seq) > 16 {
			d.seq = d.seq[:0]
		}
		return codes
	}

	params := string(d.seq[2 : len(d.seq)-1])
	d.seq = d.seq[:0]
	if b == '~' {
		if c, ok := csiTilde[params]; ok {
			codes = append(codes, c)
		}
		return codes
	}
	if c, ok := csiFinal[b]; ok {
		codes = append(codes, c)
	}
	return codes
}
