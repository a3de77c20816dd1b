package display

import (
	"bytes"
	"io"
	"unicode/utf8"
)

// ansiState tracks the parser state for escape sequences.
type ansiState int

const (
	ansiStateGround    ansiState = iota // normal text
	ansiStateEscape                     // saw ESC
	ansiStateCSI                        // saw ESC [
	ansiStateString                     // inside OSC/DCS/PM/APC
	ansiStateStringEsc                  // saw ESC inside a string, expecting '\'
)

// unmappable replaces runes CP437 has no glyph for.
const unmappable = '?'

// CP437Writer turns UTF-8 program output into the single-byte CP437 cell
// values the panel stores. Escape sequences are dropped, since the panel
// has no attributes or addressing, and of the control bytes only CR, LF,
// BS and TAB are kept. Runes split across writes are reassembled.
type CP437Writer struct {
	w       io.Writer
	state   ansiState
	pending []byte // incomplete UTF-8 sequence
	out     bytes.Buffer
}

func NewCP437Writer(w io.Writer) *CP437Writer {
	return &CP437Writer{w: w}
}

// Write filters p and writes the result to the underlying writer in one
// call. It always consumes all of p unless that write fails.
func (cw *CP437Writer) Write(p []byte) (int, error) {
	cw.out.Reset()
	for _, b := range p {
		switch cw.state {
		case ansiStateGround:
			cw.ground(b)

		case ansiStateEscape:
			switch {
			case b == '[':
				cw.state = ansiStateCSI
			case b == ']' || b == 'P' || b == 'X' || b == '^' || b == '_':
				cw.state = ansiStateString
			case b >= 0x20 && b <= 0x2F:
				// intermediate byte, e.g. ESC ( B
			default:
				cw.state = ansiStateGround
			}

		case ansiStateCSI:
			if b >= 0x40 && b <= 0x7E {
				cw.state = ansiStateGround
			}

		case ansiStateString:
			switch b {
			case 0x07:
				cw.state = ansiStateGround
			case 0x1B:
				cw.state = ansiStateStringEsc
			}

		case ansiStateStringEsc:
			if b == '\\' {
				cw.state = ansiStateGround
			} else {
				cw.state = ansiStateString
			}
		}
	}

	if cw.out.Len() == 0 {
		return len(p), nil
	}
	if _, err := cw.w.Write(cw.out.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (cw *CP437Writer) ground(b byte) {
	if len(cw.pending) > 0 || b >= 0x80 {
		cw.pending = append(cw.pending, b)
		if !utf8.FullRune(cw.pending) {
			return
		}
		r, size := utf8.DecodeRune(cw.pending)
		rest := append([]byte(nil), cw.pending[size:]...)
		cw.pending = cw.pending[:0]
		cw.out.WriteByte(cp437Byte(r, size))
		// bytes after an invalid lead byte start over
		for _, c := range rest {
			cw.ground(c)
		}
		return
	}

	switch {
	case b == 0x1B:
		cw.state = ansiStateEscape
	case b == '\r', b == '\n', b == '\b', b == '\t':
		cw.out.WriteByte(b)
	case b >= 0x20 && b < 0x7F:
		cw.out.WriteByte(b)
	}
}

func cp437Byte(r rune, size int) byte {
	if r == utf8.RuneError && size <= 1 {
		return unmappable
	}
	b, ok := EncodeRune(r)
	if !ok || b < 0x20 {
		return unmappable
	}
	return b
}
