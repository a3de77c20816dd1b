// Package display provides the character devices the console renders to:
// an ANSI terminal view for SSH and local use and an in-memory recorder.
package display

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// OutputMode selects how glyphs outside printable ASCII are sent.
type OutputMode int

const (
	OutputModeAuto  OutputMode = iota // pick from the terminal type
	OutputModeUTF8                    // CP437 glyphs as UTF-8 runes
	OutputModeCP437                   // raw CP437 bytes
)

func (m OutputMode) String() string {
	switch m {
	case OutputModeUTF8:
		return "utf8"
	case OutputModeCP437:
		return "cp437"
	}
	return "auto"
}

// ParseOutputMode reads a config value. Unknown values mean auto.
func ParseOutputMode(s string) OutputMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "utf8", "utf-8":
		return OutputModeUTF8
	case "cp437":
		return OutputModeCP437
	}
	return OutputModeAuto
}

// Resolve turns auto into a concrete mode for the terminal type term.
// Classic BBS clients announce themselves as "ansi" or "syncterm".
func (m OutputMode) Resolve(term string) OutputMode {
	if m != OutputModeAuto {
		return m
	}
	t := strings.ToLower(term)
	if t == "ansi" || strings.Contains(t, "syncterm") || strings.Contains(t, "ansi-bbs") {
		return OutputModeCP437
	}
	return OutputModeUTF8
}

// cursorRune is the CP437 house glyph at 0x7F, which the charmap tables
// leave as DEL.
const cursorRune = '\u2302'

// Glyph returns the rune a CP437 terminal shows for b. Control bytes are
// shown as a space.
func Glyph(b byte) rune {
	switch {
	case b < 0x20:
		return ' '
	case b == 0x7F:
		return cursorRune
	}
	return charmap.CodePage437.DecodeByte(b)
}

// Encode returns the bytes to send for cell value b in mode.
func Encode(b byte, mode OutputMode) []byte {
	if b < 0x20 {
		return []byte{' '}
	}
	if b < 0x7F || mode == OutputModeCP437 {
		return []byte{b}
	}
	return []byte(string(Glyph(b)))
}

// EncodeRune maps r to its CP437 byte, reporting false when CP437 has no
// glyph for it.
func EncodeRune(r rune) (byte, bool) {
	if r < 0x80 {
		return byte(r), true
	}
	if r == cursorRune {
		return 0x7F, true
	}
	return charmap.CodePage437.EncodeRune(r)
}
