// Package keyboard translates switch matrix scans into character codes.
package keyboard

import "github.com/stlalpha/cardbasic/internal/keymatrix"

// Column selects a KeyMap column from the active modifier mode.
type Column int

const (
	ColNormal Column = iota
	ColShift
	ColLongShift
	ColSym
	ColLongSym
	ColFn
	ColLongFn

	// ColumnCount is the number of KeyMap columns.
	ColumnCount = 7
)

func (c Column) String() string {
	switch c {
	case ColNormal:
		return "normal"
	case ColShift:
		return "shift"
	case ColLongShift:
		return "long-shift"
	case ColSym:
		return "sym"
	case ColLongSym:
		return "long-sym"
	case ColFn:
		return "fn"
	case ColLongFn:
		return "long-fn"
	}
	return "unknown"
}

// Control and private codes surfaced to the interpreter.
const (
	CodeBackspace = 0x08
	CodeTab       = 0x09
	CodeEnter     = 0x0D
	CodeEscape    = 0x1B
	CodeDelete    = 0x7F

	// FnBase is the first private function-key code. Fn+letter yields
	// FnBase + (letter - 'a').
	FnBase    = 0x80
	FnDigit0  = 0x9A // Fn+0..9 yields FnDigit0..FnDigit0+9
	FnUp      = 0xA4
	FnDown    = 0xA5
	FnLeft    = 0xA6
	FnRight   = 0xA7
	FnHome    = 0xA8
	FnEnd     = 0xA9
	FnPageUp  = 0xAA
	FnPageDn  = 0xAB
	FnInsert  = 0xAC
	FnDelete  = 0xAD
	FnBreak   = 0xAE
	FnSpace   = 0xAF
	FnLastKey = 0xAF
)

// IsPrivate reports whether c is in the private function-key range.
func IsPrivate(c byte) bool { return c >= FnBase && c <= FnLastKey }

// IsPrintable reports whether c is printable ASCII.
func IsPrintable(c byte) bool { return c >= 0x20 && c <= 0x7E }

// KeyMap maps (key index, column) to a character code. Zero means the
// combination produces nothing.
//
// Columns: normal, shift, long-shift, sym, long-sym, fn, long-fn.
var KeyMap = [keymatrix.KeyCount][ColumnCount]byte{
	// row 0
	{CodeEscape, CodeEscape, CodeEscape, CodeEscape, CodeEscape, FnBreak, FnBreak},
	{'1', '!', '!', '!', '!', FnDigit0 + 1, FnDigit0 + 1},
	{'2', '@', '@', '@', '@', FnDigit0 + 2, FnDigit0 + 2},
	{'3', '#', '#', '#', '#', FnDigit0 + 3, FnDigit0 + 3},
	{'4', '$', '$', '$', '$', FnDigit0 + 4, FnDigit0 + 4},
	{'5', '%', '%', '%', '%', FnDigit0 + 5, FnDigit0 + 5},
	{'6', '^', '^', '^', '^', FnDigit0 + 6, FnDigit0 + 6},
	{'7', '&', '&', '&', '&', FnDigit0 + 7, FnDigit0 + 7},
	{'8', '*', '*', '*', '*', FnDigit0 + 8, FnDigit0 + 8},
	{'9', '(', '(', '(', '(', FnDigit0 + 9, FnDigit0 + 9},
	{'0', ')', ')', ')', ')', FnDigit0, FnDigit0},
	{CodeBackspace, CodeBackspace, CodeBackspace, CodeDelete, CodeDelete, FnDelete, FnDelete},

	// row 1
	{CodeTab, CodeTab, CodeTab, CodeTab, CodeTab, FnInsert, FnInsert},
	{'q', 'Q', 'Q', '{', '{', FnBase + 'q' - 'a', FnBase + 'q' - 'a'},
	{'w', 'W', 'W', '}', '}', FnBase + 'w' - 'a', FnBase + 'w' - 'a'},
	{'e', 'E', 'E', '[', '[', FnBase + 'e' - 'a', FnBase + 'e' - 'a'},
	{'r', 'R', 'R', ']', ']', FnBase + 'r' - 'a', FnBase + 'r' - 'a'},
	{'t', 'T', 'T', '/', '/', FnBase + 't' - 'a', FnBase + 't' - 'a'},
	{'y', 'Y', 'Y', '\\', '\\', FnBase + 'y' - 'a', FnBase + 'y' - 'a'},
	{'u', 'U', 'U', '|', '|', FnBase + 'u' - 'a', FnBase + 'u' - 'a'},
	{'i', 'I', 'I', '~', '~', FnBase + 'i' - 'a', FnBase + 'i' - 'a'},
	{'o', 'O', 'O', '\'', '\'', FnBase + 'o' - 'a', FnBase + 'o' - 'a'},
	{'p', 'P', 'P', '"', '"', FnBase + 'p' - 'a', FnBase + 'p' - 'a'},
	{'-', '_', '_', '_', '_', FnPageUp, FnPageUp},

	// row 2
	{'a', 'A', 'A', ';', ';', FnBase, FnBase},
	{'s', 'S', 'S', ':', ':', FnBase + 's' - 'a', FnBase + 's' - 'a'},
	{'d', 'D', 'D', '`', '`', FnBase + 'd' - 'a', FnBase + 'd' - 'a'},
	{'f', 'F', 'F', '+', '+', FnBase + 'f' - 'a', FnBase + 'f' - 'a'},
	{'g', 'G', 'G', '-', '-', FnBase + 'g' - 'a', FnBase + 'g' - 'a'},
	{'h', 'H', 'H', '_', '_', FnBase + 'h' - 'a', FnBase + 'h' - 'a'},
	{'j', 'J', 'J', '=', '=', FnBase + 'j' - 'a', FnBase + 'j' - 'a'},
	{'k', 'K', 'K', '?', '?', FnBase + 'k' - 'a', FnBase + 'k' - 'a'},
	{'l', 'L', 'L', '<', '<', FnBase + 'l' - 'a', FnBase + 'l' - 'a'},
	{';', ':', ':', '>', '>', FnUp, FnUp},
	{CodeEnter, CodeEnter, CodeEnter, CodeEnter, CodeEnter, CodeEnter, CodeEnter},
	{'=', '+', '+', '+', '+', FnPageDn, FnPageDn},

	// row 3
	{'z', 'Z', 'Z', 0, 0, FnBase + 'z' - 'a', FnBase + 'z' - 'a'},
	{'x', 'X', 'X', 0, 0, FnBase + 'x' - 'a', FnBase + 'x' - 'a'},
	{'c', 'C', 'C', 0, 0, FnBase + 'c' - 'a', FnBase + 'c' - 'a'},
	{'v', 'V', 'V', 0, 0, FnBase + 'v' - 'a', FnBase + 'v' - 'a'},
	{'b', 'B', 'B', 0, 0, FnBase + 'b' - 'a', FnBase + 'b' - 'a'},
	{'n', 'N', 'N', 0, 0, FnBase + 'n' - 'a', FnBase + 'n' - 'a'},
	{'m', 'M', 'M', 0, 0, FnBase + 'm' - 'a', FnBase + 'm' - 'a'},
	{',', '<', '<', '<', '<', FnLeft, FnLeft},
	{'.', '>', '>', '>', '>', FnDown, FnDown},
	{'/', '?', '?', '?', '?', FnRight, FnRight},
	{' ', ' ', ' ', ' ', ' ', FnSpace, FnSpace},
	{'\'', '"', '"', '"', '"', FnHome, FnEnd},
}

// Lookup returns the key and column that produce code, preferring the
// lowest column. ok is false if no combination produces it.
func Lookup(code byte) (key keymatrix.KeyIndex, col Column, ok bool) {
	if code == 0 {
		return 0, 0, false
	}
	for c := Column(0); c < ColumnCount; c++ {
		for k := range KeyMap {
			if KeyMap[k][c] == code {
				return keymatrix.KeyIndex(k), c, true
			}
		}
	}
	return 0, 0, false
}
