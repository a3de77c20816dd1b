package display

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/stlalpha/cardbasic/internal/keyboard"
)

// CP437 box drawing bytes for the bezel.
const (
	boxTopLeft     = 0xDA
	boxTopRight    = 0xBF
	boxBottomLeft  = 0xC0
	boxBottomRight = 0xD9
	boxHorizontal  = 0xC4
	boxVertical    = 0xB3
	ledOn          = 0xFE
	ledOff         = 0xFA
)

// ANSI draws the character grid inside a bezel on an ANSI terminal. Output
// is buffered until Flush.
type ANSI struct {
	mu   sync.Mutex
	w    io.Writer
	buf  bytes.Buffer
	mode OutputMode

	rows, cols int
	top, left  int // terminal position of cell (0,0), 1-based
	col, row   int
	title      string
}

// NewANSI creates a display of rows x cols cells written to w. mode must
// be resolved (not auto).
func NewANSI(w io.Writer, rows, cols int, mode OutputMode) *ANSI {
	if mode == OutputModeAuto {
		mode = OutputModeUTF8
	}
	return &ANSI{w: w, rows: rows, cols: cols, mode: mode, top: 2, left: 2}
}

// SetTitle sets the text drawn into the top edge of the bezel.
func (a *ANSI) SetTitle(title string) {
	a.mu.Lock()
	a.title = title
	a.mu.Unlock()
}

// DrawFrame clears the terminal, hides its cursor and draws the bezel.
func (a *ANSI) DrawFrame() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf.WriteString("\x1b[0m\x1b[2J\x1b[H\x1b[?25l")
	a.moveTo(a.top-1, a.left-1)
	a.putBox(boxTopLeft)
	title := a.title
	if len(title) > a.cols-2 {
		title = title[:max(a.cols-2, 0)]
	}
	for x := 0; x < a.cols; x++ {
		if x >= 1 && x-1 < len(title) {
			a.buf.Write(Encode(title[x-1], a.mode))
			continue
		}
		a.putBox(boxHorizontal)
	}
	a.putBox(boxTopRight)

	for y := 0; y < a.rows; y++ {
		a.moveTo(a.top+y, a.left-1)
		a.putBox(boxVertical)
		for x := 0; x < a.cols; x++ {
			a.buf.WriteByte(' ')
		}
		a.putBox(boxVertical)
	}

	a.moveTo(a.top+a.rows, a.left-1)
	a.putBox(boxBottomLeft)
	for x := 0; x < a.cols; x++ {
		a.putBox(boxHorizontal)
	}
	a.putBox(boxBottomRight)
	a.drawLED(keyboard.Off)
	return a.flush()
}

// Restore shows the terminal cursor again and moves it below the bezel.
func (a *ANSI) Restore() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.WriteString("\x1b[0m")
	a.moveTo(a.top+a.rows+2, 1)
	a.buf.WriteString("\x1b[?25h")
	return a.flush()
}

func (a *ANSI) SetPosition(col, row int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.col, a.row = col, row
	a.moveTo(a.top+row, a.left+col)
}

// WriteChar draws c and advances. Writes past the right edge are refused.
func (a *ANSI) WriteChar(c byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.col < 0 || a.col >= a.cols || a.row < 0 || a.row >= a.rows {
		return false
	}
	a.buf.Write(Encode(c, a.mode))
	a.col++
	return true
}

// Clear blanks the grid area.
func (a *ANSI) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for y := 0; y < a.rows; y++ {
		a.moveTo(a.top+y, a.left)
		for x := 0; x < a.cols; x++ {
			a.buf.WriteByte(' ')
		}
	}
	a.col, a.row = 0, 0
}

// SetColor shows the modifier LED on the bottom edge of the bezel.
func (a *ANSI) SetColor(c keyboard.Color) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.drawLED(c)
	_ = a.flush()
}

// Flush sends buffered output to the terminal.
func (a *ANSI) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flush()
}

func (a *ANSI) drawLED(c keyboard.Color) {
	a.moveTo(a.top+a.rows, a.left+a.cols-2)
	if c == keyboard.Off {
		a.buf.WriteString("\x1b[90m")
		a.buf.Write(Encode(ledOff, a.mode))
	} else {
		// the board drives the LED at 5/255; scale up for a screen
		fmt.Fprintf(&a.buf, "\x1b[38;2;%d;%d;%dm", scale(c.R), scale(c.G), scale(c.B))
		a.buf.Write(Encode(ledOn, a.mode))
	}
	a.buf.WriteString("\x1b[0m")
}

func scale(v uint8) int {
	return min(int(v)*51, 255)
}

func (a *ANSI) putBox(b byte) { a.buf.Write(Encode(b, a.mode)) }

func (a *ANSI) moveTo(row, col int) {
	fmt.Fprintf(&a.buf, "\x1b[%d;%dH", row, col)
}

func (a *ANSI) flush() error {
	if a.buf.Len() == 0 {
		return nil
	}
	_, err := a.w.Write(a.buf.Bytes())
	a.buf.Reset()
	return err
}
