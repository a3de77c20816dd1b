package console

import (
	"context"

	"github.com/stlalpha/cardbasic/internal/keyboard"
)

// ReadLine edits one line at the cursor and returns the typed bytes.
//
// Editing starts on the current row when the cursor is at column 0 and on
// a fresh row otherwise. Printable codes are inserted, backspace removes
// the previous character back to the start position and enter finishes.
// When the line runs past the bottom row the screen scrolls, unless the
// line already starts on row 0, in which case the character is dropped.
// A done context ends editing early and returns what was typed with
// ErrAborted.
func (t *Terminal) ReadLine(ctx context.Context) ([]byte, error) {
	t.editing = true
	if t.curX == 0 {
		t.blankRow(t.curY)
	} else {
		t.NewLine()
	}

	start := t.pos()
	pos := start
	lastPhase := t.blinkPhase()
	t.Render()

	var err error
	for done := false; !done; {
		if ctx.Err() != nil {
			err = ErrAborted
			break
		}
		c, ok := t.poll()
		if !ok {
			if p := t.blinkPhase(); p != lastPhase {
				lastPhase = p
				t.Render()
			}
			t.sleep(t.pollInterval)
			continue
		}
		if t.click != nil {
			t.click()
		}

		t.dirty[t.curY] = true
		switch {
		case keyboard.IsPrintable(c):
			t.cells[pos] = c
			pos++
		case c == keyboard.CodeBackspace && pos > start:
			pos--
			t.cells[pos] = 0
		case c == keyboard.CodeEnter:
			done = true
		}
		t.setPos(pos)

		if t.curY == t.rows {
			if start >= t.cols {
				start -= t.cols
				pos -= t.cols
				t.scroll()
			} else {
				pos--
				t.cells[pos] = 0
				t.setPos(pos)
			}
		}
		t.dirty[t.curY] = true
		t.Render()
	}

	line := make([]byte, pos-start)
	copy(line, t.cells[start:pos])
	if pos < len(t.cells) {
		t.cells[pos] = 0
	}
	t.editing = false
	t.dirty[t.curY] = true
	t.Render()
	return line, err
}
