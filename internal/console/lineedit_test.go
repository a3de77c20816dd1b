package console

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func readLine(t *testing.T, term *Terminal) string {
	t.Helper()
	line, err := term.ReadLine(context.Background())
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	return string(line)
}

func TestReadLineBackspace(t *testing.T) {
	keys := &keyQueue{codes: []byte("AB\bC\r")}
	term, _ := newTestTerminal(4, 21, WithInput(keys))

	if got := readLine(t, term); got != "AC" {
		t.Fatalf("ReadLine = %q, want AC", got)
	}
	if term.Editing() {
		t.Error("editor still active")
	}
}

func TestReadLineBackspaceStopsAtStart(t *testing.T) {
	keys := &keyQueue{codes: []byte("\b\bx\b\by\r")}
	term, _ := newTestTerminal(4, 21, WithInput(keys))
	term.PutString("> ")

	if got := readLine(t, term); got != "y" {
		t.Fatalf("ReadLine = %q, want y", got)
	}
	if term.Row(0) != "> "+strings.Repeat(" ", 19) {
		t.Errorf("prompt row changed: %q", term.Row(0))
	}
}

func TestReadLineStartsFreshRowAfterOutput(t *testing.T) {
	keys := &keyQueue{codes: []byte("10 PRINT\r")}
	term, _ := newTestTerminal(4, 21, WithInput(keys))
	term.PutString("READY")

	if got := readLine(t, term); got != "10 PRINT" {
		t.Fatalf("ReadLine = %q", got)
	}
	if got := strings.TrimRight(term.Row(1), " "); got != "10 PRINT" {
		t.Errorf("row 1 = %q", got)
	}
}

func TestReadLineIgnoresNonPrintable(t *testing.T) {
	keys := &keyQueue{codes: []byte{'a', 0x1B, 0x85, 'b', '\r'}}
	term, _ := newTestTerminal(4, 21, WithInput(keys))
	if got := readLine(t, term); got != "ab" {
		t.Fatalf("ReadLine = %q, want ab", got)
	}
}

func TestReadLineScrollsWithTheEdit(t *testing.T) {
	keys := &keyQueue{codes: []byte("abcde\r")}
	term, _ := newTestTerminal(2, 4, WithInput(keys))
	term.NewLine()

	if got := readLine(t, term); got != "abcde" {
		t.Fatalf("ReadLine = %q", got)
	}
	if term.Row(0) != "abcd" || term.Row(1) != "e   " {
		t.Errorf("rows = %q %q", term.Row(0), term.Row(1))
	}
}

func TestReadLineRejectsPastScreenWhenStartingOnTop(t *testing.T) {
	keys := &keyQueue{codes: []byte("abcdefghij\r")}
	term, _ := newTestTerminal(2, 4, WithInput(keys))

	if got := readLine(t, term); got != "abcdefg" {
		t.Fatalf("ReadLine = %q, want abcdefg", got)
	}
}

func TestReadLineClicksEveryKey(t *testing.T) {
	clicks := 0
	keys := &keyQueue{codes: []byte("hi\b\r")}
	term, _ := newTestTerminal(4, 21, WithInput(keys), WithClicker(func() { clicks++ }))
	readLine(t, term)
	if clicks != 4 {
		t.Errorf("clicks = %d, want 4", clicks)
	}
}

func TestReadLineAbort(t *testing.T) {
	term, _ := newTestTerminal(4, 21)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	line, err := term.ReadLine(ctx)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if len(line) != 0 {
		t.Errorf("line = %q", line)
	}
	if term.Editing() {
		t.Error("editor still active after abort")
	}
}

func TestReadLineBlinksCursor(t *testing.T) {
	phase := false
	polls := 0
	input := InputFunc(func() (byte, bool) {
		polls++
		switch polls {
		case 1:
			return 'x', true
		case 2, 3:
			phase = !phase
			return 0, false
		}
		return '\r', true
	})

	var seen []string
	term, disp := newTestTerminal(4, 21, WithInput(input), WithBlink(func() bool { return phase }))
	rec := &recordingDisplay{fakeDisplay: disp, onRow: func() { seen = append(seen, disp.line(0)) }}
	term.display = rec

	readLine(t, term)

	var glyph bool
	for _, row := range seen {
		if strings.HasPrefix(row, "x\x7f") {
			glyph = true
		}
	}
	if !glyph {
		t.Errorf("cursor glyph never rendered: %q", seen)
	}
	if got := disp.line(0); !strings.HasPrefix(got, "x ") {
		t.Errorf("cursor left on screen after editing: %q", got)
	}
}

// recordingDisplay snapshots after every full row write.
type recordingDisplay struct {
	*fakeDisplay
	onRow func()
}

func (r *recordingDisplay) WriteChar(c byte) bool {
	r.fakeDisplay.WriteChar(c)
	if r.fakeDisplay.x == r.fakeDisplay.cols {
		r.onRow()
	}
	return true
}
