// Package console implements the character-grid terminal shown on the
// appliance display: output with scrolling, dirty-row rendering and the
// line editor.
package console

import (
	"context"
	"errors"
	"time"

	"github.com/stlalpha/cardbasic/internal/logging"
)

// ErrAborted is returned when a blocking wait or the line editor is
// cancelled through its context.
var ErrAborted = errors.New("console: input aborted")

// CursorGlyph replaces the cursor cell during line editing while the blink
// phase is on.
const CursorGlyph = 0x7F

const (
	DefaultRows         = 4
	DefaultCols         = 21
	DefaultPollInterval = 5 * time.Millisecond
)

// Display is the character device the terminal renders to.
type Display interface {
	SetPosition(col, row int)
	WriteChar(c byte) bool
	Clear()
}

// Flusher is implemented by displays that buffer output; Render flushes
// once per call.
type Flusher interface {
	Flush() error
}

// Input delivers decoded key codes, one per poll.
type Input interface {
	Poll() (byte, bool)
}

// InputFunc adapts a function to Input.
type InputFunc func() (byte, bool)

func (f InputFunc) Poll() (byte, bool) { return f() }

// Terminal is a rows x cols character grid with per-row dirty flags and a
// cursor. It is owned by a single polling goroutine.
type Terminal struct {
	rows, cols int
	cells      []byte
	dirty      []bool
	curX, curY int
	editing    bool

	display      Display
	input        Input
	phase        func() bool
	click        func()
	pollInterval time.Duration
	sleep        func(time.Duration)
	flushErr     error
}

// Option configures a Terminal.
type Option func(*Terminal)

// WithInput sets the key source used by the blocking operations.
func WithInput(in Input) Option {
	return func(t *Terminal) { t.input = in }
}

// WithBlink supplies the cursor blink phase.
func WithBlink(phase func() bool) Option {
	return func(t *Terminal) { t.phase = phase }
}

// WithPollInterval sets the delay between input polls while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(t *Terminal) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// WithSleep replaces time.Sleep, mainly for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(t *Terminal) { t.sleep = sleep }
}

// WithClicker sets the key click played for every code the line editor
// accepts.
func WithClicker(click func()) Option {
	return func(t *Terminal) { t.click = click }
}

// SetClicker replaces the key click after construction.
func (t *Terminal) SetClicker(click func()) { t.click = click }

// NewTerminal creates a cleared terminal of the given geometry. Sizes below
// one are raised to one.
func NewTerminal(display Display, rows, cols int, opts ...Option) *Terminal {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	t := &Terminal{
		rows:         rows,
		cols:         cols,
		cells:        make([]byte, rows*cols),
		dirty:        make([]bool, rows),
		display:      display,
		pollInterval: DefaultPollInterval,
		sleep:        time.Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}
	if display != nil {
		display.Clear()
	}
	t.Clear()
	return t
}

func (t *Terminal) Rows() int { return t.rows }
func (t *Terminal) Cols() int { return t.cols }

// Cursor returns the cursor column and row.
func (t *Terminal) Cursor() (x, y int) { return t.curX, t.curY }

// Editing reports whether the line editor is active.
func (t *Terminal) Editing() bool { return t.editing }

// Cell returns the byte stored at (x, y), or 0 outside the grid.
func (t *Terminal) Cell(x, y int) byte {
	if x < 0 || x >= t.cols || y < 0 || y >= t.rows {
		return 0
	}
	return t.cells[y*t.cols+x]
}

// Row returns a copy of row y as rendered: cells below 0x20 read as space.
func (t *Terminal) Row(y int) string {
	if y < 0 || y >= t.rows {
		return ""
	}
	line := make([]byte, t.cols)
	for x, c := range t.cells[y*t.cols : (y+1)*t.cols] {
		if c < 0x20 {
			c = ' '
		}
		line[x] = c
	}
	return string(line)
}

// Dirty reports whether row y is waiting to be rendered.
func (t *Terminal) Dirty(y int) bool {
	return y >= 0 && y < t.rows && t.dirty[y]
}

// DirtyRows returns the rows waiting to be rendered.
func (t *Terminal) DirtyRows() []int {
	var out []int
	for y, d := range t.dirty {
		if d {
			out = append(out, y)
		}
	}
	return out
}

// Clear blanks the grid, marks every row dirty and homes the cursor.
func (t *Terminal) Clear() {
	for i := range t.cells {
		t.cells[i] = ' '
	}
	t.markAll()
	t.curX, t.curY = 0, 0
}

// MoveCursor places the cursor, clamping to the grid.
func (t *Terminal) MoveCursor(x, y int) {
	t.curX = clamp(x, 0, t.cols-1)
	t.curY = clamp(y, 0, t.rows-1)
}

// PutChar writes c at the cursor and advances, scrolling when the last
// cell is passed.
func (t *Terminal) PutChar(c byte) {
	_ = t.putChar(context.Background(), c, false)
}

// PutCharPaused is PutChar that, before scrolling, renders and waits for a
// key. On cancellation the scroll still happens and ErrAborted is returned.
func (t *Terminal) PutCharPaused(ctx context.Context, c byte) error {
	return t.putChar(ctx, c, true)
}

// PutString writes every byte of s with PutChar.
func (t *Terminal) PutString(s string) {
	for i := 0; i < len(s); i++ {
		t.PutChar(s[i])
	}
}

// PutStringPaused writes every byte of s with PutCharPaused.
func (t *Terminal) PutStringPaused(ctx context.Context, s string) error {
	for i := 0; i < len(s); i++ {
		if err := t.PutCharPaused(ctx, s[i]); err != nil {
			return err
		}
	}
	return nil
}

// NewLine moves to column 0 of the next row, scrolling at the bottom, and
// blanks that row.
func (t *Terminal) NewLine() {
	_ = t.newLine(context.Background(), false)
}

// NewLinePaused is NewLine with a key wait before scrolling.
func (t *Terminal) NewLinePaused(ctx context.Context) error {
	return t.newLine(ctx, true)
}

// Render sends every dirty row, plus the cursor row while editing, to the
// display and clears their dirty flags.
func (t *Terminal) Render() {
	blinkOn := t.editing && t.phase != nil && t.phase()
	for y := 0; y < t.rows; y++ {
		if !t.dirty[y] && !(t.editing && y == t.curY) {
			continue
		}
		if t.display != nil {
			t.display.SetPosition(0, y)
			for x := 0; x < t.cols; x++ {
				c := t.cells[y*t.cols+x]
				if c < 0x20 {
					c = ' '
				}
				if blinkOn && x == t.curX && y == t.curY {
					c = CursorGlyph
				}
				t.display.WriteChar(c)
			}
		}
		t.dirty[y] = false
	}
	if f, ok := t.display.(Flusher); ok {
		if err := f.Flush(); err != nil && t.flushErr == nil {
			t.flushErr = err
			logging.Debug("console: display flush failed: %v", err)
		}
	}
}

// Err returns the first error the display reported while rendering.
func (t *Terminal) Err() error { return t.flushErr }

// WaitKey polls for a key for up to timeout. A zero timeout polls once.
func (t *Terminal) WaitKey(timeout time.Duration) (byte, bool) {
	for waited := time.Duration(0); ; waited += t.pollInterval {
		if c, ok := t.poll(); ok {
			return c, true
		}
		if waited >= timeout {
			return 0, false
		}
		t.sleep(t.pollInterval)
	}
}

// WaitAnyKey blocks until a key arrives or ctx is done.
func (t *Terminal) WaitAnyKey(ctx context.Context) (byte, error) {
	for {
		if c, ok := t.poll(); ok {
			return c, nil
		}
		if ctx.Err() != nil {
			return 0, ErrAborted
		}
		t.sleep(t.pollInterval)
	}
}

func (t *Terminal) putChar(ctx context.Context, c byte, pause bool) error {
	var err error
	pos := t.pos()
	t.dirty[pos/t.cols] = true
	t.cells[pos] = c
	pos++
	if pos >= len(t.cells) {
		t.Render()
		if pause {
			_, err = t.WaitAnyKey(ctx)
		}
		t.scroll()
		pos -= t.cols
	}
	t.setPos(pos)
	return err
}

func (t *Terminal) newLine(ctx context.Context, pause bool) error {
	var err error
	t.curX = 0
	t.curY++
	if t.curY == t.rows {
		t.Render()
		if pause {
			_, err = t.WaitAnyKey(ctx)
		}
		t.scroll()
	}
	t.blankRow(t.curY)
	return err
}

// scroll discards row 0, blanks the last row and moves the cursor up.
func (t *Terminal) scroll() {
	copy(t.cells, t.cells[t.cols:])
	last := t.cells[(t.rows-1)*t.cols:]
	for i := range last {
		last[i] = ' '
	}
	t.markAll()
	t.curY--
}

func (t *Terminal) blankRow(y int) {
	row := t.cells[y*t.cols : (y+1)*t.cols]
	for i := range row {
		row[i] = ' '
	}
	t.dirty[y] = true
}

func (t *Terminal) markAll() {
	for i := range t.dirty {
		t.dirty[i] = true
	}
}

func (t *Terminal) pos() int { return t.curY*t.cols + t.curX }

// setPos may leave curY == rows for a position one past the grid; callers
// resolve that by scrolling.
func (t *Terminal) setPos(pos int) {
	t.curX = pos % t.cols
	t.curY = pos / t.cols
}

func (t *Terminal) poll() (byte, bool) {
	if t.input == nil {
		return 0, false
	}
	return t.input.Poll()
}

func (t *Terminal) blinkPhase() bool {
	return t.phase != nil && t.phase()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
