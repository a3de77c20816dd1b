package display

import (
	"strings"
	"sync"

	"github.com/stlalpha/cardbasic/internal/keyboard"
)

// Recorder is an in-memory display. It keeps what a physical panel would
// show and counts operations, and is safe to read from another goroutine
// while the appliance writes to it.
type Recorder struct {
	mu         sync.RWMutex
	rows, cols int
	grid       [][]byte
	col, row   int
	writes     int
	clears     int
	led        keyboard.Color
	version    uint64
}

func NewRecorder(rows, cols int) *Recorder {
	r := &Recorder{rows: rows, cols: cols}
	r.grid = make([][]byte, rows)
	for y := range r.grid {
		r.grid[y] = make([]byte, cols)
	}
	r.Clear()
	r.clears = 0
	return r
}

func (r *Recorder) SetPosition(col, row int) {
	r.mu.Lock()
	r.col, r.row = col, row
	r.mu.Unlock()
}

func (r *Recorder) WriteChar(c byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.row < 0 || r.row >= r.rows || r.col < 0 || r.col >= r.cols {
		return false
	}
	r.grid[r.row][r.col] = c
	r.col++
	r.writes++
	r.version++
	return true
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for y := range r.grid {
		for x := range r.grid[y] {
			r.grid[y][x] = ' '
		}
	}
	r.col, r.row = 0, 0
	r.clears++
	r.version++
}

// SetColor records the LED colour.
func (r *Recorder) SetColor(c keyboard.Color) {
	r.mu.Lock()
	if r.led != c {
		r.led = c
		r.version++
	}
	r.mu.Unlock()
}

// Line returns row y as raw bytes.
func (r *Recorder) Line(y int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if y < 0 || y >= r.rows {
		return ""
	}
	return string(r.grid[y])
}

// Lines returns every row with CP437 glyphs decoded to runes.
func (r *Recorder) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, r.rows)
	var sb strings.Builder
	for y, row := range r.grid {
		sb.Reset()
		for _, c := range row {
			sb.WriteRune(Glyph(c))
		}
		out[y] = sb.String()
	}
	return out
}

// LED returns the last LED colour.
func (r *Recorder) LED() keyboard.Color {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.led
}

// Writes returns the number of characters written.
func (r *Recorder) Writes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writes
}

// Clears returns the number of Clear calls.
func (r *Recorder) Clears() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clears
}

// Version changes whenever the visible state changes.
func (r *Recorder) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}
