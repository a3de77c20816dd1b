// Package keymatrix scans the keyboard switch matrix.
//
// The matrix has four row-select lines driven active-low one at a time and
// twelve column-read lines split across an 8-bit bus and a 4-bit bus. A key
// is reported only when exactly one column line reads low; the scan stops at
// the first match so simultaneous presses resolve deterministically (row 0
// before row 1, low column before high column).
package keymatrix

import "time"

const (
	// Rows is the number of row-select lines.
	Rows = 4
	// Columns is the number of column-read lines (8-bit bus + 4-bit bus).
	Columns = 12
	// KeyCount is the number of addressable switch positions.
	KeyCount = Rows * Columns

	bus8Width = 8
	bus4Width = 4
	bus4Mask  = 0x0F

	// DefaultSettle matches the row settling delay of the reference board.
	DefaultSettle = 2 * time.Millisecond
)

// KeyIndex identifies a switch as row*Columns + column.
type KeyIndex int

// Row returns the row-select line of the key.
func (k KeyIndex) Row() int { return int(k) / Columns }

// Column returns the column-read line of the key.
func (k KeyIndex) Column() int { return int(k) % Columns }

// Valid reports whether k addresses a switch.
func (k KeyIndex) Valid() bool { return k >= 0 && k < KeyCount }

// Expected bus values when exactly one column line is pulled low.
var (
	bus8Pattern = [bus8Width]byte{0xFE, 0xFD, 0xFB, 0xF7, 0xEF, 0xDF, 0xBF, 0x7F}
	bus4Pattern = [bus4Width]byte{0x0E, 0x0D, 0x0B, 0x07}
)

// Lines is the electrical contract of the matrix.
type Lines interface {
	// SelectRow drives row low and every other row high. A negative row
	// releases all rows.
	SelectRow(row int)
	// ReadBus8 samples column lines 0-7 (bit j = column j, low = pressed).
	ReadBus8() byte
	// ReadBus4 samples column lines 8-11 in the low nibble.
	ReadBus4() byte
}

// Decoder turns row/column samples into a key index. It keeps no state
// between scans and does not debounce.
type Decoder struct {
	lines    Lines
	settle   time.Duration
	sleep    func(time.Duration)
	activity func(on bool)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithSettle sets the delay between selecting a row and sampling the buses.
func WithSettle(d time.Duration) Option {
	return func(dec *Decoder) { dec.settle = d }
}

// WithSleep replaces time.Sleep, mostly for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(dec *Decoder) { dec.sleep = sleep }
}

// WithActivity registers a callback flashed around every detected key.
func WithActivity(fn func(on bool)) Option {
	return func(dec *Decoder) { dec.activity = fn }
}

// NewDecoder creates a decoder over the given lines.
func NewDecoder(lines Lines, opts ...Option) *Decoder {
	d := &Decoder{
		lines:  lines,
		settle: DefaultSettle,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Scan drives each row in turn and returns the first key whose column bus
// shows the single-low pattern. ok is false when no key is pressed.
func (d *Decoder) Scan() (key KeyIndex, ok bool) {
	defer d.lines.SelectRow(-1)

	for row := 0; row < Rows; row++ {
		d.lines.SelectRow(row)
		if d.settle > 0 {
			d.sleep(d.settle)
		}

		sample := d.lines.ReadBus8()
		for col, want := range bus8Pattern {
			if sample == want {
				d.flash()
				return KeyIndex(row*Columns + col), true
			}
		}

		sample = d.lines.ReadBus4() & bus4Mask
		for col, want := range bus4Pattern {
			if sample == want {
				d.flash()
				return KeyIndex(row*Columns + bus8Width + col), true
			}
		}
	}
	return 0, false
}

func (d *Decoder) flash() {
	if d.activity == nil {
		return
	}
	d.activity(true)
	d.activity(false)
}
