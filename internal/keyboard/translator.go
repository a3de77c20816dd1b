package keyboard

import (
	"sync/atomic"

	"github.com/stlalpha/cardbasic/internal/keymatrix"
)

// Mode is the press state of a modifier.
type Mode uint8

const (
	Idle Mode = iota
	Short
	Long
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Short:
		return "short"
	case Long:
		return "long"
	}
	return "unknown"
}

// DefaultLongThreshold is the number of asserted polls that turns a short
// modifier press into a long one.
const DefaultLongThreshold = 100

// ModifierState tracks one modifier line.
type ModifierState struct {
	Active    bool // line currently asserted
	HoldTicks uint // asserted polls since the rising edge, saturating at the threshold
	Mode      Mode

	latched    bool // released without a key; applies to the next keystroke
	chorded    bool // a key was consumed while the line was held
	suppressed bool // cleared by another modifier while still held
}

// Latched reports whether the modifier is waiting for its one keystroke.
func (s ModifierState) Latched() bool { return s.latched }

func (s *ModifierState) reset() {
	s.HoldTicks = 0
	s.Mode = Idle
	s.latched = false
	s.chorded = false
}

// Scanner reports the currently pressed key.
type Scanner interface {
	Scan() (keymatrix.KeyIndex, bool)
}

// Translator runs the modifier state machine and maps keys to codes. Poll
// must be called from a single goroutine; the timing setters may be called
// from any goroutine.
type Translator struct {
	scanner   Scanner
	modifiers keymatrix.ModifierLines
	mods      [keymatrix.ModifierCount]ModifierState

	longThreshold atomic.Uint32
	repeatDelay   atomic.Uint32
	repeatRate    atomic.Uint32

	keyHeld   bool
	lastKey   keymatrix.KeyIndex
	heldTicks uint

	indicator Indicator
	phase     func() bool
	lastColor Color
}

// Option configures a Translator.
type Option func(*Translator)

// WithLongThreshold sets the long-press threshold in polls.
func WithLongThreshold(ticks uint) Option {
	return func(t *Translator) { t.SetLongThreshold(ticks) }
}

// WithRepeat enables auto-repeat after delay polls, then every rate polls.
// A zero delay disables repeat.
func WithRepeat(delay, rate uint) Option {
	return func(t *Translator) { t.SetRepeat(delay, rate) }
}

// WithIndicator drives an LED from the modifier mode. phase supplies the
// blink phase; it may be nil.
func WithIndicator(ind Indicator, phase func() bool) Option {
	return func(t *Translator) {
		t.indicator = ind
		t.phase = phase
	}
}

// NewTranslator creates a translator over a scanner and the modifier lines.
func NewTranslator(scanner Scanner, modifiers keymatrix.ModifierLines, opts ...Option) *Translator {
	t := &Translator{
		scanner:   scanner,
		modifiers: modifiers,
	}
	t.longThreshold.Store(DefaultLongThreshold)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetLongThreshold changes the long-press threshold. Values below 2 are
// raised to 2 so a single-poll tap is always short.
func (t *Translator) SetLongThreshold(ticks uint) {
	if ticks < 2 {
		ticks = 2
	}
	t.longThreshold.Store(uint32(ticks))
}

// LongThreshold returns the long-press threshold in polls.
func (t *Translator) LongThreshold() uint { return uint(t.longThreshold.Load()) }

// SetRepeat changes the auto-repeat timing.
func (t *Translator) SetRepeat(delay, rate uint) {
	if rate == 0 {
		rate = 1
	}
	t.repeatDelay.Store(uint32(delay))
	t.repeatRate.Store(uint32(rate))
}

// State returns a snapshot of one modifier.
func (t *Translator) State(m keymatrix.Modifier) ModifierState {
	return t.mods[m]
}

// Column returns the KeyMap column selected by the current modifier modes.
func (t *Translator) Column() Column {
	for m := range t.mods {
		mode := t.mods[m].Mode
		if mode == Idle {
			continue
		}
		col := Column(1 + 2*m)
		if mode == Long {
			col++
		}
		return col
	}
	return ColNormal
}

// Poll samples the modifier lines and the matrix once and returns the code
// of a newly pressed key.
func (t *Translator) Poll() (byte, bool) {
	t.sampleModifiers()
	code, ok := t.sampleKey()
	t.updateIndicator()
	return code, ok
}

func (t *Translator) sampleModifiers() {
	threshold := t.LongThreshold()

	for i := range t.mods {
		m := keymatrix.Modifier(i)
		st := &t.mods[i]
		down := t.modifiers.Modifier(m)

		switch {
		case down && !st.Active:
			for j := range t.mods {
				if j == i {
					continue
				}
				other := &t.mods[j]
				if other.Mode != Idle {
					other.reset()
					if other.Active {
						other.suppressed = true
					}
				}
			}
			st.Active = true
			st.suppressed = false
			st.reset()
			st.Mode = Short

		case !down && st.Active:
			st.Active = false
			if st.suppressed || st.chorded {
				st.suppressed = false
				st.reset()
			} else if st.Mode != Idle {
				st.latched = true
			}
			continue

		case !down:
			continue
		}

		if st.suppressed {
			continue
		}
		if st.HoldTicks < threshold {
			st.HoldTicks++
		}
		if st.HoldTicks >= threshold {
			st.Mode = Long
		}
	}
}

func (t *Translator) sampleKey() (byte, bool) {
	key, ok := t.scanner.Scan()
	if !ok || !key.Valid() {
		t.keyHeld = false
		return 0, false
	}

	if t.keyHeld && key == t.lastKey {
		t.heldTicks++
		delay := uint(t.repeatDelay.Load())
		rate := uint(t.repeatRate.Load())
		if delay == 0 || t.heldTicks < delay || (t.heldTicks-delay)%rate != 0 {
			return 0, false
		}
	} else {
		t.keyHeld = true
		t.lastKey = key
		t.heldTicks = 0
	}

	code := KeyMap[key][t.Column()]
	t.consume()
	if code == 0 {
		return 0, false
	}
	return code, true
}

// consume applies a keystroke to the modifiers: held ones become chords,
// latched ones are spent.
func (t *Translator) consume() {
	for i := range t.mods {
		st := &t.mods[i]
		if st.Mode == Idle {
			continue
		}
		if st.Active {
			st.chorded = true
		} else if st.latched {
			st.reset()
		}
	}
}
