package keyboard

import (
	"sync"

	"github.com/stlalpha/cardbasic/internal/keymatrix"
)

// frame is the state of every line during one poll.
type frame struct {
	mods    [keymatrix.ModifierCount]bool
	key     keymatrix.KeyIndex
	keyDown bool
}

// Typist plays bytes into a simulated matrix as the finger movements that
// produce them: a modifier tap or long hold, the key press, then release.
// Type may be called from any goroutine; Step is called once per poll by
// the polling loop, before the translator samples the lines.
type Typist struct {
	sim *keymatrix.Sim

	mu            sync.Mutex
	frames        []frame
	longThreshold uint
}

// NewTypist creates a typist driving sim. longThreshold must match the
// translator's so long holds are recognised.
func NewTypist(sim *keymatrix.Sim, longThreshold uint) *Typist {
	return &Typist{sim: sim, longThreshold: longThreshold}
}

// SetLongThreshold updates the hold length used for long-press columns.
func (ty *Typist) SetLongThreshold(ticks uint) {
	ty.mu.Lock()
	ty.longThreshold = ticks
	ty.mu.Unlock()
}

// Type queues the presses producing code. It returns false if no key
// combination produces it.
func (ty *Typist) Type(code byte) bool {
	key, col, ok := Lookup(code)
	if !ok {
		return false
	}

	ty.mu.Lock()
	defer ty.mu.Unlock()

	if col != ColNormal {
		mod := keymatrix.Modifier((col - 1) / 2)
		hold := uint(1)
		if col == ColLongShift || col == ColLongSym || col == ColLongFn {
			hold = ty.longThreshold
		}
		var f frame
		f.mods[mod] = true
		for i := uint(0); i < hold; i++ {
			ty.frames = append(ty.frames, f)
		}
		ty.frames = append(ty.frames, frame{})
	}
	ty.frames = append(ty.frames, frame{key: key, keyDown: true}, frame{})
	return true
}

// TypeString queues every byte of s and returns the number accepted.
func (ty *Typist) TypeString(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if ty.Type(s[i]) {
			n++
		}
	}
	return n
}

// Pending returns the number of queued frames.
func (ty *Typist) Pending() int {
	ty.mu.Lock()
	defer ty.mu.Unlock()
	return len(ty.frames)
}

// Step applies the next frame to the matrix. With nothing queued every
// line is released.
func (ty *Typist) Step() {
	ty.mu.Lock()
	var f frame
	if len(ty.frames) > 0 {
		f = ty.frames[0]
		ty.frames = ty.frames[1:]
	}
	ty.mu.Unlock()

	ty.sim.ReleaseAll()
	for m, down := range f.mods {
		if down {
			ty.sim.SetModifier(keymatrix.Modifier(m), true)
		}
	}
	if f.keyDown {
		ty.sim.Press(f.key)
	}
}

// Keyboard couples a Typist with the Translator decoding its matrix, so a
// front-end that receives bytes can stand in for a physical keyboard.
type Keyboard struct {
	Typist     *Typist
	Translator *Translator
}

// NewKeyboard builds a simulated matrix, its decoder and translator, and a
// typist driving it.
func NewKeyboard(longThreshold uint, opts ...Option) *Keyboard {
	sim := keymatrix.NewSim()
	dec := keymatrix.NewDecoder(sim, keymatrix.WithSettle(0))
	opts = append([]Option{WithLongThreshold(longThreshold)}, opts...)
	tr := NewTranslator(dec, sim, opts...)
	return &Keyboard{
		Typist:     NewTypist(sim, tr.LongThreshold()),
		Translator: tr,
	}
}

// Poll advances the typist one frame and polls the translator.
func (k *Keyboard) Poll() (byte, bool) {
	k.Typist.Step()
	return k.Translator.Poll()
}

// SetLongThreshold updates both halves.
func (k *Keyboard) SetLongThreshold(ticks uint) {
	k.Translator.SetLongThreshold(ticks)
	k.Typist.SetLongThreshold(k.Translator.LongThreshold())
}
