package keyboard

import "github.com/stlalpha/cardbasic/internal/keymatrix"

// Color is an RGB LED value.
type Color struct {
	R, G, B uint8
}

// Off is the dark LED.
var Off = Color{}

// Modifier colours, at the brightness the board uses.
var modifierColors = [keymatrix.ModifierCount]Color{
	keymatrix.Shift: {R: 5},
	keymatrix.Sym:   {G: 5},
	keymatrix.Fn:    {B: 5},
}

// Indicator is the single status LED.
type Indicator interface {
	SetColor(c Color)
}

// IndicatorColor returns the LED colour for the current modes. Short modes
// blink with phase, long modes are solid.
func (t *Translator) IndicatorColor(phase bool) Color {
	for m, st := range t.mods {
		switch st.Mode {
		case Short:
			if phase {
				return modifierColors[m]
			}
			return Off
		case Long:
			return modifierColors[m]
		}
	}
	return Off
}

func (t *Translator) updateIndicator() {
	if t.indicator == nil {
		return
	}
	phase := true
	if t.phase != nil {
		phase = t.phase()
	}
	c := t.IndicatorColor(phase)
	if c != t.lastColor {
		t.lastColor = c
		t.indicator.SetColor(c)
	}
}
