package keymatrix

import "sync"

// Sim is an in-memory switch matrix. It behaves like the wired board: a
// selected row pulls the column line of every pressed key in that row low,
// so two pressed keys on the same bus read as no match for that bus.
//
// Sim is safe for use by a front-end goroutine pressing keys while the
// polling loop scans.
type Sim struct {
	mu        sync.Mutex
	selected  int
	pressed   [KeyCount]bool
	modifiers [ModifierCount]bool
}

// NewSim returns a matrix with nothing pressed.
func NewSim() *Sim {
	return &Sim{selected: -1}
}

// Press closes the switch at k. Out-of-range indices are ignored.
func (s *Sim) Press(k KeyIndex) {
	if !k.Valid() {
		return
	}
	s.mu.Lock()
	s.pressed[k] = true
	s.mu.Unlock()
}

// Release opens the switch at k.
func (s *Sim) Release(k KeyIndex) {
	if !k.Valid() {
		return
	}
	s.mu.Lock()
	s.pressed[k] = false
	s.mu.Unlock()
}

// SetModifier asserts or releases a modifier line.
func (s *Sim) SetModifier(m Modifier, down bool) {
	if m < 0 || m >= ModifierCount {
		return
	}
	s.mu.Lock()
	s.modifiers[m] = down
	s.mu.Unlock()
}

// ReleaseAll opens every switch and modifier line.
func (s *Sim) ReleaseAll() {
	s.mu.Lock()
	s.pressed = [KeyCount]bool{}
	s.modifiers = [ModifierCount]bool{}
	s.mu.Unlock()
}

// SelectRow implements Lines.
func (s *Sim) SelectRow(row int) {
	s.mu.Lock()
	s.selected = row
	s.mu.Unlock()
}

// ReadBus8 implements Lines.
func (s *Sim) ReadBus8() byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := byte(0xFF)
	if s.selected < 0 || s.selected >= Rows {
		return v
	}
	base := s.selected * Columns
	for col := 0; col < bus8Width; col++ {
		if s.pressed[base+col] {
			v &^= 1 << col
		}
	}
	return v
}

// ReadBus4 implements Lines.
func (s *Sim) ReadBus4() byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := byte(0xFF)
	if s.selected < 0 || s.selected >= Rows {
		return v
	}
	base := s.selected*Columns + bus8Width
	for col := 0; col < bus4Width; col++ {
		if s.pressed[base+col] {
			v &^= 1 << col
		}
	}
	return v
}

// Modifier implements ModifierLines.
func (s *Sim) Modifier(m Modifier) bool {
	if m < 0 || m >= ModifierCount {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modifiers[m]
}
