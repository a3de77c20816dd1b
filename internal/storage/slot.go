package storage

import "fmt"

// AutorunMarker in byte 0 of the slot makes the stored program run at boot.
const AutorunMarker = 0xFC

const slotHeader = 3

// Slot is the single-image store: marker byte, little-endian length, then
// the image, always at address 0.
type Slot struct {
	dev Device
}

func NewSlot(dev Device) *Slot { return &Slot{dev: dev} }

// Capacity returns the largest image the slot can hold.
func (s *Slot) Capacity() int {
	n := s.dev.Size() - slotHeader
	if n < 0 {
		return 0
	}
	if n > 0xFFFF {
		return 0xFFFF
	}
	return n
}

// Save overwrites the slot with image.
func (s *Slot) Save(image []byte, autorun bool) error {
	if len(image) > 0xFFFF {
		return ErrTooLarge
	}
	if slotHeader+len(image) > s.dev.Size() {
		return ErrNoSpace
	}
	marker := byte(0)
	if autorun {
		marker = AutorunMarker
	}
	return withDeviceLock(s.dev, func() error {
		if err := s.dev.Poke(0, marker); err != nil {
			return fmt.Errorf("storage: slot save: %w", err)
		}
		if err := write16(s.dev, 1, len(image)); err != nil {
			return fmt.Errorf("storage: slot save: %w", err)
		}
		if err := writeBytes(s.dev, slotHeader, image); err != nil {
			return fmt.Errorf("storage: slot save: %w", err)
		}
		return nil
	})
}

// Load returns the stored image.
func (s *Slot) Load() ([]byte, error) {
	var image []byte
	err := withDeviceLock(s.dev, func() error {
		n, err := read16(s.dev, 1)
		if err != nil {
			return fmt.Errorf("storage: slot load: %w", err)
		}
		if slotHeader+n > s.dev.Size() {
			return fmt.Errorf("storage: slot length %d exceeds device: %w", n, ErrCorrupt)
		}
		image, err = readBytes(s.dev, slotHeader, n)
		if err != nil {
			return fmt.Errorf("storage: slot load: %w", err)
		}
		return nil
	})
	return image, err
}

// Autorun reports whether the slot carries the autorun marker.
func (s *Slot) Autorun() (bool, error) {
	b, err := s.dev.Peek(0)
	if err != nil {
		return false, fmt.Errorf("storage: slot marker: %w", err)
	}
	return b == AutorunMarker, nil
}
