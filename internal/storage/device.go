// Package storage persists program images in byte-addressable
// non-volatile memory: a single boot slot and a directory log of named
// records.
package storage

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotFound   = errors.New("storage: not found")
	ErrNoSpace    = errors.New("storage: not enough space")
	ErrBadName    = errors.New("storage: invalid name")
	ErrCorrupt    = errors.New("storage: corrupt directory")
	ErrTooLarge   = errors.New("storage: image too large")
	ErrOutOfRange = errors.New("storage: address out of range")
)

// Device is byte-addressable memory of a fixed size.
type Device interface {
	Peek(addr int) (byte, error)
	Poke(addr int, b byte) error
	Size() int
}

// Locker is implemented by devices shared with other processes. Multi-byte
// operations run inside WithLock.
type Locker interface {
	WithLock(fn func() error) error
}

// MemDevice is a Device held in memory.
type MemDevice struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemDevice returns a zero-filled device of size bytes.
func NewMemDevice(size int) *MemDevice {
	if size < 0 {
		size = 0
	}
	return &MemDevice{data: make([]byte, size)}
}

func (m *MemDevice) Peek(addr int) (byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if addr < 0 || addr >= len(m.data) {
		return 0, fmt.Errorf("read %d: %w", addr, ErrOutOfRange)
	}
	return m.data[addr], nil
}

func (m *MemDevice) Poke(addr int, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr < 0 || addr >= len(m.data) {
		return fmt.Errorf("write %d: %w", addr, ErrOutOfRange)
	}
	m.data[addr] = b
	return nil
}

func (m *MemDevice) Size() int { return len(m.data) }

// Bytes returns a copy of the device contents.
func (m *MemDevice) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

func read16(dev Device, addr int) (int, error) {
	lo, err := dev.Peek(addr)
	if err != nil {
		return 0, err
	}
	hi, err := dev.Peek(addr + 1)
	if err != nil {
		return 0, err
	}
	return int(lo) | int(hi)<<8, nil
}

func write16(dev Device, addr, v int) error {
	if err := dev.Poke(addr, byte(v)); err != nil {
		return err
	}
	return dev.Poke(addr+1, byte(v>>8))
}

func readBytes(dev Device, addr, n int) ([]byte, error) {
	out := make([]byte, n)
	for i := range out {
		b, err := dev.Peek(addr + i)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func writeBytes(dev Device, addr int, data []byte) error {
	for i, b := range data {
		if err := dev.Poke(addr+i, b); err != nil {
			return err
		}
	}
	return nil
}

func withDeviceLock(dev Device, fn func() error) error {
	if l, ok := dev.(Locker); ok {
		return l.WithLock(fn)
	}
	return fn()
}
