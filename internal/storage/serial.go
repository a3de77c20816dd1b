package storage

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// Bridge commands. A read is 'R' hi lo answered by the data byte; a write
// is 'W' hi lo data answered by 'K'.
const (
	bridgeRead  = 'R'
	bridgeWrite = 'W'
	bridgeAck   = 'K'
)

// MaxSerialSize is the largest device the bridge can address: commands
// carry a 16-bit address.
const MaxSerialSize = 1 << 16

// SerialDevice reaches an external EEPROM through a microcontroller bridge
// on a serial line.
type SerialDevice struct {
	mu   sync.Mutex // one bridge command at a time
	op   sync.Mutex // one directory operation at a time
	port io.ReadWriteCloser
	size int
}

// OpenSerial opens portName at baud and returns a device of size bytes.
func OpenSerial(portName string, baud uint, size int) (*SerialDevice, error) {
	if err := checkSerialSize(size); err != nil {
		return nil, err
	}
	options := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}
	port, err := serial.Open(options)
	if err != nil {
		return nil, fmt.Errorf("storage: open serial %s: %w", portName, err)
	}
	return NewSerialDevice(port, size)
}

// NewSerialDevice speaks the bridge protocol over an open connection. The
// size must fit the bridge's 16-bit addresses.
func NewSerialDevice(port io.ReadWriteCloser, size int) (*SerialDevice, error) {
	if err := checkSerialSize(size); err != nil {
		return nil, err
	}
	return &SerialDevice{port: port, size: size}, nil
}

func checkSerialSize(size int) error {
	if size <= 0 || size > MaxSerialSize {
		return fmt.Errorf("storage: serial device of %d bytes: %w (limit %d)", size, ErrOutOfRange, MaxSerialSize)
	}
	return nil
}

func (s *SerialDevice) Peek(addr int) (byte, error) {
	if addr < 0 || addr >= s.size {
		return 0, fmt.Errorf("read %d: %w", addr, ErrOutOfRange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte{bridgeRead, byte(addr >> 8), byte(addr)}); err != nil {
		return 0, fmt.Errorf("storage: serial read %d: %w", addr, err)
	}
	var buf [1]byte
	if _, err := io.ReadFull(s.port, buf[:]); err != nil {
		return 0, fmt.Errorf("storage: serial read %d: %w", addr, err)
	}
	return buf[0], nil
}

func (s *SerialDevice) Poke(addr int, b byte) error {
	if addr < 0 || addr >= s.size {
		return fmt.Errorf("write %d: %w", addr, ErrOutOfRange)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.port.Write([]byte{bridgeWrite, byte(addr >> 8), byte(addr), b}); err != nil {
		return fmt.Errorf("storage: serial write %d: %w", addr, err)
	}
	var buf [1]byte
	if _, err := io.ReadFull(s.port, buf[:]); err != nil {
		return fmt.Errorf("storage: serial write %d: %w", addr, err)
	}
	if buf[0] != bridgeAck {
		return fmt.Errorf("storage: serial write %d: unexpected reply %#x", addr, buf[0])
	}
	return nil
}

func (s *SerialDevice) Size() int { return s.size }

// WithLock runs fn while no other goroutine can start a multi-byte
// operation on the device.
func (s *SerialDevice) WithLock(fn func() error) error {
	s.op.Lock()
	defer s.op.Unlock()
	return fn()
}

func (s *SerialDevice) Close() error { return s.port.Close() }

// ServeBridge answers bridge commands from rw against dev until rw is
// closed. It is the host side used to expose an image file over a serial
// line.
func ServeBridge(rw io.ReadWriter, dev Device) error {
	var cmd [4]byte
	for {
		if _, err := io.ReadFull(rw, cmd[:3]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("storage: bridge: %w", err)
		}
		addr := int(cmd[1])<<8 | int(cmd[2])

		switch cmd[0] {
		case bridgeRead:
			b, err := dev.Peek(addr)
			if err != nil {
				b = 0
			}
			if _, err := rw.Write([]byte{b}); err != nil {
				return fmt.Errorf("storage: bridge: %w", err)
			}
		case bridgeWrite:
			if _, err := io.ReadFull(rw, cmd[3:4]); err != nil {
				return fmt.Errorf("storage: bridge: %w", err)
			}
			reply := byte(bridgeAck)
			if err := dev.Poke(addr, cmd[3]); err != nil {
				reply = '!'
			}
			if _, err := rw.Write([]byte{reply}); err != nil {
				return fmt.Errorf("storage: bridge: %w", err)
			}
		default:
			return fmt.Errorf("storage: bridge: unknown command %#x", cmd[0])
		}
	}
}
