package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Record layout: total length (LE16), name, NUL, payload length (LE16),
// payload. A total length of zero terminates the log.
const (
	lengthField    = 2
	recordOverhead = lengthField + 1 + lengthField
	MaxNameLen     = 255
)

// Entry describes one stored record.
type Entry struct {
	Name          string
	Addr          int
	Length        int
	PayloadLength int
}

// Directory is a sequential log of named records over a Device. Lookups
// scan from address 0; removal compacts the log in place.
type Directory struct {
	mu  sync.Mutex
	dev Device
}

func NewDirectory(dev Device) *Directory { return &Directory{dev: dev} }

// Size returns the device size in bytes.
func (d *Directory) Size() int { return d.dev.Size() }

// Format empties the directory.
func (d *Directory) Format() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return withDeviceLock(d.dev, func() error {
		if err := write16(d.dev, 0, 0); err != nil {
			return fmt.Errorf("storage: format: %w", err)
		}
		return nil
	})
}

// Entries returns every record in log order.
func (d *Directory) Entries() ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Entry
	err := withDeviceLock(d.dev, func() error {
		_, err := d.walk(func(e Entry) bool {
			out = append(out, e)
			return true
		})
		return err
	})
	return out, err
}

// Names returns the stored names in log order.
func (d *Directory) Names() ([]string, error) {
	entries, err := d.Entries()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Find returns the record stored under name.
func (d *Directory) Find(name string) (Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var e Entry
	err := withDeviceLock(d.dev, func() error {
		var err error
		e, _, err = d.find(name)
		return err
	})
	return e, err
}

// Used returns the address of the end-of-log terminator, which is the
// number of bytes occupied by records.
func (d *Directory) Used() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var end int
	err := withDeviceLock(d.dev, func() error {
		var err error
		end, err = d.walk(nil)
		return err
	})
	return end, err
}

// Free returns the bytes available for new records.
func (d *Directory) Free() (int, error) {
	end, err := d.Used()
	if err != nil {
		return 0, err
	}
	return max(d.dev.Size()-end-lengthField, 0), nil
}

// Load returns the payload stored under name.
func (d *Directory) Load(name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var payload []byte
	err := withDeviceLock(d.dev, func() error {
		e, _, err := d.find(name)
		if err != nil {
			return err
		}
		start := e.Addr + lengthField + len(e.Name) + 1 + lengthField
		payload, err = readBytes(d.dev, start, e.PayloadLength)
		if err != nil {
			return fmt.Errorf("storage: load %q: %w", name, err)
		}
		return nil
	})
	return payload, err
}

// Save stores payload under name, replacing any record of the same name.
// Capacity is checked before anything is written.
func (d *Directory) Save(name string, payload []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	recLen := recordOverhead + len(name) + len(payload)
	if len(payload) > 0xFFFF || recLen > 0xFFFF {
		return ErrTooLarge
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return withDeviceLock(d.dev, func() error {
		old, end, err := d.find(name)
		replacing := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		credit := 0
		if replacing {
			credit = old.Length
		}
		if d.dev.Size()-(end-credit)-recLen-lengthField < 0 {
			return ErrNoSpace
		}

		if replacing {
			if err := d.compact(old, end); err != nil {
				return err
			}
			end -= old.Length
		}

		rec := make([]byte, 0, recLen+lengthField)
		rec = append(rec, byte(recLen), byte(recLen>>8))
		rec = append(rec, name...)
		rec = append(rec, 0, byte(len(payload)), byte(len(payload)>>8))
		rec = append(rec, payload...)
		rec = append(rec, 0, 0)
		if err := writeBytes(d.dev, end, rec); err != nil {
			return fmt.Errorf("storage: save %q: %w", name, err)
		}
		return nil
	})
}

// Remove deletes the record stored under name and compacts the log.
func (d *Directory) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return withDeviceLock(d.dev, func() error {
		e, end, err := d.find(name)
		if err != nil {
			return err
		}
		return d.compact(e, end)
	})
}

// Check walks the log and verifies every record's length matches its
// fields.
func (d *Directory) Check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return withDeviceLock(d.dev, func() error {
		var bad error
		_, err := d.walk(func(e Entry) bool {
			if want := recordOverhead + len(e.Name) + e.PayloadLength; want != e.Length {
				bad = fmt.Errorf("record %q at %d: length %d, fields need %d: %w",
					e.Name, e.Addr, e.Length, want, ErrCorrupt)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		return bad
	})
}

// find returns the first record named name and the end-of-log address.
func (d *Directory) find(name string) (Entry, int, error) {
	var found Entry
	ok := false
	end, err := d.walk(func(e Entry) bool {
		if e.Name == name {
			found, ok = e, true
			return false
		}
		return true
	})
	if err != nil {
		return Entry{}, 0, err
	}
	if !ok {
		return Entry{}, end, ErrNotFound
	}
	if end, err = d.walk(nil); err != nil {
		return Entry{}, 0, err
	}
	return found, end, nil
}

// walk visits records from address 0 until visit returns false or the
// terminator is reached. It returns the terminator address when the walk
// completes.
func (d *Directory) walk(visit func(Entry) bool) (int, error) {
	size := d.dev.Size()
	addr := 0
	for {
		if addr+lengthField > size {
			return 0, fmt.Errorf("no terminator before %d: %w", addr, ErrCorrupt)
		}
		n, err := read16(d.dev, addr)
		if err != nil {
			return 0, fmt.Errorf("storage: walk: %w", err)
		}
		if n == 0 {
			return addr, nil
		}
		if n < recordOverhead || addr+n+lengthField > size {
			return 0, fmt.Errorf("record at %d has length %d: %w", addr, n, ErrCorrupt)
		}
		if visit == nil {
			addr += n
			continue
		}

		e, err := d.readEntry(addr, n)
		if err != nil {
			return 0, err
		}
		if !visit(e) {
			return addr, nil
		}
		addr += n
	}
}

func (d *Directory) readEntry(addr, n int) (Entry, error) {
	// name, NUL and payload length must fit inside the record
	limit := addr + n - lengthField
	var name []byte
	p := addr + lengthField
	for ; ; p++ {
		if p >= limit {
			return Entry{}, fmt.Errorf("record at %d has no name terminator: %w", addr, ErrCorrupt)
		}
		b, err := d.dev.Peek(p)
		if err != nil {
			return Entry{}, fmt.Errorf("storage: walk: %w", err)
		}
		if b == 0 {
			break
		}
		name = append(name, b)
	}
	plen, err := read16(d.dev, p+1)
	if err != nil {
		return Entry{}, fmt.Errorf("storage: walk: %w", err)
	}
	if p+1+lengthField+plen > addr+n {
		return Entry{}, fmt.Errorf("record at %d payload overruns record: %w", addr, ErrCorrupt)
	}
	return Entry{
		Name:          string(name),
		Addr:          addr,
		Length:        n,
		PayloadLength: plen,
	}, nil
}

// compact shifts everything after e, terminator included, down over e.
func (d *Directory) compact(e Entry, end int) error {
	count := lengthField + end - (e.Addr + e.Length)
	for i := 0; i < count; i++ {
		b, err := d.dev.Peek(e.Addr + e.Length + i)
		if err != nil {
			return fmt.Errorf("storage: compact: %w", err)
		}
		if err := d.dev.Poke(e.Addr+i, b); err != nil {
			return fmt.Errorf("storage: compact: %w", err)
		}
	}
	return nil
}

func validName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fmt.Errorf("%w: length %d", ErrBadName, len(name))
	}
	if strings.IndexByte(name, 0) >= 0 {
		return fmt.Errorf("%w: contains NUL", ErrBadName)
	}
	return nil
}
