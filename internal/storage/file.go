package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	lockRetryDelay = 200 * time.Millisecond
	lockTimeout    = 30 * time.Second
	lockStaleAfter = 10 * time.Minute
	lockMu         sync.RWMutex
)

// FileDevice is a Device backed by an image file. Multi-byte operations
// are serialized across processes with a .bsy lock file next to the image.
type FileDevice struct {
	Path string

	mu   sync.Mutex
	f    *os.File
	size int
}

// OpenFile opens or creates the image at path. The file is zero-padded to
// size bytes; a size of 0 adopts the current file length.
func OpenFile(path string, size int) (*FileDevice, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("storage: failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if size <= 0 {
		size = int(info.Size())
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("storage: pad %s: %w", path, err)
		}
	}
	return &FileDevice{Path: path, f: f, size: size}, nil
}

func (d *FileDevice) Peek(addr int) (byte, error) {
	if addr < 0 || addr >= d.size {
		return 0, fmt.Errorf("read %d: %w", addr, ErrOutOfRange)
	}
	var buf [1]byte
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, fmt.Errorf("storage: read %s@%d: %w", d.Path, addr, err)
	}
	return buf[0], nil
}

func (d *FileDevice) Poke(addr int, b byte) error {
	if addr < 0 || addr >= d.size {
		return fmt.Errorf("write %d: %w", addr, ErrOutOfRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.f.WriteAt([]byte{b}, int64(addr)); err != nil {
		return fmt.Errorf("storage: write %s@%d: %w", d.Path, addr, err)
	}
	return nil
}

func (d *FileDevice) Size() int { return d.size }

// Sync flushes the image to disk.
func (d *FileDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Sync()
}

// Close closes the image file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.f.Close()
}

// WithLock runs fn holding the .bsy lock, then syncs the image.
func (d *FileDevice) WithLock(fn func() error) error {
	release, err := d.acquireFileLock()
	if err != nil {
		return err
	}
	defer release()
	if err := fn(); err != nil {
		return err
	}
	return d.Sync()
}

func (d *FileDevice) acquireFileLock() (func(), error) {
	lockPath := d.Path + ".bsy"

	lockMu.RLock()
	timeout := lockTimeout
	retryDelay := lockRetryDelay
	staleAfter := lockStaleAfter
	lockMu.RUnlock()

	deadline := time.Now().Add(timeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, _ = fmt.Fprintf(f, "pid=%d time=%s\n", os.Getpid(), time.Now().Format(time.RFC3339))
			_ = f.Close()
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("storage: lock %s: %w", lockPath, err)
		}

		// A crashed holder leaves the file behind.
		if info, statErr := os.Stat(lockPath); statErr == nil {
			if time.Since(info.ModTime()) > staleAfter {
				_ = os.Remove(lockPath)
				continue
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("storage: timeout waiting for lock %s", lockPath)
		}
		time.Sleep(retryDelay)
	}
	return func() {
		_ = os.Remove(lockPath)
	}, nil
}
