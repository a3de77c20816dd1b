// Package host ties the console, the program slot and the file directory
// together into the services an interpreter calls: program save and load,
// the file directory commands and polled keyboard input.
package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stlalpha/cardbasic/internal/buzzer"
	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/keyboard"
	"github.com/stlalpha/cardbasic/internal/logging"
	"github.com/stlalpha/cardbasic/internal/storage"
)

// KeyESC is the code ESCPressed looks for.
const KeyESC = keyboard.CodeEscape

// DefaultProgramSize is the program memory of the stock board.
const DefaultProgramSize = 1024

var (
	ErrProgramTooLarge = errors.New("program exceeds program memory")
	ErrNoDirectory     = errors.New("file directory not available")
	ErrNoSlot          = errors.New("program slot not available")
)

// Interpreter consumes keys and produces output through a Host.
type Interpreter interface {
	Run(ctx context.Context, h *Host) error
}

// InterpreterFunc adapts a function to Interpreter.
type InterpreterFunc func(ctx context.Context, h *Host) error

func (f InterpreterFunc) Run(ctx context.Context, h *Host) error { return f(ctx, h) }

// Host is one appliance: a terminal, its storage and the program image. It
// is driven from a single goroutine.
type Host struct {
	term  *console.Terminal
	slot  *storage.Slot
	dir   *storage.Directory
	sound buzzer.Sounder

	name     string
	banner   string
	program  []byte
	capacity int
	inkey    byte
}

type Option func(*Host)

// WithSlot stores SAVE/LOAD without a name on dev.
func WithSlot(slot *storage.Slot) Option {
	return func(h *Host) { h.slot = slot }
}

// WithDirectory enables the named file commands.
func WithDirectory(dir *storage.Directory) Option {
	return func(h *Host) { h.dir = dir }
}

func WithSounder(s buzzer.Sounder) Option {
	return func(h *Host) {
		if s != nil {
			h.sound = s
		}
	}
}

// WithName sets the prefix used in log lines.
func WithName(name string) Option {
	return func(h *Host) { h.name = name }
}

// WithBanner sets the line shown at boot.
func WithBanner(banner string) Option {
	return func(h *Host) { h.banner = banner }
}

// WithProgramSize sets the program memory capacity in bytes.
func WithProgramSize(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.capacity = n
		}
	}
}

func New(term *console.Terminal, opts ...Option) *Host {
	h := &Host{
		term:     term,
		sound:    buzzer.Nop{},
		name:     "local",
		banner:   "CardBASIC",
		capacity: DefaultProgramSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	if term != nil {
		term.SetClicker(h.Click)
	}
	return h
}

func (h *Host) Terminal() *console.Terminal { return h.term }

func (h *Host) Name() string { return h.name }

// Capacity returns the program memory size.
func (h *Host) Capacity() int { return h.capacity }

// Free returns the unused program memory.
func (h *Host) Free() int { return h.capacity - len(h.program) }

// Program returns a copy of the program image.
func (h *Host) Program() []byte {
	return append([]byte(nil), h.program...)
}

// SetProgram replaces the program image.
func (h *Host) SetProgram(image []byte) error {
	if len(image) > h.capacity {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrProgramTooLarge, len(image), h.capacity)
	}
	h.program = append(h.program[:0], image...)
	return nil
}

// Click sounds the key click.
func (h *Host) Click() { h.sound.Click() }

// Run boots the appliance and hands control to interp. Cancellation ends
// the run without an error.
func (h *Host) Run(ctx context.Context, interp Interpreter) error {
	h.term.Clear()
	h.sound.StartupTone()
	if h.banner != "" {
		h.term.PutString(h.banner)
	}
	if err := h.term.OutputFreeMem(ctx, h.Free()); err != nil {
		log.Printf("INFO: %s: appliance stopped during boot", h.name)
		return nil
	}
	h.term.NewLine()
	h.term.Render()
	log.Printf("INFO: %s: appliance started (%d bytes program memory)", h.name, h.capacity)

	err := interp.Run(ctx, h)
	if errors.Is(err, console.ErrAborted) || errors.Is(err, context.Canceled) {
		log.Printf("INFO: %s: appliance stopped", h.name)
		return nil
	}
	if err != nil {
		log.Printf("ERROR: %s: interpreter failed: %v", h.name, err)
	}
	return err
}

// Sleep pauses for d, returning early with ErrAborted when ctx ends.
func (h *Host) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return console.ErrAborted
	case <-timer.C:
		return nil
	}
}

// ESCPressed polls the keyboard once. Whatever was read replaces the
// buffered key, so a following GetKey returns it if printable.
func (h *Host) ESCPressed() bool {
	c, ok := h.term.WaitKey(0)
	if !ok {
		h.inkey = 0
		return false
	}
	h.inkey = c
	return c == KeyESC
}

// GetKey returns and clears the buffered key if it is printable.
func (h *Host) GetKey() (byte, bool) {
	c := h.inkey
	h.inkey = 0
	if keyboard.IsPrintable(c) {
		return c, true
	}
	return 0, false
}

// SaveProgram writes the program image to the slot.
func (h *Host) SaveProgram(autorun bool) error {
	if h.slot == nil {
		return ErrNoSlot
	}
	if err := h.slot.Save(h.program, autorun); err != nil {
		return fmt.Errorf("save program: %w", err)
	}
	log.Printf("INFO: %s: saved program to slot (%d bytes, autorun=%v)", h.name, len(h.program), autorun)
	return nil
}

// LoadProgram replaces the program image with the slot contents.
func (h *Host) LoadProgram() error {
	if h.slot == nil {
		return ErrNoSlot
	}
	image, err := h.slot.Load()
	if err != nil {
		return fmt.Errorf("load program: %w", err)
	}
	if err := h.SetProgram(image); err != nil {
		return err
	}
	logging.Debug("%s: loaded %d bytes from slot", h.name, len(image))
	return nil
}

// Autorun reports whether the slot holds a program marked to run at boot.
func (h *Host) Autorun() bool {
	if h.slot == nil {
		return false
	}
	on, err := h.slot.Autorun()
	if err != nil {
		log.Printf("WARN: %s: reading autorun marker: %v", h.name, err)
		return false
	}
	return on
}

// ListFiles prints every file name followed by the free directory space,
// pausing when the screen fills.
func (h *Host) ListFiles(ctx context.Context) error {
	if h.dir == nil {
		return ErrNoDirectory
	}
	names, err := h.dir.Names()
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	for _, name := range names {
		if err := h.term.PutStringPaused(ctx, name); err != nil {
			return err
		}
		if err := h.term.PutCharPaused(ctx, ' '); err != nil {
			return err
		}
	}
	free, err := h.dir.Free()
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	return h.term.OutputFreeMem(ctx, free)
}

// SaveFile stores the program image under name, replacing any file of the
// same name.
func (h *Host) SaveFile(name string) error {
	if h.dir == nil {
		return ErrNoDirectory
	}
	if err := h.dir.Save(name, h.program); err != nil {
		return fmt.Errorf("save %q: %w", name, err)
	}
	log.Printf("INFO: %s: saved %q (%d bytes)", h.name, name, len(h.program))
	return nil
}

// LoadFile replaces the program image with the named file.
func (h *Host) LoadFile(name string) error {
	if h.dir == nil {
		return ErrNoDirectory
	}
	image, err := h.dir.Load(name)
	if err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	if err := h.SetProgram(image); err != nil {
		return fmt.Errorf("load %q: %w", name, err)
	}
	logging.Debug("%s: loaded %q (%d bytes)", h.name, name, len(image))
	return nil
}

// RemoveFile deletes the named file.
func (h *Host) RemoveFile(name string) error {
	if h.dir == nil {
		return ErrNoDirectory
	}
	if err := h.dir.Remove(name); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	log.Printf("INFO: %s: removed %q", h.name, name)
	return nil
}
