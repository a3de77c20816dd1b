// Package ptybridge runs an external interpreter on a pseudo-terminal sized
// to the appliance screen. Decoded keys are written to the interpreter and
// its output is drawn into the console.
package ptybridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/display"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/keyboard"
	"github.com/stlalpha/cardbasic/internal/logging"
)

// Interpreter implements host.Interpreter by running Command.
type Interpreter struct {
	Command string
	Args    []string
	Env     []string // added to the process environment

	// PollInterval is how long the loop waits for a key between output
	// checks. Zero means console.DefaultPollInterval.
	PollInterval time.Duration
}

func New(command string, args ...string) *Interpreter {
	return &Interpreter{Command: command, Args: args}
}

// Run starts the interpreter and relays keys and output until it exits or
// ctx ends. A non-zero exit status is returned as an error.
func (p *Interpreter) Run(ctx context.Context, h *host.Host) error {
	term := h.Terminal()
	cmd := exec.Command(p.Command, p.Args...)
	cmd.Env = append(os.Environ(),
		"TERM=dumb",
		fmt.Sprintf("COLUMNS=%d", term.Cols()),
		fmt.Sprintf("LINES=%d", term.Rows()))
	cmd.Env = append(cmd.Env, p.Env...)

	logging.Debug("%s: starting interpreter %s with PTY", h.Name(), p.Command)
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(term.Rows()),
		Cols: uint16(term.Cols()),
	})
	if err != nil {
		return fmt.Errorf("failed to start pty for command '%s': %w", p.Command, err)
	}
	defer func() { _ = ptmx.Close() }()

	output := make(chan []byte, 16)
	done := make(chan struct{})
	defer close(done)
	go readOutput(ptmx, output, done)

	interval := p.PollInterval
	if interval <= 0 {
		interval = console.DefaultPollInterval
	}
	screen := display.NewCP437Writer(&screenWriter{term: term})

	for {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return console.ErrAborted

		case data, ok := <-output:
			if !ok {
				return wait(cmd)
			}
			_, _ = screen.Write(data)
			term.Render()

		default:
			c, ok := term.WaitKey(interval)
			if !ok {
				continue
			}
			h.Click()
			if seq := keySequence(c); len(seq) > 0 {
				if _, err := ptmx.Write(seq); err != nil {
					log.Printf("WARN: %s: writing key to interpreter: %v", h.Name(), err)
				}
			}
		}
	}
}

func readOutput(r io.Reader, out chan<- []byte, done <-chan struct{}) {
	defer close(out)
	buf := make([]byte, 512)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- append([]byte(nil), buf[:n]...):
			case <-done:
				return
			}
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
				log.Printf("WARN: Error reading interpreter output: %v", err)
			}
			return
		}
	}
}

func wait(cmd *exec.Cmd) error {
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("interpreter %s: %w", cmd.Path, err)
	}
	return nil
}

// keySequence returns the bytes a terminal program expects for code c.
// Codes with no terminal equivalent return nil.
func keySequence(c byte) []byte {
	switch c {
	case keyboard.CodeBackspace:
		return []byte{0x7F} // the pty erase character
	case keyboard.CodeDelete, keyboard.FnDelete:
		return []byte("\x1b[3~")
	case keyboard.FnUp:
		return []byte("\x1b[A")
	case keyboard.FnDown:
		return []byte("\x1b[B")
	case keyboard.FnRight:
		return []byte("\x1b[C")
	case keyboard.FnLeft:
		return []byte("\x1b[D")
	case keyboard.FnHome:
		return []byte("\x1b[H")
	case keyboard.FnEnd:
		return []byte("\x1b[F")
	case keyboard.FnPageUp:
		return []byte("\x1b[5~")
	case keyboard.FnPageDn:
		return []byte("\x1b[6~")
	case keyboard.FnInsert:
		return []byte("\x1b[2~")
	case keyboard.FnBreak:
		return []byte{0x03}
	case keyboard.FnSpace:
		return []byte{' '}
	}
	if c < 0x80 {
		return []byte{c}
	}
	return nil
}

// screenWriter applies filtered output bytes to the terminal.
type screenWriter struct {
	term *console.Terminal
}

func (s *screenWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		x, y := s.term.Cursor()
		switch b {
		case '\r':
			s.term.MoveCursor(0, y)
		case '\n':
			s.term.NewLine()
		case '\b':
			if x > 0 {
				s.term.MoveCursor(x-1, y)
			}
		case '\t':
			for n := 8 - x%8; n > 0 && x < s.term.Cols(); n-- {
				s.term.PutChar(' ')
				x++
			}
		default:
			s.term.PutChar(b)
		}
	}
	return len(p), nil
}
