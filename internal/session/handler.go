// Package session runs one appliance per connection: a simulated keyboard
// fed by the client's keystrokes, an ANSI panel drawn on the client's
// terminal, and a host running the configured interpreter.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gliderlabs/ssh"
	"github.com/google/uuid"
	"github.com/stlalpha/cardbasic/internal/blink"
	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/display"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/keyboard"
	"github.com/stlalpha/cardbasic/internal/logging"
	"github.com/stlalpha/cardbasic/internal/telnetserver"
)

// QuitKey (Ctrl-D) typed by the client ends its session.
const QuitKey = 0x04

// ErrSessionLimit is returned when every console is in use.
var ErrSessionLimit = errors.New("all consoles are in use")

// Settings are the appliance parameters new sessions start with.
type Settings struct {
	Rows, Cols    int
	OutputMode    display.OutputMode
	Title         string
	LongThreshold uint
	RepeatDelay   uint
	RepeatRate    uint
	PollInterval  time.Duration
}

// HostFactory builds the host for a new session around its terminal.
type HostFactory func(term *console.Terminal, name string) *host.Host

// InterpreterFactory returns the interpreter a new session runs.
type InterpreterFactory func() host.Interpreter

// Handler creates sessions. It is shared by every connection.
type Handler struct {
	registry    *Registry
	blinker     *blink.Blinker
	newHost     HostFactory
	newInterp   InterpreterFactory
	maxSessions int

	mu       sync.RWMutex
	settings Settings
}

func NewHandler(registry *Registry, blinker *blink.Blinker, settings Settings, maxSessions int,
	newHost HostFactory, newInterp InterpreterFactory) *Handler {
	return &Handler{
		registry:    registry,
		blinker:     blinker,
		newHost:     newHost,
		newInterp:   newInterp,
		maxSessions: maxSessions,
		settings:    settings,
	}
}

// Settings returns the parameters for the next session.
func (h *Handler) Settings() Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.settings
}

// Apply stores s for new sessions and pushes the keyboard timing to every
// running one. Geometry changes only affect new sessions.
func (h *Handler) Apply(s Settings) {
	h.mu.Lock()
	h.settings = s
	h.mu.Unlock()
	for _, sess := range h.registry.ListActive() {
		sess.SetKeyboardTiming(s.LongThreshold, s.RepeatDelay, s.RepeatRate)
		logging.Debug("%s: keyboard timing updated (long=%d)", sess.Name(), s.LongThreshold)
	}
}

// HandleSSH is the gliderlabs session handler.
func (h *Handler) HandleSSH(s ssh.Session) {
	ptyReq, winCh, isPty := s.Pty()
	if !isPty {
		io.WriteString(s, "CardBASIC needs an interactive terminal (try ssh -t).\r\n")
		_ = s.Exit(1)
		return
	}
	// window changes are not used, but the channel must be drained
	go func() {
		for range winCh {
		}
	}()

	settings := h.Settings()
	if ptyReq.Window.Width < settings.Cols+2 || ptyReq.Window.Height < settings.Rows+3 {
		log.Printf("WARN: SSH terminal %dx%d from %s is smaller than the panel",
			ptyReq.Window.Width, ptyReq.Window.Height, s.RemoteAddr())
	}

	sess := &Session{
		ID:         uuid.NewString(),
		User:       s.User(),
		RemoteAddr: s.RemoteAddr().String(),
		TermType:   ptyReq.Term,
		StartTime:  time.Now(),
	}
	err := h.Run(s.Context(), s, sess)
	switch {
	case errors.Is(err, ErrSessionLimit):
		log.Printf("INFO: Rejecting SSH connection from %s: %v", sess.RemoteAddr, err)
		fmt.Fprintf(s, "\r\nConnection rejected: %v\r\nPlease try again later.\r\n", err)
		_ = s.Exit(1)
	case err != nil:
		log.Printf("ERROR: %s: %v", sess.Name(), err)
		_ = s.Exit(1)
	default:
		_ = s.Exit(0)
	}
}

// HandleTelnet is the telnetserver session handler.
func (h *Handler) HandleTelnet(ctx context.Context, tc *telnetserver.Conn) {
	settings := h.Settings()
	if w, ht := tc.WindowSize(); w < settings.Cols+2 || ht < settings.Rows+3 {
		log.Printf("WARN: Telnet terminal %dx%d from %s is smaller than the panel", w, ht, tc.RemoteAddr())
	}

	sess := &Session{
		ID:         uuid.NewString(),
		User:       "telnet",
		RemoteAddr: tc.RemoteAddr().String(),
		TermType:   tc.TermType(),
		StartTime:  time.Now(),
	}
	err := h.Run(ctx, tc, sess)
	switch {
	case errors.Is(err, ErrSessionLimit):
		log.Printf("INFO: Rejecting telnet connection from %s: %v", sess.RemoteAddr, err)
		fmt.Fprintf(tc, "\r\nConnection rejected: %v\r\nPlease try again later.\r\n", err)
	case err != nil:
		log.Printf("ERROR: %s: %v", sess.Name(), err)
	}
}

// Run drives one appliance over rw until the interpreter finishes, the
// client sends QuitKey or closes its side, or ctx ends.
func (h *Handler) Run(ctx context.Context, rw io.ReadWriter, sess *Session) error {
	settings := h.Settings()
	mode := settings.OutputMode.Resolve(sess.TermType)

	panel := display.NewANSI(rw, settings.Rows, settings.Cols, mode)
	panel.SetTitle(settings.Title)

	var phase func() bool
	if h.blinker != nil {
		phase = h.blinker.Phase
	}
	kb := keyboard.NewKeyboard(settings.LongThreshold,
		keyboard.WithRepeat(settings.RepeatDelay, settings.RepeatRate),
		keyboard.WithIndicator(panel, phase))
	sess.kb = kb

	if !h.registry.TryRegister(sess, h.maxSessions) {
		return fmt.Errorf("%w (%d active)", ErrSessionLimit, h.registry.Count())
	}
	defer h.registry.Unregister(sess.ID)
	log.Printf("INFO: %s: connection from %s (user %s, term %q, %s)",
		sess.Name(), sess.RemoteAddr, sess.User, sess.TermType, mode)

	if err := panel.DrawFrame(); err != nil {
		return fmt.Errorf("draw frame: %w", err)
	}
	defer func() { _ = panel.Restore() }()

	term := console.NewTerminal(panel, settings.Rows, settings.Cols,
		console.WithInput(kb),
		console.WithBlink(phase),
		console.WithPollInterval(settings.PollInterval))
	hst := h.newHost(term, sess.Name())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readInput(rw, kb.Typist, cancel, sess.Name())

	err := hst.Run(ctx, h.newInterp())
	if werr := term.Err(); werr != nil {
		log.Printf("WARN: %s: output to client failed: %v", sess.Name(), werr)
	}
	log.Printf("INFO: %s: disconnected after %s", sess.Name(), time.Since(sess.StartTime).Round(time.Second))
	return err
}

// readInput types the client's keystrokes into the simulated matrix until
// the client quits or the stream ends.
func readInput(r io.Reader, ty *keyboard.Typist, quit context.CancelFunc, name string) {
	defer quit()
	var dec keyboard.TermDecoder
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		data := buf[:n]
		if i := bytes.IndexByte(data, QuitKey); i >= 0 {
			data = data[:i]
			err = io.EOF
		}
		for _, c := range dec.Decode(data) {
			if !ty.Type(c) {
				logging.Debug("%s: no key produces %#02x", name, c)
			}
		}
		if err != nil {
			if err != io.EOF {
				logging.Debug("%s: input closed: %v", name, err)
			}
			return
		}
	}
}
