package telnetserver

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/stlalpha/cardbasic/internal/logging"
)

// Telnet protocol constants
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	SE   byte = 240 // Subnegotiation End

	OptEcho     byte = 1  // Echo option
	OptSGA      byte = 3  // Suppress Go Ahead
	OptTermType byte = 24 // Terminal Type (RFC 1091)
	OptNAWS     byte = 31 // Negotiate About Window Size
	OptLinemode byte = 34 // Linemode

	TermTypeIs   byte = 0 // IS sub-command: client sends its terminal type
	TermTypeSend byte = 1 // SEND sub-command: server requests terminal type
)

// maxSubnegotiation bounds the data kept for one SB ... SE block.
const maxSubnegotiation = 256

// telnetState tracks the IAC state machine
type telnetState int

const (
	stateData telnetState = iota
	stateIAC
	stateWill
	stateWont
	stateDo
	stateDont
	stateSB
	stateSBData
	stateSBIAC
)

// Conn wraps a net.Conn with telnet protocol awareness.
// Read() strips IAC commands transparently; Write() escapes 0xFF bytes,
// which CP437 panels send for the non-breaking space glyph.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	mu           sync.Mutex // guards the fields below
	width        int
	height       int
	termType     string
	willTermType bool

	// IAC state machine (persists across Read calls)
	state    telnetState
	sbOption byte
	sbData   []byte
}

// NewConn wraps an existing net.Conn with telnet protocol handling.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, 256),
		width:  80,
		height: 25,
		state:  stateData,
	}
}

// Negotiate asks for character-at-a-time mode with server echo, the window
// size and the terminal type, and collects the replies that arrive within
// wait.
func (tc *Conn) Negotiate(wait time.Duration) error {
	negotiations := []byte{
		IAC, WILL, OptEcho,
		IAC, WILL, OptSGA,
		IAC, DO, OptSGA,
		IAC, DONT, OptLinemode,
		IAC, DO, OptNAWS,
		IAC, DO, OptTermType,
	}
	if err := tc.writeRaw(negotiations); err != nil {
		return fmt.Errorf("failed to send telnet negotiations: %w", err)
	}
	tc.drain(wait)

	tc.mu.Lock()
	askType := tc.willTermType
	tc.mu.Unlock()
	if askType {
		if err := tc.writeRaw([]byte{IAC, SB, OptTermType, TermTypeSend, IAC, SE}); err != nil {
			return fmt.Errorf("failed to send TERM_TYPE request: %w", err)
		}
		tc.drain(wait)
	}
	return nil
}

// drain processes negotiation replies until wait passes with nothing
// further buffered. Data bytes typed meanwhile are dropped.
func (tc *Conn) drain(wait time.Duration) {
	tc.conn.SetReadDeadline(time.Now().Add(wait))
	defer tc.conn.SetReadDeadline(time.Time{})
	buf := make([]byte, 64)
	for {
		n, err := tc.reader.Read(buf)
		tc.feed(buf[:n], nil)
		if err != nil || tc.reader.Buffered() == 0 {
			return
		}
	}
}

// feed runs data through the state machine, appending data bytes to out.
func (tc *Conn) feed(data []byte, out []byte) []byte {
	for _, b := range data {
		switch tc.state {
		case stateData:
			if b == IAC {
				tc.state = stateIAC
			} else {
				out = append(out, b)
			}

		case stateIAC:
			switch b {
			case IAC:
				out = append(out, IAC)
				tc.state = stateData
			case WILL:
				tc.state = stateWill
			case WONT:
				tc.state = stateWont
			case DO:
				tc.state = stateDo
			case DONT:
				tc.state = stateDont
			case SB:
				tc.state = stateSB
			default:
				// BRK, IP, AYT and friends
				tc.state = stateData
			}

		case stateWill, stateWont, stateDo, stateDont:
			logging.Debug("telnet negotiation: cmd=%d option=%d", tc.state, b)
			if tc.state == stateWill && b == OptTermType {
				tc.mu.Lock()
				tc.willTermType = true
				tc.mu.Unlock()
			}
			tc.state = stateData

		case stateSB:
			tc.sbOption = b
			tc.sbData = tc.sbData[:0]
			tc.state = stateSBData

		case stateSBData:
			if b == IAC {
				tc.state = stateSBIAC
			} else if len(tc.sbData) < maxSubnegotiation {
				tc.sbData = append(tc.sbData, b)
			}

		case stateSBIAC:
			switch b {
			case SE:
				tc.handleSubnegotiation()
				tc.state = stateData
			case IAC:
				if len(tc.sbData) < maxSubnegotiation {
					tc.sbData = append(tc.sbData, IAC)
				}
				tc.state = stateSBData
			default:
				tc.state = stateData
			}
		}
	}
	return out
}

func (tc *Conn) handleSubnegotiation() {
	switch tc.sbOption {
	case OptNAWS:
		if len(tc.sbData) < 4 {
			return
		}
		width := int(tc.sbData[0])<<8 | int(tc.sbData[1])
		height := int(tc.sbData[2])<<8 | int(tc.sbData[3])
		if width <= 0 || height <= 0 {
			return
		}
		logging.Debug("telnet NAWS: %dx%d", width, height)
		tc.mu.Lock()
		tc.width, tc.height = width, height
		tc.mu.Unlock()

	case OptTermType:
		if len(tc.sbData) >= 1 && tc.sbData[0] == TermTypeIs {
			t := strings.ToLower(strings.TrimSpace(string(tc.sbData[1:])))
			if t != "" {
				tc.mu.Lock()
				tc.termType = t
				tc.mu.Unlock()
				logging.Debug("telnet TERM_TYPE: %s", t)
			}
		}
	}
}

// TermType returns the terminal type reported by the client, or "ansi"
// when none was negotiated.
func (tc *Conn) TermType() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.termType == "" {
		return "ansi"
	}
	return tc.termType
}

// WindowSize returns the last size the client reported.
func (tc *Conn) WindowSize() (width, height int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.width, tc.height
}

// Read returns data bytes with telnet commands removed. It blocks until
// at least one data byte arrives or the connection fails.
func (tc *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	for {
		n, err := tc.reader.Read(buf)
		out := tc.feed(buf[:n], p[:0])
		if len(out) > 0 || err != nil {
			return len(out), err
		}
	}
}

// Write writes p, escaping any 0xFF bytes as IAC IAC.
func (tc *Conn) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	out := p
	if bytes.IndexByte(p, IAC) >= 0 {
		out = bytes.ReplaceAll(p, []byte{IAC}, []byte{IAC, IAC})
	}
	if err := tc.writeRaw(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (tc *Conn) writeRaw(p []byte) error {
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	_, err := tc.conn.Write(p)
	return err
}

// Close closes the connection.
func (tc *Conn) Close() error { return tc.conn.Close() }

// RemoteAddr returns the remote network address.
func (tc *Conn) RemoteAddr() net.Addr { return tc.conn.RemoteAddr() }
