// Package monitor is a small line-numbered program monitor. It stores and
// lists numbered lines and drives the host's storage commands, standing in
// for a full interpreter.
package monitor

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/logging"
	"github.com/stlalpha/cardbasic/internal/storage"
)

// Messages shown after a command.
const (
	msgOK          = "Ok"
	msgSyntax      = "?SYNTAX"
	msgNotFound    = "?NOT FOUND"
	msgNoSpace     = "?NO SPACE"
	msgMemory      = "?OUT OF MEMORY"
	msgNoStore     = "?NO STORAGE"
	msgBadName     = "?BAD NAME"
	msgStoreFailed = "?STORAGE ERROR"
)

// Monitor implements host.Interpreter.
type Monitor struct {
	h    *host.Host
	term *console.Terminal
}

func New() *Monitor { return &Monitor{} }

// Run reads and executes lines until ctx ends. A program in the slot
// marked for autorun is loaded and listed first.
func (m *Monitor) Run(ctx context.Context, h *host.Host) error {
	m.h = h
	m.term = h.Terminal()

	if h.Autorun() {
		if err := h.LoadProgram(); err == nil {
			if err := m.list(ctx); err != nil {
				return err
			}
		}
	}

	for {
		line, err := m.term.ReadLine(ctx)
		if err != nil {
			return err
		}
		if err := m.Execute(ctx, string(line)); err != nil {
			return err
		}
	}
}

// Execute runs one input line. The only error returned is
// console.ErrAborted, when ctx ends during paused output.
func (m *Monitor) Execute(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}
	logging.Debug("%s: monitor %q", m.h.Name(), input)

	if num, text, ok := splitLineNumber(input); ok {
		lines := editProgram(parseProgram(m.h.Program()), num, text)
		if err := m.h.SetProgram(formatProgram(lines)); err != nil {
			return m.reply(msgMemory)
		}
		return nil
	}

	verb, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	name := unquote(arg)
	switch strings.ToUpper(verb) {
	case "NEW":
		_ = m.h.SetProgram(nil)
		return m.reply(msgOK)
	case "LIST":
		m.term.NewLine()
		if err := m.list(ctx); err != nil {
			return err
		}
		return m.replyRaw(msgOK)
	case "CLS":
		m.term.Clear()
		return nil
	case "MEM":
		if err := m.term.OutputFreeMem(ctx, m.h.Free()); err != nil {
			return err
		}
		return m.reply(msgOK)
	case "DIR":
		m.term.NewLine()
		if err := m.h.ListFiles(ctx); err != nil {
			if errors.Is(err, console.ErrAborted) {
				return err
			}
			return m.reply(failure(err))
		}
		return m.reply(msgOK)
	case "SAVE", "SAVE+":
		var err error
		switch {
		case arg == "":
			err = m.h.SaveProgram(strings.HasSuffix(verb, "+"))
		case strings.HasSuffix(verb, "+"):
			return m.reply(msgSyntax)
		default:
			err = m.h.SaveFile(name)
		}
		return m.result(err)
	case "LOAD":
		if arg == "" {
			return m.result(m.h.LoadProgram())
		}
		return m.result(m.h.LoadFile(name))
	case "DEL", "DELETE", "ERASE":
		if name == "" {
			return m.reply(msgSyntax)
		}
		return m.result(m.h.RemoveFile(name))
	case "PRINT", "?":
		return m.print(arg)
	}
	return m.reply(msgSyntax)
}

// list shows the program, pausing on a full screen. ESC stops it.
func (m *Monitor) list(ctx context.Context) error {
	for _, l := range parseProgram(m.h.Program()) {
		if m.h.ESCPressed() {
			break
		}
		if err := m.term.PutStringPaused(ctx, strconv.Itoa(l.num)); err != nil {
			return err
		}
		if l.text != "" {
			if err := m.term.PutStringPaused(ctx, " "+l.text); err != nil {
				return err
			}
		}
		if err := m.term.NewLinePaused(ctx); err != nil {
			return err
		}
	}
	return nil
}

// print writes a list of numbers and quoted strings separated by ';'.
func (m *Monitor) print(args string) error {
	m.term.NewLine()
	for _, item := range strings.Split(args, ";") {
		item = strings.TrimSpace(item)
		switch {
		case item == "":
		case strings.HasPrefix(item, `"`):
			m.term.PutString(strings.Trim(item, `"`))
		default:
			if n, err := strconv.ParseInt(item, 10, 32); err == nil {
				m.term.OutputInt(n)
				continue
			}
			f, err := strconv.ParseFloat(item, 32)
			if err != nil {
				m.term.NewLine()
				m.term.PutString(msgSyntax)
				m.term.Render()
				return nil
			}
			m.term.OutputFloat(f)
		}
	}
	m.term.Render()
	return nil
}

func (m *Monitor) result(err error) error {
	if err != nil {
		return m.reply(failure(err))
	}
	return m.reply(msgOK)
}

// reply starts a new line and shows msg.
func (m *Monitor) reply(msg string) error {
	m.term.NewLine()
	return m.replyRaw(msg)
}

func (m *Monitor) replyRaw(msg string) error {
	m.term.PutString(msg)
	m.term.Render()
	return nil
}

// failure maps a host or storage error to the message shown on screen.
func failure(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return msgNotFound
	case errors.Is(err, storage.ErrNoSpace), errors.Is(err, storage.ErrTooLarge):
		return msgNoSpace
	case errors.Is(err, storage.ErrBadName):
		return msgBadName
	case errors.Is(err, host.ErrProgramTooLarge):
		return msgMemory
	case errors.Is(err, host.ErrNoDirectory), errors.Is(err, host.ErrNoSlot):
		return msgNoStore
	}
	return msgStoreFailed
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
