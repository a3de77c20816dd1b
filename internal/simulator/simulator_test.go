package simulator

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/keyboard"
)

func TestKeyCodes(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		want []byte
	}{
		{"runes", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a?")}, []byte("a?")},
		{"unicode dropped", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("é")}, nil},
		{"enter", tea.KeyMsg{Type: tea.KeyEnter}, []byte{keyboard.CodeEnter}},
		{"space", tea.KeyMsg{Type: tea.KeySpace}, []byte{' '}},
		{"arrow", tea.KeyMsg{Type: tea.KeyLeft}, []byte{keyboard.FnLeft}},
		{"delete", tea.KeyMsg{Type: tea.KeyDelete}, []byte{keyboard.FnDelete}},
		{"function key", tea.KeyMsg{Type: tea.KeyF5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keyCodes(tt.msg); !bytes.Equal(got, tt.want) {
				t.Errorf("keyCodes = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLedView(t *testing.T) {
	if !strings.Contains(ledView(keyboard.Color{G: 5}), "SYM") {
		t.Error("green LED not labelled SYM")
	}
	if ledHex(keyboard.Color{B: 5}) != "#0000FF" {
		t.Errorf("ledHex = %s", ledHex(keyboard.Color{B: 5}))
	}
}

func TestModelTypesIntoAppliance(t *testing.T) {
	lines := make(chan string, 1)
	m := New(Options{
		Rows:          4,
		Cols:          21,
		LongThreshold: 5,
		PollInterval:  time.Millisecond,
		Interpreter: host.InterpreterFunc(func(ctx context.Context, h *host.Host) error {
			line, err := h.Terminal().ReadLine(ctx)
			lines <- string(line)
			return err
		}),
	})

	done := make(chan tea.Msg, 1)
	run := m.run()
	go func() { done <- run() }()

	var model tea.Model = m
	for _, msg := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("Hi")},
		{Type: tea.KeySpace},
		{Type: tea.KeyRunes, Runes: []rune("!")},
		{Type: tea.KeyEnter},
	} {
		model, _ = model.Update(msg)
	}

	select {
	case line := <-lines:
		if line != "Hi !" {
			t.Errorf("line = %q", line)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("appliance never finished the line")
	}

	msg := <-done
	model, cmd := model.Update(msg)
	if cmd == nil {
		t.Error("expected quit command when the appliance stops")
	}
	if err := model.(Model).Err(); err != nil {
		t.Errorf("Err = %v", err)
	}
}

func TestViewShowsPanel(t *testing.T) {
	m := New(Options{Rows: 4, Cols: 21, LongThreshold: 5, PollInterval: time.Millisecond})
	m.host.Terminal().PutString("READY")
	m.host.Terminal().Render()

	if view := m.View(); !strings.Contains(view, "READY") {
		t.Errorf("view does not show the panel:\n%s", view)
	}
}

func TestQuitCancelsAppliance(t *testing.T) {
	m := New(Options{Rows: 4, Cols: 21, LongThreshold: 5, PollInterval: time.Millisecond})
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlQ})
	if cmd == nil {
		t.Fatal("quit binding returned no command")
	}
	if model.(Model).ctx.Err() == nil {
		t.Error("appliance context still live after quit")
	}
}
