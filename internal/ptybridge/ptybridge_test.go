package ptybridge

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/display"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/keyboard"
)

func newTestHost(rows, cols int) *host.Host {
	rec := display.NewRecorder(rows, cols)
	term := console.NewTerminal(rec, rows, cols, console.WithPollInterval(time.Millisecond))
	return host.New(term)
}

func row(h *host.Host, y int) string {
	return strings.TrimRight(h.Terminal().Row(y), " ")
}

func TestKeySequence(t *testing.T) {
	tests := []struct {
		code byte
		want string
	}{
		{'a', "a"},
		{keyboard.CodeEnter, "\r"},
		{keyboard.CodeBackspace, "\x7f"},
		{keyboard.CodeEscape, "\x1b"},
		{keyboard.FnUp, "\x1b[A"},
		{keyboard.FnLeft, "\x1b[D"},
		{keyboard.FnPageDn, "\x1b[6~"},
		{keyboard.FnBreak, "\x03"},
		{keyboard.FnBase, ""},
	}
	for _, tt := range tests {
		if got := string(keySequence(tt.code)); got != tt.want {
			t.Errorf("keySequence(%#x) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestScreenWriter(t *testing.T) {
	h := newTestHost(4, 21)
	w := display.NewCP437Writer(&screenWriter{term: h.Terminal()})

	w.Write([]byte("10 PRINT\r\n"))
	w.Write([]byte("\x1b[1mOK\x1b[0m\r\n"))
	w.Write([]byte("abc\b\bX\r\n"))
	w.Write([]byte("a\tb"))

	want := []string{"10 PRINT", "OK", "aXc", "a       b"}
	for y, line := range want {
		if got := row(h, y); got != line {
			t.Errorf("row %d = %q, want %q", y, got, line)
		}
	}
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestRunShowsOutput(t *testing.T) {
	sh := requireShell(t)
	h := newTestHost(4, 21)
	p := New(sh, "-c", `printf 'HELLO\n'; printf '%s' "$COLUMNS"`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Run(ctx, h); err != nil {
		if strings.Contains(err.Error(), "pty") {
			t.Skipf("pty unavailable: %v", err)
		}
		t.Fatalf("Run: %v", err)
	}
	if got := row(h, 0); got != "HELLO" {
		t.Errorf("row 0 = %q", got)
	}
	if got := row(h, 1); got != "21" {
		t.Errorf("row 1 = %q, want the screen width", got)
	}
}

func TestRunReportsExitStatus(t *testing.T) {
	sh := requireShell(t)
	h := newTestHost(4, 21)

	err := New(sh, "-c", "exit 3").Run(context.Background(), h)
	if err == nil {
		t.Fatal("expected exit status error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		if strings.Contains(err.Error(), "pty") {
			t.Skipf("pty unavailable: %v", err)
		}
		t.Fatalf("error = %v", err)
	}
	if exitErr.ExitCode() != 3 {
		t.Errorf("exit code = %d", exitErr.ExitCode())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	sh := requireShell(t)
	h := newTestHost(4, 21)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := New(sh, "-c", "sleep 30").Run(ctx, h)
	if err != nil && strings.Contains(err.Error(), "failed to start pty") {
		t.Skipf("pty unavailable: %v", err)
	}
	if !errors.Is(err, console.ErrAborted) {
		t.Errorf("Run = %v, want ErrAborted", err)
	}
}
