package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/stlalpha/cardbasic/internal/session"
)

type stdio struct {
	io.Reader
	io.Writer
}

// runLocal runs one appliance on the controlling terminal in raw mode.
func runLocal(ctx context.Context, handler *session.Handler) error {
	inFd := int(os.Stdin.Fd())
	if !term.IsTerminal(inFd) {
		return errors.New("stdin is not a terminal: enable ssh in cardbasic.json or use cardsim")
	}

	settings := handler.Settings()
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		if w < settings.Cols+2 || h < settings.Rows+3 {
			return fmt.Errorf("terminal %dx%d is too small for a %dx%d panel", w, h, settings.Cols, settings.Rows)
		}
	}

	oldState, err := term.MakeRaw(inFd)
	if err != nil {
		return fmt.Errorf("failed to set raw mode: %w", err)
	}
	defer term.Restore(inFd, oldState)

	sess := &session.Session{
		ID:         uuid.NewString(),
		User:       os.Getenv("USER"),
		RemoteAddr: "console",
		TermType:   os.Getenv("TERM"),
		StartTime:  time.Now(),
	}
	log.Printf("INFO: Local console started; Ctrl-D powers off")
	return handler.Run(ctx, stdio{os.Stdin, os.Stdout}, sess)
}
