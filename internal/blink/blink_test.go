package blink

import (
	"testing"
	"time"
)

func TestToggle(t *testing.T) {
	b := New(0)
	if b.Period() != DefaultPeriod {
		t.Errorf("Period = %v", b.Period())
	}
	if b.Phase() {
		t.Fatal("phase should start off")
	}
	b.Toggle()
	b.Toggle()
	b.Toggle()
	if !b.Phase() || b.Redraws() != 3 {
		t.Errorf("phase=%v redraws=%d after 3 toggles", b.Phase(), b.Redraws())
	}
}

func TestEverySchedule(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := every(250 * time.Millisecond).Next(now); !got.Equal(now.Add(250 * time.Millisecond)) {
		t.Errorf("Next = %v", got)
	}
}

func TestStartStop(t *testing.T) {
	b := New(10 * time.Millisecond)
	b.Start()
	b.Start()

	deadline := time.Now().Add(2 * time.Second)
	for b.Redraws() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	b.Stop()
	if b.Redraws() < 3 {
		t.Fatalf("only %d flips in 2s", b.Redraws())
	}

	n := b.Redraws()
	time.Sleep(50 * time.Millisecond)
	if b.Redraws() != n {
		t.Error("blinker kept running after Stop")
	}
	b.Stop()
}

func TestSetPeriodWhileRunning(t *testing.T) {
	b := New(time.Hour)
	b.Start()
	defer b.Stop()

	b.SetPeriod(10 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for b.Redraws() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.Redraws() == 0 {
		t.Fatal("new period never fired")
	}
}
