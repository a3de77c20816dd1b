// Package blink provides the periodic blink phase shared by the cursor and
// the modifier LED.
package blink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stlalpha/cardbasic/internal/logging"
)

// DefaultPeriod is the interval between phase flips.
const DefaultPeriod = 500 * time.Millisecond

// every is a fixed-interval schedule. The cron "@every" form rounds to whole
// seconds, which is too coarse for a cursor.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

// Blinker flips a phase flag on a timer and counts flips so pollers can
// tell a redraw is due. Only the timer job writes the flag and counter.
type Blinker struct {
	phase   atomic.Bool
	redraws atomic.Uint32

	mu     sync.Mutex
	period time.Duration
	cron   *cron.Cron
	entry  cron.EntryID
}

// New creates a stopped Blinker. A non-positive period uses DefaultPeriod.
func New(period time.Duration) *Blinker {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Blinker{period: period}
}

// Phase returns the current blink phase.
func (b *Blinker) Phase() bool { return b.phase.Load() }

// Redraws returns the number of phase flips so far.
func (b *Blinker) Redraws() uint32 { return b.redraws.Load() }

// Period returns the flip interval.
func (b *Blinker) Period() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.period
}

// Toggle flips the phase. It is the timer job.
func (b *Blinker) Toggle() {
	b.phase.Store(!b.phase.Load())
	b.redraws.Add(1)
}

// Start begins flipping. Calling Start on a running Blinker does nothing.
func (b *Blinker) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cron != nil {
		return
	}
	b.cron = cron.New()
	b.entry = b.cron.Schedule(every(b.period), cron.FuncJob(b.Toggle))
	b.cron.Start()
}

// Stop halts the timer and waits for a running flip to finish.
func (b *Blinker) Stop() {
	b.mu.Lock()
	c := b.cron
	b.cron = nil
	b.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// SetPeriod changes the flip interval, rescheduling a running timer.
func (b *Blinker) SetPeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultPeriod
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if d == b.period {
		return
	}
	b.period = d
	if b.cron != nil {
		b.cron.Remove(b.entry)
		b.entry = b.cron.Schedule(every(d), cron.FuncJob(b.Toggle))
		logging.Debug("blink period now %v", d)
	}
}
