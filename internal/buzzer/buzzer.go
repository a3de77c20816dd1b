// Package buzzer plays the key click and the boot tone through the host
// audio device.
package buzzer

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const sampleRate = beep.SampleRate(44100)

const (
	clickLength = time.Millisecond
	volume      = 0.2
)

// Sounder is what the appliance needs from a buzzer.
type Sounder interface {
	Click()
	StartupTone()
}

// Nop is a silent Sounder.
type Nop struct{}

func (Nop) Click()       {}
func (Nop) StartupTone() {}

// Speaker drives the buzzer sounds into a mixer on the default audio
// device. The audio device is process-wide, so one Speaker is shared by
// every appliance.
type Speaker struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
}

func NewSpeaker() *Speaker {
	return &Speaker{mixer: &beep.Mixer{}}
}

// Init opens the audio device.
func (s *Speaker) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("buzzer: audio init: %w", err)
	}
	speaker.Play(s.mixer)
	s.initialized = true
	return nil
}

// Close silences anything still queued.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
	s.initialized = false
}

func (s *Speaker) Click() { s.play(ClickStreamer(sampleRate)) }

func (s *Speaker) StartupTone() { s.play(StartupStreamer(sampleRate)) }

func (s *Speaker) play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	speaker.Lock()
	s.mixer.Add(st)
	speaker.Unlock()
}

// ClickStreamer is a single short pulse.
func ClickStreamer(sr beep.SampleRate) beep.Streamer {
	return beep.Take(sr.N(clickLength), &square{rate: sr, freq: 1 / (2 * clickLength.Seconds())})
}

// StartupStreamer is the boot tone: a low then a higher burst, each
// followed by a pause.
func StartupStreamer(sr beep.SampleRate) beep.Streamer {
	var parts []beep.Streamer
	for i := 1; i <= 2; i++ {
		half := time.Duration(3-i) * time.Millisecond
		cycles := 50 * i
		tone := &square{rate: sr, freq: 1 / (2 * half.Seconds())}
		parts = append(parts,
			beep.Take(sr.N(2*half*time.Duration(cycles)), tone),
			beep.Silence(sr.N(100*time.Millisecond)),
		)
	}
	return beep.Seq(parts...)
}

// square is an endless square wave.
type square struct {
	rate  beep.SampleRate
	freq  float64
	phase float64
}

func (q *square) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		v := volume
		if q.phase >= 0.5 {
			v = -volume
		}
		samples[i][0] = v
		samples[i][1] = v
		q.phase += q.freq / float64(q.rate)
		if q.phase >= 1 {
			q.phase--
		}
	}
	return len(samples), true
}

func (q *square) Err() error { return nil }
