// Command cardsim runs the CardBASIC appliance in a terminal window: the
// panel, the modifier LED and a keyboard driven from the host keyboard.
//
// Usage:
//
//	./cardsim [--config configs] [--memory] [--log cardsim.log]
//
// Storage images come from cardbasic.json unless --memory is given, in
// which case nothing survives the session.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/stlalpha/cardbasic/internal/blink"
	"github.com/stlalpha/cardbasic/internal/buzzer"
	"github.com/stlalpha/cardbasic/internal/config"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/logging"
	"github.com/stlalpha/cardbasic/internal/monitor"
	"github.com/stlalpha/cardbasic/internal/ptybridge"
	"github.com/stlalpha/cardbasic/internal/simulator"
	"github.com/stlalpha/cardbasic/internal/storage"
)

func main() {
	configDir := flag.String("config", "configs", "Directory containing cardbasic.json")
	memory := flag.Bool("memory", false, "Keep storage in memory instead of the configured images")
	logFile := flag.String("log", "cardsim.log", "Log file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()
	log.SetOutput(f)

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(*debug, cfg.Debug)

	hostOpts, closeStorage, err := openStorage(cfg, *memory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeStorage()
	hostOpts = append(hostOpts, host.WithProgramSize(cfg.ProgramSize))

	if cfg.Buzzer {
		sp := buzzer.NewSpeaker()
		if err := sp.Init(); err != nil {
			log.Printf("WARN: Buzzer disabled: %v", err)
		} else {
			defer sp.Close()
			hostOpts = append(hostOpts, host.WithSounder(sp))
		}
	}

	blinker := blink.New(cfg.BlinkPeriod())
	blinker.Start()
	defer blinker.Stop()

	var interp host.Interpreter = monitor.New()
	if cfg.Interpreter.Command != "" {
		p := ptybridge.New(cfg.Interpreter.Command, cfg.Interpreter.Args...)
		p.PollInterval = cfg.PollInterval()
		interp = p
	}

	model := simulator.New(simulator.Options{
		Rows:          cfg.Display.Rows,
		Cols:          cfg.Display.Cols,
		LongThreshold: cfg.Keyboard.LongThreshold,
		RepeatDelay:   cfg.Keyboard.RepeatDelay,
		RepeatRate:    cfg.Keyboard.RepeatRate,
		PollInterval:  cfg.PollInterval(),
		Blinker:       blinker,
		HostOptions:   hostOpts,
		Interpreter:   interp,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(simulator.Model); ok && m.Err() != nil {
		fmt.Fprintf(os.Stderr, "Appliance stopped: %v\n", m.Err())
		os.Exit(1)
	}
}

// openStorage returns the host options for the program slot and the file
// directory, plus a function releasing them.
func openStorage(cfg config.Config, memory bool) ([]host.Option, func(), error) {
	sc := cfg.Storage
	if memory {
		opts := []host.Option{host.WithSlot(storage.NewSlot(storage.NewMemDevice(sc.SlotSize)))}
		if sc.DirectoryEnabled {
			opts = append(opts, host.WithDirectory(storage.NewDirectory(storage.NewMemDevice(sc.DirectorySize))))
		}
		return opts, func() {}, nil
	}

	slotDev, err := storage.OpenFile(sc.SlotPath, sc.SlotSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open program slot: %w", err)
	}
	closers := []func() error{slotDev.Close}
	opts := []host.Option{host.WithSlot(storage.NewSlot(slotDev))}

	if sc.DirectoryEnabled {
		dirDev, err := storage.OpenFile(sc.DirectoryPath, sc.DirectorySize)
		if err != nil {
			slotDev.Close()
			return nil, nil, fmt.Errorf("failed to open file directory: %w", err)
		}
		closers = append(closers, dirDev.Close)
		opts = append(opts, host.WithDirectory(storage.NewDirectory(dirDev)))
	}
	return opts, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Printf("WARN: close storage: %v", err)
			}
		}
	}, nil
}
