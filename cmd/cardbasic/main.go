// Command cardbasic runs the CardBASIC appliance: a 21x4 character panel
// and a CardKB-style keyboard driving an interpreter, with a program slot
// and a file directory kept in non-volatile images.
//
// Usage:
//
//	./cardbasic [--config configs] [--debug] [--log cardbasic.log]
//
// With ssh.enabled or telnet.enabled in cardbasic.json every connection
// gets its own appliance. Otherwise the appliance runs on the controlling
// terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gliderlabs/ssh"
	"github.com/stlalpha/cardbasic/internal/blink"
	"github.com/stlalpha/cardbasic/internal/buzzer"
	"github.com/stlalpha/cardbasic/internal/config"
	"github.com/stlalpha/cardbasic/internal/console"
	"github.com/stlalpha/cardbasic/internal/display"
	"github.com/stlalpha/cardbasic/internal/host"
	"github.com/stlalpha/cardbasic/internal/logging"
	"github.com/stlalpha/cardbasic/internal/monitor"
	"github.com/stlalpha/cardbasic/internal/ptybridge"
	"github.com/stlalpha/cardbasic/internal/session"
	"github.com/stlalpha/cardbasic/internal/sshserver"
	"github.com/stlalpha/cardbasic/internal/storage"
	"github.com/stlalpha/cardbasic/internal/telnetserver"
)

// panelTitle is shown in the frame around the panel.
const panelTitle = "CardBASIC"

func main() {
	configDir := flag.String("config", "configs", "Directory containing cardbasic.json")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logFile := flag.String("log", "", "Log file (default: stderr; cardbasic.log on the local console)")
	flag.Parse()

	log.SetOutput(os.Stderr)

	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Printf("ERROR: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}
	logging.Init(*debug, cfg.Debug)

	// The local console owns the terminal, so logs must go elsewhere.
	if *logFile == "" && !cfg.Remote() {
		*logFile = "cardbasic.log"
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("FATAL: Failed to open log file %s: %v", *logFile, err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newAppliance(cfg)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer app.Close()

	blinker := blink.New(cfg.BlinkPeriod())
	blinker.Start()
	defer blinker.Stop()

	maxSessions := 1
	if cfg.Remote() {
		maxSessions = cfg.SSH.MaxSessions
	}
	handler := session.NewHandler(session.NewRegistry(), blinker, settingsFrom(cfg), maxSessions,
		app.newHost, interpreterFactory(cfg))

	watcher, err := NewConfigWatcher(*configDir, *debug, handler, blinker)
	if err != nil {
		log.Printf("WARN: Config hot reload disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	if cfg.Remote() {
		err = runRemote(ctx, cfg, handler)
	} else {
		err = runLocal(ctx, handler)
	}
	if err != nil {
		log.Printf("ERROR: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Println("INFO: CardBASIC shutting down.")
}

// settingsFrom turns the configuration into session parameters.
func settingsFrom(cfg config.Config) session.Settings {
	return session.Settings{
		Rows:          cfg.Display.Rows,
		Cols:          cfg.Display.Cols,
		OutputMode:    display.ParseOutputMode(cfg.Display.OutputMode),
		Title:         panelTitle,
		LongThreshold: cfg.Keyboard.LongThreshold,
		RepeatDelay:   cfg.Keyboard.RepeatDelay,
		RepeatRate:    cfg.Keyboard.RepeatRate,
		PollInterval:  cfg.PollInterval(),
	}
}

// interpreterFactory selects the external interpreter when one is
// configured and the built-in monitor otherwise.
func interpreterFactory(cfg config.Config) session.InterpreterFactory {
	ic := cfg.Interpreter
	if ic.Command == "" {
		return func() host.Interpreter { return monitor.New() }
	}
	log.Printf("INFO: Interpreter: %s %v", ic.Command, ic.Args)
	return func() host.Interpreter {
		p := ptybridge.New(ic.Command, ic.Args...)
		p.PollInterval = cfg.PollInterval()
		return p
	}
}

// appliance holds what every session shares: the storage images and the
// buzzer.
type appliance struct {
	programSize int
	slot        *storage.Slot
	dir         *storage.Directory
	sound       buzzer.Sounder
	closers     []func() error
}

func newAppliance(cfg config.Config) (*appliance, error) {
	a := &appliance{programSize: cfg.ProgramSize, sound: buzzer.Nop{}}

	slotDev, err := storage.OpenFile(cfg.Storage.SlotPath, cfg.Storage.SlotSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open program slot: %w", err)
	}
	a.closers = append(a.closers, slotDev.Close)
	a.slot = storage.NewSlot(slotDev)
	log.Printf("INFO: Program slot %s (%d bytes)", cfg.Storage.SlotPath, a.slot.Capacity())

	if cfg.Storage.DirectoryEnabled {
		dev, err := openDirectoryDevice(cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, dev.Close)
		a.dir = storage.NewDirectory(dev)
		if err := a.dir.Check(); err != nil {
			log.Printf("WARN: File directory needs attention (run eeutil check): %v", err)
		}
	}

	if cfg.Buzzer {
		sp := buzzer.NewSpeaker()
		if err := sp.Init(); err != nil {
			log.Printf("WARN: Buzzer disabled: %v", err)
		} else {
			a.sound = sp
			a.closers = append(a.closers, func() error { sp.Close(); return nil })
		}
	}
	return a, nil
}

type closeDevice interface {
	storage.Device
	Close() error
}

func openDirectoryDevice(sc config.StorageConfig) (closeDevice, error) {
	if sc.SerialPort != "" {
		dev, err := storage.OpenSerial(sc.SerialPort, sc.SerialBaud, sc.DirectorySize)
		if err != nil {
			return nil, fmt.Errorf("failed to open directory EEPROM: %w", err)
		}
		log.Printf("INFO: File directory on %s at %d baud (%d bytes)", sc.SerialPort, sc.SerialBaud, sc.DirectorySize)
		return dev, nil
	}
	dev, err := storage.OpenFile(sc.DirectoryPath, sc.DirectorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to open file directory: %w", err)
	}
	log.Printf("INFO: File directory %s (%d bytes)", sc.DirectoryPath, sc.DirectorySize)
	return dev, nil
}

// newHost is the session.HostFactory.
func (a *appliance) newHost(term *console.Terminal, name string) *host.Host {
	opts := []host.Option{
		host.WithName(name),
		host.WithProgramSize(a.programSize),
		host.WithSounder(a.sound),
		host.WithSlot(a.slot),
	}
	if a.dir != nil {
		opts = append(opts, host.WithDirectory(a.dir))
	}
	return host.New(term, opts...)
}

func (a *appliance) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("WARN: close: %v", err)
		}
	}
	a.closers = nil
}

// runRemote serves the enabled network consoles until ctx ends or one of
// them fails.
func runRemote(ctx context.Context, cfg config.Config, handler *session.Handler) error {
	var servers []func() error
	var closers []func() error

	if cfg.SSH.Enabled {
		sc := cfg.SSH
		log.Printf("INFO: Configuring SSH server on %s:%d...", sc.Host, sc.Port)
		server, err := sshserver.NewServer(sshserver.Config{
			HostKeyPath:         sc.HostKeyPath,
			Host:                sc.Host,
			Port:                sc.Port,
			LegacySSHAlgorithms: sc.LegacyAlgorithms,
			SessionHandler:      handler.HandleSSH,
			Password:            sc.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to create SSH server: %w", err)
		}
		servers = append(servers, func() error {
			log.Printf("INFO: SSH server ready - connect via: ssh -t <name>@%s -p %d", sc.Host, sc.Port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
				return fmt.Errorf("SSH server: %w", err)
			}
			return nil
		})
		closers = append(closers, server.Close)
	}

	if cfg.Telnet.Enabled {
		tc := cfg.Telnet
		server, err := telnetserver.NewServer(telnetserver.Config{
			Host:           tc.Host,
			Port:           tc.Port,
			SessionHandler: handler.HandleTelnet,
		})
		if err != nil {
			return fmt.Errorf("failed to create telnet server: %w", err)
		}
		servers = append(servers, func() error {
			if err := server.ListenAndServe(); err != nil {
				return fmt.Errorf("telnet server: %w", err)
			}
			return nil
		})
		closers = append(closers, server.Close)
	}

	errCh := make(chan error, len(servers))
	for _, serve := range servers {
		go func(serve func() error) { errCh <- serve() }(serve)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	for _, c := range closers {
		_ = c()
	}
	log.Println("INFO: Network consoles closed.")
	return err
}
