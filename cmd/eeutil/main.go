// Command eeutil inspects and edits CardBASIC storage images offline: the
// file directory kept on the external EEPROM and the boot program slot.
// It can also expose an image over a serial line so a board with no
// EEPROM fitted can use it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jacobsa/go-serial/serial"

	"github.com/stlalpha/cardbasic/internal/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "--version" || cmd == "-version" {
		fmt.Printf("eeutil %s - CardBASIC Storage Image Utility\n", version)
		return
	}
	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		printUsage()
		return
	}

	var err error
	switch cmd {
	case "list":
		err = cmdList(os.Args[2:])
	case "stats":
		err = cmdStats(os.Args[2:])
	case "check":
		err = cmdCheck(os.Args[2:])
	case "get":
		err = cmdGet(os.Args[2:])
	case "put":
		err = cmdPut(os.Args[2:])
	case "rm":
		err = cmdRemove(os.Args[2:])
	case "format":
		err = cmdFormat(os.Args[2:])
	case "slot":
		err = cmdSlot(os.Args[2:])
	case "serve":
		err = cmdServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `eeutil %s - CardBASIC Storage Image Utility

Usage: eeutil <command> [options] [args...]

Commands:
  list              List stored files
  stats             Show used and free space
  check             Verify directory integrity
  get NAME [FILE]   Copy a stored file out (default: stdout)
  put NAME FILE     Store FILE under NAME, replacing an existing one
  rm NAME           Remove a stored file
  format            Erase every stored file
  slot              Show the boot program slot
  serve             Answer EEPROM bridge commands on a serial port

Global Options:
  --image PATH    Directory image (default: data/directory.bin)
  --size N        Image size in bytes (default: current file size)
  -q              Quiet mode

Examples:
  eeutil list
  eeutil put HELLO hello.bas
  eeutil get HELLO > hello.bas
  eeutil format --yes --size 32768
  eeutil slot --slot data/slot.bin
  eeutil serve --port /dev/ttyUSB0 --baud 115200
`, version)
}

func addGlobalFlags(fs *flag.FlagSet) (*string, *int, *bool) {
	image := fs.String("image", "data/directory.bin", "Directory image")
	size := fs.Int("size", 0, "Image size in bytes (0: current file size)")
	quiet := fs.Bool("q", false, "Quiet mode")
	return image, size, quiet
}

// openDirectory opens the image for a command. The caller closes dev.
func openDirectory(path string, size int) (*storage.Directory, *storage.FileDevice, error) {
	if size <= 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, nil, fmt.Errorf("image %s: %w (use --size to create one)", path, err)
		}
		size = int(info.Size())
	}
	dev, err := storage.OpenFile(path, size)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewDirectory(dev), dev, nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	fs.Parse(args)

	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	entries, err := dir.Entries()
	if err != nil {
		return err
	}
	if *quiet {
		for _, e := range entries {
			fmt.Println(e.Name)
		}
		return nil
	}
	fmt.Printf("%-20s %8s %8s %8s\n", "Name", "Address", "Record", "Size")
	for _, e := range entries {
		fmt.Printf("%-20s %8d %8d %8d\n", e.Name, e.Addr, e.Length, e.PayloadLength)
	}
	fmt.Printf("%d file(s)\n", len(entries))
	return nil
}

func cmdStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	fs.Parse(args)

	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	entries, err := dir.Entries()
	if err != nil {
		return err
	}
	used, err := dir.Used()
	if err != nil {
		return err
	}
	free, err := dir.Free()
	if err != nil {
		return err
	}
	if *quiet {
		fmt.Printf("files=%d used=%d free=%d size=%d\n", len(entries), used, free, dir.Size())
		return nil
	}
	fmt.Printf("=== %s ===\n", *image)
	fmt.Printf("  Size:   %s\n", formatBytes(int64(dir.Size())))
	fmt.Printf("  Files:  %d\n", len(entries))
	fmt.Printf("  Used:   %s\n", formatBytes(int64(used)))
	fmt.Printf("  Free:   %s\n", formatBytes(int64(free)))
	return nil
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	fs.Parse(args)

	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dir.Check(); err != nil {
		return fmt.Errorf("%s: %w", *image, err)
	}
	if !*quiet {
		fmt.Printf("%s: OK\n", *image)
	}
	return nil
}

func cmdGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	image, size, _ := addGlobalFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("file name required")
	}

	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	data, err := dir.Load(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	if fs.NArg() < 2 {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(fs.Arg(1), data, 0644)
}

func cmdPut(args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 2 {
		return errors.New("usage: eeutil put NAME FILE")
	}

	data, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dir.Save(fs.Arg(0), data); err != nil {
		return fmt.Errorf("%s: %w", fs.Arg(0), err)
	}
	if !*quiet {
		free, _ := dir.Free()
		fmt.Printf("Stored %s (%d bytes), %d bytes free\n", fs.Arg(0), len(data), free)
	}
	return nil
}

func cmdRemove(args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("file name required")
	}

	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	for _, name := range fs.Args() {
		if err := dir.Remove(name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if !*quiet {
			fmt.Printf("Removed %s\n", name)
		}
	}
	return nil
}

func cmdFormat(args []string) error {
	fs := flag.NewFlagSet("format", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	fs.Parse(args)

	if !*yes {
		return errors.New("format erases every stored file; repeat with --yes")
	}
	dir, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dir.Format(); err != nil {
		return err
	}
	if !*quiet {
		fmt.Printf("Formatted %s (%s)\n", *image, formatBytes(int64(dir.Size())))
	}
	return nil
}

func cmdSlot(args []string) error {
	fs := flag.NewFlagSet("slot", flag.ExitOnError)
	slotPath := fs.String("slot", "data/slot.bin", "Program slot image")
	dump := fs.Bool("dump", false, "Write the stored program to stdout")
	fs.Parse(args)

	if _, err := os.Stat(*slotPath); err != nil {
		return fmt.Errorf("slot %s: %w", *slotPath, err)
	}
	dev, err := storage.OpenFile(*slotPath, 0)
	if err != nil {
		return err
	}
	defer dev.Close()
	slot := storage.NewSlot(dev)

	program, err := slot.Load()
	if err != nil {
		return fmt.Errorf("slot %s: %w", *slotPath, err)
	}
	if *dump {
		_, err = os.Stdout.Write(program)
		return err
	}
	autorun, err := slot.Autorun()
	if err != nil {
		return err
	}
	fmt.Printf("=== %s ===\n", *slotPath)
	fmt.Printf("  Capacity: %s\n", formatBytes(int64(slot.Capacity())))
	fmt.Printf("  Program:  %d bytes\n", len(program))
	fmt.Printf("  Autorun:  %t\n", autorun)
	return nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	image, size, quiet := addGlobalFlags(fs)
	port := fs.String("port", "", "Serial port the board is attached to")
	baud := fs.Uint("baud", 115200, "Baud rate")
	fs.Parse(args)
	if *port == "" {
		return errors.New("--port required")
	}

	_, dev, err := openDirectory(*image, *size)
	if err != nil {
		return err
	}
	defer dev.Close()
	if dev.Size() > storage.MaxSerialSize {
		return fmt.Errorf("image %s is %d bytes; the bridge addresses at most %d", *image, dev.Size(), storage.MaxSerialSize)
	}

	conn, err := serial.Open(serial.OpenOptions{
		PortName:        *port,
		BaudRate:        *baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", *port, err)
	}
	defer conn.Close()

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Serving %s on %s at %d baud\n", *image, *port, *baud)
	}
	return serveBridge(conn, dev)
}

// serveBridge answers bridge commands, syncing the image when the line
// closes.
func serveBridge(rw io.ReadWriter, dev *storage.FileDevice) error {
	err := storage.ServeBridge(rw, dev)
	if syncErr := dev.Sync(); err == nil {
		err = syncErr
	}
	return err
}

// formatBytes returns a human-readable byte count.
func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
	)
	switch {
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
