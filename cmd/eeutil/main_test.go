package main

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stlalpha/cardbasic/internal/storage"
)

func TestPutGetRemove(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "directory.bin")
	src := filepath.Join(dir, "hello.bas")
	out := filepath.Join(dir, "out.bas")
	if err := os.WriteFile(src, []byte("10 PRINT 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := cmdFormat([]string{"--image", image, "--size", "128", "--yes", "-q"}); err != nil {
		t.Fatalf("format: %v", err)
	}
	if err := cmdPut([]string{"--image", image, "-q", "HELLO", src}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := cmdGet([]string{"--image", image, "HELLO", out}); err != nil {
		t.Fatalf("get: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil || string(got) != "10 PRINT 1\n" {
		t.Errorf("got %q, %v", got, err)
	}
	if err := cmdCheck([]string{"--image", image, "-q"}); err != nil {
		t.Errorf("check: %v", err)
	}
	if err := cmdRemove([]string{"--image", image, "-q", "HELLO"}); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if err := cmdGet([]string{"--image", image, "HELLO", out}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("get after rm = %v, want ErrNotFound", err)
	}
}

func TestFormatNeedsConfirmation(t *testing.T) {
	image := filepath.Join(t.TempDir(), "directory.bin")
	if err := cmdFormat([]string{"--image", image, "--size", "64"}); err == nil {
		t.Error("format ran without --yes")
	}
}

func TestOpenDirectoryMissingImage(t *testing.T) {
	if _, _, err := openDirectory(filepath.Join(t.TempDir(), "none.bin"), 0); err == nil {
		t.Error("expected an error for a missing image without --size")
	}
}

func TestSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slot.bin")
	dev, err := storage.OpenFile(path, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.NewSlot(dev).Save([]byte("10 X\n"), true); err != nil {
		t.Fatal(err)
	}
	dev.Close()

	if err := cmdSlot([]string{"--slot", path}); err != nil {
		t.Errorf("slot: %v", err)
	}
	if err := cmdSlot([]string{"--slot", path + ".missing"}); err == nil {
		t.Error("expected an error for a missing slot image")
	}
}

func TestServeBridge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.bin")
	dir, dev, err := openDirectory(path, 256)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if err := dir.Save("A", []byte("data")); err != nil {
		t.Fatal(err)
	}

	board, line := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- serveBridge(line, dev) }()

	boardDev, err := storage.NewSerialDevice(board, 256)
	if err != nil {
		t.Fatal(err)
	}
	remote := storage.NewDirectory(boardDev)
	got, err := remote.Load("A")
	if err != nil || string(got) != "data" {
		t.Errorf("remote load = %q, %v", got, err)
	}
	if err := remote.Save("B", []byte("xy")); err != nil {
		t.Errorf("remote save: %v", err)
	}
	board.Close()
	if err := <-done; err != nil {
		t.Errorf("serveBridge: %v", err)
	}

	names, err := dir.Names()
	if err != nil || len(names) != 2 || names[1] != "B" {
		t.Errorf("names after remote save = %v, %v", names, err)
	}
}
