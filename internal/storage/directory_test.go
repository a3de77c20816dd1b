package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestDirectory(size int) (*Directory, *MemDevice) {
	dev := NewMemDevice(size)
	return NewDirectory(dev), dev
}

func TestDirectoryRoundTrip(t *testing.T) {
	dir, _ := newTestDirectory(1024)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"A", []byte("10 PRINT \"HI\"\n20 GOTO 10\n")},
		{"EMPTY", nil},
		{"BIN", []byte{0, 1, 2, 0xFF, 0, 0}},
		{strings.Repeat("N", MaxNameLen), []byte("long name")},
	}
	for _, tt := range tests {
		if err := dir.Save(tt.name, tt.payload); err != nil {
			t.Fatalf("Save(%q): %v", tt.name, err)
		}
	}
	for _, tt := range tests {
		got, err := dir.Load(tt.name)
		if err != nil {
			t.Fatalf("Load(%q): %v", tt.name, err)
		}
		if !bytes.Equal(got, tt.payload) {
			t.Errorf("Load(%q) = %q, want %q", tt.name, got, tt.payload)
		}
	}

	names, err := dir.Names()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != len(tests) || names[0] != "A" || names[2] != "BIN" {
		t.Errorf("Names = %q", names)
	}
	if err := dir.Check(); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestDirectoryRecordLayout(t *testing.T) {
	dir, dev := newTestDirectory(64)
	if err := dir.Save("AB", []byte{7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	want := []byte{10, 0, 'A', 'B', 0, 3, 0, 7, 8, 9, 0, 0}
	if got := dev.Bytes()[:len(want)]; !bytes.Equal(got, want) {
		t.Fatalf("layout = % x, want % x", got, want)
	}
}

func TestDirectoryRemove(t *testing.T) {
	dir, _ := newTestDirectory(256)
	for _, name := range []string{"ONE", "TWO", "THREE"} {
		if err := dir.Save(name, []byte(name+" payload")); err != nil {
			t.Fatal(err)
		}
	}

	two, err := dir.Find("TWO")
	if err != nil {
		t.Fatal(err)
	}
	before, _ := dir.Used()
	if err := dir.Remove("TWO"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	after, _ := dir.Used()
	if before-after != two.Length {
		t.Errorf("used shrank by %d, want %d", before-after, two.Length)
	}

	names, _ := dir.Names()
	if len(names) != 2 || names[0] != "ONE" || names[1] != "THREE" {
		t.Errorf("Names after remove = %q", names)
	}
	got, err := dir.Load("THREE")
	if err != nil || string(got) != "THREE payload" {
		t.Errorf("record after the hole = %q, %v", got, err)
	}
}

func TestDirectoryRemoveAbsentLeavesLog(t *testing.T) {
	dir, dev := newTestDirectory(128)
	if err := dir.Save("KEEP", []byte("data")); err != nil {
		t.Fatal(err)
	}
	snapshot := dev.Bytes()

	if err := dir.Remove("MISSING"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove(absent) = %v, want ErrNotFound", err)
	}
	if !bytes.Equal(dev.Bytes(), snapshot) {
		t.Error("failed remove changed the device")
	}
	if _, err := dir.Load("MISSING"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(absent) = %v", err)
	}
}

func TestDirectorySaveReplaces(t *testing.T) {
	dir, _ := newTestDirectory(128)
	dir.Save("A", []byte("first"))
	dir.Save("B", []byte("other"))
	if err := dir.Save("A", []byte("second version")); err != nil {
		t.Fatal(err)
	}

	names, _ := dir.Names()
	if len(names) != 2 || names[0] != "B" || names[1] != "A" {
		t.Fatalf("Names = %q, want [B A]", names)
	}
	got, _ := dir.Load("A")
	if string(got) != "second version" {
		t.Errorf("Load(A) = %q", got)
	}
}

func TestDirectoryNoSpace(t *testing.T) {
	// "A" with 10 bytes needs 16; 16 + terminator fills 18 exactly.
	dir, dev := newTestDirectory(18)
	if err := dir.Save("A", make([]byte, 10)); err != nil {
		t.Fatalf("exact fit: %v", err)
	}
	if free, _ := dir.Free(); free != 0 {
		t.Errorf("Free = %d, want 0", free)
	}

	snapshot := dev.Bytes()
	if err := dir.Save("B", nil); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Save on full device = %v, want ErrNoSpace", err)
	}
	if !bytes.Equal(dev.Bytes(), snapshot) {
		t.Error("failed save changed the device")
	}
}

func TestDirectoryReplaceCreditsOldRecord(t *testing.T) {
	dir, dev := newTestDirectory(18)
	if err := dir.Save("A", make([]byte, 10)); err != nil {
		t.Fatal(err)
	}
	if err := dir.Save("A", []byte("0123456789")); err != nil {
		t.Fatalf("same-size replace on a full device: %v", err)
	}

	snapshot := dev.Bytes()
	if err := dir.Save("A", make([]byte, 11)); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("oversized replace = %v, want ErrNoSpace", err)
	}
	if !bytes.Equal(dev.Bytes(), snapshot) {
		t.Error("rejected replace removed the old record")
	}
	got, _ := dir.Load("A")
	if string(got) != "0123456789" {
		t.Errorf("Load(A) = %q", got)
	}
}

func TestDirectoryNearFullDoesNotWrap(t *testing.T) {
	dir, _ := newTestDirectory(20)
	if err := dir.Save("X", make([]byte, 12)); err != nil {
		t.Fatal(err)
	}
	// Used 18 of 20; a 6-byte record cannot fit even though an unsigned
	// difference would wrap to a huge value.
	if err := dir.Save("Y", nil); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Save = %v, want ErrNoSpace", err)
	}
}

func TestDirectoryBadNames(t *testing.T) {
	dir, _ := newTestDirectory(1024)
	for _, name := range []string{"", "A\x00B", strings.Repeat("x", MaxNameLen+1)} {
		if err := dir.Save(name, []byte("p")); !errors.Is(err, ErrBadName) {
			t.Errorf("Save(%q) = %v, want ErrBadName", name, err)
		}
	}
}

func TestDirectoryTooLarge(t *testing.T) {
	dir, _ := newTestDirectory(1024)
	if err := dir.Save("BIG", make([]byte, 0x10000)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Save = %v, want ErrTooLarge", err)
	}
}

func TestDirectoryCorruption(t *testing.T) {
	tests := []struct {
		name  string
		image []byte
	}{
		{"length past end", []byte{0xFF, 0x7F, 'A', 0}},
		{"length below overhead", []byte{3, 0, 'A', 0, 0, 0}},
		{"name without terminator", []byte{8, 0, 'A', 'B', 'C', 'D', 'E', 'F', 0, 0}},
		{"payload overruns", []byte{7, 0, 'A', 0, 9, 0, 1, 0, 0, 0}},
		{"no terminator", []byte{6, 0, 'A', 0, 0, 0}},
	}
	for _, tt := range tests {
		dev := NewMemDevice(len(tt.image))
		writeBytes(dev, 0, tt.image)
		dir := NewDirectory(dev)
		if _, err := dir.Entries(); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: Entries = %v, want ErrCorrupt", tt.name, err)
		}
	}
}

func TestDirectoryCheckLengthMismatch(t *testing.T) {
	dev := NewMemDevice(32)
	writeBytes(dev, 0, []byte{9, 0, 'A', 0, 1, 0, 'x', 'y', 'z', 0, 0})
	dir := NewDirectory(dev)
	if _, err := dir.Entries(); err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if err := dir.Check(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Check = %v, want ErrCorrupt", err)
	}
}

func TestDirectoryFormat(t *testing.T) {
	dir, _ := newTestDirectory(64)
	dir.Save("A", []byte("x"))
	if err := dir.Format(); err != nil {
		t.Fatal(err)
	}
	names, err := dir.Names()
	if err != nil || len(names) != 0 {
		t.Fatalf("after format: %q, %v", names, err)
	}
	if free, _ := dir.Free(); free != 62 {
		t.Errorf("Free = %d, want 62", free)
	}
}
