package keyboard

import (
	"bytes"
	"testing"
)

func drain(kb *Keyboard) []byte {
	var out []byte
	for kb.Typist.Pending() > 0 {
		if c, ok := kb.Poll(); ok {
			out = append(out, c)
		}
	}
	return out
}

func TestTypistRoundTrip(t *testing.T) {
	kb := NewKeyboard(testThreshold)

	var want []byte
	for c := byte(0x20); c <= 0x7E; c++ {
		want = append(want, c)
	}
	want = append(want, CodeEnter, CodeBackspace, CodeEscape, CodeTab, CodeDelete)
	for c := byte(FnBase); c <= FnLastKey; c++ {
		if _, _, ok := Lookup(c); ok {
			want = append(want, c)
		}
	}

	for _, c := range want {
		if !kb.Typist.Type(c) {
			t.Fatalf("Type(%#x) rejected", c)
		}
	}
	got := drain(kb)
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch\n got %q\nwant %q", got, want)
	}
}

func TestTypistRepeatedKey(t *testing.T) {
	kb := NewKeyboard(testThreshold)
	kb.Typist.TypeString("aaAA")
	if got := drain(kb); string(got) != "aaAA" {
		t.Fatalf("got %q, want aaAA", got)
	}
}

func TestTypistRejectsUnmappedCodes(t *testing.T) {
	kb := NewKeyboard(testThreshold)
	if kb.Typist.Type(0) {
		t.Error("code 0 accepted")
	}
	if kb.Typist.Type(0xF0) {
		t.Error("0xF0 accepted")
	}
	if n := kb.Typist.TypeString("a\x01b"); n != 2 {
		t.Errorf("TypeString accepted %d, want 2", n)
	}
}

func TestKeyboardThresholdChange(t *testing.T) {
	kb := NewKeyboard(testThreshold)
	kb.SetLongThreshold(9)
	if kb.Translator.LongThreshold() != 9 {
		t.Fatalf("translator threshold = %d", kb.Translator.LongThreshold())
	}
	kb.Typist.Type(FnEnd)
	if got := drain(kb); len(got) != 1 || got[0] != FnEnd {
		t.Fatalf("got %q after threshold change", got)
	}
}

func TestIdleStepReleasesLines(t *testing.T) {
	kb := NewKeyboard(testThreshold)
	for i := 0; i < 5; i++ {
		if _, ok := kb.Poll(); ok {
			t.Fatal("idle keyboard produced a key")
		}
	}
}
