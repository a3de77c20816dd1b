package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stlalpha/cardbasic/internal/keyboard"
)

func TestParseOutputMode(t *testing.T) {
	tests := []struct {
		in   string
		want OutputMode
	}{
		{"utf8", OutputModeUTF8},
		{"UTF-8", OutputModeUTF8},
		{"cp437", OutputModeCP437},
		{"", OutputModeAuto},
		{"bogus", OutputModeAuto},
	}
	for _, tt := range tests {
		if got := ParseOutputMode(tt.in); got != tt.want {
			t.Errorf("ParseOutputMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	if OutputModeAuto.Resolve("xterm-256color") != OutputModeUTF8 {
		t.Error("xterm should resolve to utf8")
	}
	if OutputModeAuto.Resolve("syncterm") != OutputModeCP437 {
		t.Error("syncterm should resolve to cp437")
	}
	if OutputModeUTF8.Resolve("ansi") != OutputModeUTF8 {
		t.Error("explicit mode must win")
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		in   byte
		mode OutputMode
		want string
	}{
		{'A', OutputModeUTF8, "A"},
		{0x01, OutputModeUTF8, " "},
		{0x7F, OutputModeUTF8, "⌂"},
		{0x7F, OutputModeCP437, "\x7f"},
		{0xC4, OutputModeUTF8, "─"},
		{0xC4, OutputModeCP437, "\xc4"},
	}
	for _, tt := range tests {
		if got := string(Encode(tt.in, tt.mode)); got != tt.want {
			t.Errorf("Encode(%#x, %v) = %q, want %q", tt.in, tt.mode, got, tt.want)
		}
	}
}

func TestEncodeRune(t *testing.T) {
	if b, ok := EncodeRune('⌂'); !ok || b != 0x7F {
		t.Errorf("house glyph -> %#x %v", b, ok)
	}
	if b, ok := EncodeRune('é'); !ok || b != 0x82 {
		t.Errorf("e-acute -> %#x %v", b, ok)
	}
	if _, ok := EncodeRune('世'); ok {
		t.Error("CJK should not encode")
	}
}

func TestANSIWritesAtOffset(t *testing.T) {
	var out bytes.Buffer
	a := NewANSI(&out, 4, 21, OutputModeUTF8)
	a.SetPosition(0, 1)
	a.WriteChar('H')
	a.WriteChar(0x7F)
	if out.Len() != 0 {
		t.Fatal("output should be buffered until Flush")
	}
	if err := a.Flush(); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "\x1b[3;2HH⌂"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}

	a.SetPosition(20, 0)
	if !a.WriteChar('x') || a.WriteChar('y') {
		t.Error("writes past the right edge must be refused")
	}
}

func TestANSIFrameAndLED(t *testing.T) {
	var out bytes.Buffer
	a := NewANSI(&out, 2, 8, OutputModeCP437)
	a.SetTitle("CARD")
	if err := a.DrawFrame(); err != nil {
		t.Fatal(err)
	}
	s := out.String()
	if !strings.Contains(s, "\xda\xc4CARD\xc4\xc4\xc4\xbf") {
		t.Errorf("top edge missing from %q", s)
	}
	if !strings.Contains(s, "\x1b[?25l") {
		t.Error("cursor not hidden")
	}

	out.Reset()
	a.SetColor(keyboard.Color{G: 5})
	if !strings.Contains(out.String(), "\x1b[38;2;0;255;0m\xfe") {
		t.Errorf("LED output = %q", out.String())
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2, 4)
	if r.Clears() != 0 || r.Line(0) != "    " {
		t.Fatalf("fresh recorder: clears=%d line=%q", r.Clears(), r.Line(0))
	}
	v := r.Version()

	r.SetPosition(1, 1)
	r.WriteChar('o')
	r.WriteChar('k')
	r.WriteChar(0x7F)
	if r.WriteChar('!') {
		t.Error("write past edge accepted")
	}
	if got := r.Lines()[1]; got != " ok⌂" {
		t.Errorf("line 1 = %q", got)
	}
	if r.Writes() != 3 || r.Version() == v {
		t.Errorf("writes=%d version unchanged=%v", r.Writes(), r.Version() == v)
	}

	r.SetColor(keyboard.Color{R: 5})
	if r.LED() != (keyboard.Color{R: 5}) {
		t.Error("LED not recorded")
	}
	r.Clear()
	if r.Line(1) != "    " || r.Clears() != 1 {
		t.Error("clear did not blank")
	}
}

func TestCP437Writer(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"plain", []string{"READY\r\n"}, "READY\r\n"},
		{"csi dropped", []string{"\x1b[1;31mERR\x1b[0m"}, "ERR"},
		{"csi split across writes", []string{"A\x1b[3", "8;5;1mB"}, "AB"},
		{"charset select", []string{"\x1b(BX"}, "X"},
		{"osc title", []string{"\x1b]0;title\x07Y", "\x1b]2;t\x1b\\Z"}, "YZ"},
		{"controls", []string{"a\x07b\x00c\bd\te"}, "abc\bd\te"},
		{"cp437 glyphs", []string{"é─⌂"}, "\x82\xc4\x7f"},
		{"rune split across writes", []string{"\xc3", "\xa9"}, "\x82"},
		{"unmappable", []string{"世!"}, "?!"},
		{"invalid utf8", []string{"\xc3A"}, "?A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			w := NewCP437Writer(&out)
			for _, chunk := range tt.in {
				n, err := w.Write([]byte(chunk))
				if err != nil || n != len(chunk) {
					t.Fatalf("Write = %d, %v", n, err)
				}
			}
			if got := out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}
