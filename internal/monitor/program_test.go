package monitor

import "testing"

func TestSplitLineNumber(t *testing.T) {
	tests := []struct {
		in   string
		num  int
		rest string
		ok   bool
	}{
		{"10 PRINT 1", 10, "PRINT 1", true},
		{"  20", 20, "", true},
		{"30PRINT", 30, "PRINT", true},
		{"PRINT 10", 0, "", false},
		{"70000 X", 0, "", false},
	}
	for _, tt := range tests {
		num, rest, ok := splitLineNumber(tt.in)
		if ok != tt.ok || (ok && (num != tt.num || rest != tt.rest)) {
			t.Errorf("splitLineNumber(%q) = %d %q %v", tt.in, num, rest, ok)
		}
	}
}

func TestParseProgramSortsAndSkipsJunk(t *testing.T) {
	lines := parseProgram([]byte("30 C\nnot a line\n10 A\n\n20\n"))
	if got := string(formatProgram(lines)); got != "10 A\n20\n30 C\n" {
		t.Errorf("program = %q", got)
	}
}

func TestEditProgram(t *testing.T) {
	var lines []programLine
	lines = editProgram(lines, 20, "B")
	lines = editProgram(lines, 10, "A")
	lines = editProgram(lines, 30, "C")
	lines = editProgram(lines, 20, "BB")
	lines = editProgram(lines, 10, "")
	lines = editProgram(lines, 99, "")
	if got := string(formatProgram(lines)); got != "20 BB\n30 C\n" {
		t.Errorf("program = %q", got)
	}
}
