package monitor

import (
	"sort"
	"strconv"
	"strings"
)

// MaxLineNumber is the largest accepted program line number.
const MaxLineNumber = 65535

type programLine struct {
	num  int
	text string
}

// parseProgram splits an image of newline-terminated "NUM TEXT" lines.
// Lines without a valid number are skipped.
func parseProgram(image []byte) []programLine {
	var lines []programLine
	for _, raw := range strings.Split(string(image), "\n") {
		if raw == "" {
			continue
		}
		num, text, ok := splitLineNumber(raw)
		if !ok {
			continue
		}
		lines = append(lines, programLine{num: num, text: text})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].num < lines[j].num })
	return lines
}

func formatProgram(lines []programLine) []byte {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(strconv.Itoa(l.num))
		if l.text != "" {
			sb.WriteByte(' ')
			sb.WriteString(l.text)
		}
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// splitLineNumber separates a leading line number from the rest of s.
func splitLineNumber(s string) (num int, rest string, ok bool) {
	s = strings.TrimLeft(s, " ")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, s, false
	}
	num, err := strconv.Atoi(s[:end])
	if err != nil || num > MaxLineNumber {
		return 0, s, false
	}
	return num, strings.TrimSpace(s[end:]), true
}

// editProgram replaces, inserts or (with empty text) deletes line num.
func editProgram(lines []programLine, num int, text string) []programLine {
	i := sort.Search(len(lines), func(i int) bool { return lines[i].num >= num })
	exists := i < len(lines) && lines[i].num == num
	switch {
	case text == "" && exists:
		return append(lines[:i], lines[i+1:]...)
	case text == "":
		return lines
	case exists:
		lines[i].text = text
		return lines
	}
	lines = append(lines, programLine{})
	copy(lines[i+1:], lines[i:])
	lines[i] = programLine{num: num, text: text}
	return lines
}
