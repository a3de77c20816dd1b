package console

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// FormatFloat renders f with about seven significant digits. Magnitudes
// below 1e-4 or above 1e6 use exponent form; otherwise trailing zeros of
// the fraction are dropped.
func FormatFloat(f float64) string {
	a := math.Abs(f)
	switch {
	case f == 0:
		return "0"
	case math.IsNaN(f) || math.IsInf(f, 0):
		return strconv.FormatFloat(f, 'g', -1, 64)
	case a < 0.0001 || a > 1000000:
		return strconv.FormatFloat(f, 'e', 6, 64)
	}

	decimals := 7 - (int(math.Floor(math.Log10(a))) + 1)
	s := strconv.FormatFloat(f, 'f', decimals, 64)
	if decimals > 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

// OutputInt writes n in decimal and returns the number of bytes written.
func (t *Terminal) OutputInt(n int64) int {
	s := strconv.FormatInt(n, 10)
	t.PutString(s)
	return len(s)
}

// OutputFloat writes f formatted by FormatFloat.
func (t *Terminal) OutputFloat(f float64) {
	t.PutString(FormatFloat(f))
}

// OutputFreeMem starts a paused new line and reports n free bytes.
func (t *Terminal) OutputFreeMem(ctx context.Context, n int) error {
	if err := t.NewLinePaused(ctx); err != nil {
		return err
	}
	t.OutputInt(int64(n))
	t.PutString(" bytes free")
	return nil
}
