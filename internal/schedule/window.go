package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// HourWindow builds the hour sub-expression for an "active hours" window.
//
// A window crossing midnight (from > to) is encoded as two ranges,
// "from-23,0-to". from == to == 0 means all hours and is encoded as "*".
// Any other from == to is ambiguous (a zero-length and a full-day window are
// indistinguishable in the simplified editor) and is rejected.
func HourWindow(from, to int) (SubExpr, error) {
	if from < MinHour || from > MaxHour {
		return SubExpr{}, fmt.Errorf("window start %d out of range [%d,%d]", from, MinHour, MaxHour)
	}
	if to < MinHour || to > MaxHour {
		return SubExpr{}, fmt.Errorf("window end %d out of range [%d,%d]", to, MinHour, MaxHour)
	}
	switch {
	case from == 0 && to == 0:
		return All(MinHour, MaxHour), nil
	case from == to:
		return SubExpr{}, fmt.Errorf("ambiguous window: from == to == %d", from)
	case from < to:
		return Range(MinHour, MaxHour, from, to)
	default:
		return Parse(fmt.Sprintf("%d-23,0-%d", from, to), MinHour, MaxHour)
	}
}

// Window attempts to recover the simplified from/to hour window from an hour
// sub-expression. It only succeeds for the forms HourWindow produces ("*",
// "A-B", "A-23,0-B"); anything else (steps, explicit lists like "6,18")
// cannot be reconstructed into from/to fields and reports ok == false, in
// which case callers keep the raw text as a read-only advanced expression
// instead of silently rewriting it.
func (x SubExpr) Window() (from, to int, ok bool) {
	text := x.String()
	if text == "*" {
		return 0, 0, true
	}
	parts := strings.Split(text, ",")
	switch len(parts) {
	case 1:
		a, b, ok := splitRange(parts[0])
		return a, b, ok
	case 2:
		a, b, ok1 := splitRange(parts[0])
		c, d, ok2 := splitRange(parts[1])
		if ok1 && ok2 && b == MaxHour && c == MinHour && a > d {
			return a, d, true
		}
	}
	return 0, 0, false
}

func splitRange(s string) (a, b int, ok bool) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return 0, 0, false
	}
	a, err1 := strconv.Atoi(lo)
	b, err2 := strconv.Atoi(hi)
	if err1 != nil || err2 != nil || a > b {
		return 0, 0, false
	}
	return a, b, true
}
