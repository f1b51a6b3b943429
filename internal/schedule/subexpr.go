package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Field ranges for the three cron-style positions.
const (
	MinSecond, MaxSecond = 0, 59
	MinMinute, MaxMinute = 0, 59
	MinHour, MaxHour     = 0, 23
)

// SubExpr is one parsed cron-style sub-expression over an integer range
// [lo, hi]. The zero value is invalid; construct via Parse or one of the
// typed constructors.
//
// Grammar (terms joined by commas):
//
//	*        every value in range
//	*/N      lo, lo+N, lo+2N, ... <= hi
//	A-B      A..B inclusive, A <= B
//	A-B/N    stepped range
//	A        exact value
//
// A logical range that crosses the top of the domain is written as two
// comma-joined ranges, e.g. hours 22 through 2 as "22-23,0-2".
type SubExpr struct {
	text   string
	lo, hi int
	set    []bool
}

// Parse parses text as a sub-expression over [lo, hi]. It rejects values
// outside the range, non-positive steps, and malformed syntax.
func Parse(text string, lo, hi int) (SubExpr, error) {
	if hi < lo {
		return SubExpr{}, fmt.Errorf("invalid range [%d,%d]", lo, hi)
	}
	s := strings.TrimSpace(text)
	if s == "" {
		return SubExpr{}, fmt.Errorf("empty sub-expression")
	}

	x := SubExpr{text: s, lo: lo, hi: hi, set: make([]bool, hi-lo+1)}
	for _, term := range strings.Split(s, ",") {
		if err := x.applyTerm(strings.TrimSpace(term)); err != nil {
			return SubExpr{}, fmt.Errorf("sub-expression %q: %w", text, err)
		}
	}
	return x, nil
}

func (x *SubExpr) applyTerm(term string) error {
	if term == "" {
		return fmt.Errorf("empty term")
	}

	body, step := term, 1
	if i := strings.IndexByte(term, '/'); i >= 0 {
		body = term[:i]
		n, err := strconv.Atoi(term[i+1:])
		if err != nil {
			return fmt.Errorf("bad step %q", term[i+1:])
		}
		if n < 1 {
			return fmt.Errorf("step must be >= 1, got %d", n)
		}
		step = n
	}

	var a, b int
	switch {
	case body == "*":
		a, b = x.lo, x.hi
	case strings.ContainsRune(body, '-'):
		parts := strings.SplitN(body, "-", 2)
		var err error
		if a, err = x.value(parts[0]); err != nil {
			return err
		}
		if b, err = x.value(parts[1]); err != nil {
			return err
		}
		if a > b {
			return fmt.Errorf("range %d-%d is inverted (wraparound must be written as two ranges)", a, b)
		}
	default:
		v, err := x.value(body)
		if err != nil {
			return err
		}
		a, b = v, v
	}

	for v := a; v <= b; v += step {
		x.set[v-x.lo] = true
	}
	return nil
}

func (x *SubExpr) value(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("bad value %q", s)
	}
	if v < x.lo || v > x.hi {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", v, x.lo, x.hi)
	}
	return v, nil
}

// ---- Constructors (machine-generated expressions; String() round-trips) ----

// All matches every value in [lo, hi].
func All(lo, hi int) SubExpr {
	x, _ := Parse("*", lo, hi)
	return x
}

// Step builds "*/n" over [lo, hi].
func Step(lo, hi, n int) (SubExpr, error) {
	return Parse(fmt.Sprintf("*/%d", n), lo, hi)
}

// Range builds "a-b" over [lo, hi].
func Range(lo, hi, a, b int) (SubExpr, error) {
	return Parse(fmt.Sprintf("%d-%d", a, b), lo, hi)
}

// Values builds an explicit comma list over [lo, hi].
func Values(lo, hi int, vals ...int) (SubExpr, error) {
	if len(vals) == 0 {
		return SubExpr{}, fmt.Errorf("values list is empty")
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return Parse(strings.Join(parts, ","), lo, hi)
}

// ---- Queries ----

// IsZero reports whether the sub-expression was never constructed.
func (x SubExpr) IsZero() bool { return x.set == nil }

// Bounds returns the [lo, hi] range the expression was parsed over.
func (x SubExpr) Bounds() (lo, hi int) { return x.lo, x.hi }

// Matches reports whether v satisfies the sub-expression.
func (x SubExpr) Matches(v int) bool {
	if x.set == nil || v < x.lo || v > x.hi {
		return false
	}
	return x.set[v-x.lo]
}

// Expand enumerates matching values in ascending order. A positive max caps
// the result (preview/sample use); max <= 0 enumerates everything, which is
// what slot generation and match tests rely on.
func (x SubExpr) Expand(max int) []int {
	if x.set == nil {
		return nil
	}
	out := make([]int, 0, len(x.set))
	for i, ok := range x.set {
		if !ok {
			continue
		}
		out = append(out, x.lo+i)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// String returns the text the expression was constructed from. For
// constructor-built expressions this is canonical and Parse(String()) yields
// an equal expression; hand-written text is preserved as-is.
func (x SubExpr) String() string { return x.text }

// Equal reports whether two sub-expressions match the same value set over the
// same range.
func (x SubExpr) Equal(y SubExpr) bool {
	if x.lo != y.lo || x.hi != y.hi || len(x.set) != len(y.set) {
		return false
	}
	for i := range x.set {
		if x.set[i] != y.set[i] {
			return false
		}
	}
	return true
}
