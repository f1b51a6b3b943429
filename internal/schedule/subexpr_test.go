package schedule

import (
	"reflect"
	"testing"
)

func TestParseExpand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		text   string
		lo, hi int
		want   []int
	}{
		{name: "wildcard hours", text: "*", lo: 0, hi: 23, want: seq(0, 23, 1)},
		{name: "step fifteen", text: "*/15", lo: 0, hi: 59, want: []int{0, 15, 30, 45}},
		{name: "step uneven", text: "*/17", lo: 0, hi: 59, want: []int{0, 17, 34, 51}},
		{name: "range", text: "8-11", lo: 0, hi: 23, want: []int{8, 9, 10, 11}},
		{name: "stepped range", text: "10-20/5", lo: 0, hi: 59, want: []int{10, 15, 20}},
		{name: "wraparound", text: "22-23,0-2", lo: 0, hi: 23, want: []int{0, 1, 2, 22, 23}},
		{name: "list", text: "6,18", lo: 0, hi: 23, want: []int{6, 18}},
		{name: "single", text: "30", lo: 0, hi: 59, want: []int{30}},
		{name: "unordered list", text: "45,0,30,15", lo: 0, hi: 59, want: []int{0, 15, 30, 45}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			x, err := Parse(tt.text, tt.lo, tt.hi)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.text, err)
			}
			got := x.Expand(0)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Expand(0) = %v, want %v", got, tt.want)
			}
			for _, v := range got {
				if !x.Matches(v) {
					t.Fatalf("Matches(%d) = false for expanded value", v)
				}
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		text   string
		lo, hi int
	}{
		{name: "empty", text: "", lo: 0, hi: 59},
		{name: "out of range", text: "60", lo: 0, hi: 59},
		{name: "hour out of range", text: "24", lo: 0, hi: 23},
		{name: "zero step", text: "*/0", lo: 0, hi: 59},
		{name: "negative step", text: "*/-5", lo: 0, hi: 59},
		{name: "inverted range", text: "20-10", lo: 0, hi: 59},
		{name: "garbage", text: "abc", lo: 0, hi: 59},
		{name: "trailing comma", text: "1,2,", lo: 0, hi: 59},
		{name: "range end out of range", text: "50-70", lo: 0, hi: 59},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.text, tt.lo, tt.hi); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tt.text)
			}
		})
	}
}

func TestExpandCap(t *testing.T) {
	t.Parallel()
	x, err := Parse("*", 0, 59)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	got := x.Expand(5)
	if !reflect.DeepEqual(got, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("Expand(5) = %v", got)
	}
}

func TestMatchesOutOfBounds(t *testing.T) {
	t.Parallel()
	x, err := Parse("*", 0, 23)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if x.Matches(-1) || x.Matches(24) {
		t.Fatal("Matches accepted out-of-range value")
	}
}

func TestConstructorRoundTrip(t *testing.T) {
	t.Parallel()
	step, err := Step(0, 59, 15)
	if err != nil {
		t.Fatalf("Step error: %v", err)
	}
	vals, err := Values(0, 23, 8, 12, 20)
	if err != nil {
		t.Fatalf("Values error: %v", err)
	}
	rng, err := Range(0, 23, 6, 18)
	if err != nil {
		t.Fatalf("Range error: %v", err)
	}
	wrap, err := HourWindow(22, 2)
	if err != nil {
		t.Fatalf("HourWindow error: %v", err)
	}

	for _, x := range []SubExpr{All(0, 59), step, vals, rng, wrap} {
		lo, hi := x.Bounds()
		back, err := Parse(x.String(), lo, hi)
		if err != nil {
			t.Fatalf("re-Parse(%q) error: %v", x.String(), err)
		}
		if !back.Equal(x) {
			t.Fatalf("round trip of %q changed the value set", x.String())
		}
	}
}

func seq(lo, hi, step int) []int {
	var out []int
	for v := lo; v <= hi; v += step {
		out = append(out, v)
	}
	return out
}
