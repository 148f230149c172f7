package engine

import (
	"errors"
	"math"
	"testing"
)

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Empty(), ""},
		{Integer(0), "0"},
		{Integer(-42), "-42"},
		{Float(5), "5.0"},
		{Float(0.25), "0.25"},
		{Float(-1.5), "-1.5"},
		{Text("abc"), "abc"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("%v: expected %q, got %q", tt.v.Kind(), tt.want, got)
		}
	}
}

func TestValue_Numeric(t *testing.T) {
	tests := []struct {
		in   Value
		kind Kind
		want string
	}{
		{Empty(), KindInteger, "0"},
		{Text("17"), KindInteger, "17"},
		{Text("-3"), KindInteger, "-3"},
		{Text("2.5"), KindFloat, "2.5"},
		{Text("1e3"), KindFloat, "1000.0"},
		{Float(1.5), KindFloat, "1.5"},
	}
	for _, tt := range tests {
		got, err := tt.in.Numeric()
		if err != nil {
			t.Errorf("Numeric(%q) failed: %v", tt.in, err)
			continue
		}
		if got.Kind() != tt.kind || got.String() != tt.want {
			t.Errorf("Numeric(%q): expected %v %s, got %v %s", tt.in, tt.kind, tt.want, got.Kind(), got)
		}
	}

	for _, bad := range []string{"", "abc", "NaN", "Inf", "0x10", "1_000", "1 2", ".", "-"} {
		if _, err := Text(bad).Numeric(); !errors.Is(err, ErrNotNumeric) {
			t.Errorf("Numeric(%q): expected ErrNotNumeric, got %v", bad, err)
		}
	}
}

func TestValue_Arithmetic(t *testing.T) {
	tests := []struct {
		op   string
		a, b Value
		want Value
	}{
		{"+", Integer(2), Integer(3), Integer(5)},
		{"+", Integer(2), Float(3), Float(5)},
		{"+", Empty(), Integer(4), Integer(4)},
		{"-", Text("10"), Integer(4), Integer(6)},
		{"*", Float(1.5), Integer(2), Float(3)},
		{"/", Text("10"), Text("3"), Integer(3)},
		{"/", Integer(-7), Integer(2), Integer(-3)},
		{"/", Integer(7), Float(2), Float(3.5)},
		{"^", Integer(2), Integer(10), Integer(1024)},
		{"^", Integer(2), Integer(0), Integer(1)},
		{"^", Integer(2), Integer(-1), Float(0.5)},
		{"^", Float(4), Float(0.5), Float(2)},
	}
	for _, tt := range tests {
		got, err := Apply(tt.op, tt.a, tt.b)
		if err != nil {
			t.Errorf("%s %s %s failed: %v", tt.a, tt.op, tt.b, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %s %s: expected %v %s, got %v %s", tt.a, tt.op, tt.b, tt.want.Kind(), tt.want, got.Kind(), got)
		}
	}
}

func TestValue_ArithmeticErrors(t *testing.T) {
	tests := []struct {
		name string
		op   string
		a, b Value
		kind error
	}{
		{"DivIntZero", "/", Integer(1), Integer(0), ErrDivisionByZero},
		{"DivFloatZero", "/", Float(1), Float(0), ErrDivisionByZero},
		{"DivEmpty", "/", Integer(1), Empty(), ErrDivisionByZero},
		{"AddOverflow", "+", Integer(math.MaxInt64), Integer(1), ErrOverflow},
		{"SubOverflow", "-", Integer(math.MinInt64), Integer(1), ErrOverflow},
		{"MulOverflow", "*", Integer(math.MaxInt64 / 2), Integer(3), ErrOverflow},
		{"MulMinusOne", "*", Integer(math.MinInt64), Integer(-1), ErrOverflow},
		{"DivOverflow", "/", Integer(math.MinInt64), Integer(-1), ErrOverflow},
		{"PowOverflow", "^", Integer(10), Integer(19), ErrOverflow},
		{"NotNumeric", "+", Text("x"), Integer(1), ErrNotNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Apply(tt.op, tt.a, tt.b); !errors.Is(err, tt.kind) {
				t.Errorf("expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{Integer(1), Integer(2), -1},
		{Float(2), Integer(2), 0},
		{Text("3"), Float(2.5), 1},
		{Empty(), Integer(0), 0},
	}
	for _, tt := range tests {
		got, err := Compare(tt.a, tt.b)
		if err != nil || got != tt.want {
			t.Errorf("Compare(%s, %s): expected %d, got %d (%v)", tt.a, tt.b, tt.want, got, err)
		}
	}
}
