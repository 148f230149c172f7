package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/CTAG07/smartscript/pkg/smartscript"
)

// Kind is the dynamic type of a Value.
type Kind int

const (
	KindEmpty Kind = iota
	KindInteger
	KindFloat
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	}
	return "empty"
}

// Value is a dynamically typed cell on the engine's value stack. The zero
// Value is Empty.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

func Empty() Value            { return Value{} }
func Integer(i int64) Value   { return Value{kind: KindInteger, i: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func Text(s string) Value     { return Value{kind: KindText, s: s} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// String returns the canonical text of v: decimal for numbers, with floats
// always carrying a fractional part, the text itself for Text, and "" for
// Empty.
func (v Value) String() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return smartscript.FormatFloat(v.f)
	case KindText:
		return v.s
	}
	return ""
}

// ElementValue converts a literal element to a Value. Variables, functions
// and operators have no literal value.
func ElementValue(el smartscript.Element) (Value, bool) {
	switch e := el.(type) {
	case smartscript.IntegerElement:
		return Integer(e.Value), true
	case smartscript.FloatElement:
		return Float(e.Value), true
	case smartscript.StringElement:
		return Text(e.Value), true
	}
	return Value{}, false
}

// Numeric returns v as an Integer or Float. Empty is Integer 0; Text must be
// a complete decimal integer or float literal.
func (v Value) Numeric() (Value, error) {
	switch v.kind {
	case KindInteger, KindFloat:
		return v, nil
	case KindEmpty:
		return Integer(0), nil
	}
	if n, ok := parseNumber(v.s); ok {
		return n, nil
	}
	return Value{}, runtimeErr(ErrNotNumeric, "%q", v.s)
}

// parseNumber accepts [+-]digits[.digits][(e|E)[+-]digits] and nothing else,
// so "NaN", "Inf" and hex forms stay text.
func parseNumber(s string) (Value, bool) {
	if s == "" || strings.Trim(s, "+-.eE0123456789") != "" {
		return Value{}, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer(i), true
	}
	hasDigit := strings.ContainsAny(s, "0123456789")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !hasDigit {
		return Value{}, false
	}
	return Float(f), true
}

func (v Value) float() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

func (v Value) isZero() bool {
	if v.kind == KindInteger {
		return v.i == 0
	}
	return v.f == 0
}

// operands coerces both sides and reports whether integer arithmetic
// applies.
func operands(a, b Value) (Value, Value, bool, error) {
	x, err := a.Numeric()
	if err != nil {
		return x, b, false, err
	}
	y, err := b.Numeric()
	if err != nil {
		return x, y, false, err
	}
	return x, y, x.kind == KindInteger && y.kind == KindInteger, nil
}

func overflow(op string, x, y int64) error {
	return runtimeErr(ErrOverflow, "%d %s %d", x, op, y)
}

func Add(a, b Value) (Value, error) {
	x, y, ints, err := operands(a, b)
	if err != nil {
		return Value{}, err
	}
	if !ints {
		return Float(x.float() + y.float()), nil
	}
	r := x.i + y.i
	if (x.i > 0 && y.i > 0 && r < 0) || (x.i < 0 && y.i < 0 && r >= 0) {
		return Value{}, overflow("+", x.i, y.i)
	}
	return Integer(r), nil
}

func Sub(a, b Value) (Value, error) {
	x, y, ints, err := operands(a, b)
	if err != nil {
		return Value{}, err
	}
	if !ints {
		return Float(x.float() - y.float()), nil
	}
	r := x.i - y.i
	if (x.i >= 0 && y.i < 0 && r < 0) || (x.i < 0 && y.i > 0 && r >= 0) {
		return Value{}, overflow("-", x.i, y.i)
	}
	return Integer(r), nil
}

func Mul(a, b Value) (Value, error) {
	x, y, ints, err := operands(a, b)
	if err != nil {
		return Value{}, err
	}
	if !ints {
		return Float(x.float() * y.float()), nil
	}
	r, ok := mulInt(x.i, y.i)
	if !ok {
		return Value{}, overflow("*", x.i, y.i)
	}
	return Integer(r), nil
}

func mulInt(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	r := x * y
	if r/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	return r, true
}

// Div truncates toward zero when both operands are integers.
func Div(a, b Value) (Value, error) {
	x, y, ints, err := operands(a, b)
	if err != nil {
		return Value{}, err
	}
	if y.isZero() {
		return Value{}, runtimeErr(ErrDivisionByZero, "%s / %s", x, y)
	}
	if !ints {
		return Float(x.float() / y.float()), nil
	}
	if x.i == math.MinInt64 && y.i == -1 {
		return Value{}, overflow("/", x.i, y.i)
	}
	return Integer(x.i / y.i), nil
}

// Pow stays integral for an integer base and a non-negative integer
// exponent; anything else is computed in floating point.
func Pow(a, b Value) (Value, error) {
	x, y, ints, err := operands(a, b)
	if err != nil {
		return Value{}, err
	}
	if !ints || y.i < 0 {
		return Float(math.Pow(x.float(), y.float())), nil
	}
	result, base, exp := int64(1), x.i, y.i
	for exp > 0 {
		var ok bool
		if exp&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return Value{}, overflow("^", x.i, y.i)
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt(base, base); !ok {
				return Value{}, overflow("^", x.i, y.i)
			}
		}
	}
	return Integer(result), nil
}

// Compare orders a and b numerically, returning -1, 0 or +1.
func Compare(a, b Value) (int, error) {
	x, y, ints, err := operands(a, b)
	if err != nil {
		return 0, err
	}
	if ints {
		switch {
		case x.i < y.i:
			return -1, nil
		case x.i > y.i:
			return 1, nil
		}
		return 0, nil
	}
	xf, yf := x.float(), y.float()
	switch {
	case xf < yf:
		return -1, nil
	case xf > yf:
		return 1, nil
	}
	return 0, nil
}

// Apply evaluates a binary operator symbol.
func Apply(op string, a, b Value) (Value, error) {
	switch op {
	case "+":
		return Add(a, b)
	case "-":
		return Sub(a, b)
	case "*":
		return Mul(a, b)
	case "/":
		return Div(a, b)
	case "^":
		return Pow(a, b)
	}
	return Value{}, runtimeErr(ErrUnknownFunction, "operator %q", op)
}
