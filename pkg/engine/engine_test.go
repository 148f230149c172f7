package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/CTAG07/smartscript/pkg/smartscript"
)

// render parses and renders src with a fresh Context, returning the output.
func render(t *testing.T, e *Engine, src string, params map[string]string) (string, *Context, error) {
	t.Helper()
	doc, err := smartscript.Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	var buf bytes.Buffer
	ctx := NewContext(&buf, params)
	err = e.Render(doc, ctx)
	return buf.String(), ctx, err
}

func mustRender(t *testing.T, src string) string {
	t.Helper()
	out, _, err := render(t, New(), src, nil)
	if err != nil {
		t.Fatalf("Render(%q) failed: %v", src, err)
	}
	return out
}

func TestRender_Loops(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"Ascending", `{$FOR i 1 3$}{$=i$}{$END$}`, "123"},
		{"Descending", `{$FOR i 3 1 -1$}{$=i$}{$END$}`, "321"},
		{"Step", `{$FOR i 0 10 4$}{$= i " " $}{$END$}`, "0 4 8 "},
		{"EmptyRange", `a{$FOR i 3 1$}x{$END$}b`, "ab"},
		{"SingleIteration", `{$FOR i 5 5$}{$=i$}{$END$}`, "5"},
		{"FloatStep", `{$FOR x 0 1 0.5$}{$= x ";" $}{$END$}`, "0;0.5;1.0;"},
		{"TextBounds", `{$FOR i "1" "3"$}{$=i$}{$END$}`, "123"},
		{"VariableBound", `{$FOR n 1 3$}{$FOR i 1 n$}*{$END$}|{$END$}`, "*|**|***|"},
		{"Independent", `{$FOR i 1 2$}{$FOR j 1 2$}{$= i j$},{$END$}{$END$}`, "11,12,21,22,"},
		{"Shadowing", `{$FOR i 1 2$}[{$=i$}{$FOR i 7 8$}{$=i$}{$END$}{$=i$}]{$END$}`, "[1781][2782]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustRender(t, tt.src); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRender_LoopVariableScope(t *testing.T) {
	_, _, err := render(t, New(), `{$FOR i 1 2$}{$END$}{$=i$}`, nil)
	if !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("loop variable must not be visible after END, got %v", err)
	}
}

func TestRender_Echo(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`{$= 2 3 +$}`, "5"},
		{`{$= 2 3.0 +$}`, "5.0"},
		{`{$= "10" "3" /$}`, "3"},
		{`{$=$}`, ""},
		{`{$= 1 2 3 $}`, "123"},
		{`{$= "a" 1 2 * "b" $}`, "a2b"},
		{`{$= 2 3 4 * + $}`, "14"},
		{`{$= 2 3 ^ $}`, "8"},
		{`{$= "x" 1 2 @swap $}`, "x21"},
		{`{$= 7 @dup * $}`, "49"},
		{`{$= 90 @sin "0.000" @decfmt $}`, "1.000"},
		{`Escaping valid \\ \{$=$}`, `Escaping valid \ {$=$}`},
	}
	for _, tt := range tests {
		if got := mustRender(t, tt.src); got != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.src, tt.want, got)
		}
	}
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind error
	}{
		{"UnknownVariable", `{$= x $}`, ErrUnknownVariable},
		{"UnknownFunction", `{$= @nope $}`, ErrUnknownFunction},
		{"NotNumeric", `{$= "a" 1 + $}`, ErrNotNumeric},
		{"DivisionByZero", `{$= 1 0 / $}`, ErrDivisionByZero},
		{"ZeroStep", `{$FOR i 1 3 0$}x{$END$}`, ErrZeroStep},
		{"OperatorUnderflow", `{$= 1 + $}`, ErrStackUnderflow},
		{"FunctionUnderflow", `{$= @swap $}`, ErrStackUnderflow},
		{"NonNumericBound", `{$FOR i "a" 3$}x{$END$}`, ErrNotNumeric},
		{"Overflow", `{$= 9223372036854775807 1 + $}`, ErrOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := render(t, New(), tt.src, nil)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			var re *RuntimeError
			if !errors.As(err, &re) {
				t.Errorf("expected *RuntimeError, got %T", err)
			}
		})
	}
}

func TestRender_PartialOutputKept(t *testing.T) {
	out, _, err := render(t, New(), `before{$FOR i 1 3$}{$= 10 i 2 - / $},{$END$}`, nil)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	if out != "before-10," {
		t.Errorf("output written before the failure should stay, got %q", out)
	}
}

func TestRender_OverflowingCounterEndsLoop(t *testing.T) {
	got := mustRender(t, `{$FOR i 9223372036854775806 9223372036854775807$}.{$END$}`)
	if got != ".." {
		t.Errorf("expected two iterations, got %q", got)
	}
}

func TestRender_IterationLimit(t *testing.T) {
	e := New(WithMaxIterations(5))
	out, _, err := render(t, e, `{$FOR i 1 10$}{$=i$}{$END$}`, nil)
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
	if out != "12345" {
		t.Errorf("expected five iterations before the limit, got %q", out)
	}
}

func TestRender_CustomFunction(t *testing.T) {
	upper := func(m *Machine) error {
		v, err := m.Pop()
		if err != nil {
			return err
		}
		m.Push(Text(strings.ToUpper(v.String())))
		return nil
	}
	e := New(WithFunction("upper", upper))
	out, _, err := render(t, e, `{$= "abc" @upper $}`, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "ABC" {
		t.Errorf("expected ABC, got %q", out)
	}
	names := e.Functions()
	if len(names) != len(builtins())+1 {
		t.Errorf("expected %d functions, got %v", len(builtins())+1, names)
	}
}

func TestRender_ConcurrentRenders(t *testing.T) {
	doc, err := smartscript.Parse(`{$FOR i 1 50$}{$FOR j 1 i$}{$END$}{$= i$}{$END$}`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	want := mustRender(t, smartscript.Format(doc))
	e := New()
	errs := make(chan error, 8)
	for g := 0; g < 8; g++ {
		go func() {
			var buf bytes.Buffer
			if err := e.Render(doc, NewContext(&buf, nil)); err != nil {
				errs <- err
				return
			}
			if buf.String() != want {
				errs <- errors.New("concurrent render produced different output")
				return
			}
			errs <- nil
		}()
	}
	for g := 0; g < 8; g++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}

func BenchmarkRender(b *testing.B) {
	doc, err := smartscript.Parse(`{$FOR i 0 360 15$}sin({$=i$}) = {$= i @sin "0.000" @decfmt $}
{$END$}`)
	if err != nil {
		b.Fatalf("Parse failed: %v", err)
	}
	e := New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		_ = e.Render(doc, NewContext(&buf, nil))
	}
}
