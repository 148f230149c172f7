package smartscript

import (
	"errors"
	"reflect"
	"testing"
)

const sampleDoc = `This is sample text.
{$ FOR i 1 10 1 $}
 This is {$= i $}-th time this message is generated.
{$END$}
{$FOR i 0 10 2 $}
 sin({$=i$}^2) = {$= i i * @sin "0.000" @decfmt $}
{$END$}`

func mustParse(t *testing.T, src string) *DocumentNode {
	t.Helper()
	doc, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return doc
}

func TestParse_Structure(t *testing.T) {
	doc := mustParse(t, sampleDoc)
	if len(doc.Nodes) != 4 {
		t.Fatalf("expected 4 top-level nodes, got %d:\n%s", len(doc.Nodes), Dump(doc))
	}

	first, ok := doc.Nodes[1].(*ForLoopNode)
	if !ok {
		t.Fatalf("expected ForLoopNode, got %T", doc.Nodes[1])
	}
	if first.Variable.Name != "i" || first.Start != (IntegerElement{Value: 1}) ||
		first.End != (IntegerElement{Value: 10}) || first.Step != (IntegerElement{Value: 1}) {
		t.Errorf("unexpected loop header: %+v", first)
	}
	if len(first.Body) != 3 {
		t.Errorf("expected 3 body nodes, got %d", len(first.Body))
	}

	second := doc.Nodes[3].(*ForLoopNode)
	echo := second.Body[3].(*EchoNode)
	want := []Element{
		VariableElement{Name: "i"},
		VariableElement{Name: "i"},
		OperatorElement{Symbol: "*"},
		FunctionElement{Name: "sin"},
		StringElement{Value: "0.000"},
		FunctionElement{Name: "decfmt"},
	}
	if !reflect.DeepEqual(echo.Elements, want) {
		t.Errorf("unexpected echo elements %v", echo.Elements)
	}
}

func TestParse_OptionalStepAndCase(t *testing.T) {
	doc := mustParse(t, `{$ for x "1" y $}{$end$}{$FoR z -1 1.5 -0.5$}{$EnD$}`)
	loop := doc.Nodes[0].(*ForLoopNode)
	if loop.Step != nil {
		t.Errorf("expected nil step, got %v", loop.Step)
	}
	if loop.Start != (StringElement{Value: "1"}) || loop.End != (VariableElement{Name: "y"}) {
		t.Errorf("unexpected loop bounds %v %v", loop.Start, loop.End)
	}
	if loop.Body == nil || len(loop.Body) != 0 {
		t.Errorf("expected empty non-nil body, got %#v", loop.Body)
	}
	if doc.Nodes[1].(*ForLoopNode).Step != (FloatElement{Value: -0.5}) {
		t.Errorf("unexpected step %v", doc.Nodes[1].(*ForLoopNode).Step)
	}
}

func TestParse_Nesting(t *testing.T) {
	doc := mustParse(t, `{$FOR i 1 2$}a{$FOR j 1 2$}b{$END$}c{$END$}d`)
	outer := doc.Nodes[0].(*ForLoopNode)
	if len(doc.Nodes) != 2 || len(outer.Body) != 3 {
		t.Fatalf("unexpected shape:\n%s", Dump(doc))
	}
	inner := outer.Body[1].(*ForLoopNode)
	if inner.Variable.Name != "j" || inner.Body[0].(*TextNode).Text != "b" {
		t.Errorf("unexpected inner loop:\n%s", Dump(doc))
	}
	if doc.Nodes[1].(*TextNode).Text != "d" {
		t.Errorf("text after the loop should belong to the document")
	}
}

func TestParse_EmptyEcho(t *testing.T) {
	doc := mustParse(t, `{$=$}`)
	echo := doc.Nodes[0].(*EchoNode)
	if echo.Elements == nil || len(echo.Elements) != 0 {
		t.Errorf("expected empty element list, got %#v", echo.Elements)
	}
	if echo.Children() != nil {
		t.Error("leaf nodes should have no children")
	}
	if doc := mustParse(t, ""); doc.Nodes == nil {
		t.Error("empty document should have a non-nil child list")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind error
	}{
		{"ForOneArgument", `{$FOR i 1$}{$END$}`, ErrWrongArgumentCount},
		{"ForFiveArguments", `{$FOR i 1 2 3 4$}{$END$}`, ErrWrongArgumentCount},
		{"ForNoVariable", `{$FOR$}{$END$}`, ErrWrongArgumentCount},
		{"ForNumberVariable", `{$FOR 1 1 2$}{$END$}`, ErrInvalidTagContent},
		{"ForFunction", `{$FOR i 1 @sin 2$}{$END$}`, ErrInvalidTagContent},
		{"ForOperator", `{$FOR i 1 + 2$}{$END$}`, ErrInvalidTagContent},
		{"UnmatchedEnd", `text{$END$}`, ErrUnmatchedEnd},
		{"UnclosedFor", `{$FOR i 1 2$}body`, ErrUnclosedForLoop},
		{"UnknownTag", `{$IF x$}`, ErrUnknownTag},
		{"EmptyTag", `{$$}`, ErrInvalidTagContent},
		{"TagNotNamed", `{$"x"$}`, ErrInvalidTagContent},
		{"EndWithArgs", `{$FOR i 1 2$}{$END i$}`, ErrInvalidTagContent},
		{"LexicalError", `a\x`, ErrInvalidEscape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewParser(tt.src)
			if p != nil {
				t.Error("a failed parse must not return a parser")
			}
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParse_Idempotent(t *testing.T) {
	a := mustParse(t, sampleDoc)
	b := mustParse(t, sampleDoc)
	if a == b {
		t.Fatal("expected two distinct trees")
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("parsing the same text twice should give equal trees")
	}
}

func TestFunctions(t *testing.T) {
	doc := mustParse(t, `{$= @dup @sin $}{$FOR i 1 2$}{$= "x" @dup @decfmt $}{$END$}`)
	want := []string{"dup", "sin", "decfmt"}
	if got := Functions(doc); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func BenchmarkParse(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Parse(sampleDoc)
	}
}
