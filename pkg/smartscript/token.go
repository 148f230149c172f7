package smartscript

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TokenKind identifies the shape of a Token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenText
	TokenTagStart
	TokenTagEnd
	TokenVariable
	TokenNumber
	TokenString
	TokenFunction
	TokenOperator
)

var tokenKindNames = [...]string{
	TokenEOF:      "EOF",
	TokenText:     "Text",
	TokenTagStart: "TagStart",
	TokenTagEnd:   "TagEnd",
	TokenVariable: "Variable",
	TokenNumber:   "Number",
	TokenString:   "String",
	TokenFunction: "Function",
	TokenOperator: "Operator",
}

func (k TokenKind) String() string {
	if k >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return "TokenKind(" + strconv.Itoa(int(k)) + ")"
}

// Token is one lexical unit. Text tokens carry their unescaped text in Text;
// tag-content tokens carry an Element. Offset is the byte offset of the
// token's first character in the source.
type Token struct {
	Kind    TokenKind
	Text    string
	Element Element
	Offset  int
}

func (t Token) String() string {
	switch {
	case t.Kind == TokenText:
		return fmt.Sprintf("Text(%q)", t.Text)
	case t.Element != nil:
		return t.Kind.String() + "(" + t.Element.Text() + ")"
	}
	return t.Kind.String()
}

// Element is the payload of a tag-content token and the unit of EchoNode
// expressions. Text returns the canonical source form, which lexes back to
// an equal Element.
type Element interface {
	Text() string
	String() string
	element()
}

// VariableElement names a variable. The echo tag name "=" is also lexed as a
// variable.
type VariableElement struct {
	Name string
}

// FunctionElement names a library function, written with a leading '@'.
type FunctionElement struct {
	Name string
}

// OperatorElement is one of + - * / ^.
type OperatorElement struct {
	Symbol string
}

// StringElement is a string constant, already unescaped.
type StringElement struct {
	Value string
}

type IntegerElement struct {
	Value int64
}

type FloatElement struct {
	Value float64
}

func (VariableElement) element() {}
func (FunctionElement) element() {}
func (OperatorElement) element() {}
func (StringElement) element()   {}
func (IntegerElement) element()  {}
func (FloatElement) element()    {}

func (e VariableElement) Text() string { return e.Name }
func (e FunctionElement) Text() string { return "@" + e.Name }
func (e OperatorElement) Text() string { return e.Symbol }
func (e IntegerElement) Text() string  { return strconv.FormatInt(e.Value, 10) }
func (e FloatElement) Text() string    { return FormatFloat(e.Value) }

var stringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (e StringElement) Text() string { return `"` + stringEscaper.Replace(e.Value) + `"` }

func (e VariableElement) String() string { return "variable " + e.Name }
func (e FunctionElement) String() string { return "function " + e.Name }
func (e OperatorElement) String() string { return "operator " + e.Symbol }
func (e StringElement) String() string   { return "string " + strconv.Quote(e.Value) }
func (e IntegerElement) String() string  { return "integer " + e.Text() }
func (e FloatElement) String() string    { return "float " + e.Text() }

// FormatFloat renders f in plain decimal notation, always with a fractional
// part, so the result lexes back as a float: 5 becomes "5.0".
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
