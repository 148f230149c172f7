package smartscript

import (
	"errors"
	"strings"

	"github.com/ahrtr/gocontainer/stack"
)

// Parser builds a document tree from SmartScript source. Construction
// parses eagerly, so a *Parser always holds a complete document.
type Parser struct {
	lexer *Lexer
	doc   *DocumentNode
	open  stack.Interface
}

// openNode is a node that currently receives children, together with the
// offset of the tag that opened it.
type openNode struct {
	node   Node
	offset int
}

// NewParser parses text. It fails with a *ParseError if text is not a valid
// document.
func NewParser(text string) (*Parser, error) {
	p := &Parser{
		lexer: NewLexer(text),
		doc:   &DocumentNode{Nodes: []Node{}},
		open:  stack.New(),
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p, nil
}

// Document returns the parsed document.
func (p *Parser) Document() *DocumentNode { return p.doc }

// Parse is shorthand for NewParser(text) followed by Document.
func Parse(text string) (*DocumentNode, error) {
	p, err := NewParser(text)
	if err != nil {
		return nil, err
	}
	return p.Document(), nil
}

func (p *Parser) next() (Token, error) {
	tok, err := p.lexer.NextToken()
	if err != nil {
		pe := &ParseError{Kind: ErrUnexpectedToken, Err: err}
		var le *LexError
		if errors.As(err, &le) {
			pe.Kind, pe.Offset = le.Kind, le.Offset
		}
		return tok, pe
	}
	return tok, nil
}

func fail(kind error, tok Token) *ParseError {
	return &ParseError{Kind: kind, Token: tok, Offset: tok.Offset}
}

// appendChild adds n to the innermost open node.
func (p *Parser) appendChild(n Node) {
	switch parent := p.open.Peek().(openNode).node.(type) {
	case *DocumentNode:
		parent.Nodes = append(parent.Nodes, n)
	case *ForLoopNode:
		parent.Body = append(parent.Body, n)
	}
}

func (p *Parser) parse() error {
	p.open.Push(openNode{node: p.doc})
	for {
		tok, err := p.next()
		if err != nil {
			return err
		}
		switch tok.Kind {
		case TokenEOF:
			if p.open.Size() > 1 {
				top := p.open.Peek().(openNode)
				return &ParseError{Kind: ErrUnclosedForLoop, Token: tok, Offset: top.offset}
			}
			return nil
		case TokenText:
			p.appendChild(&TextNode{Text: tok.Text})
		case TokenTagStart:
			if err := p.parseTag(tok); err != nil {
				return err
			}
		default:
			return fail(ErrUnexpectedToken, tok)
		}
	}
}

func (p *Parser) parseTag(start Token) error {
	name, err := p.next()
	if err != nil {
		return err
	}
	if name.Kind != TokenVariable {
		return &ParseError{Kind: ErrInvalidTagContent, Token: name, Offset: start.Offset}
	}

	tag := name.Element.(VariableElement).Name
	switch {
	case tag == "=":
		return p.parseEcho()
	case strings.EqualFold(tag, "FOR"):
		return p.parseFor(start)
	case strings.EqualFold(tag, "END"):
		tok, err := p.next()
		if err != nil {
			return err
		}
		if tok.Kind != TokenTagEnd {
			return fail(ErrInvalidTagContent, tok)
		}
		if p.open.Size() <= 1 {
			return &ParseError{Kind: ErrUnmatchedEnd, Token: name, Offset: start.Offset}
		}
		p.open.Pop()
		return nil
	}
	return &ParseError{Kind: ErrUnknownTag, Token: name, Offset: start.Offset}
}

// tagElements reads elements up to and including the closing TagEnd,
// rejecting any element accept refuses.
func (p *Parser) tagElements(accept func(TokenKind) bool) ([]Element, error) {
	elements := []Element{}
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.Kind == TokenTagEnd {
			return elements, nil
		}
		if tok.Element == nil || !accept(tok.Kind) {
			return nil, fail(ErrInvalidTagContent, tok)
		}
		if v, ok := tok.Element.(VariableElement); ok && v.Name == "=" {
			return nil, fail(ErrInvalidTagContent, tok)
		}
		elements = append(elements, tok.Element)
	}
}

func (p *Parser) parseEcho() error {
	elements, err := p.tagElements(func(TokenKind) bool { return true })
	if err != nil {
		return err
	}
	p.appendChild(&EchoNode{Elements: elements})
	return nil
}

func (p *Parser) parseFor(start Token) error {
	varTok, err := p.next()
	if err != nil {
		return err
	}
	if varTok.Kind == TokenTagEnd {
		return &ParseError{Kind: ErrWrongArgumentCount, Token: varTok, Offset: start.Offset}
	}
	variable, ok := varTok.Element.(VariableElement)
	if !ok || variable.Name == "=" {
		return fail(ErrInvalidTagContent, varTok)
	}

	args, err := p.tagElements(func(k TokenKind) bool {
		return k == TokenNumber || k == TokenString || k == TokenVariable
	})
	if err != nil {
		return err
	}
	if len(args) < 2 || len(args) > 3 {
		return &ParseError{Kind: ErrWrongArgumentCount, Token: varTok, Offset: start.Offset}
	}

	loop := &ForLoopNode{Variable: variable, Start: args[0], End: args[1], Body: []Node{}}
	if len(args) == 3 {
		loop.Step = args[2]
	}
	p.appendChild(loop)
	p.open.Push(openNode{node: loop, offset: start.Offset})
	return nil
}
