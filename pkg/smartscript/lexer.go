package smartscript

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LexerState is the mode the Lexer is in. NextToken switches modes on "{$"
// and "$}".
type LexerState int

const (
	StateDocumentText LexerState = iota
	StateTag
)

func (s LexerState) String() string {
	if s == StateTag {
		return "Tag"
	}
	return "DocumentText"
}

// Lexer splits SmartScript source into tokens.
type Lexer struct {
	src   string
	pos   int
	state LexerState
	eof   bool
}

func NewLexer(text string) *Lexer {
	return &Lexer{src: text}
}

func (l *Lexer) State() LexerState { return l.state }

// NextToken returns the next token of the input. Once a TokenEOF has been
// returned, every further call fails with ErrCalledAfterEOF.
func (l *Lexer) NextToken() (Token, error) {
	if l.eof {
		return Token{}, l.errorf(ErrCalledAfterEOF, "", len(l.src))
	}
	if l.state == StateTag {
		return l.lexTag()
	}
	return l.lexText()
}

// Tokens lexes the whole input, stopping at the first error. The returned
// slice ends with the TokenEOF token on success.
func (l *Lexer) Tokens() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) errorf(kind error, text string, offset int) *LexError {
	return &LexError{Kind: kind, Text: text, Offset: offset}
}

func (l *Lexer) lexText() (Token, error) {
	start := l.pos
	if start >= len(l.src) {
		l.eof = true
		return Token{Kind: TokenEOF, Offset: start}, nil
	}
	if strings.HasPrefix(l.src[start:], "{$") {
		l.pos += 2
		l.state = StateTag
		return Token{Kind: TokenTagStart, Offset: start}, nil
	}

	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '{' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '$' {
			break
		}
		if c != '\\' {
			b.WriteByte(c)
			l.pos++
			continue
		}
		if l.pos+1 >= len(l.src) {
			return Token{}, l.errorf(ErrInvalidEscape, `\`, l.pos)
		}
		next := l.src[l.pos+1]
		if next != '\\' && next != '{' {
			_, size := utf8.DecodeRuneInString(l.src[l.pos+1:])
			return Token{}, l.errorf(ErrInvalidEscape, l.src[l.pos:l.pos+1+size], l.pos)
		}
		b.WriteByte(next)
		l.pos += 2
	}
	return Token{Kind: TokenText, Text: b.String(), Offset: start}, nil
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func (l *Lexer) peekRune(at int) rune {
	if at >= len(l.src) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(l.src[at:])
	return r
}

func (l *Lexer) lexTag() (Token, error) {
	for l.pos < len(l.src) && isBlank(l.src[l.pos]) {
		l.pos++
	}
	start := l.pos
	if start >= len(l.src) {
		return Token{}, l.errorf(ErrUnterminatedTag, "", start)
	}

	c := l.src[start]
	switch {
	case c == '$':
		if start+1 < len(l.src) && l.src[start+1] == '}' {
			l.pos += 2
			l.state = StateDocumentText
			return Token{Kind: TokenTagEnd, Offset: start}, nil
		}
		return Token{}, l.errorf(ErrInvalidCharacter, "$", start)
	case c == '=':
		l.pos++
		return Token{Kind: TokenVariable, Element: VariableElement{Name: "="}, Offset: start}, nil
	case isDigit(c), c == '-' && start+1 < len(l.src) && isDigit(l.src[start+1]):
		return l.lexNumber()
	case c == '@':
		l.pos++
		if !unicode.IsLetter(l.peekRune(l.pos)) {
			text := "@"
			if l.pos < len(l.src) {
				_, size := utf8.DecodeRuneInString(l.src[l.pos:])
				text = l.src[start : l.pos+size]
			}
			return Token{}, l.errorf(ErrInvalidIdentifier, text, start)
		}
		name := l.scanIdentifier()
		return Token{Kind: TokenFunction, Element: FunctionElement{Name: name}, Offset: start}, nil
	case c == '"':
		return l.lexString()
	case strings.IndexByte("+-*/^", c) >= 0:
		l.pos++
		return Token{Kind: TokenOperator, Element: OperatorElement{Symbol: string(c)}, Offset: start}, nil
	}

	r, size := utf8.DecodeRuneInString(l.src[start:])
	if unicode.IsLetter(r) {
		name := l.scanIdentifier()
		return Token{Kind: TokenVariable, Element: VariableElement{Name: name}, Offset: start}, nil
	}
	return Token{}, l.errorf(ErrInvalidCharacter, l.src[start:start+size], start)
}

// scanIdentifier consumes letter (letter | digit | '_')*. The caller has
// checked the first rune.
func (l *Lexer) scanIdentifier() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.pos += size
	}
	return l.src[start:l.pos]
}

func (l *Lexer) lexNumber() (Token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.pos++
	}
	dots := 0
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
		if l.src[l.pos] == '.' {
			dots++
		}
		l.pos++
	}
	// A number glued to an identifier ("12ab") is malformed.
	glued := false
	if r := l.peekRune(l.pos); l.pos < len(l.src) && (unicode.IsLetter(r) || r == '_') {
		l.scanIdentifier()
		glued = true
	}
	text := l.src[start:l.pos]
	if dots > 1 || glued {
		return Token{}, l.errorf(ErrInvalidNumber, text, start)
	}

	if dots == 0 {
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Token{}, l.errorf(ErrInvalidNumber, text, start)
		}
		return Token{Kind: TokenNumber, Element: IntegerElement{Value: v}, Offset: start}, nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, l.errorf(ErrInvalidNumber, text, start)
	}
	return Token{Kind: TokenNumber, Element: FloatElement{Value: v}, Offset: start}, nil
}

func (l *Lexer) lexString() (Token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return Token{}, l.errorf(ErrUnterminatedString, l.src[start:], start)
		}
		c := l.src[l.pos]
		switch c {
		case '"':
			l.pos++
			return Token{Kind: TokenString, Element: StringElement{Value: b.String()}, Offset: start}, nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return Token{}, l.errorf(ErrUnterminatedString, l.src[start:], start)
			}
			next := l.src[l.pos+1]
			if next != '\\' && next != '"' {
				_, size := utf8.DecodeRuneInString(l.src[l.pos+1:])
				return Token{}, l.errorf(ErrInvalidEscape, l.src[l.pos:l.pos+1+size], l.pos)
			}
			b.WriteByte(next)
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
}
