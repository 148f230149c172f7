package smartscript

import (
	"errors"
	"fmt"
	"strings"
)

// Lexical error kinds.
var (
	ErrCalledAfterEOF     = errors.New("token requested after EOF")
	ErrInvalidEscape      = errors.New("invalid escape sequence")
	ErrInvalidCharacter   = errors.New("invalid character")
	ErrInvalidNumber      = errors.New("invalid number")
	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrUnterminatedString = errors.New("unterminated string literal")
	ErrUnterminatedTag    = errors.New("unterminated tag")
)

// Grammar error kinds.
var (
	ErrUnknownTag         = errors.New("unknown tag")
	ErrUnmatchedEnd       = errors.New("END without matching FOR")
	ErrUnclosedForLoop    = errors.New("FOR without matching END")
	ErrWrongArgumentCount = errors.New("wrong number of FOR arguments")
	ErrInvalidTagContent  = errors.New("invalid tag content")
	ErrUnexpectedToken    = errors.New("unexpected token")
)

// LexError reports malformed input found by the Lexer. Kind is one of the
// lexical Err values and Text is the offending part of the source.
type LexError struct {
	Kind   error
	Text   string
	Offset int
}

func (e *LexError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("offset %d: %v", e.Offset, e.Kind)
	}
	return fmt.Sprintf("offset %d: %v %q", e.Offset, e.Kind, e.Text)
}

func (e *LexError) Unwrap() error { return e.Kind }

// ParseError reports a document that does not form a valid tree. Lexical
// failures surface as a ParseError whose Err is the underlying *LexError,
// so both errors.Is(err, ErrInvalidEscape) and errors.Is(err, ErrXxx) for
// grammar kinds work on the value returned by Parse.
type ParseError struct {
	Kind   error
	Token  Token
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %v", e.Err)
	}
	if e.Token.Kind == TokenEOF {
		return fmt.Sprintf("parse: offset %d: %v", e.Offset, e.Kind)
	}
	return fmt.Sprintf("parse: offset %d: %v near %s", e.Offset, e.Kind, e.Token)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Position converts a byte offset in src to a 1-based line and column.
// Columns count runes, not bytes.
func Position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line, col = 1, 1
	for _, r := range src[:offset] {
		if r == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

// ErrorOffset extracts the source offset carried by a lexical or grammar
// error anywhere in err's chain.
func ErrorOffset(err error) (int, bool) {
	var le *LexError
	if errors.As(err, &le) {
		return le.Offset, true
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Offset, true
	}
	return 0, false
}

// Snippet returns the source line holding the error position followed by a
// caret line pointing at it, prefixed with "line:col". It returns "" when err
// carries no position.
func Snippet(src string, err error) string {
	offset, ok := ErrorOffset(err)
	if !ok {
		return ""
	}
	line, col := Position(src, offset)
	lines := strings.Split(src, "\n")
	text := lines[line-1]

	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d: %v\n", line, col, err)
	b.WriteString(text)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat(" ", col-1))
	b.WriteString("^")
	return b.String()
}
