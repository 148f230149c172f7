package engine

import (
	"errors"
	"fmt"
)

// Runtime error kinds, matched with errors.Is.
var (
	ErrUnknownVariable = errors.New("unknown variable")
	ErrUnknownFunction = errors.New("unknown function")
	ErrNotNumeric      = errors.New("value is not numeric")
	ErrDivisionByZero  = errors.New("division by zero")
	ErrOverflow        = errors.New("integer overflow")
	ErrZeroStep        = errors.New("loop step is zero")
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrIterationLimit  = errors.New("loop iteration limit exceeded")
	ErrContext         = errors.New("render context failure")
)

// ErrOutputStarted is returned by a RenderContext when a header-like
// setting such as the mime type is changed after output was written.
var ErrOutputStarted = errors.New("output already started")

// RuntimeError describes a failed render. Detail names the element or
// function involved; Err holds an underlying cause, if any.
type RuntimeError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *RuntimeError) Error() string {
	msg := "render: " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RuntimeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func runtimeErr(kind error, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// contextErr wraps a failure reported by the RenderContext.
func contextErr(err error, format string, args ...any) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}
	return &RuntimeError{Kind: ErrContext, Detail: fmt.Sprintf(format, args...), Err: err}
}
