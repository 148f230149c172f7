package engine

import (
	"github.com/ahrtr/gocontainer/stack"
	"github.com/edwingeng/deque"
)

// scopes maps each variable name to a stack of bindings. Entering a loop
// pushes, leaving it pops, and lookups see the innermost binding.
type scopes struct {
	vars map[string]stack.Interface
}

func newScopes() *scopes {
	return &scopes{vars: make(map[string]stack.Interface)}
}

func (s *scopes) push(name string, v Value) {
	st, ok := s.vars[name]
	if !ok {
		st = stack.New()
		s.vars[name] = st
	}
	st.Push(v)
}

func (s *scopes) pop(name string) {
	st, ok := s.vars[name]
	if !ok || st.IsEmpty() {
		return
	}
	st.Pop()
	if st.IsEmpty() {
		delete(s.vars, name)
	}
}

// set replaces the innermost binding of name.
func (s *scopes) set(name string, v Value) {
	st, ok := s.vars[name]
	if !ok || st.IsEmpty() {
		s.push(name, v)
		return
	}
	st.Pop()
	st.Push(v)
}

func (s *scopes) lookup(name string) (Value, bool) {
	st, ok := s.vars[name]
	if !ok || st.IsEmpty() {
		return Value{}, false
	}
	return st.Peek().(Value), true
}

func (s *scopes) depth(name string) int {
	if st, ok := s.vars[name]; ok {
		return st.Size()
	}
	return 0
}

var errOperandMissing = &RuntimeError{Kind: ErrStackUnderflow}

// valueStack is the operand stack of one echo evaluation. The back of the
// deque is the top of the stack.
type valueStack struct {
	d deque.Deque
}

func newValueStack() *valueStack {
	return &valueStack{d: deque.NewDeque()}
}

func (s *valueStack) push(v Value) { s.d.PushBack(v) }
func (s *valueStack) len() int     { return s.d.Len() }

func (s *valueStack) pop() (Value, error) {
	if s.d.Empty() {
		return Value{}, errOperandMissing
	}
	return s.d.PopBack().(Value), nil
}

// drain removes every value from the bottom up, calling fn on each.
func (s *valueStack) drain(fn func(Value) error) error {
	for !s.d.Empty() {
		if err := fn(s.d.PopFront().(Value)); err != nil {
			return err
		}
	}
	return nil
}

func (s *valueStack) reset() {
	for !s.d.Empty() {
		s.d.PopBack()
	}
}
