package engine

import (
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/CTAG07/smartscript/pkg/smartscript"
	"golang.org/x/text/language"
)

// Function is a library function callable as @name from an echo tag. It
// pops its operands from the Machine and pushes zero or more results.
type Function func(m *Machine) error

// Engine renders parsed documents. It is safe for concurrent use.
type Engine struct {
	logger        *slog.Logger
	functions     map[string]Function
	locale        language.Tag
	maxIterations int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for debug output. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithFunction registers fn under name, replacing any built-in of that name.
func WithFunction(name string, fn Function) Option {
	return func(e *Engine) { e.functions[name] = fn }
}

// WithLocale sets the locale decfmt formats numbers for. The default is
// English.
func WithLocale(tag language.Tag) Option {
	return func(e *Engine) { e.locale = tag }
}

// WithMaxIterations bounds the total number of loop iterations a single
// render may run. Zero means no limit.
func WithMaxIterations(n int) Option {
	return func(e *Engine) { e.maxIterations = n }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		functions: builtins(),
		locale:    language.English,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Functions returns the sorted names of all callable functions.
func (e *Engine) Functions() []string {
	names := make([]string, 0, len(e.functions))
	for name := range e.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Locale() language.Tag { return e.locale }

// Render writes doc to rc. Output written before a failure stays written.
func (e *Engine) Render(doc *smartscript.DocumentNode, rc RenderContext) error {
	x := &executor{
		engine: e,
		rc:     rc,
		scopes: newScopes(),
		values: newValueStack(),
	}
	if err := x.render(doc); err != nil {
		e.logger.Debug("render failed", "error", err)
		return err
	}
	return nil
}

// RenderString parses src and renders it to rc.
func (e *Engine) RenderString(src string, rc RenderContext) error {
	doc, err := smartscript.Parse(src)
	if err != nil {
		return err
	}
	return e.Render(doc, rc)
}

// Machine is the state a Function works on: the operand stack of the echo
// tag being evaluated and the render's context.
type Machine struct {
	x *executor
}

// Pop removes the top operand, failing with ErrStackUnderflow when there is
// none.
func (m *Machine) Pop() (Value, error) { return m.x.values.pop() }

func (m *Machine) Push(v Value) { m.x.values.push(v) }

// Len returns the number of operands on the stack.
func (m *Machine) Len() int { return m.x.values.len() }

func (m *Machine) Context() RenderContext { return m.x.rc }
func (m *Machine) Locale() language.Tag   { return m.x.engine.locale }

// executor holds the per-render state.
type executor struct {
	engine     *Engine
	rc         RenderContext
	scopes     *scopes
	values     *valueStack
	iterations int
}

func (x *executor) render(n smartscript.Node) error {
	switch t := n.(type) {
	case *smartscript.DocumentNode:
		return x.renderAll(t.Nodes)
	case *smartscript.TextNode:
		if _, err := io.WriteString(x.rc, t.Text); err != nil {
			return contextErr(err, "write")
		}
		return nil
	case *smartscript.EchoNode:
		return x.echo(t)
	case *smartscript.ForLoopNode:
		return x.loop(t)
	}
	return nil
}

func (x *executor) renderAll(nodes []smartscript.Node) error {
	for _, n := range nodes {
		if err := x.render(n); err != nil {
			return err
		}
	}
	return nil
}

func (x *executor) resolve(el smartscript.Element) (Value, error) {
	if v, ok := ElementValue(el); ok {
		return v, nil
	}
	if v, ok := el.(smartscript.VariableElement); ok {
		val, found := x.scopes.lookup(v.Name)
		if !found {
			return Value{}, runtimeErr(ErrUnknownVariable, "%s", v.Name)
		}
		return val, nil
	}
	return Value{}, runtimeErr(ErrNotNumeric, "%s", el)
}

func (x *executor) echo(n *smartscript.EchoNode) error {
	x.values.reset()
	for _, el := range n.Elements {
		switch e := el.(type) {
		case smartscript.OperatorElement:
			b, err := x.values.pop()
			if err != nil {
				return underflow(err, e.Symbol)
			}
			a, err := x.values.pop()
			if err != nil {
				return underflow(err, e.Symbol)
			}
			r, err := Apply(e.Symbol, a, b)
			if err != nil {
				return err
			}
			x.values.push(r)
		case smartscript.FunctionElement:
			fn, ok := x.engine.functions[e.Name]
			if !ok {
				return runtimeErr(ErrUnknownFunction, "@%s", e.Name)
			}
			if err := fn(&Machine{x: x}); err != nil {
				return underflow(err, "@"+e.Name)
			}
		default:
			v, err := x.resolve(el)
			if err != nil {
				return err
			}
			x.values.push(v)
		}
	}
	return x.values.drain(func(v Value) error {
		if _, err := io.WriteString(x.rc, v.String()); err != nil {
			return contextErr(err, "write")
		}
		return nil
	})
}

// underflow names the operator or function that ran out of operands.
func underflow(err error, who string) error {
	if err == errOperandMissing {
		return runtimeErr(ErrStackUnderflow, "%s", who)
	}
	return err
}

func (x *executor) loopBound(el smartscript.Element) (Value, error) {
	v, err := x.resolve(el)
	if err != nil {
		return Value{}, err
	}
	return v.Numeric()
}

func (x *executor) loop(n *smartscript.ForLoopNode) error {
	start, err := x.loopBound(n.Start)
	if err != nil {
		return err
	}
	end, err := x.loopBound(n.End)
	if err != nil {
		return err
	}
	step := Integer(1)
	if n.Step != nil {
		if step, err = x.loopBound(n.Step); err != nil {
			return err
		}
	}
	dir, err := Compare(step, Integer(0))
	if err != nil {
		return err
	}
	if dir == 0 {
		return runtimeErr(ErrZeroStep, "FOR %s", n.Variable.Name)
	}

	name := n.Variable.Name
	x.scopes.push(name, start)
	defer x.scopes.pop(name)

	for cur := start; ; {
		c, err := Compare(cur, end)
		if err != nil {
			return err
		}
		if c == dir {
			return nil
		}
		x.iterations++
		if limit := x.engine.maxIterations; limit > 0 && x.iterations > limit {
			return runtimeErr(ErrIterationLimit, "%d", limit)
		}
		if err := x.renderAll(n.Body); err != nil {
			return err
		}
		next, err := Add(cur, step)
		if errors.Is(err, ErrOverflow) {
			// The counter cannot pass an int64 bound, so the loop is done.
			return nil
		}
		if err != nil {
			return err
		}
		cur = next
		x.scopes.set(name, cur)
	}
}
