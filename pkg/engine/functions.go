package engine

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

func builtins() map[string]Function {
	return map[string]Function{
		"sin":         fnSin,
		"decfmt":      fnDecfmt,
		"dup":         fnDup,
		"swap":        fnSwap,
		"setMimeType": fnSetMimeType,
		"paramGet":    paramGetter(func(rc RenderContext) lookupFunc { return rc.Parameter }),
		"pparamGet":   paramGetter(func(rc RenderContext) lookupFunc { return rc.PersistentParameter }),
		"tparamGet":   paramGetter(func(rc RenderContext) lookupFunc { return rc.TemporaryParameter }),
		"pparamSet":   fnPparamSet,
		"tparamSet":   fnTparamSet,
		"pparamDel":   fnPparamDel,
		"tparamDel":   fnTparamDel,
		"include":     fnInclude,
	}
}

// Stack effects below read (before -- after), top of stack rightmost.

// fnSin: (x -- sin(x)), x in degrees.
func fnSin(m *Machine) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	x, err := v.Numeric()
	if err != nil {
		return err
	}
	m.Push(Float(math.Sin(x.float() * math.Pi / 180)))
	return nil
}

// fnDecfmt: (x pattern -- text).
func fnDecfmt(m *Machine) error {
	pattern, err := m.Pop()
	if err != nil {
		return err
	}
	v, err := m.Pop()
	if err != nil {
		return err
	}
	x, err := v.Numeric()
	if err != nil {
		return err
	}
	m.Push(Text(FormatDecimal(m.Locale(), x, pattern.String())))
	return nil
}

// DecimalPattern is a parsed decimal format pattern such as "#,##0.00".
// Text before the first and after the last pattern character is copied
// verbatim.
type DecimalPattern struct {
	Prefix, Suffix    string
	MinIntegerDigits  int
	MinFractionDigits int
	MaxFractionDigits int
	Grouping          bool
}

func ParseDecimalPattern(pattern string) DecimalPattern {
	first := strings.IndexAny(pattern, "0#,.")
	if first < 0 {
		return DecimalPattern{Prefix: pattern, MinIntegerDigits: 1}
	}
	last := strings.LastIndexAny(pattern, "0#,.")
	p := DecimalPattern{Prefix: pattern[:first], Suffix: pattern[last+1:]}
	body := pattern[first : last+1]

	intPart, fracPart, _ := strings.Cut(body, ".")
	p.Grouping = strings.Contains(intPart, ",")
	p.MinIntegerDigits = strings.Count(intPart, "0")
	p.MinFractionDigits = strings.Count(fracPart, "0")
	p.MaxFractionDigits = p.MinFractionDigits + strings.Count(fracPart, "#")
	return p
}

func (p DecimalPattern) options() []number.Option {
	opts := []number.Option{
		number.MinFractionDigits(p.MinFractionDigits),
		number.MaxFractionDigits(p.MaxFractionDigits),
	}
	if p.MinIntegerDigits > 1 {
		opts = append(opts, number.MinIntegerDigits(p.MinIntegerDigits))
	}
	if !p.Grouping {
		opts = append(opts, number.NoSeparator())
	}
	return opts
}

// FormatDecimal formats numeric v with pattern for locale.
func FormatDecimal(locale language.Tag, v Value, pattern string) string {
	p := ParseDecimalPattern(pattern)
	printer := message.NewPrinter(locale)
	var formatted string
	if v.kind == KindInteger {
		formatted = printer.Sprintf("%v", number.Decimal(v.i, p.options()...))
	} else {
		formatted = printer.Sprintf("%v", number.Decimal(v.f, p.options()...))
	}
	return p.Prefix + formatted + p.Suffix
}

// fnDup: (x -- x x).
func fnDup(m *Machine) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	m.Push(v)
	m.Push(v)
	return nil
}

// fnSwap: (a b -- b a).
func fnSwap(m *Machine) error {
	b, err := m.Pop()
	if err != nil {
		return err
	}
	a, err := m.Pop()
	if err != nil {
		return err
	}
	m.Push(b)
	m.Push(a)
	return nil
}

// fnSetMimeType: (mime --).
func fnSetMimeType(m *Machine) error {
	v, err := m.Pop()
	if err != nil {
		return err
	}
	if err := m.Context().SetMimeType(v.String()); err != nil {
		return contextErr(err, "setMimeType %q", v.String())
	}
	return nil
}

type lookupFunc func(name string) (string, bool)

// paramGetter builds a (name default -- value) function over one of the
// context's parameter maps. Found values are pushed as Text.
func paramGetter(source func(RenderContext) lookupFunc) Function {
	return func(m *Machine) error {
		def, err := m.Pop()
		if err != nil {
			return err
		}
		name, err := m.Pop()
		if err != nil {
			return err
		}
		if v, ok := source(m.Context())(name.String()); ok {
			m.Push(Text(v))
			return nil
		}
		m.Push(def)
		return nil
	}
}

// popNameValue pops the (value name) pair the setters consume.
func popNameValue(m *Machine) (string, Value, error) {
	name, err := m.Pop()
	if err != nil {
		return "", Value{}, err
	}
	value, err := m.Pop()
	if err != nil {
		return "", Value{}, err
	}
	return name.String(), value, nil
}

// fnPparamSet: (value name --).
func fnPparamSet(m *Machine) error {
	name, value, err := popNameValue(m)
	if err != nil {
		return err
	}
	if err := m.Context().SetPersistentParameter(name, value.String()); err != nil {
		return contextErr(err, "pparamSet %q", name)
	}
	return nil
}

// fnTparamSet: (value name --).
func fnTparamSet(m *Machine) error {
	name, value, err := popNameValue(m)
	if err != nil {
		return err
	}
	m.Context().SetTemporaryParameter(name, value.String())
	return nil
}

// fnPparamDel: (name --).
func fnPparamDel(m *Machine) error {
	name, err := m.Pop()
	if err != nil {
		return err
	}
	if err := m.Context().RemovePersistentParameter(name.String()); err != nil {
		return contextErr(err, "pparamDel %q", name.String())
	}
	return nil
}

// fnTparamDel: (name --).
func fnTparamDel(m *Machine) error {
	name, err := m.Pop()
	if err != nil {
		return err
	}
	m.Context().RemoveTemporaryParameter(name.String())
	return nil
}

// fnInclude: (path --), renders another document into the same output.
func fnInclude(m *Machine) error {
	path, err := m.Pop()
	if err != nil {
		return err
	}
	if err := m.Context().Dispatch(path.String()); err != nil {
		return contextErr(err, "include %q", path.String())
	}
	return nil
}
