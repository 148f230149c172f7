// Command smscript renders SmartScript documents from the command line and
// shows the token stream, tree or canonical form of a document.
//
// Usage:
//
//	smscript [-t] [-a] [-f] [-l locale] [-p name=value]... [file...]
//
// With no file, the document is read from standard input.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"git.sr.ht/~sircmpwn/getopt"
	"github.com/CTAG07/smartscript/pkg/engine"
	"github.com/CTAG07/smartscript/pkg/smartscript"
	"github.com/fatih/color"
	"golang.org/x/text/language"
)

const usage = `usage: smscript [options] [file...]

options:
  -t         print the token stream
  -a         print the syntax tree
  -f         print the canonical form
  -l LOCALE  locale for decfmt (default en)
  -p N=V     request parameter, may be repeated
  -h         show this help
`

type mode int

const (
	modeRender mode = iota
	modeTokens
	modeTree
	modeFormat
)

type options struct {
	mode   mode
	locale language.Tag
	params map[string]string
	files  []string
}

var errorColor = color.New(color.FgRed, color.Bold)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func parseArgs(argv []string) (*options, error) {
	opts, optind, err := getopt.Getopts(argv, "tafl:p:h")
	if err != nil {
		return nil, err
	}
	o := &options{locale: language.English, params: map[string]string{}}
	for _, opt := range opts {
		switch opt.Option {
		case 't':
			o.mode = modeTokens
		case 'a':
			o.mode = modeTree
		case 'f':
			o.mode = modeFormat
		case 'l':
			if o.locale, err = language.Parse(opt.Value); err != nil {
				return nil, fmt.Errorf("invalid locale %q: %w", opt.Value, err)
			}
		case 'p':
			name, value, ok := strings.Cut(opt.Value, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("invalid parameter %q, want name=value", opt.Value)
			}
			o.params[name] = value
		case 'h':
			return nil, errHelp
		}
	}
	o.files = argv[optind:]
	return o, nil
}

var errHelp = errors.New("help requested")

const maxIncludeDepth = 8

func run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseArgs(argv)
	if errors.Is(err, errHelp) {
		_, _ = fmt.Fprint(stdout, usage)
		return 0
	}
	if err != nil {
		_, _ = errorColor.Fprintf(stderr, "smscript: %v\n", err)
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}

	out := bufio.NewWriter(stdout)
	defer func() { _ = out.Flush() }()

	e := engine.New(engine.WithLocale(o.locale))
	if len(o.files) == 0 {
		o.files = []string{"-"}
	}
	status := 0
	for _, name := range o.files {
		src, err := readSource(name, stdin)
		if err != nil {
			_ = out.Flush()
			_, _ = errorColor.Fprintf(stderr, "smscript: %v\n", err)
			status = 1
			continue
		}
		if err = process(o, e, src, out); err != nil {
			_ = out.Flush()
			report(stderr, name, src, err)
			status = 1
		}
	}
	return status
}

func readSource(name string, stdin io.Reader) (string, error) {
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func process(o *options, e *engine.Engine, src string, out io.Writer) error {
	if o.mode == modeTokens {
		tokens, err := smartscript.NewLexer(src).Tokens()
		for _, tok := range tokens {
			if _, werr := fmt.Fprintln(out, tok); werr != nil {
				return werr
			}
		}
		return err
	}

	doc, err := smartscript.Parse(src)
	if err != nil {
		return err
	}
	switch o.mode {
	case modeTree:
		_, err = io.WriteString(out, smartscript.Dump(doc))
	case modeFormat:
		if err = smartscript.Fprint(out, doc); err == nil {
			_, err = io.WriteString(out, "\n")
		}
	default:
		rc := engine.NewContext(out, o.params)
		depth := 0
		rc.Dispatcher = func(path string) error {
			if depth >= maxIncludeDepth {
				return fmt.Errorf("include of %q exceeds depth %d", path, maxIncludeDepth)
			}
			inc, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			depth++
			defer func() { depth-- }()
			return e.RenderString(string(inc), rc)
		}
		err = e.Render(doc, rc)
	}
	return err
}

// report prints err, with a caret under the failing position when the
// error carries one.
func report(w io.Writer, name, src string, err error) {
	if _, ok := smartscript.ErrorOffset(err); ok {
		_, _ = errorColor.Fprintf(w, "%s:", name)
		_, _ = fmt.Fprintln(w, smartscript.Snippet(src, err))
		return
	}
	_, _ = errorColor.Fprintf(w, "%s: %v\n", name, err)
}
