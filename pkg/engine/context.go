package engine

import (
	"errors"
	"io"
)

// RenderContext is everything a render can reach outside the document: the
// output sink, the request parameters, two writable parameter maps and a
// hook for rendering other documents into the same output.
//
// A RenderContext serves one render at a time.
type RenderContext interface {
	io.Writer

	// Parameter looks up a read-only request parameter.
	Parameter(name string) (string, bool)

	// Persistent parameters outlive the render, for example in a session.
	PersistentParameter(name string) (string, bool)
	SetPersistentParameter(name, value string) error
	RemovePersistentParameter(name string) error

	// Temporary parameters live for the current request only.
	TemporaryParameter(name string) (string, bool)
	SetTemporaryParameter(name, value string)
	RemoveTemporaryParameter(name string)

	// SetMimeType fails with ErrOutputStarted once output was written.
	SetMimeType(mime string) error

	// Dispatch renders the document at path into this context.
	Dispatch(path string) error
}

// ErrNoDispatcher is returned by Context.Dispatch when no Dispatcher is set.
var ErrNoDispatcher = errors.New("dispatch not supported")

// Context is an in-memory RenderContext.
type Context struct {
	Params     map[string]string
	Persistent map[string]string
	Temporary  map[string]string
	MimeType   string

	// Dispatcher, if set, handles Dispatch calls.
	Dispatcher func(path string) error

	w       io.Writer
	written int64
}

// NewContext returns a Context writing to w with the given request
// parameters. params may be nil.
func NewContext(w io.Writer, params map[string]string) *Context {
	if params == nil {
		params = map[string]string{}
	}
	return &Context{
		Params:     params,
		Persistent: map[string]string{},
		Temporary:  map[string]string{},
		MimeType:   "text/html",
		w:          w,
	}
}

func (c *Context) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	return n, err
}

// Written reports the number of bytes written so far.
func (c *Context) Written() int64 { return c.written }

func (c *Context) Parameter(name string) (string, bool) {
	v, ok := c.Params[name]
	return v, ok
}

func (c *Context) PersistentParameter(name string) (string, bool) {
	v, ok := c.Persistent[name]
	return v, ok
}

func (c *Context) SetPersistentParameter(name, value string) error {
	c.Persistent[name] = value
	return nil
}

func (c *Context) RemovePersistentParameter(name string) error {
	delete(c.Persistent, name)
	return nil
}

func (c *Context) TemporaryParameter(name string) (string, bool) {
	v, ok := c.Temporary[name]
	return v, ok
}

func (c *Context) SetTemporaryParameter(name, value string) { c.Temporary[name] = value }
func (c *Context) RemoveTemporaryParameter(name string)     { delete(c.Temporary, name) }

func (c *Context) SetMimeType(mime string) error {
	if c.written > 0 {
		return ErrOutputStarted
	}
	c.MimeType = mime
	return nil
}

func (c *Context) Dispatch(path string) error {
	if c.Dispatcher == nil {
		return ErrNoDispatcher
	}
	return c.Dispatcher(path)
}
