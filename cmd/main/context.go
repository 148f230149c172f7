package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/CTAG07/smartscript/pkg/engine"
	"github.com/CTAG07/smartscript/pkg/session"
	"github.com/CTAG07/smartscript/pkg/templating"
)

const maxFormBody = 1 << 20

// httpContext renders one request. The status, headers and session cookie
// are written with the first byte of output.
type httpContext struct {
	srv         *Server
	w           http.ResponseWriter
	r           *http.Request
	cfg         ServerConfig
	sess        session.Session
	params      map[string]string
	persistent  map[string]string
	temporary   map[string]string
	mimeType    string
	headersSent bool
	depth       int
	written     int64
}

var _ engine.RenderContext = (*httpContext)(nil)

func (s *Server) newHTTPContext(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*httpContext, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	params := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	var id string
	if cookie, err := r.Cookie(cfg.CookieName); err == nil {
		id = cookie.Value
	}
	sess, _, err := s.sessions.Open(r.Context(), id, requestHost(r))
	if err != nil {
		return nil, err
	}
	persistent, err := s.sessions.Params(r.Context(), sess.ID)
	if err != nil {
		return nil, err
	}

	mime := cfg.DefaultMimeType
	if mime == "" {
		mime = "text/html"
	}
	return &httpContext{
		srv:        s,
		w:          w,
		r:          r,
		cfg:        cfg,
		sess:       sess,
		params:     params,
		persistent: persistent,
		temporary:  map[string]string{},
		mimeType:   mime,
	}, nil
}

func (c *httpContext) sendHeaders() {
	h := c.w.Header()
	for k, v := range c.cfg.Headers {
		h.Set(k, v)
	}
	h.Set("Content-Type", contentType(c.mimeType))
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cfg.CookieName,
		Value:    c.sess.ID,
		Path:     "/",
		MaxAge:   int(c.srv.sessions.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	c.w.WriteHeader(http.StatusOK)
	c.headersSent = true
}

// finish sends the headers of a render that produced no output.
func (c *httpContext) finish() {
	if !c.headersSent {
		c.sendHeaders()
	}
}

func (c *httpContext) Write(p []byte) (int, error) {
	if !c.headersSent {
		c.sendHeaders()
	}
	if c.r.Method == http.MethodHead {
		return len(p), nil
	}
	n, err := c.w.Write(p)
	c.written += int64(n)
	return n, err
}

func (c *httpContext) Parameter(name string) (string, bool) {
	v, ok := c.params[name]
	return v, ok
}

func (c *httpContext) PersistentParameter(name string) (string, bool) {
	v, ok := c.persistent[name]
	return v, ok
}

func (c *httpContext) SetPersistentParameter(name, value string) error {
	if err := c.srv.sessions.SetParam(c.r.Context(), c.sess.ID, name, value); err != nil {
		return err
	}
	c.persistent[name] = value
	return nil
}

func (c *httpContext) RemovePersistentParameter(name string) error {
	if err := c.srv.sessions.RemoveParam(c.r.Context(), c.sess.ID, name); err != nil {
		return err
	}
	delete(c.persistent, name)
	return nil
}

func (c *httpContext) TemporaryParameter(name string) (string, bool) {
	v, ok := c.temporary[name]
	return v, ok
}

func (c *httpContext) SetTemporaryParameter(name, value string) { c.temporary[name] = value }
func (c *httpContext) RemoveTemporaryParameter(name string)     { delete(c.temporary, name) }

func (c *httpContext) SetMimeType(mime string) error {
	if c.headersSent {
		return engine.ErrOutputStarted
	}
	c.mimeType = mime
	return nil
}

// Dispatch renders another document of the document root into the same
// response. Static files are copied verbatim.
func (c *httpContext) Dispatch(path string) error {
	if c.depth >= c.cfg.MaxDispatchDepth {
		return fmt.Errorf("dispatch of %q exceeds depth %d", path, c.cfg.MaxDispatchDepth)
	}
	c.depth++
	defer func() { c.depth-- }()

	name := templating.CleanName(path)
	if c.srv.tm.IsScript(name) {
		return c.srv.render(c, name)
	}

	p, err := c.srv.documentPath(name)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("dispatch of %q: %w", path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	_, err = io.Copy(c, f)
	return err
}
