package main

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CTAG07/smartscript/pkg/session"
	"github.com/CTAG07/smartscript/pkg/smartscript"
	"github.com/CTAG07/smartscript/pkg/templating"
	"github.com/tevino/abool/v2"
	"github.com/zeebo/blake3"
)

type Server struct {
	cm         *ConfigManager
	db         *sql.DB
	logger     *slog.Logger
	tm         *templating.TemplateManager
	sessions   *session.Store
	sweeper    *SessionSweeper
	draining   *abool.AtomicBool
	authAPI    *AuthAPI
	scriptAPI  *ScriptAPI
	sessionAPI *SessionAPI
	statsAPI   *StatsAPI
	serverAPI  *ServerAPI
	scriptMux  *http.ServeMux
	apiMux     *http.ServeMux
	etags      sync.Map
}

func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	cfg := cm.Get()

	tm, err := templating.NewTemplateManager(logger, cfg.Templates, cfg.Server.DocumentRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	sessions, err := session.NewStore(db, cfg.Server.SessionTimeout())
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	sessions.SetLogger(logger)
	sweeper := NewSessionSweeper(sessions, cfg.Server.CleanupInterval(), logger)
	draining := abool.NewBool(false)

	server := &Server{
		cm:         cm,
		db:         db,
		logger:     logger,
		tm:         tm,
		sessions:   sessions,
		sweeper:    sweeper,
		draining:   draining,
		authAPI:    NewAuthAPI(db, logger),
		scriptAPI:  NewScriptAPI(tm, logger),
		sessionAPI: NewSessionAPI(sessions, sweeper, logger),
		statsAPI:   NewStatsAPI(db, logger),
		serverAPI:  NewServerAPI(cm, actionChan, draining, logger),
		scriptMux:  http.NewServeMux(),
		apiMux:     http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.scriptAPI.RegisterRoutes(apiMux)
	server.sessionAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything but the health check passes through authentication first.
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", server.authAPI.Authenticate(apiMux))

	server.scriptMux.HandleFunc("/", server.handleDocument)
	return server, nil
}

// Close stops the sweeper and releases the session statements.
func (s *Server) Close() {
	s.sweeper.Stop()
	s.sessions.Close()
}

// handleDocument renders scripts and serves every other file of the
// document root as is.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.draining.IsSet() {
		w.Header().Set("Retry-After", "1")
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	name := templating.CleanName(r.URL.Path)
	if name != "" && s.tm.IsScript(name) {
		s.serveScript(w, r, name)
		return
	}
	s.serveStatic(w, r, name)
}

// documentPath resolves a cleaned name inside the document root.
func (s *Server) documentPath(name string) (string, error) {
	root, err := filepath.Abs(s.tm.GetScriptDir())
	if err != nil {
		return "", err
	}
	p := filepath.Join(root, filepath.FromSlash(name))
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q outside document root", name)
	}
	return p, nil
}

// scriptSource returns the on-disk source of a script that is not loaded,
// for example one created after the last refresh.
func (s *Server) scriptSource(name string) (string, bool) {
	p, err := s.documentPath(name)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// render executes the named script into c. Loaded scripts use their
// cached tree; unloaded ones are parsed from disk.
func (s *Server) render(c *httpContext, name string) error {
	if s.tm.Has(name) {
		return s.tm.Execute(c, name)
	}
	src, ok := s.scriptSource(name)
	if !ok {
		return fmt.Errorf("%w: %s", templating.ErrScriptNotFound, name)
	}
	if err := s.tm.ExecuteString(c, src); err != nil {
		var parseErr *smartscript.ParseError
		if errors.As(err, &parseErr) {
			s.logger.Error("Script does not parse", "script", name, "snippet", smartscript.Snippet(src, err))
			return fmt.Errorf("script %s: %w", name, err)
		}
		return err
	}
	return nil
}

func (s *Server) serveScript(w http.ResponseWriter, r *http.Request, name string) {
	if !s.tm.Has(name) {
		if _, ok := s.scriptSource(name); !ok {
			http.NotFound(w, r)
			return
		}
	}

	cfg := s.cm.Server()
	c, err := s.newHTTPContext(w, r, cfg)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Error("Failed to prepare request", "script", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	err = s.render(c, name)
	if err == nil {
		c.finish()
	}
	if statErr := s.statsAPI.RecordRender(r.Context(), name, time.Since(start), err); statErr != nil {
		s.logger.Warn("Failed to record render stats", "script", name, "error", statErr)
	}

	if err != nil {
		s.logger.Error("Failed to render script",
			"script", name,
			"remote_addr", getClientIP(r),
			"written", c.written,
			"error", err)
		if !c.headersSent {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
		return
	}
	s.logger.Debug("Served script", "script", name, "remote_addr", getClientIP(r), "bytes", c.written, "elapsed", time.Since(start))
}

type etagEntry struct {
	size    int64
	modTime time.Time
	tag     string
}

// etag returns the blake3 based entity tag of a file, reusing the last
// digest while size and modification time are unchanged.
func (s *Server) etag(path string, info os.FileInfo) (string, error) {
	if v, ok := s.etags.Load(path); ok {
		e := v.(etagEntry)
		if e.size == info.Size() && e.modTime.Equal(info.ModTime()) {
			return e.tag, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	h := blake3.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}
	tag := `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
	s.etags.Store(path, etagEntry{size: info.Size(), modTime: info.ModTime(), tag: tag})
	return tag, nil
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, name string) {
	p, err := s.documentPath(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	info, err := os.Stat(p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.Mode().IsRegular() {
		tag, err := s.etag(p, info)
		if err != nil {
			s.logger.Warn("Failed to hash file", "path", name, "error", err)
		} else {
			w.Header().Set("ETag", tag)
		}
	}
	for k, v := range s.cm.Server().Headers {
		w.Header().Set(k, v)
	}
	http.ServeFile(w, r, p)
}

// contentType adds the charset to textual mime types.
func contentType(mime string) string {
	if strings.HasPrefix(mime, "text/") && !strings.Contains(mime, "charset") {
		return mime + "; charset=utf-8"
	}
	return mime
}

// requestHost is the host a session is bound to, without the port.
func requestHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		return r.Host
	}
	return host
}

func getClientIP(r *http.Request) string {
	// X-Real-Ip is set by proxies like nginx.
	if realIP := r.Header.Get("X-Real-Ip"); realIP != "" {
		return realIP
	}
	// X-Forwarded-For lists the original client first.
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
