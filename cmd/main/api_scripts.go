package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/smartscript/pkg/engine"
	"github.com/CTAG07/smartscript/pkg/smartscript"
	"github.com/CTAG07/smartscript/pkg/templating"
	"github.com/natefinch/atomic"
)

const maxScriptBody = 1 << 20

// ScriptAPI holds the dependencies for the script API handlers.
type ScriptAPI struct {
	tm     *templating.TemplateManager
	logger *slog.Logger
}

// NewScriptAPI creates a new instance of the ScriptAPI.
func NewScriptAPI(tm *templating.TemplateManager, logger *slog.Logger) *ScriptAPI {
	return &ScriptAPI{
		tm:     tm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/scripts endpoints.
func (a *ScriptAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/scripts", a.handleList)
	mux.HandleFunc("/api/scripts/refresh", a.handleRefresh)
	mux.HandleFunc("/api/scripts/test", a.handleTest)
	mux.HandleFunc("/api/scripts/tree", a.handleTree)
	mux.HandleFunc("/api/scripts/", a.handleFile)
}

// ParseErrorResponse describes a script that failed to lex or parse.
type ParseErrorResponse struct {
	Error   string `json:"error"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Snippet string `json:"snippet"`
}

// TreeResponse is the result of parsing a script without rendering it.
type TreeResponse struct {
	Dump      string   `json:"dump"`
	Format    string   `json:"format"`
	Functions []string `json:"functions"`
}

func parseErrorResponse(src string, err error) ParseErrorResponse {
	resp := ParseErrorResponse{Error: err.Error(), Snippet: smartscript.Snippet(src, err)}
	if off, ok := smartscript.ErrorOffset(err); ok {
		resp.Line, resp.Column = smartscript.Position(src, off)
	}
	return resp
}

func readScriptBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScriptBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return "", false
	}
	return string(body), true
}

// handleList returns every loaded script with its digest.
func (a *ScriptAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeScriptsRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, a.tm.GetScripts())
}

// handleRefresh triggers a manual reload of the scripts from disk.
func (a *ScriptAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeScriptsWrite) {
		return
	}
	if err := a.tm.Refresh(); err != nil {
		a.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh scripts: %v", err))
		return
	}
	a.logger.Info("Scripts refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleTest renders the request body with the query string as request
// parameters. Nothing is persisted.
func (a *ScriptAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeScriptsRead) {
		return
	}
	src, ok := readScriptBody(w, r)
	if !ok {
		return
	}

	params := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	var buf bytes.Buffer
	rc := engine.NewContext(&buf, params)
	rc.Dispatcher = func(path string) error {
		return a.tm.Execute(rc, path)
	}
	err := a.tm.ExecuteString(rc, src)

	var lexErr *smartscript.LexError
	var parseErr *smartscript.ParseError
	switch {
	case errors.As(err, &lexErr), errors.As(err, &parseErr):
		respondWithJSON(w, http.StatusBadRequest, parseErrorResponse(src, err))
		return
	case err != nil:
		respondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":  err.Error(),
			"output": buf.String(),
		})
		return
	}

	w.Header().Set("Content-Type", contentType(rc.MimeType))
	_, _ = w.Write(buf.Bytes())
}

// handleTree parses the request body and returns its tree dump and
// canonical form.
func (a *ScriptAPI) handleTree(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) || !requireScope(w, r, scopeScriptsRead) {
		return
	}
	src, ok := readScriptBody(w, r)
	if !ok {
		return
	}
	doc, err := smartscript.Parse(src)
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, parseErrorResponse(src, err))
		return
	}
	respondWithJSON(w, http.StatusOK, TreeResponse{
		Dump:      smartscript.Dump(doc),
		Format:    smartscript.Format(doc),
		Functions: smartscript.Functions(doc),
	})
}

// scriptPath resolves name inside the script directory.
func (a *ScriptAPI) scriptPath(name string) (string, error) {
	dir, err := filepath.Abs(a.tm.GetScriptDir())
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, filepath.FromSlash(templating.CleanName(name)))
	if p == dir || !strings.HasPrefix(p, dir+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside script directory")
	}
	return p, nil
}

// handleFile reads, writes or removes the source of a single script.
func (a *ScriptAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	name := templating.CleanName(strings.TrimPrefix(r.URL.Path, "/api/scripts/"))
	if name == "" {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}
	if !a.tm.IsScript(name) {
		respondWithError(w, http.StatusBadRequest, "Invalid script name")
		return
	}
	path, err := a.scriptPath(name)
	if err != nil {
		respondWithError(w, http.StatusForbidden, "Access denied: Path outside script directory")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeScriptsRead) {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Script not found")
			return
		}
		if info, ok := a.tm.GetScriptInfo(name); ok {
			w.Header().Set("ETag", `"`+info.Digest+`"`)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		if !requireScope(w, r, scopeScriptsWrite) {
			return
		}
		src, ok := readScriptBody(w, r)
		if !ok {
			return
		}
		// Refuse sources that would make the next refresh fail.
		if _, err := smartscript.Parse(src); err != nil {
			respondWithJSON(w, http.StatusBadRequest, parseErrorResponse(src, err))
			return
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create directory: %v", err))
			return
		}
		if err := atomic.WriteFile(path, strings.NewReader(src)); err != nil {
			a.logger.Error("Failed to write script", "script", name, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save script: %v", err))
			return
		}
		if err := a.tm.Refresh(); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Saved, but refresh failed: %v", err))
			return
		}
		a.logger.Info("Script saved via API", "script", name)
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !requireScope(w, r, scopeScriptsWrite) {
			return
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				respondWithError(w, http.StatusNotFound, "Script not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete script: %v", err))
			return
		}
		if err := a.tm.Refresh(); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Deleted, but refresh failed: %v", err))
			return
		}
		a.logger.Info("Script deleted via API", "script", name)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
