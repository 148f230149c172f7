package main

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/smartscript/pkg/session"
)

// SessionAPI holds the dependencies for the session API handlers.
type SessionAPI struct {
	store   *session.Store
	sweeper *SessionSweeper
	logger  *slog.Logger
}

func NewSessionAPI(store *session.Store, sweeper *SessionSweeper, logger *slog.Logger) *SessionAPI {
	return &SessionAPI{
		store:   store,
		sweeper: sweeper,
		logger:  logger,
	}
}

// RegisterRoutes sets up the routing for all /api/sessions endpoints.
func (a *SessionAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/sessions", a.handleSessions)
	mux.HandleFunc("/api/sessions/", a.handleSessionByID)
}

// handleSessions reports the number of live sessions or sweeps the
// expired ones.
func (a *SessionAPI) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodDelete) || !requireScope(w, r, scopeSessionsManage) {
		return
	}

	if r.Method == http.MethodDelete {
		removed, ran, err := a.sweeper.Sweep(r.Context())
		if err != nil {
			a.logger.Error("Session sweep via API failed", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to sweep sessions")
			return
		}
		if !ran {
			respondWithError(w, http.StatusConflict, "A sweep is already running")
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
		return
	}

	n, err := a.store.Count(r.Context())
	if err != nil {
		a.logger.Error("Failed to count sessions", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to count sessions")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"active":      n,
		"timeout_sec": int(a.store.TTL().Seconds()),
	})
}

// handleSessionByID shows or drops one session.
func (a *SessionAPI) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	if len(id) != session.IDLength {
		respondWithError(w, http.StatusBadRequest, "Invalid session ID format in URL")
		return
	}
	if !allowMethods(w, r, http.MethodGet, http.MethodDelete) || !requireScope(w, r, scopeSessionsManage) {
		return
	}

	if r.Method == http.MethodDelete {
		if err := a.store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				respondWithError(w, http.StatusNotFound, "Session not found")
				return
			}
			a.logger.Error("Failed to delete session", "error", err)
			respondWithError(w, http.StatusInternalServerError, "Failed to delete session")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sess, err := a.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, "Session not found")
			return
		}
		a.logger.Error("Failed to load session", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	params, err := a.store.Params(r.Context(), id)
	if err != nil {
		a.logger.Error("Failed to load session parameters", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"params":  params,
	})
}
