package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS stats_script (
    script        TEXT    PRIMARY KEY,
    renders       INTEGER NOT NULL DEFAULT 0,
    errors        INTEGER NOT NULL DEFAULT 0,
    total_micros  INTEGER NOT NULL DEFAULT 0,
    first_seen    INTEGER NOT NULL,
    last_seen     INTEGER NOT NULL,
    last_error    TEXT    NOT NULL DEFAULT ''
);
`

// ScriptStats is the data returned for a single script.
type ScriptStats struct {
	Script      string        `json:"script"`
	Renders     int64         `json:"renders"`
	Errors      int64         `json:"errors"`
	AverageTime time.Duration `json:"average_time"`
	FirstSeen   time.Time     `json:"first_seen"`
	LastSeen    time.Time     `json:"last_seen"`
	LastError   string        `json:"last_error,omitempty"`
}

// StatsSummary provides a high-level overview of all collected stats.
type StatsSummary struct {
	TotalRenders int64 `json:"total_renders"`
	TotalErrors  int64 `json:"total_errors"`
	Scripts      int64 `json:"scripts"`
}

// StatsAPI holds the dependencies for the statistics handlers.
type StatsAPI struct {
	db     *sql.DB
	logger *slog.Logger
}

func setupStatsSchema(db *sql.DB) error {
	_, err := db.Exec(statsSchema)
	return err
}

func NewStatsAPI(db *sql.DB, logger *slog.Logger) *StatsAPI {
	return &StatsAPI{
		db:     db,
		logger: logger,
	}
}

func (s *StatsAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stats/summary", s.handleSummary)
	mux.HandleFunc("/api/stats/scripts", s.handleScripts)
}

// RecordRender counts one render of script that took elapsed and ended
// with renderErr.
func (s *StatsAPI) RecordRender(ctx context.Context, script string, elapsed time.Duration, renderErr error) error {
	now := time.Now().Unix()
	var failed int
	var msg string
	if renderErr != nil {
		failed = 1
		msg = renderErr.Error()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	_, err = tx.ExecContext(ctx, `
        INSERT INTO stats_script (script, renders, errors, total_micros, first_seen, last_seen, last_error)
        VALUES (?, 1, ?, ?, ?, ?, ?)
        ON CONFLICT(script) DO UPDATE SET
            renders = renders + 1,
            errors = errors + excluded.errors,
            total_micros = total_micros + excluded.total_micros,
            last_seen = excluded.last_seen,
            last_error = CASE WHEN excluded.errors > 0 THEN excluded.last_error ELSE last_error END
    `, script, failed, elapsed.Microseconds(), now, now, msg)
	if err != nil {
		return fmt.Errorf("failed to upsert stats_script: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit stats transaction: %w", err)
	}
	return nil
}

// Scripts returns the counters of every script, most rendered first.
func (s *StatsAPI) Scripts(ctx context.Context, limit int) ([]ScriptStats, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT script, renders, errors, total_micros, first_seen, last_seen, last_error
        FROM stats_script ORDER BY renders DESC, script LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query script stats: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	out := []ScriptStats{}
	for rows.Next() {
		var st ScriptStats
		var micros, first, last int64
		if err = rows.Scan(&st.Script, &st.Renders, &st.Errors, &micros, &first, &last, &st.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan script stats: %w", err)
		}
		if st.Renders > 0 {
			st.AverageTime = time.Duration(micros/st.Renders) * time.Microsecond
		}
		st.FirstSeen = time.Unix(first, 0).UTC()
		st.LastSeen = time.Unix(last, 0).UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *StatsAPI) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}
	var summary StatsSummary
	err := s.db.QueryRowContext(r.Context(),
		"SELECT COALESCE(SUM(renders), 0), COALESCE(SUM(errors), 0), COUNT(*) FROM stats_script").
		Scan(&summary.TotalRenders, &summary.TotalErrors, &summary.Scripts)
	if err != nil {
		s.logger.Error("Failed to query stats summary", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (s *StatsAPI) handleScripts(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) || !requireScope(w, r, scopeStatsRead) {
		return
	}
	stats, err := s.Scripts(r.Context(), 100)
	if err != nil {
		s.logger.Error("Failed to query script stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
