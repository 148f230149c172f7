package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CTAG07/smartscript/pkg/session"
	"github.com/go-co-op/gocron/v2"
	"github.com/tevino/abool/v2"
)

// SessionSweeper periodically removes expired sessions.
type SessionSweeper struct {
	store     *session.Store
	logger    *slog.Logger
	running   *abool.AtomicBool
	scheduler gocron.Scheduler
	interval  time.Duration
}

func NewSessionSweeper(store *session.Store, interval time.Duration, logger *slog.Logger) *SessionSweeper {
	return &SessionSweeper{
		store:    store,
		logger:   logger,
		running:  abool.NewBool(false),
		interval: interval,
	}
}

// Sweep deletes the expired sessions once. ran is false when another sweep
// was still in progress.
func (s *SessionSweeper) Sweep(ctx context.Context) (removed int64, ran bool, err error) {
	if !s.running.SetToIf(false, true) {
		return 0, false, nil
	}
	defer s.running.UnSet()

	removed, err = s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, true, err
	}
	if removed > 0 {
		s.logger.Info("Expired sessions removed", "count", removed)
	}
	return removed, true, nil
}

func (s *SessionSweeper) task() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	if _, _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("Session sweep failed", "error", err)
	}
}

// Start schedules the sweep every interval.
func (s *SessionSweeper) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	job, err := scheduler.NewJob(gocron.DurationJob(s.interval), gocron.NewTask(s.task))
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	s.scheduler = scheduler
	s.scheduler.Start()
	s.logger.Info("Session sweep scheduled", "job", job.ID(), "interval", s.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (s *SessionSweeper) Stop() {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error("Scheduler shutdown failed", "error", err)
	}
	s.scheduler = nil
}
