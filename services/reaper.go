package services

import (
	"context"
	"log/slog"
	"time"
)

// SessionReaper ends sessions that have gone idle. A session counts as
// idle when it is active or paused and nothing has touched it for the
// configured timeout. Reaped sessions go through the normal end path,
// so they still get an evaluation report.
type SessionReaper struct {
	sessions    *SessionManager
	idleTimeout time.Duration
	interval    time.Duration
}

func NewSessionReaper(sessions *SessionManager, cfg SessionsConfig) *SessionReaper {
	return &SessionReaper{
		sessions:    sessions,
		idleTimeout: cfg.IdleTimeout,
		interval:    cfg.ReapInterval,
	}
}

// Run sweeps for idle sessions until ctx is cancelled.
func (s *SessionReaper) Run(ctx context.Context) {
	if s.idleTimeout <= 0 || s.interval <= 0 {
		slog.Info("Session reaper disabled", "idle_timeout", s.idleTimeout, "interval", s.interval)
		return
	}

	slog.Info("Session reaper started", "idle_timeout", s.idleTimeout, "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Session reaper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep ends every session idle past the cutoff. Failures are logged
// and skipped; the session stays eligible for the next sweep.
func (s *SessionReaper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.idleTimeout)
	idle, err := s.sessions.ListIdleSessions(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to list idle sessions", "error", err)
		return
	}

	for _, session := range idle {
		slog.Info("Session idle past timeout, ending it",
			"session_id", session.ID,
			"status", session.Status,
			"idle_since", session.LastActivityAt)

		if _, err := s.sessions.EndIdleSession(ctx, session.ID); err != nil {
			slog.Error("Failed to end idle session", "error", err, "session_id", session.ID)
			continue
		}
	}
}
