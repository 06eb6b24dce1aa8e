package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

func TestReaperSweep(t *testing.T) {
	env := newTestEnv(t)
	env.provider.fallback = evalFallback
	ctx := context.Background()

	staleActive := env.activeSession(t)
	stalePaused := env.activeSession(t)
	_, err := env.sessions.PauseSession(ctx, stalePaused.ID)
	require.NoError(t, err)
	freshActive := env.activeSession(t)
	staleCreated := env.createSession(t)

	twoHoursAgo := time.Now().Add(-2 * time.Hour)
	for _, id := range []string{staleActive.ID, stalePaused.ID, staleCreated.ID} {
		require.NoError(t, env.store.TouchSession(ctx, id, twoHoursAgo))
	}

	reaper := NewSessionReaper(env.sessions, SessionsConfig{IdleTimeout: 30 * time.Minute, ReapInterval: time.Minute})
	reaper.sweep(ctx)

	for _, id := range []string{staleActive.ID, stalePaused.ID} {
		session, err := env.sessions.GetSession(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, session.Status, "stale session %s is ended", id)

		report, err := env.evaluator.GetEvaluation(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, report, "reaped sessions still get their report")

		trail, err := env.sessions.AuditTrail(ctx, id)
		require.NoError(t, err)
		last := trail[len(trail)-1]
		assert.Equal(t, "session.end", last.Action)
		assert.Equal(t, "cause=idle_timeout", last.Detail)
	}

	fresh, err := env.sessions.GetSession(ctx, freshActive.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, fresh.Status, "recently touched sessions are left alone")

	created, err := env.sessions.GetSession(ctx, staleCreated.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, created.Status, "sessions that never started are not reaped")
}

func TestReaperSweepContinuesPastFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	older := env.activeSession(t)
	newer := env.activeSession(t)
	require.NoError(t, env.store.TouchSession(ctx, older.ID, time.Now().Add(-2*time.Hour)))
	require.NoError(t, env.store.TouchSession(ctx, newer.ID, time.Now().Add(-time.Hour)))

	// Sessions are reaped oldest first. The older one fails its feedback
	// step; the newer one evaluates from the fallback payload.
	env.provider.fail(errs.New(errs.KindAIProvider, "model overloaded"))
	env.provider.fail(errs.New(errs.KindAIProvider, "model overloaded"))
	env.provider.fallback = evalFallback

	reaper := NewSessionReaper(env.sessions, SessionsConfig{IdleTimeout: 30 * time.Minute, ReapInterval: time.Minute})
	reaper.sweep(ctx)

	olderAfter, err := env.sessions.GetSession(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, olderAfter.Status, "the end transition commits even when evaluation fails")
	olderReport, err := env.evaluator.GetEvaluation(ctx, older.ID)
	require.NoError(t, err)
	assert.Nil(t, olderReport)

	newerReport, err := env.evaluator.GetEvaluation(ctx, newer.ID)
	require.NoError(t, err)
	assert.NotNil(t, newerReport, "one failed session does not stop the sweep")
}

func TestReaperDisabled(t *testing.T) {
	env := newTestEnv(t)

	// Run returns immediately instead of ticking when either knob is off.
	NewSessionReaper(env.sessions, SessionsConfig{IdleTimeout: 0, ReapInterval: time.Minute}).Run(context.Background())
	NewSessionReaper(env.sessions, SessionsConfig{IdleTimeout: time.Minute, ReapInterval: 0}).Run(context.Background())
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewSessionReaper(env.sessions, SessionsConfig{IdleTimeout: time.Hour, ReapInterval: 5 * time.Millisecond}).Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
}
