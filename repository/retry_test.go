package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"wrapped context canceled", fmt.Errorf("query: %w", context.Canceled), false},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"pg serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"pg too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"pg admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"pg syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"wrapped pg connection error", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "08003"}), true},
		{"net error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")}, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"wrapped connection reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"broken pipe", syscall.EPIPE, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrDuplicateKey, true},
		{"wrapped sentinel", fmt.Errorf("append message: %w", ErrDuplicateKey), true},
		{"gorm duplicated key", gorm.ErrDuplicatedKey, true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"pg foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"unrelated error with same text", errors.New("duplicate key"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     400 * time.Millisecond,
		Multiplier:     2.0,
	}

	limits := []struct {
		attempt int
		max     time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 400 * time.Millisecond},
		{5, 400 * time.Millisecond},
	}

	for _, l := range limits {
		for i := 0; i < 50; i++ {
			d := backoffDelay(l.attempt, p)
			assert.GreaterOrEqual(t, d, time.Duration(0), "attempt %d", l.attempt)
			assert.LessOrEqual(t, d, l.max, "attempt %d", l.attempt)
		}
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), RetryPolicy{}.normalized())

	p := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     1.5,
	}.normalized()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, p.InitialBackoff)
	assert.Equal(t, 2*time.Second, p.MaxBackoff, "max backoff below initial falls back to the default")
	assert.Equal(t, 1.5, p.Multiplier)
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy(), "create session", func() error {
		calls++
		if calls < 3 {
			return syscall.ECONNRESET
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryNonTransientFailsImmediately(t *testing.T) {
	cause := errors.New("column does not exist")
	calls := 0
	err := WithRetry(context.Background(), fastPolicy(), "create session", func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsDataStore(err))
	assert.Contains(t, err.Error(), "create session failed against the database")
	assert.True(t, errors.Is(err, cause), "the cause must survive the wrap")
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastPolicy(), "append message", func() error {
		calls++
		return syscall.ECONNRESET
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errs.IsDataStore(err))
	assert.Contains(t, err.Error(), "append message failed after 3 attempts against the database")
	assert.True(t, errors.Is(err, syscall.ECONNRESET))
}

func TestWithRetryStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	policy := RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
		Multiplier:     2.0,
	}

	calls := 0
	err := WithRetry(ctx, policy, "touch session", func() error {
		calls++
		cancel()
		return syscall.ECONNRESET
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errs.IsDataStore(err))
	assert.Contains(t, err.Error(), "touch session abandoned while waiting to retry against the database")
	assert.True(t, errors.Is(err, context.Canceled))
}

// countingFailStore fails CreateSession a fixed number of times before
// delegating to the wrapped store.
type countingFailStore struct {
	Store
	failures int
	err      error
	calls    int
}

func (s *countingFailStore) CreateSession(ctx context.Context, session *models.Session) error {
	s.calls++
	if s.failures > 0 {
		s.failures--
		return s.err
	}
	return s.Store.CreateSession(ctx, session)
}

// transitionFailStore always fails TransitionSession so the test can count
// attempts.
type transitionFailStore struct {
	Store
	err   error
	calls int
}

func (s *transitionFailStore) TransitionSession(ctx context.Context, id string, allowedFrom []string, to string, at time.Time) (bool, error) {
	s.calls++
	return false, s.err
}

func testSession() *models.Session {
	return &models.Session{
		ID:     uuid.NewString(),
		UserID: uuid.NewString(),
		Config: models.SessionConfig{
			EnabledModes: models.StringList{models.ModeText},
			AIProvider:   "google",
			AIModel:      "gemini-2.5-flash",
		},
		ActiveModes: models.StringList{models.ModeText},
		Status:      models.StatusCreated,
	}
}

func TestRetryingStoreRetriesIdempotentWrites(t *testing.T) {
	inner := &countingFailStore{Store: NewMemoryStore(), failures: 2, err: syscall.ECONNRESET}
	store := NewStore(inner, fastPolicy())

	session := testSession()
	require.NoError(t, store.CreateSession(context.Background(), session))
	assert.Equal(t, 3, inner.calls)

	got, err := store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.ID, got.ID)
}

func TestRetryingStoreTransitionSingleAttempt(t *testing.T) {
	inner := &transitionFailStore{Store: NewMemoryStore(), err: syscall.ECONNRESET}
	store := NewStore(inner, fastPolicy())

	ok, err := store.TransitionSession(context.Background(), uuid.NewString(),
		[]string{models.StatusCreated}, models.StatusActive, time.Now().UTC())

	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, inner.calls, "status transitions must not be retried")
	assert.True(t, errs.IsDataStore(err))
	assert.Contains(t, err.Error(), "session status update failed against the database")
	assert.True(t, errors.Is(err, syscall.ECONNRESET))
}

func TestRetryingStorePreservesUniqueViolation(t *testing.T) {
	inner := &countingFailStore{Store: NewMemoryStore(), failures: 1, err: ErrDuplicateKey}
	store := NewStore(inner, fastPolicy())

	err := store.CreateSession(context.Background(), testSession())

	require.Error(t, err)
	assert.Equal(t, 1, inner.calls, "unique violations are not transient")
	assert.True(t, errs.IsDataStore(err))
	assert.True(t, IsUniqueViolation(err), "callers must detect the duplicate through the wrap")
}
