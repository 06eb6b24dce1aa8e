package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

const pgUniqueViolation = "23505"

// IsTransient reports whether err looks like a connectivity or contention
// failure worth retrying. Context cancellation and constraint violations
// are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions. Class 40: serialization
		// failures and deadlocks. Class 53: resource exhaustion.
		// 57P01: admin shutdown.
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "40"),
			strings.HasPrefix(pgErr.Code, "53"),
			pgErr.Code == "57P01":
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// IsUniqueViolation reports whether err is a primary-key or unique-index
// collision, across the Postgres and in-memory store implementations.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateKey) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// backoffDelay computes the delay before the given retry attempt:
// exponential growth capped at MaxBackoff, with full jitter so concurrent
// retries spread out.
func backoffDelay(attempt int, p RetryPolicy) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff >= p.MaxBackoff {
			backoff = p.MaxBackoff
			break
		}
	}
	jitter := rand.Int64N(backoff.Milliseconds() + 1)
	return time.Duration(jitter) * time.Millisecond
}

// WithRetry runs fn under the policy: transient failures are retried with
// backoff until the attempt budget runs out, anything else fails
// immediately. Every error leaving this function carries the data_store
// kind and names the database so callers can remediate.
func WithRetry(ctx context.Context, policy RetryPolicy, op string, fn func() error) error {
	p := policy.normalized()
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return errs.Wrapf(errs.KindDataStore, err, "%s failed against the database", op)
		}
		if attempt == p.MaxAttempts {
			break
		}
		delay := backoffDelay(attempt, p)
		slog.Warn("Transient database error, retrying", "operation", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errs.Wrapf(errs.KindDataStore, ctx.Err(), "%s abandoned while waiting to retry against the database", op)
		}
	}
	return errs.Wrapf(errs.KindDataStore, err, "%s failed after %d attempts against the database", op, p.MaxAttempts)
}

// RetryingStore applies the retry policy at the store boundary. Inserts
// keyed by caller-generated UUIDs and absolute-value updates are safe to
// repeat; the conditional status transition is not, so it passes through
// with a single attempt.
type RetryingStore struct {
	inner  Store
	policy RetryPolicy
}

// NewStore wraps inner with the bounded-retry policy. This is the Store
// the services are handed.
func NewStore(inner Store, policy RetryPolicy) *RetryingStore {
	return &RetryingStore{inner: inner, policy: policy.normalized()}
}

var _ Store = (*RetryingStore)(nil)

func (s *RetryingStore) CreateSession(ctx context.Context, session *models.Session) error {
	return WithRetry(ctx, s.policy, "create session", func() error {
		return s.inner.CreateSession(ctx, session)
	})
}

func (s *RetryingStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var out *models.Session
	err := WithRetry(ctx, s.policy, "get session", func() error {
		var err error
		out, err = s.inner.GetSession(ctx, id)
		return err
	})
	return out, err
}

func (s *RetryingStore) ListSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, error) {
	var out []models.Session
	err := WithRetry(ctx, s.policy, "list sessions", func() error {
		var err error
		out, err = s.inner.ListSessions(ctx, userID, limit, offset)
		return err
	})
	return out, err
}

func (s *RetryingStore) CountSessions(ctx context.Context, userID string) (int64, error) {
	var out int64
	err := WithRetry(ctx, s.policy, "count sessions", func() error {
		var err error
		out, err = s.inner.CountSessions(ctx, userID)
		return err
	})
	return out, err
}

func (s *RetryingStore) TransitionSession(ctx context.Context, id string, allowedFrom []string, to string, at time.Time) (bool, error) {
	// Not retried: a transition resent after an applied-but-unacked
	// update would report the wrong outcome.
	ok, err := s.inner.TransitionSession(ctx, id, allowedFrom, to, at)
	if err != nil {
		return false, errs.Wrap(errs.KindDataStore, err, "session status update failed against the database")
	}
	return ok, nil
}

func (s *RetryingStore) SetSessionActiveModes(ctx context.Context, id string, modes models.StringList) error {
	return WithRetry(ctx, s.policy, "set session active modes", func() error {
		return s.inner.SetSessionActiveModes(ctx, id, modes)
	})
}

func (s *RetryingStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	return WithRetry(ctx, s.policy, "touch session", func() error {
		return s.inner.TouchSession(ctx, id, at)
	})
}

func (s *RetryingStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	var out []models.Session
	err := WithRetry(ctx, s.policy, "list idle sessions", func() error {
		var err error
		out, err = s.inner.ListIdleSessions(ctx, cutoff)
		return err
	})
	return out, err
}

func (s *RetryingStore) DeleteSession(ctx context.Context, id string) error {
	return WithRetry(ctx, s.policy, "delete session", func() error {
		return s.inner.DeleteSession(ctx, id)
	})
}

func (s *RetryingStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	return WithRetry(ctx, s.policy, "append message", func() error {
		return s.inner.AppendMessage(ctx, msg)
	})
}

func (s *RetryingStore) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	var out []models.Message
	err := WithRetry(ctx, s.policy, "get messages", func() error {
		var err error
		out, err = s.inner.GetMessages(ctx, sessionID)
		return err
	})
	return out, err
}

func (s *RetryingStore) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var out int64
	err := WithRetry(ctx, s.policy, "count messages", func() error {
		var err error
		out, err = s.inner.CountMessages(ctx, sessionID)
		return err
	})
	return out, err
}

func (s *RetryingStore) SaveMediaFile(ctx context.Context, file *models.MediaFile) error {
	return WithRetry(ctx, s.policy, "save media file", func() error {
		return s.inner.SaveMediaFile(ctx, file)
	})
}

func (s *RetryingStore) GetMediaFiles(ctx context.Context, sessionID, kind string) ([]models.MediaFile, error) {
	var out []models.MediaFile
	err := WithRetry(ctx, s.policy, "get media files", func() error {
		var err error
		out, err = s.inner.GetMediaFiles(ctx, sessionID, kind)
		return err
	})
	return out, err
}

func (s *RetryingStore) NextMediaSequence(ctx context.Context, sessionID, kind string) (int, error) {
	var out int
	err := WithRetry(ctx, s.policy, "next media sequence", func() error {
		var err error
		out, err = s.inner.NextMediaSequence(ctx, sessionID, kind)
		return err
	})
	return out, err
}

func (s *RetryingStore) AppendUsageRecord(ctx context.Context, rec *models.TokenUsageRecord) error {
	return WithRetry(ctx, s.policy, "append usage record", func() error {
		return s.inner.AppendUsageRecord(ctx, rec)
	})
}

func (s *RetryingStore) GetSessionUsage(ctx context.Context, sessionID string) (*models.SessionUsage, error) {
	var out *models.SessionUsage
	err := WithRetry(ctx, s.policy, "get session usage", func() error {
		var err error
		out, err = s.inner.GetSessionUsage(ctx, sessionID)
		return err
	})
	return out, err
}

func (s *RetryingStore) GetUsageBreakdown(ctx context.Context, sessionID string) ([]models.OperationUsage, error) {
	var out []models.OperationUsage
	err := WithRetry(ctx, s.policy, "get usage breakdown", func() error {
		var err error
		out, err = s.inner.GetUsageBreakdown(ctx, sessionID)
		return err
	})
	return out, err
}

func (s *RetryingStore) SaveEvaluationReport(ctx context.Context, report *models.EvaluationReport) error {
	return WithRetry(ctx, s.policy, "save evaluation report", func() error {
		return s.inner.SaveEvaluationReport(ctx, report)
	})
}

func (s *RetryingStore) GetEvaluationReport(ctx context.Context, sessionID string) (*models.EvaluationReport, error) {
	var out *models.EvaluationReport
	err := WithRetry(ctx, s.policy, "get evaluation report", func() error {
		var err error
		out, err = s.inner.GetEvaluationReport(ctx, sessionID)
		return err
	})
	return out, err
}

func (s *RetryingStore) CreateUser(ctx context.Context, user *models.User) error {
	return WithRetry(ctx, s.policy, "create user", func() error {
		return s.inner.CreateUser(ctx, user)
	})
}

func (s *RetryingStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	err := WithRetry(ctx, s.policy, "get user by email", func() error {
		var err error
		out, err = s.inner.GetUserByEmail(ctx, email)
		return err
	})
	return out, err
}

func (s *RetryingStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := WithRetry(ctx, s.policy, "get user by id", func() error {
		var err error
		out, err = s.inner.GetUserByID(ctx, id)
		return err
	})
	return out, err
}

func (s *RetryingStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return WithRetry(ctx, s.policy, "create refresh token", func() error {
		return s.inner.CreateRefreshToken(ctx, token)
	})
}

func (s *RetryingStore) GetRefreshToken(ctx context.Context, hashedToken string) (*models.RefreshToken, error) {
	var out *models.RefreshToken
	err := WithRetry(ctx, s.policy, "get refresh token", func() error {
		var err error
		out, err = s.inner.GetRefreshToken(ctx, hashedToken)
		return err
	})
	return out, err
}

func (s *RetryingStore) DeleteUserTokens(ctx context.Context, userID string) error {
	return WithRetry(ctx, s.policy, "delete user tokens", func() error {
		return s.inner.DeleteUserTokens(ctx, userID)
	})
}

func (s *RetryingStore) CreateResume(ctx context.Context, resume *models.Resume) error {
	return WithRetry(ctx, s.policy, "create resume", func() error {
		return s.inner.CreateResume(ctx, resume)
	})
}

func (s *RetryingStore) GetResume(ctx context.Context, id, userID string) (*models.Resume, error) {
	var out *models.Resume
	err := WithRetry(ctx, s.policy, "get resume", func() error {
		var err error
		out, err = s.inner.GetResume(ctx, id, userID)
		return err
	})
	return out, err
}

func (s *RetryingStore) ListResumes(ctx context.Context, userID string) ([]models.Resume, error) {
	var out []models.Resume
	err := WithRetry(ctx, s.policy, "list resumes", func() error {
		var err error
		out, err = s.inner.ListResumes(ctx, userID)
		return err
	})
	return out, err
}

func (s *RetryingStore) UpdateResume(ctx context.Context, resume *models.Resume) error {
	return WithRetry(ctx, s.policy, "update resume", func() error {
		return s.inner.UpdateResume(ctx, resume)
	})
}

func (s *RetryingStore) DeleteResume(ctx context.Context, id string) error {
	return WithRetry(ctx, s.policy, "delete resume", func() error {
		return s.inner.DeleteResume(ctx, id)
	})
}

func (s *RetryingStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	return WithRetry(ctx, s.policy, "append audit log", func() error {
		return s.inner.AppendAuditLog(ctx, entry)
	})
}

func (s *RetryingStore) ListAuditLogs(ctx context.Context, sessionID string) ([]models.AuditLog, error) {
	var out []models.AuditLog
	err := WithRetry(ctx, s.policy, "list audit logs", func() error {
		var err error
		out, err = s.inner.ListAuditLogs(ctx, sessionID)
		return err
	})
	return out, err
}

func (s *RetryingStore) HealthCheck(ctx context.Context) error {
	return WithRetry(ctx, s.policy, "health check", func() error {
		return s.inner.HealthCheck(ctx)
	})
}
