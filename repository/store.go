// Package repository owns every persistence concern of the backend: the
// Store contract consumed by the services, a GORM/Postgres implementation,
// an in-memory implementation, and the bounded-retry decorator that is the
// only place transient persistence failures are retried.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rehearsal-ai/backend/models"
)

// ErrDuplicateKey is returned by store implementations when an insert
// collides with an existing primary key or unique index. Use
// IsUniqueViolation to test for it across implementations.
var ErrDuplicateKey = errors.New("duplicate key")

// RetryPolicy bounds how persistence calls are retried at the store
// boundary. It is never applied to provider calls.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns the policy used when configuration supplies
// nothing: three attempts, 100ms initial backoff doubling up to 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Store is the persistence contract consumed by all services. Getters
// return (nil, nil) when the record does not exist.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, error)
	CountSessions(ctx context.Context, userID string) (int64, error)
	// TransitionSession updates the status only when the current status is
	// in allowedFrom, stamping started_at/ended_at as the target requires.
	// It reports whether a row was updated.
	TransitionSession(ctx context.Context, id string, allowedFrom []string, to string, at time.Time) (bool, error)
	SetSessionActiveModes(ctx context.Context, id string, modes models.StringList) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error)
	DeleteSession(ctx context.Context, id string) error

	// Conversation
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, sessionID string) ([]models.Message, error)
	CountMessages(ctx context.Context, sessionID string) (int64, error)

	// Media
	SaveMediaFile(ctx context.Context, file *models.MediaFile) error
	GetMediaFiles(ctx context.Context, sessionID, kind string) ([]models.MediaFile, error)
	NextMediaSequence(ctx context.Context, sessionID, kind string) (int, error)

	// Usage
	AppendUsageRecord(ctx context.Context, rec *models.TokenUsageRecord) error
	GetSessionUsage(ctx context.Context, sessionID string) (*models.SessionUsage, error)
	GetUsageBreakdown(ctx context.Context, sessionID string) ([]models.OperationUsage, error)

	// Evaluations
	SaveEvaluationReport(ctx context.Context, report *models.EvaluationReport) error
	GetEvaluationReport(ctx context.Context, sessionID string) (*models.EvaluationReport, error)

	// Users and tokens
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, hashedToken string) (*models.RefreshToken, error)
	DeleteUserTokens(ctx context.Context, userID string) error

	// Resumes
	CreateResume(ctx context.Context, resume *models.Resume) error
	GetResume(ctx context.Context, id, userID string) (*models.Resume, error)
	ListResumes(ctx context.Context, userID string) ([]models.Resume, error)
	UpdateResume(ctx context.Context, resume *models.Resume) error
	DeleteResume(ctx context.Context, id string) error

	// Audit
	AppendAuditLog(ctx context.Context, entry *models.AuditLog) error
	ListAuditLogs(ctx context.Context, sessionID string) ([]models.AuditLog, error)

	HealthCheck(ctx context.Context) error
}
