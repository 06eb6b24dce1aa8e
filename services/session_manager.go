package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

// Bounds applied to resume data at validation time.
const (
	MinYearsExperience = 0
	MaxYearsExperience = 60
)

// Pagination bounds for session listings.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// SessionManager owns the session lifecycle: creation-time validation,
// the status state machine, and the handoff to evaluation when a session
// ends. Status moves only forward: created, active and completed occur
// in that order, active and paused may alternate, completed is terminal.
type SessionManager struct {
	store     repository.Store
	locks     *SessionLocks
	pricing   *PricingTable
	evaluator *EvaluationManager
}

func NewSessionManager(store repository.Store, locks *SessionLocks, pricing *PricingTable, evaluator *EvaluationManager) *SessionManager {
	return &SessionManager{
		store:     store,
		locks:     locks,
		pricing:   pricing,
		evaluator: evaluator,
	}
}

// dedupeModes drops repeated mode names, keeping first-seen order.
func dedupeModes(modes models.StringList) models.StringList {
	seen := make(map[string]bool, len(modes))
	out := make(models.StringList, 0, len(modes))
	for _, mode := range modes {
		if !seen[mode] {
			seen[mode] = true
			out = append(out, mode)
		}
	}
	return out
}

// validateResumeData rejects resume fields before anything is persisted.
func validateResumeData(data models.ResumeData) error {
	if strings.TrimSpace(data.Identifier) == "" {
		return errs.New(errs.KindConfiguration, "resume identifier must not be empty")
	}
	if data.YearsExperience < MinYearsExperience || data.YearsExperience > MaxYearsExperience {
		return errs.Newf(errs.KindConfiguration, "resume years of experience must be between %d and %d", MinYearsExperience, MaxYearsExperience)
	}
	for _, domain := range data.Domains {
		if strings.TrimSpace(domain) == "" {
			return errs.New(errs.KindConfiguration, "resume domains must not contain empty entries")
		}
	}
	return nil
}

func (m *SessionManager) validateConfig(config models.SessionConfig) error {
	if len(config.EnabledModes) == 0 {
		return errs.New(errs.KindConfiguration, "at least one communication mode must be enabled")
	}
	for _, mode := range config.EnabledModes {
		if !models.StringList(models.KnownModes).Contains(mode) {
			return errs.Newf(errs.KindConfiguration, "unknown communication mode %q, known modes are %s", mode, strings.Join(models.KnownModes, ", "))
		}
	}
	if !m.pricing.Recognized(config.AIProvider, config.AIModel) {
		return errs.Newf(errs.KindConfiguration, "unsupported provider/model pairing %s/%s", config.AIProvider, config.AIModel)
	}
	if config.HasResume() {
		return validateResumeData(config.ResumeData)
	}
	return nil
}

// CreateSession validates the config and persists a new session in
// created status with every enabled mode active.
func (m *SessionManager) CreateSession(ctx context.Context, userID string, config models.SessionConfig) (*models.Session, error) {
	if userID == "" {
		return nil, errs.New(errs.KindConfiguration, "session user id must not be empty")
	}
	config.EnabledModes = dedupeModes(config.EnabledModes)
	if err := m.validateConfig(config); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		Config:         config,
		ActiveModes:    append(models.StringList{}, config.EnabledModes...),
		Status:         models.StatusCreated,
		CreatedAt:      now,
		LastActivityAt: now,
		UpdatedAt:      now,
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	m.audit(ctx, session.ID, userID, "session.create",
		fmt.Sprintf("provider=%s model=%s modes=%s", config.AIProvider, config.AIModel, strings.Join(config.EnabledModes, ",")))
	slog.Info("Session created", "session_id", session.ID, "user_id", userID, "provider", config.AIProvider, "model", config.AIModel)
	return session, nil
}

// AttachResume copies a stored resume into the config. The resume must
// belong to the given user.
func (m *SessionManager) AttachResume(ctx context.Context, userID, resumeID string, config *models.SessionConfig) error {
	resume, err := m.store.GetResume(ctx, resumeID, userID)
	if err != nil {
		return err
	}
	if resume == nil {
		return errs.Newf(errs.KindConfiguration, "resume %s not found", resumeID)
	}
	config.ResumeData = resume.Data()
	return nil
}

// GetSession returns a session by id, nil when it does not exist.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return m.store.GetSession(ctx, id)
}

// ListSessions returns one page of a user's sessions, newest first,
// together with the total count.
func (m *SessionManager) ListSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, int64, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	sessions, err := m.store.ListSessions(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := m.store.CountSessions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return sessions, count, nil
}

// StartSession moves a session from created to active.
func (m *SessionManager) StartSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.transition(ctx, id, []string{models.StatusCreated}, models.StatusActive)
	if err != nil {
		return nil, err
	}
	m.audit(ctx, id, session.UserID, "session.start", "")
	return session, nil
}

// PauseSession moves a session from active to paused.
func (m *SessionManager) PauseSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.transition(ctx, id, []string{models.StatusActive}, models.StatusPaused)
	if err != nil {
		return nil, err
	}
	m.audit(ctx, id, session.UserID, "session.pause", "")
	return session, nil
}

// ResumeSession moves a session from paused back to active.
func (m *SessionManager) ResumeSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.transition(ctx, id, []string{models.StatusPaused}, models.StatusActive)
	if err != nil {
		return nil, err
	}
	m.audit(ctx, id, session.UserID, "session.resume", "")
	return session, nil
}

// EndSession completes a session and generates its evaluation report.
// The terminal transition commits first: if any evaluation step fails
// afterwards, the session stays completed and the report can be
// regenerated through the evaluation manager. Ending a session twice
// fails on the status check.
func (m *SessionManager) EndSession(ctx context.Context, id string) (*models.EvaluationReport, error) {
	return m.endSession(ctx, id, "")
}

// EndIdleSession ends a session on behalf of the reaper, marking the
// audit entry with the idle-timeout cause.
func (m *SessionManager) EndIdleSession(ctx context.Context, id string) (*models.EvaluationReport, error) {
	return m.endSession(ctx, id, "cause=idle_timeout")
}

// ListIdleSessions returns active or paused sessions with no activity
// since the cutoff, oldest first.
func (m *SessionManager) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	return m.store.ListIdleSessions(ctx, cutoff)
}

func (m *SessionManager) endSession(ctx context.Context, id, detail string) (*models.EvaluationReport, error) {
	unlock := m.locks.Lock(id)
	session, err := m.transitionLocked(ctx, id, []string{models.StatusActive, models.StatusPaused}, models.StatusCompleted)
	if err != nil {
		unlock()
		return nil, err
	}
	m.audit(ctx, id, session.UserID, "session.end", detail)
	slog.Info("Session completed", "session_id", id)
	unlock()

	report, err := m.evaluator.GenerateEvaluation(ctx, id)
	if err != nil {
		slog.Error("Evaluation failed after session end", "error", err, "session_id", id)
		return nil, err
	}
	m.locks.Forget(id)
	return report, nil
}

// DeleteSession removes a session. Its conversation, media records and
// usage history are retained for audit.
func (m *SessionManager) DeleteSession(ctx context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return errs.Newf(errs.KindConfiguration, "session %s not found", id)
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return err
	}
	m.locks.Forget(id)
	m.audit(ctx, id, session.UserID, "session.delete", "")
	return nil
}

// AuditTrail returns the audit entries of one session in write order.
func (m *SessionManager) AuditTrail(ctx context.Context, sessionID string) ([]models.AuditLog, error) {
	return m.store.ListAuditLogs(ctx, sessionID)
}

// transition applies one status move under the session lock.
func (m *SessionManager) transition(ctx context.Context, id string, allowedFrom []string, to string) (*models.Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()
	return m.transitionLocked(ctx, id, allowedFrom, to)
}

// transitionLocked applies the conditional status update and returns the
// refreshed session. The store-level WHERE clause keeps the move atomic
// across processes; a move the current status does not allow updates
// nothing and surfaces as a configuration error.
func (m *SessionManager) transitionLocked(ctx context.Context, id string, allowedFrom []string, to string) (*models.Session, error) {
	session, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s not found", id)
	}

	updated, err := m.store.TransitionSession(ctx, id, allowedFrom, to, time.Now())
	if err != nil {
		return nil, err
	}
	if !updated {
		if current, gerr := m.store.GetSession(ctx, id); gerr == nil && current != nil {
			session = current
		}
		return nil, errs.Newf(errs.KindConfiguration, "session %s cannot move from %s to %s", id, session.Status, to)
	}

	refreshed, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s disappeared during status update", id)
	}
	return refreshed, nil
}

// audit appends one lifecycle record. Audit writes are best-effort and
// never fail the operation they describe.
func (m *SessionManager) audit(ctx context.Context, sessionID, userID, action, detail string) {
	entry := &models.AuditLog{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now(),
	}
	if err := m.store.AppendAuditLog(ctx, entry); err != nil {
		slog.Warn("Failed to append audit log", "error", err, "session_id", sessionID, "action", action)
	}
}
