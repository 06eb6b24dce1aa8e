package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/rehearsal-ai/backend/models"
)

// GORMStore is the Postgres-backed Store. It performs no retries of its
// own; wrap it with NewStore to apply the retry policy.
type GORMStore struct {
	db *gorm.DB
}

func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

var _ Store = (*GORMStore)(nil)

// Migrate creates or updates the schema for every registered model.
func (r *GORMStore) Migrate() error {
	if err := r.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	slog.Info("Database schema migrated")
	return nil
}

// Sessions

func (r *GORMStore) CreateSession(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create session", "error", err, "session_id", session.ID)
		return fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("Session created", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

func (r *GORMStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (r *GORMStore) ListSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, error) {
	var sessions []models.Session
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (r *GORMStore) CountSessions(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Session{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

func (r *GORMStore) TransitionSession(ctx context.Context, id string, allowedFrom []string, to string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":           to,
		"last_activity_at": at,
	}
	switch to {
	case models.StatusActive:
		updates["started_at"] = gorm.Expr("COALESCE(started_at, ?)", at)
	case models.StatusCompleted:
		updates["ended_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		slog.Error("Failed to update session status", "error", res.Error, "session_id", id, "to", to)
		return false, fmt.Errorf("failed to update session status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *GORMStore) SetSessionActiveModes(ctx context.Context, id string, modes models.StringList) error {
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("active_modes", modes).Error
	if err != nil {
		slog.Error("Failed to set active modes", "error", err, "session_id", id)
		return fmt.Errorf("failed to set active modes: %w", err)
	}
	return nil
}

func (r *GORMStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Update("last_activity_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *GORMStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.WithContext(ctx).
		Where("status IN ? AND last_activity_at < ?", []string{models.StatusActive, models.StatusPaused}, cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list idle sessions: %w", err)
	}
	return sessions, nil
}

func (r *GORMStore) DeleteSession(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error; err != nil {
		slog.Error("Failed to delete session", "error", err, "session_id", id)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("Session deleted", "session_id", id)
	return nil
}

// Conversation

func (r *GORMStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		slog.Error("Failed to append message", "error", err, "session_id", msg.SessionID, "role", msg.Role)
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (r *GORMStore) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	return messages, nil
}

func (r *GORMStore) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Where("session_id = ?", sessionID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// Media

func (r *GORMStore) SaveMediaFile(ctx context.Context, file *models.MediaFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		slog.Error("Failed to save media file", "error", err, "session_id", file.SessionID, "kind", file.Kind, "sequence", file.Sequence)
		return fmt.Errorf("failed to save media file: %w", err)
	}
	slog.Info("Media file saved", "session_id", file.SessionID, "kind", file.Kind, "sequence", file.Sequence)
	return nil
}

func (r *GORMStore) GetMediaFiles(ctx context.Context, sessionID, kind string) ([]models.MediaFile, error) {
	var files []models.MediaFile
	query := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	if err := query.Order("kind ASC, sequence ASC").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to get media files: %w", err)
	}
	return files, nil
}

func (r *GORMStore) NextMediaSequence(ctx context.Context, sessionID, kind string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&models.MediaFile{}).
		Where("session_id = ? AND kind = ?", sessionID, kind).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get next media sequence: %w", err)
	}
	return max + 1, nil
}

// Usage

func (r *GORMStore) AppendUsageRecord(ctx context.Context, rec *models.TokenUsageRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		slog.Error("Failed to append usage record", "error", err, "session_id", rec.SessionID, "operation", rec.Operation)
		return fmt.Errorf("failed to append usage record: %w", err)
	}
	return nil
}

func (r *GORMStore) GetSessionUsage(ctx context.Context, sessionID string) (*models.SessionUsage, error) {
	var row struct {
		InputTokens    int64
		OutputTokens   int64
		TotalTokens    int64
		CostMilliCents int64
	}
	err := r.db.WithContext(ctx).Model(&models.TokenUsageRecord{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(SUM(input_tokens), 0) AS input_tokens, COALESCE(SUM(output_tokens), 0) AS output_tokens, COALESCE(SUM(total_tokens), 0) AS total_tokens, COALESCE(SUM(cost_milli_cents), 0) AS cost_milli_cents").
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session usage: %w", err)
	}
	return &models.SessionUsage{
		SessionID:      sessionID,
		InputTokens:    row.InputTokens,
		OutputTokens:   row.OutputTokens,
		TotalTokens:    row.TotalTokens,
		CostMilliCents: row.CostMilliCents,
		CostUSD:        models.USDFromMilliCents(row.CostMilliCents),
	}, nil
}

func (r *GORMStore) GetUsageBreakdown(ctx context.Context, sessionID string) ([]models.OperationUsage, error) {
	var rows []models.OperationUsage
	err := r.db.WithContext(ctx).Model(&models.TokenUsageRecord{}).
		Where("session_id = ?", sessionID).
		Select("operation, COUNT(*) AS calls, SUM(input_tokens) AS input_tokens, SUM(output_tokens) AS output_tokens, SUM(total_tokens) AS total_tokens, SUM(cost_milli_cents) AS cost_milli_cents").
		Group("operation").
		Order("operation ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage breakdown: %w", err)
	}
	return rows, nil
}

// Evaluations

func (r *GORMStore) SaveEvaluationReport(ctx context.Context, report *models.EvaluationReport) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		slog.Error("Failed to save evaluation report", "error", err, "session_id", report.SessionID)
		return fmt.Errorf("failed to save evaluation report: %w", err)
	}
	slog.Info("Evaluation report saved", "session_id", report.SessionID, "overall_score", report.OverallScore)
	return nil
}

func (r *GORMStore) GetEvaluationReport(ctx context.Context, sessionID string) (*models.EvaluationReport, error) {
	var report models.EvaluationReport
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation report: %w", err)
	}
	return &report, nil
}

// Users and tokens

func (r *GORMStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err, "email", user.Email)
		return fmt.Errorf("failed to create user: %w", err)
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

func (r *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (r *GORMStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err, "user_id", token.UserID)
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

func (r *GORMStore) GetRefreshToken(ctx context.Context, hashedToken string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", hashedToken, time.Now()).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &token, nil
}

func (r *GORMStore) DeleteUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete user tokens: %w", err)
	}
	return nil
}

// Resumes

func (r *GORMStore) CreateResume(ctx context.Context, resume *models.Resume) error {
	if err := r.db.WithContext(ctx).Create(resume).Error; err != nil {
		slog.Error("Failed to create resume", "error", err, "user_id", resume.UserID)
		return fmt.Errorf("failed to create resume: %w", err)
	}
	slog.Info("Resume created", "resume_id", resume.ID, "user_id", resume.UserID)
	return nil
}

func (r *GORMStore) GetResume(ctx context.Context, id, userID string) (*models.Resume, error) {
	var resume models.Resume
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&resume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resume: %w", err)
	}
	return &resume, nil
}

func (r *GORMStore) ListResumes(ctx context.Context, userID string) ([]models.Resume, error) {
	var resumes []models.Resume
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&resumes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}
	return resumes, nil
}

func (r *GORMStore) UpdateResume(ctx context.Context, resume *models.Resume) error {
	if err := r.db.WithContext(ctx).Save(resume).Error; err != nil {
		slog.Error("Failed to update resume", "error", err, "resume_id", resume.ID)
		return fmt.Errorf("failed to update resume: %w", err)
	}
	return nil
}

func (r *GORMStore) DeleteResume(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Resume{}).Error; err != nil {
		return fmt.Errorf("failed to delete resume: %w", err)
	}
	return nil
}

// Audit

func (r *GORMStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}

func (r *GORMStore) ListAuditLogs(ctx context.Context, sessionID string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}

func (r *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
