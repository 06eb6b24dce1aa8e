package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rehearsal-ai/backend/models"
)

// MemoryStore is a Store backed by process memory. It powers tests and
// lets the server run without a database. All methods are safe for
// concurrent use; returned records are copies, so callers never share
// state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	sessions map[string]*models.Session
	messages map[string][]models.Message
	media    map[string][]models.MediaFile
	usage    map[string][]models.TokenUsageRecord
	reports  map[string]*models.EvaluationReport
	users    map[string]*models.User
	tokens   map[string]*models.RefreshToken
	resumes  map[string]*models.Resume
	audits   map[string][]models.AuditLog
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		messages: make(map[string][]models.Message),
		media:    make(map[string][]models.MediaFile),
		usage:    make(map[string][]models.TokenUsageRecord),
		reports:  make(map[string]*models.EvaluationReport),
		users:    make(map[string]*models.User),
		tokens:   make(map[string]*models.RefreshToken),
		resumes:  make(map[string]*models.Resume),
		audits:   make(map[string][]models.AuditLog),
	}
}

var _ Store = (*MemoryStore)(nil)

func cloneStringList(l models.StringList) models.StringList {
	if l == nil {
		return nil
	}
	return append(models.StringList{}, l...)
}

func cloneSession(s *models.Session) *models.Session {
	out := *s
	out.Config.EnabledModes = cloneStringList(s.Config.EnabledModes)
	out.Config.ResumeData.Domains = cloneStringList(s.Config.ResumeData.Domains)
	out.ActiveModes = cloneStringList(s.ActiveModes)
	out.User = nil
	return &out
}

func cloneReport(r *models.EvaluationReport) *models.EvaluationReport {
	out := *r
	out.CompetencyScores = make(models.CompetencyScores, len(r.CompetencyScores))
	for name, a := range r.CompetencyScores {
		a.Evidence = append([]string{}, a.Evidence...)
		out.CompetencyScores[name] = a
	}
	out.WentWell = append(models.FeedbackItems{}, r.WentWell...)
	out.WentOkay = append(models.FeedbackItems{}, r.WentOkay...)
	out.NeedsImprovement = append(models.FeedbackItems{}, r.NeedsImprovement...)
	out.ModeAnalysis.Modes = make(map[string]string, len(r.ModeAnalysis.Modes))
	for mode, text := range r.ModeAnalysis.Modes {
		out.ModeAnalysis.Modes[mode] = text
	}
	out.ImprovementPlan.PriorityAreas = append([]string{}, r.ImprovementPlan.PriorityAreas...)
	out.ImprovementPlan.Resources = append([]string{}, r.ImprovementPlan.Resources...)
	out.ImprovementPlan.ConcreteSteps = make([]models.ActionItem, len(r.ImprovementPlan.ConcreteSteps))
	for i, step := range r.ImprovementPlan.ConcreteSteps {
		step.Resources = append([]string{}, step.Resources...)
		out.ImprovementPlan.ConcreteSteps[i] = step
	}
	out.Session = nil
	return &out
}

func cloneResume(r *models.Resume) *models.Resume {
	out := *r
	out.Domains = cloneStringList(r.Domains)
	return &out
}

// Sessions

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.ID]; exists {
		return ErrDuplicateKey
	}
	m.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, userID string, limit, offset int) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sessions []*models.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			sessions = append(sessions, s)
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	if offset > 0 {
		if offset >= len(sessions) {
			return nil, nil
		}
		sessions = sessions[offset:]
	}
	if limit > 0 && limit < len(sessions) {
		sessions = sessions[:limit]
	}
	out := make([]models.Session, len(sessions))
	for i, s := range sessions {
		out[i] = *cloneSession(s)
	}
	return out, nil
}

func (m *MemoryStore) CountSessions(ctx context.Context, userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var count int64
	for _, s := range m.sessions {
		if s.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) TransitionSession(ctx context.Context, id string, allowedFrom []string, to string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, from := range allowedFrom {
		if session.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	session.Status = to
	session.LastActivityAt = at
	session.UpdatedAt = at
	switch to {
	case models.StatusActive:
		if session.StartedAt == nil {
			started := at
			session.StartedAt = &started
		}
	case models.StatusCompleted:
		ended := at
		session.EndedAt = &ended
	}
	return true, nil
}

func (m *MemoryStore) SetSessionActiveModes(ctx context.Context, id string, modes models.StringList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		session.ActiveModes = cloneStringList(modes)
	}
	return nil
}

func (m *MemoryStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		session.LastActivityAt = at
	}
	return nil
}

func (m *MemoryStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var idle []models.Session
	for _, s := range m.sessions {
		if (s.Status == models.StatusActive || s.Status == models.StatusPaused) && s.LastActivityAt.Before(cutoff) {
			idle = append(idle, *cloneSession(s))
		}
	}
	sort.SliceStable(idle, func(i, j int) bool {
		return idle[i].LastActivityAt.Before(idle[j].LastActivityAt)
	})
	return idle, nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Conversation

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages[msg.SessionID] {
		if existing.Turn == msg.Turn {
			return ErrDuplicateKey
		}
	}
	stored := *msg
	stored.Session = nil
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], stored)
	return nil
}

func (m *MemoryStore) GetMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]models.Message{}, m.messages[sessionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Turn < out[j].Turn })
	return out, nil
}

func (m *MemoryStore) CountMessages(ctx context.Context, sessionID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.messages[sessionID])), nil
}

// Media

func (m *MemoryStore) SaveMediaFile(ctx context.Context, file *models.MediaFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.media[file.SessionID] {
		if existing.Kind == file.Kind && existing.Sequence == file.Sequence {
			return ErrDuplicateKey
		}
	}
	stored := *file
	stored.Session = nil
	m.media[file.SessionID] = append(m.media[file.SessionID], stored)
	return nil
}

func (m *MemoryStore) GetMediaFiles(ctx context.Context, sessionID, kind string) ([]models.MediaFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MediaFile
	for _, f := range m.media[sessionID] {
		if kind == "" || f.Kind == kind {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (m *MemoryStore) NextMediaSequence(ctx context.Context, sessionID, kind string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := 0
	for _, f := range m.media[sessionID] {
		if f.Kind == kind && f.Sequence > max {
			max = f.Sequence
		}
	}
	return max + 1, nil
}

// Usage

func (m *MemoryStore) AppendUsageRecord(ctx context.Context, rec *models.TokenUsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *rec
	stored.Session = nil
	m.usage[rec.SessionID] = append(m.usage[rec.SessionID], stored)
	return nil
}

func (m *MemoryStore) GetSessionUsage(ctx context.Context, sessionID string) (*models.SessionUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	usage := &models.SessionUsage{SessionID: sessionID}
	for _, rec := range m.usage[sessionID] {
		usage.InputTokens += rec.InputTokens
		usage.OutputTokens += rec.OutputTokens
		usage.TotalTokens += rec.TotalTokens
		usage.CostMilliCents += rec.CostMilliCents
	}
	usage.CostUSD = models.USDFromMilliCents(usage.CostMilliCents)
	return usage, nil
}

func (m *MemoryStore) GetUsageBreakdown(ctx context.Context, sessionID string) ([]models.OperationUsage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byOp := make(map[string]*models.OperationUsage)
	for _, rec := range m.usage[sessionID] {
		row, ok := byOp[rec.Operation]
		if !ok {
			row = &models.OperationUsage{Operation: rec.Operation}
			byOp[rec.Operation] = row
		}
		row.Calls++
		row.InputTokens += rec.InputTokens
		row.OutputTokens += rec.OutputTokens
		row.TotalTokens += rec.TotalTokens
		row.CostMilliCents += rec.CostMilliCents
	}
	out := make([]models.OperationUsage, 0, len(byOp))
	for _, row := range byOp {
		out = append(out, *row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out, nil
}

// Evaluations

func (m *MemoryStore) SaveEvaluationReport(ctx context.Context, report *models.EvaluationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reports[report.SessionID]; exists {
		return ErrDuplicateKey
	}
	m.reports[report.SessionID] = cloneReport(report)
	return nil
}

func (m *MemoryStore) GetEvaluationReport(ctx context.Context, sessionID string) (*models.EvaluationReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	report, ok := m.reports[sessionID]
	if !ok {
		return nil, nil
	}
	return cloneReport(report), nil
}

// Users and tokens

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return ErrDuplicateKey
		}
	}
	if _, exists := m.users[user.ID]; exists {
		return ErrDuplicateKey
	}
	stored := *user
	stored.Sessions = nil
	stored.Resumes = nil
	stored.RefreshTokens = nil
	m.users[user.ID] = &stored
	return nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, user := range m.users {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	out := *user
	return &out, nil
}

func (m *MemoryStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tokens[token.Token]; exists {
		return ErrDuplicateKey
	}
	stored := *token
	m.tokens[token.Token] = &stored
	return nil
}

func (m *MemoryStore) GetRefreshToken(ctx context.Context, hashedToken string) (*models.RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[hashedToken]
	if !ok || !token.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	out := *token
	return &out, nil
}

func (m *MemoryStore) DeleteUserTokens(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, token := range m.tokens {
		if token.UserID == userID {
			delete(m.tokens, key)
		}
	}
	return nil
}

// Resumes

func (m *MemoryStore) CreateResume(ctx context.Context, resume *models.Resume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.resumes[resume.ID]; exists {
		return ErrDuplicateKey
	}
	m.resumes[resume.ID] = cloneResume(resume)
	return nil
}

func (m *MemoryStore) GetResume(ctx context.Context, id, userID string) (*models.Resume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resume, ok := m.resumes[id]
	if !ok || resume.UserID != userID {
		return nil, nil
	}
	return cloneResume(resume), nil
}

func (m *MemoryStore) ListResumes(ctx context.Context, userID string) ([]models.Resume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Resume
	for _, r := range m.resumes {
		if r.UserID == userID {
			out = append(out, *cloneResume(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateResume(ctx context.Context, resume *models.Resume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes[resume.ID] = cloneResume(resume)
	return nil
}

func (m *MemoryStore) DeleteResume(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resumes, id)
	return nil
}

// Audit

func (m *MemoryStore) AppendAuditLog(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[entry.SessionID] = append(m.audits[entry.SessionID], *entry)
	return nil
}

func (m *MemoryStore) ListAuditLogs(ctx context.Context, sessionID string) ([]models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditLog{}, m.audits[sessionID]...), nil
}

func (m *MemoryStore) HealthCheck(ctx context.Context) error {
	return nil
}
