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

// AIInterviewer drives the interview conversation. Candidate input is
// persisted before any provider call and the interviewer reply is
// persisted after it, so a provider failure never loses the candidate's
// words and a turn is visible to readers only once it fully happened.
type AIInterviewer struct {
	store     repository.Store
	providers *ProviderRegistry
	tracker   *TokenTracker
	locks     *SessionLocks
	ai        AIConfig
}

func NewAIInterviewer(store repository.Store, providers *ProviderRegistry, tracker *TokenTracker, locks *SessionLocks, ai AIConfig) *AIInterviewer {
	return &AIInterviewer{
		store:     store,
		providers: providers,
		tracker:   tracker,
		locks:     locks,
		ai:        ai,
	}
}

// StartInterview generates the interviewer's opening message for an
// active session whose conversation is still empty.
func (ai *AIInterviewer) StartInterview(ctx context.Context, sessionID string) (*models.Message, error) {
	unlock := ai.locks.Lock(sessionID)
	defer unlock()

	session, err := ai.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	count, err := ai.store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errs.Newf(errs.KindConfiguration, "the interview for session %s has already started", sessionID)
	}

	req := ProviderRequest{
		Model:           session.Config.AIModel,
		System:          buildInterviewerSystemPrompt(session),
		Temperature:     ai.ai.Temperature,
		MaxOutputTokens: ai.ai.MaxOutputTokens,
	}
	result, err := ai.generate(ctx, session, req)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      models.RoleInterviewer,
		Content:   result.Text,
		Turn:      1,
		CreatedAt: time.Now(),
	}
	if err := ai.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	ai.recordUsage(ctx, session, OpInterviewStart, result)
	ai.touch(ctx, sessionID)

	slog.Info("Interview started", "session_id", sessionID, "persona", PickDeterministicPersona(sessionID).Name)
	return msg, nil
}

// ProcessResponse appends the candidate's message, asks the provider for
// the interviewer's reply and appends that too. When the provider fails,
// the candidate message stays persisted and the error surfaces with the
// ai_provider kind; the call is never retried.
func (ai *AIInterviewer) ProcessResponse(ctx context.Context, sessionID, input string) (*models.Message, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, errs.New(errs.KindConfiguration, "candidate message must not be empty")
	}

	unlock := ai.locks.Lock(sessionID)
	defer unlock()

	session, err := ai.activeSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := ai.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	candidate := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      models.RoleCandidate,
		Content:   input,
		Turn:      len(history) + 1,
		CreatedAt: time.Now(),
	}
	if err := ai.store.AppendMessage(ctx, candidate); err != nil {
		return nil, err
	}

	turns := make([]ConversationTurn, 0, len(history)+1)
	for _, msg := range history {
		turns = append(turns, ConversationTurn{Role: msg.Role, Content: msg.Content})
	}
	turns = append(turns, ConversationTurn{Role: models.RoleCandidate, Content: input})

	req := ProviderRequest{
		Model:           session.Config.AIModel,
		System:          buildInterviewerSystemPrompt(session),
		Turns:           turns,
		Temperature:     ai.ai.Temperature,
		MaxOutputTokens: ai.ai.MaxOutputTokens,
	}
	result, err := ai.generate(ctx, session, req)
	if err != nil {
		return nil, err
	}

	reply := &models.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      models.RoleInterviewer,
		Content:   result.Text,
		Turn:      candidate.Turn + 1,
		CreatedAt: time.Now(),
	}
	if err := ai.store.AppendMessage(ctx, reply); err != nil {
		return nil, err
	}
	ai.recordUsage(ctx, session, OpInterviewTurn, result)
	ai.touch(ctx, sessionID)

	return reply, nil
}

// GetTranscript returns the full conversation of a session in turn
// order.
func (ai *AIInterviewer) GetTranscript(ctx context.Context, sessionID string) ([]models.Message, error) {
	return ai.store.GetMessages(ctx, sessionID)
}

func (ai *AIInterviewer) activeSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := ai.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s not found", sessionID)
	}
	if session.Status != models.StatusActive {
		return nil, errs.Newf(errs.KindConfiguration, "session %s is %s, interview turns require an active session", sessionID, session.Status)
	}
	return session, nil
}

func (ai *AIInterviewer) generate(ctx context.Context, session *models.Session, req ProviderRequest) (*ProviderResult, error) {
	client, err := ai.providers.Pick(ctx, session.Config.AIProvider, session.Config.AIModel)
	if err != nil {
		return nil, err
	}
	if ai.ai.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ai.ai.RequestTimeout)
		defer cancel()
	}
	return client.Generate(ctx, req)
}

// recordUsage accounts for one provider call. The reply is already
// persisted when this runs, so accounting failures are logged with the
// counts instead of failing the turn.
func (ai *AIInterviewer) recordUsage(ctx context.Context, session *models.Session, operation string, result *ProviderResult) {
	if _, err := ai.tracker.RecordUsageFor(ctx, session, operation, result.InputTokens, result.OutputTokens); err != nil {
		slog.Error("Failed to record token usage",
			"error", err,
			"session_id", session.ID,
			"operation", operation,
			"input_tokens", result.InputTokens,
			"output_tokens", result.OutputTokens)
	}
}

func (ai *AIInterviewer) touch(ctx context.Context, sessionID string) {
	if err := ai.store.TouchSession(ctx, sessionID, time.Now()); err != nil {
		slog.Warn("Failed to update session activity", "error", err, "session_id", sessionID)
	}
}

// difficultyTier maps years of experience onto the question difficulty
// the interviewer calibrates to.
func difficultyTier(years int) string {
	switch {
	case years < 3:
		return "junior"
	case years <= 7:
		return "mid-level"
	default:
		return "senior"
	}
}

func buildInterviewerSystemPrompt(session *models.Session) string {
	persona := PickDeterministicPersona(session.ID)
	config := session.Config

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s, an experienced technical interviewer conducting a mock software engineering interview. Your style: %s.\n\n", persona.Name, persona.Style))

	if config.HasResume() {
		resume := config.ResumeData
		sb.WriteString(fmt.Sprintf("The candidate has %d years of experience; calibrate your questions to a %s level.\n",
			resume.YearsExperience, difficultyTier(resume.YearsExperience)))
		if len(resume.Domains) > 0 {
			sb.WriteString(fmt.Sprintf("Ground your questions in the candidate's domains: %s.\n", strings.Join(resume.Domains, ", ")))
		}
		if resume.Summary != "" {
			sb.WriteString(fmt.Sprintf("Candidate summary: %s\n", resume.Summary))
		}
	} else {
		sb.WriteString("No resume was provided; run a general software engineering interview at mid-level difficulty.\n")
	}

	sb.WriteString(fmt.Sprintf("\nCommunication modes active in this session: %s.\n", strings.Join(session.ActiveModes, ", ")))
	if session.ActiveModes.Contains(models.ModeWhiteboard) {
		sb.WriteString("The candidate may share whiteboard sketches; acknowledge and build on them when they do.\n")
	}

	sb.WriteString(`
Interview guidelines:
- Ask one question at a time and wait for the candidate's answer.
- Probe the reasoning behind an answer before moving on.
- Increase difficulty gradually when the candidate does well.
- Keep each reply under 150 words and never reveal full solutions.
- Stay in character for the whole interview.`)

	return sb.String()
}
