package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

// Operation labels stamped on usage records by the conversation and
// evaluation flows.
const (
	OpInterviewStart       = "interview.start"
	OpInterviewTurn        = "interview.turn"
	OpEvaluationCompetency = "evaluation.competency"
	OpEvaluationFeedback   = "evaluation.feedback"
	OpEvaluationModes      = "evaluation.modes"
	OpEvaluationPlan       = "evaluation.plan"
)

// TokenTracker converts provider-reported token counts into append-only
// usage records with exact integer costs.
type TokenTracker struct {
	store   repository.Store
	pricing *PricingTable
}

func NewTokenTracker(store repository.Store, pricing *PricingTable) *TokenTracker {
	return &TokenTracker{store: store, pricing: pricing}
}

// RecordUsage looks up the session and appends one usage record for it.
func (t *TokenTracker) RecordUsage(ctx context.Context, sessionID, operation string, inputTokens, outputTokens int64) (*models.TokenUsageRecord, error) {
	session, err := t.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s not found", sessionID)
	}
	return t.RecordUsageFor(ctx, session, operation, inputTokens, outputTokens)
}

// RecordUsageFor appends one usage record for an already-loaded session.
// Provider, model and the computed cost are snapshotted at record time so
// accounting stays auditable if the pricing table later changes.
func (t *TokenTracker) RecordUsageFor(ctx context.Context, session *models.Session, operation string, inputTokens, outputTokens int64) (*models.TokenUsageRecord, error) {
	if operation == "" {
		return nil, errs.New(errs.KindConfiguration, "usage operation label must not be empty")
	}
	if inputTokens < 0 || outputTokens < 0 {
		return nil, errs.Newf(errs.KindConfiguration, "token counts must be non-negative, got input=%d output=%d", inputTokens, outputTokens)
	}

	rec := &models.TokenUsageRecord{
		ID:             uuid.New().String(),
		SessionID:      session.ID,
		Operation:      operation,
		Provider:       session.Config.AIProvider,
		Model:          session.Config.AIModel,
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		TotalTokens:    inputTokens + outputTokens,
		CostMilliCents: t.pricing.Cost(session.Config.AIProvider, session.Config.AIModel, inputTokens, outputTokens),
		CreatedAt:      time.Now(),
	}
	if err := t.store.AppendUsageRecord(ctx, rec); err != nil {
		return nil, err
	}
	slog.Debug("Token usage recorded",
		"session_id", session.ID,
		"operation", operation,
		"total_tokens", rec.TotalTokens,
		"cost_milli_cents", rec.CostMilliCents)
	return rec, nil
}

// SessionUsage returns the aggregated totals of one session. A session
// with no records aggregates to zeroes.
func (t *TokenTracker) SessionUsage(ctx context.Context, sessionID string) (*models.SessionUsage, error) {
	return t.store.GetSessionUsage(ctx, sessionID)
}

// UsageBreakdown returns per-operation aggregates. Summing the rows
// reproduces the session totals exactly; both views read the same
// records.
func (t *TokenTracker) UsageBreakdown(ctx context.Context, sessionID string) ([]models.OperationUsage, error) {
	return t.store.GetUsageBreakdown(ctx, sessionID)
}
