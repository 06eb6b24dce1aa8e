package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehearsal-ai/backend/errs"
)

func TestRecordUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	rec, err := env.tracker.RecordUsage(ctx, session.ID, OpInterviewTurn, 999, 3)
	require.NoError(t, err)

	assert.Equal(t, session.ID, rec.SessionID)
	assert.Equal(t, OpInterviewTurn, rec.Operation)
	assert.Equal(t, ProviderGoogle, rec.Provider, "provider is snapshotted from the session config")
	assert.Equal(t, "gemini-2.5-flash", rec.Model)
	assert.EqualValues(t, 1002, rec.TotalTokens)
	assert.EqualValues(t, 29, rec.CostMilliCents, "cost truncates per direction, never rounds up")
}

func TestRecordUsageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.activeSession(t)

	_, err := env.tracker.RecordUsage(ctx, session.ID, "", 10, 10)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "operation label must not be empty")

	_, err = env.tracker.RecordUsage(ctx, session.ID, OpInterviewTurn, -1, 10)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "must be non-negative")

	_, err = env.tracker.RecordUsage(ctx, uuid.New().String(), OpInterviewTurn, 10, 10)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "not found")

	usage, err := env.tracker.SessionUsage(ctx, session.ID)
	require.NoError(t, err)
	assert.Zero(t, usage.TotalTokens, "rejected records leave no trace")
}

func TestSessionUsageAggregation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.activeSession(t)

	calls := []struct {
		op      string
		in, out int64
	}{
		{OpInterviewStart, 120, 80},
		{OpInterviewTurn, 200, 100},
		{OpInterviewTurn, 300, 150},
		{OpEvaluationPlan, 400, 120},
	}
	var wantInput, wantOutput, wantCost int64
	for _, c := range calls {
		rec, err := env.tracker.RecordUsage(ctx, session.ID, c.op, c.in, c.out)
		require.NoError(t, err)
		wantInput += c.in
		wantOutput += c.out
		wantCost += rec.CostMilliCents
	}

	usage, err := env.tracker.SessionUsage(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, usage.SessionID)
	assert.Equal(t, wantInput, usage.InputTokens)
	assert.Equal(t, wantOutput, usage.OutputTokens)
	assert.Equal(t, wantInput+wantOutput, usage.TotalTokens)
	assert.Equal(t, wantCost, usage.CostMilliCents)
	assert.InDelta(t, float64(wantCost)/100000.0, usage.CostUSD, 1e-12)

	breakdown, err := env.tracker.UsageBreakdown(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, breakdown, 3)

	var sumTokens, sumCost int64
	byOp := map[string]int64{}
	for _, row := range breakdown {
		sumTokens += row.TotalTokens
		sumCost += row.CostMilliCents
		byOp[row.Operation] = row.Calls
	}
	assert.Equal(t, usage.TotalTokens, sumTokens, "the breakdown sums back to the session totals")
	assert.Equal(t, usage.CostMilliCents, sumCost)
	assert.EqualValues(t, 1, byOp[OpInterviewStart])
	assert.EqualValues(t, 2, byOp[OpInterviewTurn])
	assert.EqualValues(t, 1, byOp[OpEvaluationPlan])
}

func TestSessionUsageEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.createSession(t)

	usage, err := env.tracker.SessionUsage(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, usage)
	assert.Zero(t, usage.TotalTokens)
	assert.Zero(t, usage.CostMilliCents)
	assert.Zero(t, usage.CostUSD)

	breakdown, err := env.tracker.UsageBreakdown(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, breakdown)
}
