package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

func TestStartInterview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	env.provider.reply("Hi, I'm your interviewer today. Tell me about a system you have built.", 120, 80)

	msg, err := env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleInterviewer, msg.Role)
	assert.Equal(t, 1, msg.Turn)
	assert.Contains(t, msg.Content, "interviewer today")

	transcript, err := env.interviewer.GetTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, msg.ID, transcript[0].ID)

	usage, err := env.tracker.SessionUsage(ctx, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 120, usage.InputTokens)
	assert.EqualValues(t, 80, usage.OutputTokens)
	// gemini-2.5-flash: 120*30/1000 + 80*250/1000 milli-cents.
	assert.EqualValues(t, 23, usage.CostMilliCents)

	req := env.provider.request(0)
	assert.Empty(t, req.Turns, "the opening prompt carries no history")
	assert.Contains(t, req.System, PickDeterministicPersona(session.ID).Name)
	assert.Equal(t, "gemini-2.5-flash", req.Model)
}

func TestStartInterviewRequiresActiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.createSession(t)
	_, err := env.interviewer.StartInterview(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "require an active session")
	assert.Zero(t, env.provider.callCount())
}

func TestStartInterviewAlreadyStarted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	_, err := env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)

	_, err = env.interviewer.StartInterview(ctx, session.ID)
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "already started")
	assert.Equal(t, 1, env.provider.callCount())
}

func TestProcessResponse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	env.provider.reply("Welcome. Describe a service you own.", 100, 50)
	_, err := env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)

	env.provider.reply("Interesting. How does it handle a node failure?", 200, 100)
	reply, err := env.interviewer.ProcessResponse(ctx, session.ID, "  I run a task scheduler on top of Postgres.  ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleInterviewer, reply.Role)
	assert.Equal(t, 3, reply.Turn)

	transcript, err := env.interviewer.GetTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 3)
	assert.Equal(t, models.RoleCandidate, transcript[1].Role)
	assert.Equal(t, "I run a task scheduler on top of Postgres.", transcript[1].Content, "candidate input is trimmed before persisting")
	assert.Equal(t, 2, transcript[1].Turn)

	req := env.provider.request(1)
	require.Len(t, req.Turns, 2, "the provider sees the full history plus the new input")
	assert.Equal(t, models.RoleInterviewer, req.Turns[0].Role)
	assert.Equal(t, models.RoleCandidate, req.Turns[1].Role)

	usage, err := env.tracker.SessionUsage(ctx, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 300, usage.InputTokens)
	assert.EqualValues(t, 150, usage.OutputTokens)
	assert.EqualValues(t, 450, usage.TotalTokens)

	breakdown, err := env.tracker.UsageBreakdown(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, breakdown, 2)
	assert.Equal(t, OpInterviewStart, breakdown[0].Operation)
	assert.Equal(t, OpInterviewTurn, breakdown[1].Operation)
	assert.EqualValues(t, 1, breakdown[0].Calls)
	assert.EqualValues(t, 1, breakdown[1].Calls)
}

func TestProcessResponseRejectsBlankInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := env.interviewer.ProcessResponse(ctx, session.ID, input)
		require.Error(t, err)
		assert.True(t, errs.IsConfiguration(err))
		assert.Contains(t, err.Error(), "must not be empty")
	}
	assert.Zero(t, env.provider.callCount())

	transcript, err := env.interviewer.GetTranscript(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, transcript)
}

func TestProcessResponseRequiresActiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	env.provider.reply("Welcome.", 10, 5)
	_, err := env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)

	_, err = env.sessions.PauseSession(ctx, session.ID)
	require.NoError(t, err)

	_, err = env.interviewer.ProcessResponse(ctx, session.ID, "Can we continue?")
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
	assert.Contains(t, err.Error(), "is paused")

	transcript, err := env.interviewer.GetTranscript(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, transcript, 1, "input to a paused session is not persisted")
}

func TestProcessResponseKeepsCandidateMessageOnProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	env.provider.reply("Welcome. What would you like to walk through?", 100, 50)
	_, err := env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)

	env.provider.fail(errs.New(errs.KindAIProvider, "google provider quota exhausted"))
	_, err = env.interviewer.ProcessResponse(ctx, session.ID, "A rate limiter for our public API.")
	require.Error(t, err)
	assert.True(t, errs.IsAIProvider(err))

	transcript, err := env.interviewer.GetTranscript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, transcript, 2, "the candidate's words survive the failed call")
	assert.Equal(t, models.RoleCandidate, transcript[1].Role)
	assert.Equal(t, 2, transcript[1].Turn)

	// The candidate sends again; the failed turn is never resent by the
	// system itself.
	env.provider.reply("Got it. What are the limiter's consistency requirements?", 220, 90)
	reply, err := env.interviewer.ProcessResponse(ctx, session.ID, "A rate limiter for our public API.")
	require.NoError(t, err)
	assert.Equal(t, 4, reply.Turn)

	transcript, err = env.interviewer.GetTranscript(ctx, session.ID)
	require.NoError(t, err)
	turns := make([]int, 0, len(transcript))
	roles := make([]string, 0, len(transcript))
	for _, msg := range transcript {
		turns = append(turns, msg.Turn)
		roles = append(roles, msg.Role)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, turns, "turn numbers stay gap-free")
	assert.Equal(t, []string{
		models.RoleInterviewer,
		models.RoleCandidate,
		models.RoleCandidate,
		models.RoleInterviewer,
	}, roles)

	usage, err := env.tracker.SessionUsage(ctx, session.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 320, usage.InputTokens, "the failed call contributes no usage")
}

func TestInterviewerSystemPrompt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	config := testSessionConfig(models.ModeText, models.ModeWhiteboard)
	config.ResumeData = models.ResumeData{
		Identifier:      "senior-distributed-systems",
		YearsExperience: 11,
		Domains:         models.StringList{"distributed systems", "databases"},
		Summary:         "Led the storage team of a large-scale platform.",
	}
	session, err := env.sessions.CreateSession(ctx, "user-1", config)
	require.NoError(t, err)
	_, err = env.sessions.StartSession(ctx, session.ID)
	require.NoError(t, err)

	env.provider.reply("Welcome.", 10, 5)
	_, err = env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)

	system := env.provider.request(0).System
	assert.Contains(t, system, PickDeterministicPersona(session.ID).Name)
	assert.Contains(t, system, "11 years of experience")
	assert.Contains(t, system, "senior level")
	assert.Contains(t, system, "distributed systems, databases")
	assert.Contains(t, system, "Led the storage team")
	assert.Contains(t, system, "text, whiteboard")
	assert.Contains(t, system, "whiteboard sketches")
}

func TestInterviewerSystemPromptWithoutResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.activeSession(t)
	env.provider.reply("Welcome.", 10, 5)
	_, err := env.interviewer.StartInterview(ctx, session.ID)
	require.NoError(t, err)

	system := env.provider.request(0).System
	assert.Contains(t, system, "No resume was provided")
	assert.NotContains(t, system, "whiteboard sketches")
}

func TestDifficultyTier(t *testing.T) {
	tests := []struct {
		years int
		want  string
	}{
		{0, "junior"},
		{2, "junior"},
		{3, "mid-level"},
		{7, "mid-level"},
		{8, "senior"},
		{40, "senior"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, difficultyTier(tt.years), "years=%d", tt.years)
	}
}
