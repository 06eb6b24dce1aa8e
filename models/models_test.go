package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList(t *testing.T) {
	modes := StringList{ModeText, ModeAudio, ModeWhiteboard}

	assert.True(t, modes.Contains(ModeAudio))
	assert.False(t, modes.Contains(ModeVideo))
	assert.False(t, StringList(nil).Contains(ModeText))

	without := modes.Without(ModeAudio)
	assert.Equal(t, StringList{ModeText, ModeWhiteboard}, without)
	assert.Equal(t, StringList{ModeText, ModeAudio, ModeWhiteboard}, modes, "Without must not mutate the receiver")
	assert.Equal(t, StringList{ModeText, ModeAudio, ModeWhiteboard}, modes.Without("missing"))
}

func TestStringListRoundTrip(t *testing.T) {
	value, err := StringList{ModeText, ModeVideo}.Value()
	require.NoError(t, err)

	var scanned StringList
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, StringList{ModeText, ModeVideo}, scanned)

	// A SQL NULL leaves the destination at its zero value.
	var fromNull StringList
	require.NoError(t, fromNull.Scan(nil))
	assert.Nil(t, fromNull)

	// nil lists serialize as an empty array, not null.
	value, err = StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(value.([]byte)))
}

func TestResumeDataIsZero(t *testing.T) {
	assert.True(t, ResumeData{}.IsZero())
	assert.False(t, ResumeData{Identifier: "senior-backend"}.IsZero())
	assert.False(t, ResumeData{YearsExperience: 3}.IsZero())
	assert.False(t, ResumeData{Domains: StringList{"databases"}}.IsZero())
	assert.False(t, ResumeData{Summary: "led a team"}.IsZero())
}

func TestSessionIsTerminal(t *testing.T) {
	for _, status := range []string{StatusCreated, StatusActive, StatusPaused} {
		s := &Session{Status: status}
		assert.False(t, s.IsTerminal(), "status %s", status)
	}
	assert.True(t, (&Session{Status: StatusCompleted}).IsTerminal())
}

func TestUSDFromMilliCents(t *testing.T) {
	assert.Equal(t, 0.0, USDFromMilliCents(0))
	assert.InDelta(t, 0.00029, USDFromMilliCents(29), 1e-12)
	assert.InDelta(t, 0.3, USDFromMilliCents(30000), 1e-12)
	assert.InDelta(t, 1.0, USDFromMilliCents(100000), 1e-12)
}

func TestResumeData(t *testing.T) {
	resume := &Resume{
		Identifier:      "mid-level-fullstack",
		YearsExperience: 5,
		Domains:         StringList{"web", "apis"},
		Summary:         "Built two production SaaS products.",
	}

	data := resume.Data()
	assert.Equal(t, "mid-level-fullstack", data.Identifier)
	assert.Equal(t, 5, data.YearsExperience)
	assert.Equal(t, StringList{"web", "apis"}, data.Domains)
	assert.Equal(t, "Built two production SaaS products.", data.Summary)
	assert.False(t, data.IsZero())
}

func TestSessionConfigHasResume(t *testing.T) {
	assert.False(t, SessionConfig{}.HasResume())
	assert.True(t, SessionConfig{ResumeData: ResumeData{Identifier: "x"}}.HasResume())
}

func TestKnownModes(t *testing.T) {
	assert.Equal(t, []string{ModeText, ModeAudio, ModeVideo, ModeWhiteboard, ModeScreenShare}, KnownModes)
}

func TestAllModelsRegistered(t *testing.T) {
	all := All()
	require.Len(t, all, 9)
	// Users precede sessions so foreign keys can be created in one pass.
	assert.IsType(t, &User{}, all[0])
	assert.IsType(t, &Session{}, all[3])
	assert.IsType(t, &AuditLog{}, all[len(all)-1])
}

func TestEvaluationJSONBRoundTrip(t *testing.T) {
	scores := CompetencyScores{
		"problem_decomposition": {Score: 72, Confidence: ConfidenceHigh, Evidence: []string{"quote"}},
	}
	value, err := scores.Value()
	require.NoError(t, err)

	var scanned CompetencyScores
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, scores, scanned)

	// nil maps serialize as an empty object.
	value, err = CompetencyScores(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(value.([]byte)))

	plan := ImprovementPlan{
		PriorityAreas: []string{"failure modes"},
		ConcreteSteps: []ActionItem{{StepNumber: 1, Description: "drill estimation", Resources: []string{"book"}}},
	}
	value, err = plan.Value()
	require.NoError(t, err)
	var scannedPlan ImprovementPlan
	require.NoError(t, scannedPlan.Scan(value))
	assert.Equal(t, plan, scannedPlan)
}
