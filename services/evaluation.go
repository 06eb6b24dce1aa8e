package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

// The five scored competencies and their weights in the overall score.
// Weights sum to 1.0; the overall score needs no provider call.
var competencyWeights = map[string]float64{
	"problem_decomposition": 0.25,
	"technical_depth":       0.20,
	"communication_clarity": 0.20,
	"scalability_judgment":  0.20,
	"tradeoff_awareness":    0.15,
}

var competencyNames = []string{
	"problem_decomposition",
	"technical_depth",
	"communication_clarity",
	"scalability_judgment",
	"tradeoff_awareness",
}

// modeAspects names the assessment each enabled mode receives in the
// communication analysis. Text sessions are covered by the overall
// rating alone.
var modeAspects = map[string]string{
	models.ModeAudio:       "audio_quality",
	models.ModeVideo:       "video_presence",
	models.ModeWhiteboard:  "whiteboard_usage",
	models.ModeScreenShare: "screen_share_usage",
}

const neutralAssessment = "no assessment available"

const evaluatorSystemPrompt = "You are an expert technical interview assessor. " +
	"You respond with a single JSON object and nothing else: no prose, no markdown fences."

// EvaluationManager produces the structured post-interview report. The
// pipeline runs four provider steps and one local aggregation; the
// competency step degrades to neutral defaults on failure while the
// remaining provider steps are terminal, so a stored report is never
// missing its feedback, mode analysis or improvement plan.
type EvaluationManager struct {
	store     repository.Store
	providers *ProviderRegistry
	tracker   *TokenTracker
	locks     *SessionLocks
	ai        AIConfig
}

func NewEvaluationManager(store repository.Store, providers *ProviderRegistry, tracker *TokenTracker, locks *SessionLocks, ai AIConfig) *EvaluationManager {
	return &EvaluationManager{
		store:     store,
		providers: providers,
		tracker:   tracker,
		locks:     locks,
		ai:        ai,
	}
}

// GenerateEvaluation runs the pipeline for a completed session and
// persists the report. At most one report can exist per session: a
// second call fails on the existence check, and the unique index breaks
// cross-process ties.
func (m *EvaluationManager) GenerateEvaluation(ctx context.Context, sessionID string) (*models.EvaluationReport, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errs.Newf(errs.KindConfiguration, "session %s not found", sessionID)
	}
	if session.Status != models.StatusCompleted {
		return nil, errs.Newf(errs.KindConfiguration, "session %s is %s, evaluation requires a completed session", sessionID, session.Status)
	}
	existing, err := m.store.GetEvaluationReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errs.Newf(errs.KindConfiguration, "an evaluation report already exists for session %s", sessionID)
	}

	messages, err := m.store.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	transcript := formatTranscript(messages)

	competencies := m.assessCompetencies(ctx, session, transcript)

	wentWell, wentOkay, needsImprovement, err := m.classifyFeedback(ctx, session, transcript)
	if err != nil {
		return nil, err
	}

	modeAnalysis, err := m.analyzeModes(ctx, session, transcript, len(messages))
	if err != nil {
		return nil, err
	}

	plan, err := m.buildImprovementPlan(ctx, session, transcript, competencies, needsImprovement)
	if err != nil {
		return nil, err
	}

	report := &models.EvaluationReport{
		ID:               uuid.New().String(),
		SessionID:        sessionID,
		OverallScore:     overallScore(competencies),
		CompetencyScores: competencies,
		WentWell:         wentWell,
		WentOkay:         wentOkay,
		NeedsImprovement: needsImprovement,
		ModeAnalysis:     modeAnalysis,
		ImprovementPlan:  plan,
		CreatedAt:        time.Now(),
	}
	if err := m.store.SaveEvaluationReport(ctx, report); err != nil {
		if repository.IsUniqueViolation(err) {
			// Another writer finished first; the stored report wins.
			return m.store.GetEvaluationReport(ctx, sessionID)
		}
		return nil, err
	}

	slog.Info("Evaluation report generated", "session_id", sessionID, "overall_score", report.OverallScore)
	return report, nil
}

// GetEvaluation returns the stored report, nil when none exists yet.
func (m *EvaluationManager) GetEvaluation(ctx context.Context, sessionID string) (*models.EvaluationReport, error) {
	return m.store.GetEvaluationReport(ctx, sessionID)
}

// Step 1: competency scoring. Any failure here degrades to neutral
// defaults so the report still gets produced.

type competencyPayload struct {
	Competencies map[string]struct {
		Score      float64  `json:"score"`
		Confidence string   `json:"confidence"`
		Evidence   []string `json:"evidence"`
	} `json:"competencies"`
}

func defaultCompetencyScores() models.CompetencyScores {
	scores := make(models.CompetencyScores, len(competencyNames))
	for _, name := range competencyNames {
		scores[name] = models.CompetencyAssessment{
			Score:      50,
			Confidence: models.ConfidenceLow,
			Evidence:   []string{},
		}
	}
	return scores
}

func (m *EvaluationManager) assessCompetencies(ctx context.Context, session *models.Session, transcript string) models.CompetencyScores {
	scores := defaultCompetencyScores()

	prompt := fmt.Sprintf(`Assess the candidate in this mock technical interview transcript.

Transcript:
%s

Score each of these competencies from 0 to 100: %s.
For each, state your confidence (low, medium or high) and quote verbatim transcript excerpts as evidence.

Respond with a JSON object shaped like:
{"competencies": {"problem_decomposition": {"score": 70, "confidence": "high", "evidence": ["..."]}}}`,
		transcript, strings.Join(competencyNames, ", "))

	result, err := m.callProvider(ctx, session, OpEvaluationCompetency, prompt)
	if err != nil {
		slog.Warn("Competency assessment failed, using neutral defaults", "error", err, "session_id", session.ID)
		return scores
	}

	var payload competencyPayload
	if err := decodeStepPayload(result.Text, &payload); err != nil {
		slog.Warn("Competency payload unusable, using neutral defaults", "error", err, "session_id", session.ID)
		return scores
	}

	for _, name := range competencyNames {
		entry, ok := payload.Competencies[name]
		if !ok {
			continue
		}
		scores[name] = models.CompetencyAssessment{
			Score:      clampScore(entry.Score),
			Confidence: normalizeConfidence(entry.Confidence),
			Evidence:   normalizeStrings(entry.Evidence),
		}
	}
	return scores
}

// Step 2: feedback classification. An unusable payload is terminal.

type feedbackEntry struct {
	Description string `json:"description"`
	Evidence    string `json:"evidence"`
}

type feedbackPayload struct {
	WentWell         []feedbackEntry `json:"went_well"`
	WentOkay         []feedbackEntry `json:"went_okay"`
	NeedsImprovement []feedbackEntry `json:"needs_improvement"`
}

func (m *EvaluationManager) classifyFeedback(ctx context.Context, session *models.Session, transcript string) (models.FeedbackItems, models.FeedbackItems, models.FeedbackItems, error) {
	prompt := fmt.Sprintf(`Classify the candidate's performance in this mock technical interview transcript into observations.

Transcript:
%s

Sort observations into three buckets: went_well, went_okay and needs_improvement.
Each observation needs a one-sentence description and a verbatim evidence quote from the transcript.

Respond with a JSON object shaped like:
{"went_well": [{"description": "...", "evidence": "..."}], "went_okay": [], "needs_improvement": []}`, transcript)

	result, err := m.callProvider(ctx, session, OpEvaluationFeedback, prompt)
	if err != nil {
		return nil, nil, nil, err
	}

	var payload feedbackPayload
	if err := decodeStepPayload(result.Text, &payload); err != nil {
		return nil, nil, nil, errs.Wrap(errs.KindAIProvider, err, "feedback classification returned an unusable payload")
	}
	return cleanFeedback(payload.WentWell), cleanFeedback(payload.WentOkay), cleanFeedback(payload.NeedsImprovement), nil
}

// Step 3: communication-mode analysis over the enabled modes only.

type modesPayload struct {
	Modes                map[string]string `json:"modes"`
	OverallCommunication string            `json:"overall_communication"`
}

func (m *EvaluationManager) analyzeModes(ctx context.Context, session *models.Session, transcript string, messageCount int) (models.ModeAnalysis, error) {
	analysis := models.ModeAnalysis{Modes: map[string]string{}}

	var aspects []string
	for _, mode := range session.Config.EnabledModes {
		if aspect, ok := modeAspects[mode]; ok {
			aspects = append(aspects, aspect)
		}
	}

	whiteboards, err := m.store.GetMediaFiles(ctx, session.ID, models.MediaKindWhiteboard)
	if err != nil {
		return analysis, err
	}
	captures, err := m.store.GetMediaFiles(ctx, session.ID, models.MediaKindScreenShare)
	if err != nil {
		return analysis, err
	}

	prompt := fmt.Sprintf(`Assess how the candidate used the communication channels of this mock interview.

Enabled modes: %s.
Session activity: %d conversation messages, %d whiteboard snapshots, %d screen captures.

Transcript:
%s

Assess these aspects: %s. Also give an overall communication rating.

Respond with a JSON object shaped like:
{"modes": {"whiteboard_usage": "..."}, "overall_communication": "..."}`,
		strings.Join(session.Config.EnabledModes, ", "),
		messageCount, len(whiteboards), len(captures),
		transcript,
		strings.Join(aspects, ", "))

	result, err := m.callProvider(ctx, session, OpEvaluationModes, prompt)
	if err != nil {
		return analysis, err
	}

	var payload modesPayload
	if err := decodeStepPayload(result.Text, &payload); err != nil {
		return analysis, errs.Wrap(errs.KindAIProvider, err, "communication mode analysis returned an unusable payload")
	}

	for _, aspect := range aspects {
		text := strings.TrimSpace(payload.Modes[aspect])
		if text == "" {
			text = neutralAssessment
		}
		analysis.Modes[aspect] = text
	}
	analysis.OverallCommunication = strings.TrimSpace(payload.OverallCommunication)
	if analysis.OverallCommunication == "" {
		analysis.OverallCommunication = neutralAssessment
	}
	return analysis, nil
}

// Step 4: the prioritized improvement plan, seeded with the weaknesses
// the earlier steps surfaced.

type planPayload struct {
	PriorityAreas []string `json:"priority_areas"`
	ConcreteSteps []struct {
		StepNumber  int      `json:"step_number"`
		Description string   `json:"description"`
		Resources   []string `json:"resources"`
	} `json:"concrete_steps"`
	Resources []string `json:"resources"`
}

func (m *EvaluationManager) buildImprovementPlan(ctx context.Context, session *models.Session, transcript string, scores models.CompetencyScores, needsImprovement models.FeedbackItems) (models.ImprovementPlan, error) {
	plan := models.ImprovementPlan{
		PriorityAreas: []string{},
		ConcreteSteps: []models.ActionItem{},
		Resources:     []string{},
	}

	var weaknesses strings.Builder
	for _, name := range competencyNames {
		weaknesses.WriteString(fmt.Sprintf("- %s: %.0f/100\n", name, scores[name].Score))
	}
	for _, item := range needsImprovement {
		weaknesses.WriteString(fmt.Sprintf("- needs improvement: %s\n", item.Description))
	}

	prompt := fmt.Sprintf(`Build an improvement plan for this mock interview candidate.

Assessment so far:
%s
Transcript:
%s

List the priority areas to work on, concrete numbered practice steps, and learning resources.

Respond with a JSON object shaped like:
{"priority_areas": ["..."], "concrete_steps": [{"step_number": 1, "description": "...", "resources": ["..."]}], "resources": ["..."]}`,
		weaknesses.String(), transcript)

	result, err := m.callProvider(ctx, session, OpEvaluationPlan, prompt)
	if err != nil {
		return plan, err
	}

	var payload planPayload
	if err := decodeStepPayload(result.Text, &payload); err != nil {
		return plan, errs.Wrap(errs.KindAIProvider, err, "improvement plan generation returned an unusable payload")
	}

	plan.PriorityAreas = normalizeStrings(payload.PriorityAreas)
	plan.Resources = normalizeStrings(payload.Resources)
	for _, step := range payload.ConcreteSteps {
		description := strings.TrimSpace(step.Description)
		if description == "" {
			continue
		}
		plan.ConcreteSteps = append(plan.ConcreteSteps, models.ActionItem{
			StepNumber:  len(plan.ConcreteSteps) + 1,
			Description: description,
			Resources:   normalizeStrings(step.Resources),
		})
	}
	return plan, nil
}

// Step 5: the overall score is a local weighted aggregate of the
// competency scores, clamped to [0, 100].
func overallScore(scores models.CompetencyScores) float64 {
	var total float64
	for name, weight := range competencyWeights {
		if assessment, ok := scores[name]; ok {
			total += weight * assessment.Score
		}
	}
	return clampScore(total)
}

func (m *EvaluationManager) callProvider(ctx context.Context, session *models.Session, operation, prompt string) (*ProviderResult, error) {
	client, err := m.providers.Pick(ctx, session.Config.AIProvider, session.Config.AIModel)
	if err != nil {
		return nil, err
	}
	callCtx := ctx
	if m.ai.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.ai.RequestTimeout)
		defer cancel()
	}
	result, err := client.Generate(callCtx, ProviderRequest{
		Model:           session.Config.AIModel,
		System:          evaluatorSystemPrompt,
		Turns:           []ConversationTurn{{Role: models.RoleCandidate, Content: prompt}},
		Temperature:     m.ai.Temperature,
		MaxOutputTokens: m.ai.MaxOutputTokens,
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.tracker.RecordUsageFor(ctx, session, operation, result.InputTokens, result.OutputTokens); err != nil {
		slog.Error("Failed to record token usage",
			"error", err,
			"session_id", session.ID,
			"operation", operation,
			"input_tokens", result.InputTokens,
			"output_tokens", result.OutputTokens)
	}
	return result, nil
}

// Parsing helpers. Providers are told to emit bare JSON but routinely
// wrap it in prose or markdown fences anyway.

// extractJSONObject returns the outermost JSON object in raw, stripping
// a markdown code fence first when one is present.
func extractJSONObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeStepPayload(raw string, dest any) error {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(obj), dest); err != nil {
		return fmt.Errorf("failed to decode response payload: %w", err)
	}
	return nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func normalizeConfidence(confidence string) string {
	switch strings.ToLower(strings.TrimSpace(confidence)) {
	case models.ConfidenceHigh:
		return models.ConfidenceHigh
	case models.ConfidenceMedium:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// normalizeStrings trims entries and drops empty ones, always returning
// a non-nil slice so jsonb columns never store null.
func normalizeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// cleanFeedback drops malformed entries instead of failing the step.
func cleanFeedback(entries []feedbackEntry) models.FeedbackItems {
	out := make(models.FeedbackItems, 0, len(entries))
	for _, entry := range entries {
		description := strings.TrimSpace(entry.Description)
		if description == "" {
			continue
		}
		out = append(out, models.FeedbackItem{
			Description: description,
			Evidence:    strings.TrimSpace(entry.Evidence),
		})
	}
	return out
}

func formatTranscript(messages []models.Message) string {
	if len(messages) == 0 {
		return "(no conversation was recorded)"
	}
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("%d. %s: %s\n", msg.Turn, msg.Role, msg.Content))
	}
	return sb.String()
}
