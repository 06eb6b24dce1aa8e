package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

// scriptedProvider is a ProviderClient whose replies are queued by the
// test. When the queue runs dry it falls back to the fallback function,
// or to a generic reply when none is set.
type scriptedProvider struct {
	mu       sync.Mutex
	requests []ProviderRequest
	queue    []scriptedReply
	fallback func(req ProviderRequest) (*ProviderResult, error)
}

type scriptedReply struct {
	result *ProviderResult
	err    error
}

func (p *scriptedProvider) reply(text string, inputTokens, outputTokens int64) *scriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scriptedReply{result: &ProviderResult{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}})
	return p
}

func (p *scriptedProvider) fail(err error) *scriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scriptedReply{err: err})
	return p
}

func (p *scriptedProvider) Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var next *scriptedReply
	if len(p.queue) > 0 {
		next = &p.queue[0]
		p.queue = p.queue[1:]
	}
	fallback := p.fallback
	p.mu.Unlock()

	if next != nil {
		return next.result, next.err
	}
	if fallback != nil {
		return fallback(req)
	}
	return &ProviderResult{Text: "Understood. Walk me through your approach.", InputTokens: 50, OutputTokens: 25}, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// testEnv wires the full service stack over an in-memory store with the
// scripted provider installed for every supported provider name.
type testEnv struct {
	mem         *repository.MemoryStore
	store       repository.Store
	pricing     *PricingTable
	provider    *scriptedProvider
	registry    *ProviderRegistry
	locks       *SessionLocks
	tracker     *TokenTracker
	evaluator   *EvaluationManager
	sessions    *SessionManager
	interviewer *AIInterviewer
	comms       *CommunicationManager
	mediaRoot   string
}

func fastRetryPolicy() repository.RetryPolicy {
	return repository.RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := repository.NewMemoryStore()
	return newTestEnvWithStore(t, mem, repository.NewStore(mem, fastRetryPolicy()))
}

// newTestEnvWithStore lets a test interpose its own Store wrapper, for
// example to inject transient failures or stale reads.
func newTestEnvWithStore(t *testing.T, mem *repository.MemoryStore, store repository.Store) *testEnv {
	t.Helper()

	pricing := NewPricingTable()
	provider := &scriptedProvider{}
	registry := NewProviderRegistry(AIConfig{}, pricing)
	registry.clients[ProviderGoogle] = provider
	registry.clients[ProviderOpenAI] = provider
	registry.clients[ProviderAnthropic] = provider

	ai := AIConfig{RequestTimeout: 5 * time.Second, Temperature: 0.7, MaxOutputTokens: 512}
	locks := NewSessionLocks()
	tracker := NewTokenTracker(store, pricing)
	evaluator := NewEvaluationManager(store, registry, tracker, locks, ai)
	sessions := NewSessionManager(store, locks, pricing, evaluator)
	interviewer := NewAIInterviewer(store, registry, tracker, locks, ai)
	mediaRoot := t.TempDir()
	comms := NewCommunicationManager(store, NewMediaStorage(mediaRoot), locks)

	return &testEnv{
		mem:         mem,
		store:       store,
		pricing:     pricing,
		provider:    provider,
		registry:    registry,
		locks:       locks,
		tracker:     tracker,
		evaluator:   evaluator,
		sessions:    sessions,
		interviewer: interviewer,
		comms:       comms,
		mediaRoot:   mediaRoot,
	}
}

func testSessionConfig(modes ...string) models.SessionConfig {
	if len(modes) == 0 {
		modes = []string{models.ModeText}
	}
	return models.SessionConfig{
		EnabledModes: models.StringList(modes),
		AIProvider:   ProviderGoogle,
		AIModel:      "gemini-2.5-flash",
	}
}

func (e *testEnv) createSession(t *testing.T, modes ...string) *models.Session {
	t.Helper()
	session, err := e.sessions.CreateSession(context.Background(), uuid.New().String(), testSessionConfig(modes...))
	require.NoError(t, err)
	return session
}

func (e *testEnv) activeSession(t *testing.T, modes ...string) *models.Session {
	t.Helper()
	session := e.createSession(t, modes...)
	started, err := e.sessions.StartSession(context.Background(), session.ID)
	require.NoError(t, err)
	return started
}

// completedSession moves a session to completed through the store's
// conditional update, without running the evaluation pipeline.
func (e *testEnv) completedSession(t *testing.T, modes ...string) *models.Session {
	t.Helper()
	session := e.activeSession(t, modes...)
	ok, err := e.store.TransitionSession(context.Background(), session.ID, []string{models.StatusActive}, models.StatusCompleted, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	completed, err := e.sessions.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, completed)
	return completed
}

// Canned evaluation step payloads, in the shapes the pipeline prompts
// ask for.

func competencyJSON(score float64) string {
	entries := make([]string, 0, len(competencyNames))
	for _, name := range competencyNames {
		entries = append(entries, fmt.Sprintf(`%q: {"score": %g, "confidence": "high", "evidence": ["quoted answer"]}`, name, score))
	}
	return `{"competencies": {` + strings.Join(entries, ", ") + `}}`
}

const feedbackJSON = `{
  "went_well": [{"description": "Decomposed the rate limiter cleanly before designing", "evidence": "I'd split ingestion from enforcement"}],
  "went_okay": [{"description": "Complexity analysis was adequate but shallow", "evidence": "roughly O(n log n) I think"}],
  "needs_improvement": [{"description": "Skipped failure modes until prompted", "evidence": "oh, retries, right"}]
}`

const modesJSON = `{
  "modes": {
    "audio_quality": "clear and steady throughout",
    "video_presence": "engaged, kept eye contact",
    "whiteboard_usage": "sketched the architecture early and referred back to it",
    "screen_share_usage": "walked through the editor deliberately"
  },
  "overall_communication": "confident and structured"
}`

const planJSON = `{
  "priority_areas": ["failure modes", "capacity estimation"],
  "concrete_steps": [
    {"step_number": 7, "description": "Practice estimating QPS and storage budgets for three designs", "resources": ["back-of-envelope drills"]},
    {"step_number": 9, "description": "   ", "resources": []},
    {"step_number": 4, "description": "Run two timed mock designs per week", "resources": []}
  ],
  "resources": ["system design primer"]
}`

// queueEvaluation loads one valid reply for each provider step of the
// pipeline, in call order.
func queueEvaluation(p *scriptedProvider, competencyScore float64) {
	p.reply(competencyJSON(competencyScore), 400, 120)
	p.reply(feedbackJSON, 410, 130)
	p.reply(modesJSON, 420, 140)
	p.reply(planJSON, 430, 150)
}

// universalEvalJSON satisfies every pipeline step at once; decoding
// ignores the fields a step does not ask for. Used as a fallback reply
// when a test cannot control call order.
func universalEvalJSON() string {
	return strings.TrimSuffix(competencyJSON(60), "}") + `,
  "went_well": [], "went_okay": [], "needs_improvement": [],
  "modes": {}, "overall_communication": "fine",
  "priority_areas": [], "concrete_steps": [], "resources": []}`
}

func evalFallback(req ProviderRequest) (*ProviderResult, error) {
	return &ProviderResult{Text: universalEvalJSON(), InputTokens: 200, OutputTokens: 100}, nil
}
