package services

import (
	"context"
	"sync"

	"github.com/rehearsal-ai/backend/errs"
)

// ConversationTurn is one prior exchange handed to a provider. Role is
// models.RoleInterviewer or models.RoleCandidate.
type ConversationTurn struct {
	Role    string
	Content string
}

// ProviderRequest is the normalized request shape every provider adapter
// accepts: a system prompt, the conversation so far, and generation
// bounds. Model selects within the provider.
type ProviderRequest struct {
	Model           string
	System          string
	Turns           []ConversationTurn
	Temperature     float64
	MaxOutputTokens int64
}

// ProviderResult is the normalized response: the generated text plus the
// token counts reported by the provider. Token counts are estimated from
// text length when a provider omits usage metadata.
type ProviderResult struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// ProviderClient is one language-model backend. Implementations make
// exactly one attempt per call; content-generating calls are never
// retried anywhere in the system.
type ProviderClient interface {
	Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error)
}

// ProviderRegistry hands out one lazily constructed client per provider.
// Pairings are validated against the pricing table so no call can leave
// the system without a cost rate.
type ProviderRegistry struct {
	cfg     AIConfig
	pricing *PricingTable

	mu      sync.Mutex
	clients map[string]ProviderClient
}

func NewProviderRegistry(cfg AIConfig, pricing *PricingTable) *ProviderRegistry {
	return &ProviderRegistry{
		cfg:     cfg,
		pricing: pricing,
		clients: make(map[string]ProviderClient),
	}
}

// Pick returns the client for a recognized provider/model pairing,
// constructing it on first use.
func (r *ProviderRegistry) Pick(ctx context.Context, provider, model string) (ProviderClient, error) {
	if !r.pricing.Recognized(provider, model) {
		return nil, errs.Newf(errs.KindConfiguration, "unsupported provider/model pairing %s/%s", provider, model)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[provider]; ok {
		return client, nil
	}
	var (
		client ProviderClient
		err    error
	)
	switch provider {
	case ProviderGoogle:
		client, err = newGeminiClient(ctx, r.cfg.GeminiAPIKey)
	case ProviderOpenAI:
		client, err = newOpenAIClient(r.cfg.OpenAIAPIKey)
	case ProviderAnthropic:
		client, err = newAnthropicClient(r.cfg.AnthropicAPIKey)
	default:
		return nil, errs.Newf(errs.KindConfiguration, "unsupported provider %q", provider)
	}
	if err != nil {
		return nil, err
	}
	r.clients[provider] = client
	return client, nil
}

// estimateTokens approximates a token count when a provider response
// carries no usage metadata: one token per four characters of text,
// minimum one for non-empty text.
func estimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	n := int64(len(text) / 4)
	if n == 0 {
		n = 1
	}
	return n
}

// estimatePromptTokens approximates the input-side token count of a
// request, for providers that omit usage metadata.
func estimatePromptTokens(req ProviderRequest) int64 {
	total := estimateTokens(req.System)
	for _, turn := range req.Turns {
		total += estimateTokens(turn.Content)
	}
	return total
}

// providerStatusError maps an HTTP status reported by a provider SDK
// onto the ai_provider kind with a message naming what failed.
func providerStatusError(provider string, status int, err error) *errs.Error {
	switch {
	case status == 401 || status == 403:
		return errs.Wrapf(errs.KindAIProvider, err, "%s rejected the provider credentials", provider)
	case status == 429:
		return errs.Wrapf(errs.KindAIProvider, err, "%s provider quota exhausted", provider)
	case status > 0:
		return errs.Wrapf(errs.KindAIProvider, err, "%s provider call failed with status %d", provider, status)
	default:
		return errs.Wrapf(errs.KindAIProvider, err, "%s provider call failed", provider)
	}
}
