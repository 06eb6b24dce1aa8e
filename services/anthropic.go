package services

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

// AnthropicClient adapts the Anthropic Messages API to the
// ProviderClient contract.
type AnthropicClient struct {
	client *anthropic.Client
}

func newAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errs.New(errs.KindConfiguration, "ANTHROPIC_API_KEY is not configured")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{client: &client}, nil
}

var _ ProviderClient = (*AnthropicClient)(nil)

func (c *AnthropicClient) Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Turns)+1)
	for _, turn := range req.Turns {
		if turn.Role == models.RoleInterviewer {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	// The Messages API requires at least one message and a user turn
	// first.
	if len(messages) == 0 || len(req.Turns) > 0 && req.Turns[0].Role == models.RoleInterviewer {
		opening := []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock("Hello"))}
		messages = append(opening, messages...)
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		Messages:    messages,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			return nil, providerStatusError(ProviderAnthropic, apierr.StatusCode, err)
		}
		return nil, providerStatusError(ProviderAnthropic, 0, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, errs.New(errs.KindAIProvider, "anthropic provider returned an empty response")
	}

	return &ProviderResult{
		Text:         text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
