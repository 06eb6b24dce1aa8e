package services

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

// OpenAIClient adapts the OpenAI Chat Completions API to the
// ProviderClient contract.
type OpenAIClient struct {
	client *openai.Client
}

func newOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errs.New(errs.KindConfiguration, "OPENAI_API_KEY is not configured")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client}, nil
}

var _ ProviderClient = (*OpenAIClient)(nil)

func (c *OpenAIClient) Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, turn := range req.Turns {
		if turn.Role == models.RoleInterviewer {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               req.Model,
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(req.MaxOutputTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, providerStatusError(ProviderOpenAI, apierr.StatusCode, err)
		}
		return nil, providerStatusError(ProviderOpenAI, 0, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.New(errs.KindAIProvider, "openai provider returned no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, errs.New(errs.KindAIProvider, "openai provider returned an empty response")
	}

	return &ProviderResult{
		Text:         text,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
