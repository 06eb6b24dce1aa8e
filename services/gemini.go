package services

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/rehearsal-ai/backend/errs"
	"github.com/rehearsal-ai/backend/models"
)

// GeminiClient adapts the Google GenAI SDK to the ProviderClient
// contract.
type GeminiClient struct {
	client *genai.Client
}

func newGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errs.New(errs.KindConfiguration, "GEMINI_API_KEY is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindAIProvider, err, "failed to initialize the gemini provider client")
	}
	return &GeminiClient{client: client}, nil
}

var _ ProviderClient = (*GeminiClient)(nil)

func (c *GeminiClient) Generate(ctx context.Context, req ProviderRequest) (*ProviderResult, error) {
	contents := make([]*genai.Content, 0, len(req.Turns)+1)
	for _, turn := range req.Turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role == models.RoleInterviewer {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	if len(contents) == 0 {
		contents = append(contents, genai.NewContentFromText("Hello", genai.RoleUser))
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxOutputTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, errs.Wrap(errs.KindAIProvider, err, "google provider call failed")
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, errs.New(errs.KindAIProvider, "google provider returned an empty response")
	}

	res := &ProviderResult{Text: text}
	if usage := result.UsageMetadata; usage != nil {
		res.InputTokens = int64(usage.PromptTokenCount)
		res.OutputTokens = int64(usage.CandidatesTokenCount)
	} else {
		res.InputTokens = estimatePromptTokens(req)
		res.OutputTokens = estimateTokens(text)
	}
	return res, nil
}
