package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
)

// GeminiProvider executes chat completions against the Gemini API. It serves
// as the fallback brain when OpenAI is unavailable or out of quota.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a Gemini chat-completion provider.
// Returns (nil, nil) when apiKey is empty: the fallback is simply disabled.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // fallback disabled when no API key
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("coach: create genai client: %w", err)
	}

	return &GeminiProvider{client: client, model: model}, nil
}

// Name returns the provider name for metrics and logs.
func (p *GeminiProvider) Name() string { return ProviderGemini }

// Complete executes one generation and returns the reply text.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.User), config)
	if err != nil {
		return "", apperrors.NewCoachError(ProviderGemini, "completion", 0, err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", apperrors.NewCoachError(ProviderGemini, "completion", 0, errors.New("empty response from model"))
	}
	return text, nil
}
