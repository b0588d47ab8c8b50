package coach

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	apperrors "github.com/tcm-emi/linebot-go/internal/errors"
)

// OpenAIProvider executes chat completions against the OpenAI API (or any
// OpenAI-compatible endpoint via a custom base URL).
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI chat-completion provider.
func NewOpenAIProvider(apiKey, model, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("coach: openai api key is required")
	}
	if model == "" {
		return nil, errors.New("coach: openai model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Name returns the provider name for metrics and logs.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Complete executes one chat completion and returns the reply text.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", apperrors.NewCoachError(ProviderOpenAI, "completion", statusCodeOf(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewCoachError(ProviderOpenAI, "completion", 0, errors.New("empty response from model"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// statusCodeOf extracts the HTTP status from an openai-go API error.
func statusCodeOf(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
