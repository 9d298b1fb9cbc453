package analyzer

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Provider completes a system+user prompt pair into raw text.
type Provider interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, system, user string) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIProvider builds a chat-completion provider. baseURL may be empty
// for the public endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 4000,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		MaxTokens:   p.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &ProviderError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &ProviderError{Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
		}
		return "", &ProviderError{Message: err.Error()}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Message: "no choices in completion"}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
