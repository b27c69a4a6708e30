package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Options tune a chat provider; zero values take the provider defaults.
type Options struct {
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// ChatProvider talks to an OpenAI-compatible chat-completions endpoint.
type ChatProvider struct {
	name        string
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func newChatProvider(name, apiKey, defaultBaseURL, defaultModel string, opts Options) *ChatProvider {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1024
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	} else if defaultBaseURL != "" {
		config.BaseURL = defaultBaseURL
	}
	config.HTTPClient = &http.Client{Timeout: opts.Timeout}

	return &ChatProvider{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}
}

func NewOpenAIProvider(apiKey string, opts Options) *ChatProvider {
	return newChatProvider("OpenAI", apiKey, "", "gpt-4o-mini", opts)
}

func (p *ChatProvider) Name() string {
	return p.name
}

func (p *ChatProvider) Complete(ctx context.Context, systemPrompt string, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s error: %w", strings.ToLower(p.name), err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%s: %w", strings.ToLower(p.name), ErrEmptyCompletion)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
