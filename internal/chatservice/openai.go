package chatservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harmonix-run/harmonix/internal/exec"
	"github.com/harmonix-run/harmonix/pkg/models"
)

// OpenAIChat implements exec.ChatService against the Chat Completions API.
type OpenAIChat struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	maxTokens  int
}

// OpenAIChatConfig configures OpenAIChat.
type OpenAIChatConfig struct {
	APIKey     string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	MaxTokens  int
}

// NewOpenAIChat builds an OpenAIChat.
func NewOpenAIChat(cfg OpenAIChatConfig) (*OpenAIChat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chatservice: openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	return &OpenAIChat{
		client:     openai.NewClient(cfg.APIKey),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		maxTokens:  cfg.MaxTokens,
	}, nil
}

// GetAssistantReply sends history as a single (non-streaming) chat completion
// request and returns the first choice's message content.
func (c *OpenAIChat) GetAssistantReply(ctx context.Context, history []exec.HistoryEntry, filter func(exec.HistoryEntry) bool) (string, error) {
	if filter == nil {
		filter = exec.DefaultFilter
	}

	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  convertHistoryOpenAI(history, filter),
		MaxTokens: c.maxTokens,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isRetryableError(err) || attempt == c.maxRetries {
			return "", fmt.Errorf("chatservice: openai request failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff(c.retryDelay, attempt)):
		}
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("chatservice: openai response had no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func convertHistoryOpenAI(history []exec.HistoryEntry, filter func(exec.HistoryEntry) bool) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, entry := range history {
		if !filter(entry) {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(entry.Role),
			Content: entry.Content,
		})
	}
	return messages
}

func openAIRole(role models.Role) string {
	switch role {
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case models.RoleDeveloper:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
