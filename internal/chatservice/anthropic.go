package chatservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harmonix-run/harmonix/internal/exec"
	"github.com/harmonix-run/harmonix/pkg/models"
)

// AnthropicChat implements exec.ChatService against Anthropic's Messages API.
// Unlike a streaming provider, a script only ever needs the finished text of
// one assistant turn, so this issues a single non-streaming request per call.
type AnthropicChat struct {
	client     anthropic.Client
	model      string
	maxRetries int
	retryDelay time.Duration
	maxTokens  int64
}

// AnthropicChatConfig configures AnthropicChat.
type AnthropicChatConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	MaxTokens  int64
}

// NewAnthropicChat builds an AnthropicChat, applying the same defaults
// (3 retries, 1s base backoff, claude-sonnet-4-20250514) the rest of the
// ecosystem uses for this SDK.
func NewAnthropicChat(cfg AnthropicChatConfig) (*AnthropicChat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chatservice: anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
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

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicChat{
		client:     anthropic.NewClient(opts...),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		maxTokens:  cfg.MaxTokens,
	}, nil
}

// GetAssistantReply sends history as a non-streaming Messages request and
// returns the concatenated text blocks of the reply.
func (c *AnthropicChat) GetAssistantReply(ctx context.Context, history []exec.HistoryEntry, filter func(exec.HistoryEntry) bool) (string, error) {
	if filter == nil {
		filter = exec.DefaultFilter
	}

	system, messages := convertHistory(history, filter)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	var msg *anthropic.Message
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		msg, err = c.client.Messages.New(ctx, params)
		if err == nil {
			break
		}
		if !isRetryableError(err) || attempt == c.maxRetries {
			return "", fmt.Errorf("chatservice: anthropic request failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff(c.retryDelay, attempt)):
		}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// convertHistory splits system-role entries out (Anthropic carries system
// prompt separately from the message list) and maps the rest to
// user/assistant turns, folding tool-role entries into user turns the same
// way the streaming provider does.
func convertHistory(history []exec.HistoryEntry, filter func(exec.HistoryEntry) bool) (string, []anthropic.MessageParam) {
	var system strings.Builder
	var messages []anthropic.MessageParam

	for _, entry := range history {
		if !filter(entry) {
			continue
		}
		if entry.Role == models.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(entry.Content)
			continue
		}

		block := anthropic.NewTextBlock(entry.Content)
		if entry.Role == models.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	return system.String(), messages
}
