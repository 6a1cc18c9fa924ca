package chatservice

import (
	"errors"
	"testing"
	"time"

	"github.com/harmonix-run/harmonix/internal/exec"
	"github.com/harmonix-run/harmonix/pkg/models"
)

func TestNewAnthropicChat(t *testing.T) {
	if _, err := NewAnthropicChat(AnthropicChatConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}

	chat, err := NewAnthropicChat(AnthropicChatConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropicChat: %v", err)
	}
	if chat.model != "claude-sonnet-4-20250514" {
		t.Errorf("expected default model, got %s", chat.model)
	}
	if chat.maxRetries != 3 {
		t.Errorf("expected default maxRetries 3, got %d", chat.maxRetries)
	}
	if chat.retryDelay != time.Second {
		t.Errorf("expected default retryDelay 1s, got %v", chat.retryDelay)
	}
}

func TestNewAnthropicChatNegativeRetriesDefaulted(t *testing.T) {
	chat, err := NewAnthropicChat(AnthropicChatConfig{APIKey: "k", MaxRetries: -1, RetryDelay: -time.Second})
	if err != nil {
		t.Fatalf("NewAnthropicChat: %v", err)
	}
	if chat.maxRetries <= 0 || chat.retryDelay <= 0 {
		t.Errorf("expected positive defaults, got retries=%d delay=%v", chat.maxRetries, chat.retryDelay)
	}
}

func TestConvertHistorySplitsSystemAndMapsRoles(t *testing.T) {
	history := []exec.HistoryEntry{
		{Role: models.RoleSystem, Content: "you are helpful"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleAssistant, Channel: models.ChannelAnalysis, Content: "internal note"},
		{Role: models.RoleUser, Content: ""},
	}

	system, messages := convertHistory(history, exec.DefaultFilter)
	if system != "you are helpful" {
		t.Errorf("expected system prompt extracted, got %q", system)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages (analysis and empty filtered out), got %d", len(messages))
	}
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err   error
		retry bool
	}{
		{errors.New("rate_limit exceeded"), true},
		{errors.New("503 service unavailable"), true},
		{errors.New("request timeout"), true},
		{errors.New("connection reset by peer"), true},
		{errors.New("invalid api key"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isRetryableError(tc.err); got != tc.retry {
			t.Errorf("isRetryableError(%v) = %v, want %v", tc.err, got, tc.retry)
		}
	}
}

func TestBackoffDoubles(t *testing.T) {
	if got := backoff(time.Second, 0); got != time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", got)
	}
	if got := backoff(time.Second, 2); got != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %v", got)
	}
}
