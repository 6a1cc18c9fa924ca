// Package chatservice adapts third-party LLM SDKs to the exec.ChatService
// collaborator interface the step interpreter drives for assistant-message
// and context-summarization steps.
package chatservice

import (
	"strings"
	"time"
)

// isRetryableError classifies a chat-backend error as transient (rate limits,
// server errors, timeouts, connection resets) versus permanent.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate_limit"),
		strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"):
		return true
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"),
		strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "internal server error"),
		strings.Contains(msg, "bad gateway"),
		strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "gateway timeout"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return true
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return true
	default:
		return false
	}
}

// backoff returns the exponential delay before retry attempt (0-indexed).
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}
