// Package exec runs a models.Script's steps against an expression context,
// invoking chat and tool collaborators as directed by tool-call and
// assistant-message steps.
package exec

import (
	"context"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// HistoryEntry is one item in the chat history passed to a ChatService: the
// durable ChatEntry plus the extra routing fields a chat backend may want to
// see (channel, contentType, recipient, termination).
type HistoryEntry struct {
	Role        models.Role
	Content     string
	Channel     models.Channel
	ContentType models.ContentType
	Recipient   string
	Termination models.Termination
	SourceIndex *int
}

// ChatService is the language-model chat backend collaborator. filter may be
// nil, in which case DefaultFilter applies.
type ChatService interface {
	GetAssistantReply(ctx context.Context, history []HistoryEntry, filter func(HistoryEntry) bool) (string, error)
}

// DefaultFilter drops entries whose channel is analysis or whose content is
// empty, per the external-interface contract.
func DefaultFilter(e HistoryEntry) bool {
	if e.Channel == models.ChannelAnalysis {
		return false
	}
	if e.Content == "" {
		return false
	}
	return true
}

// ToolRouter invokes a named tool recipient with evaluated arguments.
type ToolRouter interface {
	Invoke(ctx context.Context, recipient string, args map[string]any) (any, error)
}

// Result is what one script run produced: the updated vars, the final
// output text (if any was set), whether a halt step ended the run early, and
// the chat-history entries accumulated during the run (analysis messages,
// plus the final entry once set) for the caller to fold into its transcript.
type Result struct {
	Vars      models.CaseInsensitiveMap[any]
	FinalText string
	FinalSet  bool
	Halted    bool
	Appended  []HistoryEntry
}
