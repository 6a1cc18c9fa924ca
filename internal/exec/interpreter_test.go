package exec

import (
	"context"
	"testing"

	"github.com/harmonix-run/harmonix/pkg/models"
)

type stubChat struct {
	reply string
	calls int
}

func (s *stubChat) GetAssistantReply(ctx context.Context, history []HistoryEntry, filter func(HistoryEntry) bool) (string, error) {
	s.calls++
	return s.reply, nil
}

type stubTools struct {
	result any
	calls  int
}

func (s *stubTools) Invoke(ctx context.Context, recipient string, args map[string]any) (any, error) {
	s.calls++
	return s.result, nil
}

func TestInterpreter_ToolCallThenFinalLiteral(t *testing.T) {
	script := &models.Script{Steps: []models.Step{
		{Type: models.StepToolCall, Recipient: "demo.echo", Channel: models.ChannelCommentary,
			Args: map[string]any{"text": "hello from tool"}, SaveAs: "toolResult"},
		{Type: models.StepAssistantMessage, Channel: models.ChannelFinal, Content: "Final answer from LLM."},
	}}
	chat := &stubChat{reply: "unused"}
	tools := &stubTools{result: "echoed"}
	in := NewInterpreter(chat, tools)

	res, err := in.Run(context.Background(), script, models.NewCaseInsensitiveMap[any](), models.NewCaseInsensitiveMap[any](), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.FinalSet || res.FinalText != "Final answer from LLM." {
		t.Fatalf("final = %q set=%v", res.FinalText, res.FinalSet)
	}
	if v, _ := res.Vars.Get("toolResult"); v != "echoed" {
		t.Errorf("toolResult = %v", v)
	}
	if chat.calls != 0 {
		t.Errorf("chat should not be called when final content is non-empty, calls=%d", chat.calls)
	}
}

func TestInterpreter_FinalDotAsksChat(t *testing.T) {
	script := &models.Script{Steps: []models.Step{
		{Type: models.StepAssistantMessage, Channel: models.ChannelFinal, Content: "."},
	}}
	chat := &stubChat{reply: "Final answer from LLM."}
	tools := &stubTools{}
	in := NewInterpreter(chat, tools)

	res, err := in.Run(context.Background(), script, models.NewCaseInsensitiveMap[any](), models.NewCaseInsensitiveMap[any](), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FinalText != "Final answer from LLM." {
		t.Errorf("final = %q", res.FinalText)
	}
	if chat.calls != 1 {
		t.Errorf("expected chat called once, got %d", chat.calls)
	}
}

func TestInterpreter_HaltStopsExecution(t *testing.T) {
	script := &models.Script{Steps: []models.Step{
		{Type: models.StepHalt},
		{Type: models.StepAssistantMessage, Channel: models.ChannelFinal, Content: "should not run"},
	}}
	chat := &stubChat{}
	tools := &stubTools{}
	in := NewInterpreter(chat, tools)

	res, err := in.Run(context.Background(), script, models.NewCaseInsensitiveMap[any](), models.NewCaseInsensitiveMap[any](), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Halted {
		t.Error("expected Halted=true")
	}
	if res.FinalSet {
		t.Error("halt should not set final text")
	}
}

func TestInterpreter_ToolCallWrongChannelFails(t *testing.T) {
	script := &models.Script{Steps: []models.Step{
		{Type: models.StepToolCall, Recipient: "demo.echo", Channel: models.ChannelFinal},
	}}
	in := NewInterpreter(&stubChat{}, &stubTools{})
	_, err := in.Run(context.Background(), script, models.NewCaseInsensitiveMap[any](), models.NewCaseInsensitiveMap[any](), nil)
	if err == nil {
		t.Fatal("expected channel-rule error")
	}
}

func TestInterpreter_IfBranch(t *testing.T) {
	vars := models.NewCaseInsensitiveMap[any]()
	vars.Set("count", float64(5))
	script := &models.Script{Steps: []models.Step{
		{Type: models.StepIf, Condition: "$vars.count >= 3",
			Then: []models.Step{{Type: models.StepAssistantMessage, Channel: models.ChannelFinal, Content: "big"}},
			Else: []models.Step{{Type: models.StepAssistantMessage, Channel: models.ChannelFinal, Content: "small"}},
		},
	}}
	in := NewInterpreter(&stubChat{}, &stubTools{})
	res, err := in.Run(context.Background(), script, vars, models.NewCaseInsensitiveMap[any](), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FinalText != "big" {
		t.Errorf("final = %q", res.FinalText)
	}
}
