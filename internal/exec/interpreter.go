package exec

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/harmonix-run/harmonix/internal/expr"
	"github.com/harmonix-run/harmonix/pkg/models"
)

// Interpreter runs a Script's steps against its two collaborators.
type Interpreter struct {
	Chat  ChatService
	Tools ToolRouter
}

// NewInterpreter builds an Interpreter bound to its collaborators.
func NewInterpreter(chat ChatService, tools ToolRouter) *Interpreter {
	return &Interpreter{Chat: chat, Tools: tools}
}

// runState carries the mutable bits threaded through one Run: the evaluator
// context and the chat-history entries accumulated along the way.
type runState struct {
	ectx     *expr.Context
	history  []HistoryEntry
	final    string
	finalSet bool
}

// Run executes script against vars merged with input, seeded with the
// existing chat history. script must carry at least one step (NO_HARMONY_STEPS
// is the caller's responsibility to raise before calling Run when appropriate).
func (in *Interpreter) Run(ctx context.Context, script *models.Script, vars models.CaseInsensitiveMap[any], input models.CaseInsensitiveMap[any], history []HistoryEntry) (*Result, error) {
	merged := vars.Clone()
	for k, v := range script.Vars {
		if !merged.Has(k) {
			merged.Set(k, v)
		}
	}

	st := &runState{
		ectx:    expr.NewContext(merged, input),
		history: append([]HistoryEntry(nil), history...),
	}

	halted, err := in.runSteps(ctx, script.Steps, st)
	if err != nil {
		return nil, err
	}

	if !halted && !st.finalSet {
		st.history = append(st.history, HistoryEntry{
			Role:    models.RoleSystem,
			Content: "summarize the results and produce a final response",
		})
		reply, err := in.Chat.GetAssistantReply(ctx, st.history, nil)
		if err != nil {
			return nil, err
		}
		st.final = reply
		st.finalSet = true
		st.history = append(st.history, HistoryEntry{Role: models.RoleAssistant, Channel: models.ChannelFinal, Content: reply})
	}

	return &Result{
		Vars:      st.ectx.Vars,
		FinalText: st.final,
		FinalSet:  st.finalSet,
		Halted:    halted,
		Appended:  st.history[len(history):],
	}, nil
}

// runSteps executes a sequence of steps; the returned bool reports whether a
// halt step was reached (propagated out of nested if-branches).
func (in *Interpreter) runSteps(ctx context.Context, steps []models.Step, st *runState) (bool, error) {
	for _, step := range steps {
		halted, err := in.runStep(ctx, step, st)
		if err != nil {
			return false, err
		}
		if halted {
			return true, nil
		}
	}
	return false, nil
}

func (in *Interpreter) runStep(ctx context.Context, step models.Step, st *runState) (bool, error) {
	switch step.Type {
	case models.StepExtractInput:
		return false, in.runExtractInput(step, st)
	case models.StepToolCall:
		return false, in.runToolCall(ctx, step, st)
	case models.StepIf:
		return in.runIf(ctx, step, st)
	case models.StepAssistantMessage:
		return false, in.runAssistantMessage(ctx, step, st)
	case models.StepHalt:
		return true, nil
	default:
		return false, models.NewError(models.KindExecutionError, "unknown step type: "+string(step.Type))
	}
}

func (in *Interpreter) runExtractInput(step models.Step, st *runState) error {
	for name, expression := range step.Mapping {
		if err := expr.ValidateSyntax(expression); err != nil {
			return err
		}
		val, err := expr.Evaluate(st.ectx, expression)
		if err != nil {
			return err
		}
		st.ectx.Vars.Set(name, val)
	}
	return nil
}

func (in *Interpreter) runToolCall(ctx context.Context, step models.Step, st *runState) error {
	if step.Channel != models.ChannelCommentary {
		return models.NewError(models.KindExecutionError, "tool-call step must use the commentary channel")
	}

	args := make(map[string]any, len(step.Args))
	for name, raw := range step.Args {
		val, err := evaluateArg(st.ectx, raw)
		if err != nil {
			return err
		}
		args[name] = val
	}

	result, err := in.Tools.Invoke(ctx, step.Recipient, args)
	if err != nil {
		return err
	}
	if step.SaveAs != "" {
		st.ectx.Vars.Set(step.SaveAs, result)
	}
	return nil
}

// evaluateArg implements "string values may be expressions": a string arg
// starting with '$' is evaluated as an expression, anything else is used
// verbatim as its JSON value.
func evaluateArg(ctx *expr.Context, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok || !strings.HasPrefix(s, "$") {
		return raw, nil
	}
	return expr.Evaluate(ctx, s)
}

func (in *Interpreter) runIf(ctx context.Context, step models.Step, st *runState) (bool, error) {
	if err := expr.ValidateSyntax(step.Condition); err != nil {
		return false, err
	}
	ok, err := expr.EvaluateCondition(st.ectx, step.Condition)
	if err != nil {
		return false, err
	}
	if ok {
		return in.runSteps(ctx, step.Then, st)
	}
	return in.runSteps(ctx, step.Else, st)
}

func (in *Interpreter) runAssistantMessage(ctx context.Context, step models.Step, st *runState) error {
	if step.Channel != models.ChannelAnalysis && step.Channel != models.ChannelFinal {
		return models.NewError(models.KindExecutionError, "assistant-message step must use the analysis or final channel")
	}

	rendered, err := renderAssistantContent(st.ectx, step)
	if err != nil {
		return err
	}

	if step.Channel == models.ChannelAnalysis {
		st.history = append(st.history, HistoryEntry{Role: models.RoleAssistant, Channel: models.ChannelAnalysis, Content: rendered})
		return nil
	}

	if rendered != "" && rendered != "." {
		st.final = rendered
		st.finalSet = true
		st.history = append(st.history, HistoryEntry{Role: models.RoleAssistant, Channel: models.ChannelFinal, Content: rendered})
		return nil
	}

	reply, err := in.Chat.GetAssistantReply(ctx, st.history, nil)
	if err != nil {
		return err
	}
	st.final = reply
	st.finalSet = true
	st.history = append(st.history, HistoryEntry{Role: models.RoleAssistant, Channel: models.ChannelFinal, Content: reply})
	return nil
}

func renderAssistantContent(ctx *expr.Context, step models.Step) (string, error) {
	if step.ContentTemplate != "" {
		return expr.Render(ctx, step.ContentTemplate), nil
	}
	switch v := step.Content.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", models.NewError(models.KindExecutionError, "could not render assistant-message content: "+err.Error())
		}
		return string(raw), nil
	}
}
