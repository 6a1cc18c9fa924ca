// Package toolrecorder decorates a tool router to capture a trace of every
// invocation it makes, independent of what the session service does with
// that trace (attach as an artifact, append a transcript line, log it).
package toolrecorder

import (
	"context"
	"time"

	"github.com/harmonix-run/harmonix/internal/exec"
)

// Trace is one recorded tool invocation.
type Trace struct {
	Recipient    string
	Args         map[string]any
	StartedAt    time.Time
	CompletedAt  time.Time
	Succeeded    bool
	Result       any
	ErrorMessage string
}

// Duration returns how long the invocation took.
func (t Trace) Duration() time.Duration {
	return t.CompletedAt.Sub(t.StartedAt)
}

// Sink receives every completed Trace, success or failure.
type Sink func(Trace)

// Recorder wraps an exec.ToolRouter, capturing a Trace for each call before
// re-raising whatever the wrapped router returned.
type Recorder struct {
	next exec.ToolRouter
	sink Sink
}

// New wraps next, delivering every invocation's Trace to sink.
func New(next exec.ToolRouter, sink Sink) *Recorder {
	return &Recorder{next: next, sink: sink}
}

func (r *Recorder) Invoke(ctx context.Context, recipient string, args map[string]any) (any, error) {
	trace := Trace{
		Recipient: recipient,
		Args:      deepCloneMap(args),
		StartedAt: time.Now(),
	}

	result, err := r.next.Invoke(ctx, recipient, args)

	trace.CompletedAt = time.Now()
	if err != nil {
		trace.Succeeded = false
		trace.ErrorMessage = err.Error()
	} else {
		trace.Succeeded = true
		trace.Result = result
	}

	if r.sink != nil {
		r.sink(trace)
	}
	return result, err
}

func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	default:
		return v
	}
}
