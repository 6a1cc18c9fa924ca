package toolrecorder

import (
	"context"
	"errors"
	"testing"
)

type stubRouter struct {
	result any
	err    error
}

func (s stubRouter) Invoke(ctx context.Context, recipient string, args map[string]any) (any, error) {
	return s.result, s.err
}

func TestRecorder_RecordsSuccessAndClonesArgs(t *testing.T) {
	args := map[string]any{"query": "hello"}
	var captured Trace
	rec := New(stubRouter{result: "ok"}, func(tr Trace) { captured = tr })

	result, err := rec.Invoke(context.Background(), "demo.lookup", args)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v", result)
	}
	if !captured.Succeeded || captured.Result != "ok" {
		t.Errorf("trace = %+v", captured)
	}
	args["query"] = "mutated"
	if captured.Args["query"] != "hello" {
		t.Errorf("trace args should be a clone, got %v", captured.Args["query"])
	}
}

func TestRecorder_RecordsAndReraisesError(t *testing.T) {
	wantErr := errors.New("boom")
	var captured Trace
	rec := New(stubRouter{err: wantErr}, func(tr Trace) { captured = tr })

	_, err := rec.Invoke(context.Background(), "demo.lookup", nil)
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if captured.Succeeded {
		t.Error("expected Succeeded=false")
	}
	if captured.ErrorMessage != "boom" {
		t.Errorf("errorMessage = %q", captured.ErrorMessage)
	}
}
