package toolservice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func echoTool() *FuncTool {
	return NewFuncTool("demo.echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
}

func TestRegistryInvokeRoundTrip(t *testing.T) {
	reg := NewRegistry(DefaultRegistryConfig())
	reg.Register(echoTool())

	result, err := reg.Invoke(context.Background(), "demo.echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "hi" {
		t.Fatalf("expected echoed text, got %v", result)
	}
}

func TestRegistryInvokeUnknownRecipient(t *testing.T) {
	reg := NewRegistry(DefaultRegistryConfig())
	if _, err := reg.Invoke(context.Background(), "demo.missing", nil); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
}

func TestRegistryAvailability(t *testing.T) {
	reg := NewRegistry(DefaultRegistryConfig())
	reg.Register(echoTool())

	if !reg.IsAvailable("demo.echo") {
		t.Fatal("expected demo.echo to be available")
	}
	if reg.IsAvailable("demo.missing") {
		t.Fatal("expected demo.missing to be unavailable")
	}
	names := reg.ListAvailable()
	if len(names) != 1 || names[0] != "demo.echo" {
		t.Fatalf("unexpected ListAvailable result: %v", names)
	}

	reg.Unregister("demo.echo")
	if reg.IsAvailable("demo.echo") {
		t.Fatal("expected demo.echo to be unavailable after Unregister")
	}
}

func TestRegistryRecipientLookupIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry(DefaultRegistryConfig())
	reg.Register(echoTool())

	if !reg.IsAvailable("Demo.Echo") {
		t.Fatal("expected case-insensitive availability lookup")
	}
	result, err := reg.Invoke(context.Background(), "DEMO.ECHO", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result != "hi" {
		t.Fatalf("expected echoed text, got %v", result)
	}
	names := reg.ListAvailable()
	if len(names) != 1 || names[0] != "demo.echo" {
		t.Fatalf("expected registered casing preserved, got %v", names)
	}
}

func TestRegistryInvokeRespectsTimeout(t *testing.T) {
	reg := NewRegistry(RegistryConfig{PerToolTimeout: 10 * time.Millisecond})
	reg.Register(NewFuncTool("demo.slow", func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too slow", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))

	_, err := reg.Invoke(context.Background(), "demo.slow", nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
