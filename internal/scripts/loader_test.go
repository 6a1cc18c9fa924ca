package scripts

import (
	"context"
	"testing"

	"github.com/harmonix-run/harmonix/internal/canon"
	"github.com/harmonix-run/harmonix/internal/sessions"
	"github.com/harmonix-run/harmonix/pkg/models"
)

func TestLoaderLoadWireRegistersCanonicalEnvelope(t *testing.T) {
	store := sessions.NewMemoryStore()
	loader := NewLoader(store, canon.NewJSONSchemaValidator())

	text := "<|start|>system<|message|>be terse<|end|>" +
		"<|start|>user<|message|>hi<|end|>"

	env, err := loader.LoadWire(context.Background(), "script-1", text)
	if err != nil {
		t.Fatalf("LoadWire: %v", err)
	}
	if len(env.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(env.Messages))
	}
	if env.Messages[0].Role != models.RoleSystem {
		t.Errorf("expected system role, got %s", env.Messages[0].Role)
	}

	stored, err := store.GetScript(context.Background(), "script-1")
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if len(stored.Messages) != 2 {
		t.Fatalf("expected stored envelope with 2 messages, got %d", len(stored.Messages))
	}
}

func TestLoaderLoadJSONValidatesEmbeddedScript(t *testing.T) {
	store := sessions.NewMemoryStore()
	loader := NewLoader(store, canon.NewJSONSchemaValidator())

	raw := []byte(`{
		"version": 1,
		"messages": [
			{"role": "system", "channel": "", "contentType": "text", "content": "setup"},
			{
				"role": "assistant", "channel": "commentary", "recipient": "demo.echo",
				"termination": "call", "contentType": "harmony-script",
				"content": {"steps": [
					{"type": "tool-call", "recipient": "demo.echo", "channel": "commentary", "args": {}, "save_as": "x"}
				]}
			}
		]
	}`)

	env, err := loader.LoadJSON(context.Background(), "script-2", raw)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if len(env.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(env.Messages))
	}

	if _, err := store.GetScript(context.Background(), "script-2"); err != nil {
		t.Fatalf("GetScript: %v", err)
	}
}

func TestLoaderLoadJSONRejectsInvalidScriptStep(t *testing.T) {
	store := sessions.NewMemoryStore()
	loader := NewLoader(store, canon.NewJSONSchemaValidator())

	raw := []byte(`{
		"version": 1,
		"messages": [
			{
				"role": "assistant", "channel": "commentary", "recipient": "demo.echo",
				"termination": "call", "contentType": "harmony-script",
				"content": {"steps": [
					{"type": "not-a-real-step"}
				]}
			}
		]
	}`)

	if _, err := loader.LoadJSON(context.Background(), "script-3", raw); err == nil {
		t.Fatal("expected schema validation error for invalid step type")
	}

	if _, err := store.GetScript(context.Background(), "script-3"); err == nil {
		t.Fatal("expected script-3 to remain unregistered after validation failure")
	}
}

func TestLoaderLoadJSONRejectsMissingRecipient(t *testing.T) {
	store := sessions.NewMemoryStore()
	loader := NewLoader(store, canon.NewJSONSchemaValidator())

	raw := []byte(`{
		"version": 1,
		"messages": [
			{"role": "assistant", "channel": "commentary", "termination": "call", "contentType": "json", "content": {}}
		]
	}`)

	if _, err := loader.LoadJSON(context.Background(), "script-4", raw); err == nil {
		t.Fatal("expected canonicalization error for missing recipient")
	}
}
