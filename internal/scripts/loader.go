// Package scripts ingests raw script text, either harmony wire-format frames
// or canonical-shape JSON, into validated envelopes registered with a
// sessions.ScriptStore. It is the piece the CLI's register command and any
// file-based script source sit on top of, chaining wire parsing and
// canonicalization/schema validation ahead of storage.
package scripts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/harmonix-run/harmonix/internal/canon"
	"github.com/harmonix-run/harmonix/internal/sessions"
	"github.com/harmonix-run/harmonix/internal/wire"
	"github.com/harmonix-run/harmonix/pkg/models"
)

// Loader parses and validates incoming scripts before handing them to a
// sessions.ScriptStore.
type Loader struct {
	Store     sessions.ScriptStore
	Validator canon.Validator
}

// NewLoader builds a Loader. A nil validator falls back to the reference
// JSON-schema validator.
func NewLoader(store sessions.ScriptStore, validator canon.Validator) *Loader {
	if validator == nil {
		validator = canon.NewJSONSchemaValidator()
	}
	return &Loader{Store: store, Validator: validator}
}

// LoadWire parses text as back-to-back harmony wire frames, canonicalizes
// and validates the result, and registers it under scriptID.
func (l *Loader) LoadWire(ctx context.Context, scriptID, text string) (*models.Envelope, error) {
	env, err := wire.ParseEnvelope(text)
	if err != nil {
		return nil, fmt.Errorf("scripts: parse: %w", err)
	}
	return l.finish(ctx, scriptID, env)
}

// LoadJSON decodes raw as a canonical-shape JSON envelope, canonicalizes and
// validates the result, and registers it under scriptID.
func (l *Loader) LoadJSON(ctx context.Context, scriptID string, raw []byte) (*models.Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var env models.Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("scripts: decode: %w", err)
	}
	return l.finish(ctx, scriptID, &env)
}

func (l *Loader) finish(ctx context.Context, scriptID string, env *models.Envelope) (*models.Envelope, error) {
	canonical, err := canon.Canonicalize(env)
	if err != nil {
		return nil, err
	}
	if schemaErr := canon.ValidateEnvelope(l.Validator, canonical); schemaErr != nil {
		return nil, schemaErr
	}
	for _, msg := range canonical.Messages {
		if !msg.IsHarmonyScript() {
			continue
		}
		script, err := decodeScript(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("scripts: decode embedded script: %w", err)
		}
		if schemaErr := canon.ValidateScript(l.Validator, script); schemaErr != nil {
			return nil, schemaErr
		}
	}
	if err := l.Store.RegisterScript(ctx, scriptID, canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

// decodeScript mirrors preflight's own embedded-script decode: content
// arrives already unmarshaled as a generic any and is re-encoded to recover
// a typed Script.
func decodeScript(content any) (*models.Script, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, models.NewError(models.KindMissingHarmonyScript, "could not re-encode harmony-script content: "+err.Error())
	}
	var script models.Script
	if err := json.Unmarshal(raw, &script); err != nil {
		return nil, models.NewError(models.KindMissingHarmonyScript, "could not decode harmony-script content: "+err.Error())
	}
	return &script, nil
}
