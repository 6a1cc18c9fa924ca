package canon

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harmonix-run/harmonix/internal/wire"
	"github.com/harmonix-run/harmonix/pkg/models"
)

// Validator is the injected schema-validation collaborator. It returns nil on
// success or a structured *models.SchemaError on failure; the core treats it
// as a black box.
type Validator interface {
	ValidateEnvelope(jsonText []byte) *models.SchemaError
	ValidateScript(scriptNode any) *models.SchemaError
}

// JSONSchemaValidator is the reference Validator backed by
// santhosh-tekuri/jsonschema/v5-compiled schemas.
type JSONSchemaValidator struct{}

// NewJSONSchemaValidator returns the default schema-validator collaborator.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{}
}

func (JSONSchemaValidator) ValidateEnvelope(jsonText []byte) *models.SchemaError {
	if err := initSchemas(); err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaEnvelopeFailed), Message: err.Error()}
	}
	var payload any
	if err := json.Unmarshal(jsonText, &payload); err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaEnvelopeFailed), Message: err.Error()}
	}
	if err := registry.envelope.Validate(payload); err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaEnvelopeFailed), Message: err.Error()}
	}
	return nil
}

func (JSONSchemaValidator) ValidateScript(scriptNode any) *models.SchemaError {
	if err := initSchemas(); err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaScriptFailed), Message: err.Error()}
	}
	if err := registry.script.Validate(scriptNode); err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaScriptFailed), Message: err.Error()}
	}
	return nil
}

// Canonicalize normalizes a parsed envelope: role lower-cased and trimmed,
// defaults filled the same way the wire parser fills them, text bodies
// stripped of outer CR/LF only, and the assistant+commentary
// recipient/termination rule enforced. A missing format version defaults to
// the current one; a newer version is rejected so a future revision can't be
// silently misread.
func Canonicalize(env *models.Envelope) (*models.Envelope, error) {
	out := &models.Envelope{Version: env.Version}
	if out.Version == 0 {
		out.Version = models.FormatVersion
	}
	if out.Version > models.FormatVersion {
		return nil, models.NewError(models.KindSchemaEnvelopeFailed,
			fmt.Sprintf("envelope format version %d is newer than this build (current: %d)", out.Version, models.FormatVersion))
	}
	out.Messages = make([]models.Message, len(env.Messages))
	for i, msg := range env.Messages {
		canon, err := canonicalizeMessage(msg)
		if err != nil {
			return nil, err
		}
		out.Messages[i] = canon
	}
	return out, nil
}

func canonicalizeMessage(msg models.Message) (models.Message, error) {
	msg.Role = models.Role(strings.ToLower(strings.TrimSpace(string(msg.Role))))

	if msg.Channel == models.ChannelAbsent && msg.Role == models.RoleAssistant {
		msg.Channel = wire.DefaultAssistantChannel(msg.Termination)
	}

	bodyForInference := ""
	if s, ok := msg.TextContent(); ok {
		bodyForInference = s
	} else if msg.Content != nil {
		if raw, err := json.Marshal(msg.Content); err == nil {
			bodyForInference = string(raw)
		}
	}
	if msg.ContentType == models.ContentAbsent {
		msg.ContentType = models.ContentType(wire.InferContentType(msg.Role, msg.Channel, msg.Termination, bodyForInference))
	}

	if msg.Role != models.RoleAssistant || msg.Channel != models.ChannelCommentary {
		msg.Termination = models.TerminationAbsent
	}

	if msg.ContentType == models.ContentText {
		if s, ok := msg.TextContent(); ok {
			msg.Content = strings.Trim(s, "\r\n")
		}
	}

	if msg.RequiresRecipient() && msg.Recipient == "" {
		return models.Message{}, models.NewError(models.KindSchemaEnvelopeFailed,
			"assistant+commentary message is missing a recipient")
	}
	if msg.RequiresRecipient() && msg.Termination == models.TerminationAbsent {
		return models.Message{}, models.NewError(models.KindSchemaEnvelopeFailed,
			"assistant+commentary message is missing a termination")
	}

	return msg, nil
}

// ValidateEnvelope marshals env's canonical wire shape (a single root
// property "messages") and runs it through v. The persisted envelope also
// carries a format version, but that is an engine-side field, not part of
// the canonical schema's root.
func ValidateEnvelope(v Validator, env *models.Envelope) *models.SchemaError {
	wireShape := struct {
		Messages []models.Message `json:"messages"`
	}{Messages: env.Messages}
	raw, err := json.Marshal(wireShape)
	if err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaEnvelopeFailed), Message: err.Error()}
	}
	return v.ValidateEnvelope(raw)
}

// ValidateScript runs a decoded script through v.
func ValidateScript(v Validator, script *models.Script) *models.SchemaError {
	raw, err := json.Marshal(script)
	if err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaScriptFailed), Message: err.Error()}
	}
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return &models.SchemaError{Code: string(models.KindSchemaScriptFailed), Message: err.Error()}
	}
	return v.ValidateScript(node)
}
