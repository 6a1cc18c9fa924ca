// Package canon canonicalizes parsed envelopes into the fixed JSON shape the
// rest of the engine consumes, and validates both envelopes and embedded
// scripts against compiled JSON schemas.
package canon

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type schemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	script   *jsonschema.Schema
}

var registry schemaRegistry

func initSchemas() error {
	registry.once.Do(func() {
		env, err := jsonschema.CompileString("envelope", envelopeSchema)
		if err != nil {
			registry.initErr = err
			return
		}
		registry.envelope = env

		scr, err := jsonschema.CompileString("script", scriptSchema)
		if err != nil {
			registry.initErr = err
			return
		}
		registry.script = scr
	})
	return registry.initErr
}

// envelopeSchema is the canonical JSON envelope shape: a single root property
// "messages", additionalProperties=false at the root. recipient/termination
// are not globally required; the assistant+commentary conditional requirement
// is enforced separately in canon.go since plain JSON Schema draft used here
// does not express it compactly across drafts in a way worth inlining twice.
const envelopeSchema = `{
  "type": "object",
  "required": ["messages"],
  "properties": {
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role", "channel", "contentType"],
        "properties": {
          "role": { "type": "string", "minLength": 1 },
          "channel": { "type": "string" },
          "recipient": { "type": "string" },
          "contentType": { "type": "string", "enum": ["text", "json", "harmony-script", ""] },
          "termination": { "type": "string" },
          "content": {}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

// scriptSchema validates a decoded harmony-script payload.
const scriptSchema = `{
  "type": "object",
  "required": ["steps"],
  "properties": {
    "vars": { "type": "object" },
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": { "type": "string", "enum": ["extract-input", "tool-call", "if", "assistant-message", "halt"] },
          "mapping": { "type": "object" },
          "recipient": { "type": "string" },
          "channel": { "type": "string" },
          "args": { "type": "object" },
          "save_as": { "type": "string" },
          "condition": { "type": "string" },
          "then": { "type": "array" },
          "else": { "type": "array" },
          "content": {},
          "contentTemplate": { "type": "string" }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`
