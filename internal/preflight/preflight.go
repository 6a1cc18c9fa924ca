// Package preflight walks an envelope to determine which tool recipients a
// run will require, and checks them against an availability collaborator
// before the session service commits to executing a script.
package preflight

import (
	"encoding/json"
	"strings"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// Availability is the injected collaborator answering whether a recipient is
// currently reachable.
type Availability interface {
	IsAvailable(recipient string) bool
	ListAvailable() []string
}

// Report is the outcome of walking one envelope.
type Report struct {
	RequiredRecipients []string `json:"requiredRecipients"`
	MissingRecipients   []string `json:"missingRecipients"`
	IsReady             bool     `json:"isReady"`
}

// Analyze gathers every recipient env's messages depend on and checks each
// against avail, deduplicating case-insensitively.
func Analyze(env *models.Envelope, avail Availability) (*Report, error) {
	seen := make(map[string]string) // folded -> original casing of first sighting
	for _, msg := range env.Messages {
		if msg.Role == models.RoleAssistant && msg.Termination == models.TerminationCall && msg.Recipient != "" {
			addRecipient(seen, msg.Recipient)
		}
		if msg.ContentType == models.ContentHarmonyScript {
			script, err := decodeScript(msg.Content)
			if err != nil {
				return nil, err
			}
			collectStepRecipients(script.Steps, seen)
		}
	}

	required := make([]string, 0, len(seen))
	for _, orig := range seen {
		required = append(required, orig)
	}

	missing := make([]string, 0)
	for _, r := range required {
		if !avail.IsAvailable(r) {
			missing = append(missing, r)
		}
	}

	return &Report{
		RequiredRecipients: required,
		MissingRecipients:  missing,
		IsReady:            len(missing) == 0,
	}, nil
}

func addRecipient(seen map[string]string, recipient string) {
	key := strings.ToLower(recipient)
	if _, ok := seen[key]; !ok {
		seen[key] = recipient
	}
}

func collectStepRecipients(steps []models.Step, seen map[string]string) {
	for _, step := range steps {
		switch step.Type {
		case models.StepToolCall:
			if step.Recipient != "" {
				addRecipient(seen, step.Recipient)
			}
		case models.StepIf:
			collectStepRecipients(step.Then, seen)
			collectStepRecipients(step.Else, seen)
		}
	}
}

// decodeScript decodes a harmony-script message's content (already unmarshaled
// as a generic any by the parser/canonicalizer) back into a typed Script.
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
