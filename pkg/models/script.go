package models

// StepType tags the variant of a Step.
type StepType string

const (
	StepExtractInput     StepType = "extract-input"
	StepToolCall         StepType = "tool-call"
	StepIf               StepType = "if"
	StepAssistantMessage StepType = "assistant-message"
	StepHalt             StepType = "halt"
)

// Script is the decoded body of a harmony-script content payload: an ordered
// program of Steps plus optional default variable bindings.
type Script struct {
	Vars  map[string]any `json:"vars,omitempty"`
	Steps []Step         `json:"steps"`
}

// Step is a single instruction in a Script, tagged by Type. Only the fields
// relevant to Type are populated; this mirrors the envelope's own tagged-union
// shape rather than modeling Step as an interface, since steps are decoded
// directly off the wire and re-serialized unchanged by the canonicalizer.
type Step struct {
	Type StepType `json:"type"`

	// extract-input: varName -> expression.
	Mapping map[string]string `json:"mapping,omitempty"`

	// tool-call
	Recipient string         `json:"recipient,omitempty"`
	Channel   Channel        `json:"channel,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	SaveAs    string         `json:"save_as,omitempty"`

	// if
	Condition string `json:"condition,omitempty"`
	Then      []Step `json:"then,omitempty"`
	Else      []Step `json:"else,omitempty"`

	// assistant-message
	Content         any    `json:"content,omitempty"`
	ContentTemplate string `json:"contentTemplate,omitempty"`
}
