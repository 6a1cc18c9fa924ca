package models

import "time"

// SessionStatus is the session state machine's current state.
type SessionStatus string

const (
	StatusCreated   SessionStatus = "Created"
	StatusRunning   SessionStatus = "Running"
	StatusBlocked   SessionStatus = "Blocked"
	StatusCompleted SessionStatus = "Completed"
	StatusFailed    SessionStatus = "Failed"
	StatusCancelled SessionStatus = "Cancelled"
)

// IsTerminal reports whether status is one of the session's terminal states.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Session is the mutable runtime state bound to one registered script.
type Session struct {
	SessionID string        `json:"sessionId"`
	ScriptID  string        `json:"scriptId"`

	CurrentIndex int           `json:"currentIndex"`
	Status       SessionStatus `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Vars, Artifacts, ExecutionIDIndex, and Metadata are all keyed
	// case-insensitively; CaseInsensitiveMap enforces that on write.
	Vars             CaseInsensitiveMap[any]      `json:"vars"`
	Artifacts        CaseInsensitiveMap[Artifact] `json:"artifacts"`
	History          []MessageExecutionRecord     `json:"history"`
	Transcript       []ChatEntry                  `json:"transcript"`
	Metadata         CaseInsensitiveMap[string]    `json:"metadata"`
	ExecutionIDIndex CaseInsensitiveMap[int]       `json:"executionIdIndex"`
}

// NewSession builds a freshly Created session with empty collections.
func NewSession(sessionID, scriptID string, now time.Time) *Session {
	return &Session{
		SessionID:        sessionID,
		ScriptID:         scriptID,
		CurrentIndex:     0,
		Status:           StatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
		Vars:             NewCaseInsensitiveMap[any](),
		Artifacts:        NewCaseInsensitiveMap[Artifact](),
		History:          nil,
		Transcript:       nil,
		Metadata:         NewCaseInsensitiveMap[string](),
		ExecutionIDIndex: NewCaseInsensitiveMap[int](),
	}
}

// ArtifactContentType identifies the shape of an Artifact's content.
type ArtifactContentType string

const (
	ArtifactText       ArtifactContentType = "text"
	ArtifactJSON       ArtifactContentType = "json"
	ArtifactToolTrace  ArtifactContentType = "tool-trace"
	ArtifactPreflight  ArtifactContentType = "preflight"
)

// Artifact is structured output attached to an execution record and/or a
// session.
type Artifact struct {
	Name        string               `json:"name"`
	ContentType ArtifactContentType  `json:"contentType"`
	Content     any                  `json:"content"`
	CreatedAt   time.Time            `json:"createdAt"`
	Producer    string               `json:"producer,omitempty"`
}

// RecordStatus is the terminal or in-flight state of a MessageExecutionRecord.
type RecordStatus string

const (
	RecordRunning   RecordStatus = "Running"
	RecordSucceeded RecordStatus = "Succeeded"
	RecordBlocked   RecordStatus = "Blocked"
	RecordSkipped   RecordStatus = "Skipped"
	RecordFailed    RecordStatus = "Failed"
)

// MessageExecutionRecord is an append-only, once-completed-immutable entry in
// a session's history, one per executed (or skipped/blocked) envelope index.
type MessageExecutionRecord struct {
	Index       int          `json:"index"`
	ExecutionID string       `json:"executionId,omitempty"`
	Status      RecordStatus `json:"status"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt,omitzero"`
	Inputs      any          `json:"inputs,omitempty"`
	Outputs     []Artifact   `json:"outputs,omitempty"`
	Logs        []string     `json:"logs,omitempty"`
	Error       *Error       `json:"error,omitempty"`
}

// ChatEntry is one durable, user-visible conversation entry in a session's
// transcript.
type ChatEntry struct {
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	SourceIndex *int      `json:"sourceIndex,omitempty"`
}
