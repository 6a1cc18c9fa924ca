package sessions

import "github.com/harmonix-run/harmonix/pkg/models"

// PageRequest requests one page of a ListSessions query. Limit is clamped to
// [1,500] (default 50, applied by ListSessions, not here) and
// ContinuationToken is an opaque token from a prior page's response.
type PageRequest struct {
	Limit             int
	ContinuationToken string
}

// ExecuteResponse is returned by ExecuteNext/ExecuteMessage.
type ExecuteResponse struct {
	SessionID     string                         `json:"sessionId"`
	ScriptID      string                         `json:"scriptId"`
	ExecutedIndex int                            `json:"executedIndex"`
	NextIndex     int                            `json:"nextIndex"`
	SessionStatus string                         `json:"sessionStatus"`
	Record        models.MessageExecutionRecord  `json:"record"`
	Outputs       []models.Artifact              `json:"outputs"`
	Vars          map[string]any                 `json:"vars"`
}

// StatusResponse is returned by GetStatus.
type StatusResponse struct {
	SessionID     string            `json:"sessionId"`
	ScriptID      string            `json:"scriptId"`
	CurrentIndex  int               `json:"currentIndex"`
	Status        string            `json:"status"`
	CreatedAt     string            `json:"createdAt"`
	UpdatedAt     string            `json:"updatedAt"`
	HistoryCount  int               `json:"historyCount"`
	ArtifactCount int               `json:"artifactCount"`
	Metadata      map[string]string `json:"metadata"`
}

// HistoryResponse is returned by GetHistory.
type HistoryResponse struct {
	SessionID    string                           `json:"sessionId"`
	ScriptID     string                           `json:"scriptId"`
	CurrentIndex int                              `json:"currentIndex"`
	Status       string                           `json:"status"`
	History      []models.MessageExecutionRecord  `json:"history"`
}

// HistoryItemResponse is returned by GetHistoryItem.
type HistoryItemResponse struct {
	SessionID string                          `json:"sessionId"`
	ScriptID  string                          `json:"scriptId"`
	Index     int                             `json:"index"`
	Record    *models.MessageExecutionRecord  `json:"record,omitempty"`
}

// SessionListResponse is returned by ListSessions.
type SessionListResponse struct {
	ScriptID          string   `json:"scriptId,omitempty"`
	SessionIDs        []string `json:"sessionIds"`
	ContinuationToken string   `json:"continuationToken,omitempty"`
}

func projectExecuteResponse(session *models.Session, record models.MessageExecutionRecord) ExecuteResponse {
	vars := make(map[string]any, session.Vars.Len())
	session.Vars.Range(func(k string, v any) bool {
		vars[k] = v
		return true
	})
	return ExecuteResponse{
		SessionID:     session.SessionID,
		ScriptID:      session.ScriptID,
		ExecutedIndex: record.Index,
		NextIndex:     session.CurrentIndex,
		SessionStatus: string(session.Status),
		Record:        record,
		Outputs:       record.Outputs,
		Vars:          vars,
	}
}

func projectStatusResponse(session *models.Session) StatusResponse {
	metadata := make(map[string]string, session.Metadata.Len())
	session.Metadata.Range(func(k, v string) bool {
		metadata[k] = v
		return true
	})
	return StatusResponse{
		SessionID:     session.SessionID,
		ScriptID:      session.ScriptID,
		CurrentIndex:  session.CurrentIndex,
		Status:        string(session.Status),
		CreatedAt:     session.CreatedAt.Format(timeLayout),
		UpdatedAt:     session.UpdatedAt.Format(timeLayout),
		HistoryCount:  len(session.History),
		ArtifactCount: session.Artifacts.Len(),
		Metadata:      metadata,
	}
}

func projectHistoryResponse(session *models.Session) HistoryResponse {
	return HistoryResponse{
		SessionID:    session.SessionID,
		ScriptID:     session.ScriptID,
		CurrentIndex: session.CurrentIndex,
		Status:       string(session.Status),
		History:      session.History,
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
