package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harmonix-run/harmonix/internal/exec"
	"github.com/harmonix-run/harmonix/internal/preflight"
	"github.com/harmonix-run/harmonix/internal/toolrecorder"
	"github.com/harmonix-run/harmonix/internal/transcript"
	"github.com/harmonix-run/harmonix/pkg/models"
)

// Service implements the session-service driving algorithm: per-session
// locking, pointer advancement, idempotency, preflight gating, and the
// transcript/artifact/history bookkeeping around one step-interpreter run.
type Service struct {
	Scripts      ScriptStore
	Sessions     SessionStore
	Index        SessionIndexStore
	Locks        LockProvider
	Interpreter  *exec.Interpreter
	Availability preflight.Availability
}

// NewService wires the session service's collaborators.
func NewService(scripts ScriptStore, sessionStore SessionStore, index SessionIndexStore, locks LockProvider, interp *exec.Interpreter, avail preflight.Availability) *Service {
	return &Service{
		Scripts:      scripts,
		Sessions:     sessionStore,
		Index:        index,
		Locks:        locks,
		Interpreter:  interp,
		Availability: avail,
	}
}

// StartSession registers a Created session bound to scriptID. An empty
// sessionID gets a generated one.
func (s *Service) StartSession(ctx context.Context, scriptID, sessionID string) (*models.Session, error) {
	if _, err := s.Scripts.GetScript(ctx, scriptID); err != nil {
		return nil, err
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	session := models.NewSession(sessionID, scriptID, time.Now().UTC())
	if err := s.Sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ExecuteNext executes the message at session.currentIndex.
func (s *Service) ExecuteNext(ctx context.Context, sessionID string, input models.CaseInsensitiveMap[any], executionID string) (*ExecuteResponse, error) {
	return s.execute(ctx, sessionID, -1, input, executionID)
}

// ExecuteMessage executes the message at an explicit index, independent of
// session.currentIndex.
func (s *Service) ExecuteMessage(ctx context.Context, sessionID string, index int, input models.CaseInsensitiveMap[any], executionID string) (*ExecuteResponse, error) {
	return s.execute(ctx, sessionID, index, input, executionID)
}

func (s *Service) execute(ctx context.Context, sessionID string, index int, input models.CaseInsensitiveMap[any], executionID string) (*ExecuteResponse, error) {
	if err := s.Locks.Lock(ctx, sessionID); err != nil {
		return nil, err
	}
	defer s.Locks.Unlock(sessionID)

	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	envelope, err := s.Scripts.GetScript(ctx, session.ScriptID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	idx := index
	if idx < 0 {
		idx = session.CurrentIndex
	}

	// Idempotent replay is checked before anything else, including the
	// terminal-status branch: a retry of the message that drove the session
	// terminal must hand back the existing record, not append a fresh one.
	if executionID != "" {
		if pos, ok := session.ExecutionIDIndex.Get(executionID); ok && pos == idx {
			if rec := findExecutionRecord(session, executionID, pos); rec != nil {
				resp := projectExecuteResponse(session, *rec)
				return &resp, nil
			}
		}
	}

	if session.Status.IsTerminal() {
		// A known executionID replays its existing record even when the
		// retry's target drifted from the recorded index (ExecuteNext after
		// the pointer advanced); only a genuinely new executionID appends a
		// Skipped record.
		if executionID != "" {
			if pos, ok := session.ExecutionIDIndex.Get(executionID); ok {
				if rec := findExecutionRecord(session, executionID, pos); rec != nil {
					resp := projectExecuteResponse(session, *rec)
					return &resp, nil
				}
			}
		}
		return s.finalize(ctx, session, skippedRecord(session.CurrentIndex, now, executionID), executionID)
	}

	if idx < 0 || idx >= len(envelope.Messages) {
		session.Status = models.StatusCompleted
		return s.finalize(ctx, session, skippedRecord(idx, now, executionID), executionID)
	}

	if session.Status == models.StatusCreated || session.Status == models.StatusBlocked {
		session.Status = models.StatusRunning
	}

	msg := envelope.Messages[idx]
	record := models.MessageExecutionRecord{Index: idx, ExecutionID: executionID, StartedAt: now, Status: models.RecordRunning}

	switch classifyMessage(msg) {
	case messageContextOnly:
		s.executeContextOnly(session, msg, idx, &record)
	case messageHarmonyScript:
		if runErr := s.executeHarmonyScript(ctx, session, msg, idx, input, &record); runErr != nil {
			record.Status = models.RecordFailed
			record.Error = toModelsError(runErr)
			session.Status = models.StatusFailed
		}
	default:
		record.Status = models.RecordSkipped
		session.CurrentIndex = idx + 1
	}

	return s.finalize(ctx, session, record, executionID)
}

func (s *Service) finalize(ctx context.Context, session *models.Session, record models.MessageExecutionRecord, executionID string) (*ExecuteResponse, error) {
	record.CompletedAt = time.Now().UTC()
	session.History = append(session.History, record)
	if executionID != "" {
		session.ExecutionIDIndex.Set(executionID, record.Index)
	}
	session.UpdatedAt = record.CompletedAt

	if err := s.Sessions.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	resp := projectExecuteResponse(session, record)
	return &resp, nil
}

// attachArtifact appends artifact to the record's outputs and also indexes it
// on the session by name, so later GetStatus/GetHistory callers can find the
// latest named artifact (message/preflight/final) without scanning history.
func attachArtifact(session *models.Session, record *models.MessageExecutionRecord, artifact models.Artifact) {
	record.Outputs = append(record.Outputs, artifact)
	session.Artifacts.Set(artifact.Name, artifact)
}

// findExecutionRecord returns the most recent history record registered under
// executionID at the given index, or nil if none exists.
func findExecutionRecord(session *models.Session, executionID string, index int) *models.MessageExecutionRecord {
	for i := len(session.History) - 1; i >= 0; i-- {
		if session.History[i].Index == index && session.History[i].ExecutionID == executionID {
			return &session.History[i]
		}
	}
	return nil
}

func skippedRecord(index int, startedAt time.Time, executionID string) models.MessageExecutionRecord {
	return models.MessageExecutionRecord{
		Index:       index,
		ExecutionID: executionID,
		Status:      models.RecordSkipped,
		StartedAt:   startedAt,
	}
}

type messageKind int

const (
	messageOther messageKind = iota
	messageContextOnly
	messageHarmonyScript
)

func classifyMessage(msg models.Message) messageKind {
	if msg.Termination == models.TerminationAbsent &&
		(msg.ContentType == models.ContentAbsent || msg.ContentType == models.ContentText) {
		if _, ok := msg.Content.(string); ok {
			return messageContextOnly
		}
	}
	if msg.ContentType == models.ContentHarmonyScript {
		if _, ok := msg.Content.(map[string]any); ok {
			return messageHarmonyScript
		}
	}
	return messageOther
}

func (s *Service) executeContextOnly(session *models.Session, msg models.Message, idx int, record *models.MessageExecutionRecord) {
	text, _ := msg.Content.(string)
	role := models.Role(transcript.NormalizeRole(string(msg.Role)))
	srcIdx := idx
	now := time.Now().UTC()

	session.Transcript = append(session.Transcript, models.ChatEntry{
		Role:        role,
		Content:     text,
		Timestamp:   now,
		SourceIndex: &srcIdx,
	})
	attachArtifact(session, record, models.Artifact{
		Name:        "message",
		ContentType: models.ArtifactText,
		Content:     text,
		CreatedAt:   now,
	})
	record.Status = models.RecordSucceeded
	session.CurrentIndex = idx + 1
}

func (s *Service) executeHarmonyScript(ctx context.Context, session *models.Session, msg models.Message, idx int, input models.CaseInsensitiveMap[any], record *models.MessageExecutionRecord) error {
	script, err := decodeScript(msg.Content)
	if err != nil {
		return err
	}
	if len(script.Steps) == 0 {
		return models.NewError(models.KindNoHarmonySteps, "harmony script has zero steps")
	}

	singleMessageEnvelope := &models.Envelope{Version: models.FormatVersion, Messages: []models.Message{msg}}
	report, err := preflight.Analyze(singleMessageEnvelope, s.Availability)
	if err != nil {
		return err
	}
	if !report.IsReady {
		srcIdx := idx
		now := time.Now().UTC()
		session.Transcript = append(session.Transcript, models.ChatEntry{
			Role:        models.RoleSystem,
			Content:     transcript.PreflightBlockedSummary(len(report.MissingRecipients)),
			Timestamp:   now,
			SourceIndex: &srcIdx,
		})
		attachArtifact(session, record, models.Artifact{
			Name:        "preflight",
			ContentType: models.ArtifactPreflight,
			Content:     report,
			CreatedAt:   now,
		})
		record.Status = models.RecordBlocked
		record.Error = models.NewErrorDetails(models.KindMissingTool,
			fmt.Sprintf("missing %d required tool(s)", len(report.MissingRecipients)),
			report.MissingRecipients)
		session.Status = models.StatusBlocked
		session.CurrentIndex = idx
		return nil
	}

	history := buildChatHistory(session.Transcript)

	mergedInput := session.Vars.Clone()
	input.Range(func(k string, v any) bool {
		mergedInput.Set(k, v)
		return true
	})

	recorder := toolrecorder.New(s.Interpreter.Tools, func(trace toolrecorder.Trace) {
		srcIdx := idx
		summary := transcript.ToolSummary(trace.Recipient, trace.Succeeded, trace.Duration().Milliseconds())
		artifact := models.Artifact{
			Name:        "tool:" + trace.Recipient,
			ContentType: models.ArtifactToolTrace,
			Content:     trace,
			CreatedAt:   trace.CompletedAt,
			Producer:    trace.Recipient,
		}
		record.Outputs = append(record.Outputs, artifact)
		record.Logs = append(record.Logs, summary)
		session.Artifacts.Set("last_tool_trace", artifact)
		session.Transcript = append(session.Transcript, models.ChatEntry{
			Role:        models.RoleSystem,
			Content:     summary,
			Timestamp:   trace.CompletedAt,
			SourceIndex: &srcIdx,
		})
	})
	recordingInterpreter := exec.NewInterpreter(s.Interpreter.Chat, recorder)

	result, err := recordingInterpreter.Run(ctx, script, session.Vars, mergedInput, history)
	if err != nil {
		return err
	}

	session.Vars = result.Vars
	if result.FinalSet && result.FinalText != "" {
		srcIdx := idx
		now := time.Now().UTC()
		attachArtifact(session, record, models.Artifact{
			Name:        "final",
			ContentType: models.ArtifactText,
			Content:     result.FinalText,
			CreatedAt:   now,
		})
		session.Transcript = append(session.Transcript, models.ChatEntry{
			Role:        models.RoleAssistant,
			Content:     result.FinalText,
			Timestamp:   now,
			SourceIndex: &srcIdx,
		})
	}

	record.Status = models.RecordSucceeded
	session.Status = models.StatusCompleted
	session.CurrentIndex = idx + 1
	return nil
}

// buildChatHistory projects a session's durable transcript into the richer
// HistoryEntry shape ChatService expects, dropping entries with empty content.
func buildChatHistory(entries []models.ChatEntry) []exec.HistoryEntry {
	history := make([]exec.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Content == "" {
			continue
		}
		history = append(history, exec.HistoryEntry{
			Role:        e.Role,
			Content:     e.Content,
			SourceIndex: e.SourceIndex,
		})
	}
	return history
}

// decodeScript decodes a harmony-script message's content (already decoded as
// a generic any by the parser/canonicalizer) back into a typed Script.
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

func toModelsError(err error) *models.Error {
	var modelErr *models.Error
	if errors.As(err, &modelErr) {
		return modelErr
	}
	return models.NewError(models.KindExecutionServiceErr, err.Error())
}

// GetStatus projects a session's current status.
func (s *Service) GetStatus(ctx context.Context, sessionID string) (*StatusResponse, error) {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := projectStatusResponse(session)
	return &resp, nil
}

// GetHistory returns a session's full append-only history.
func (s *Service) GetHistory(ctx context.Context, sessionID string) (*HistoryResponse, error) {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := projectHistoryResponse(session)
	return &resp, nil
}

// GetHistoryItem returns the most recent record at the given index, if any.
func (s *Service) GetHistoryItem(ctx context.Context, sessionID string, index int) (*HistoryItemResponse, error) {
	session, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	resp := &HistoryItemResponse{SessionID: session.SessionID, ScriptID: session.ScriptID, Index: index}
	for i := len(session.History) - 1; i >= 0; i-- {
		if session.History[i].Index == index {
			rec := session.History[i]
			resp.Record = &rec
			break
		}
	}
	return resp, nil
}

// ListSessions pages session ids, optionally filtered to one scriptID.
func (s *Service) ListSessions(ctx context.Context, scriptID string, page PageRequest) (*SessionListResponse, error) {
	ids, token, err := s.Index.ListSessionIDs(ctx, scriptID, page)
	if err != nil {
		return nil, err
	}
	return &SessionListResponse{ScriptID: scriptID, SessionIDs: ids, ContinuationToken: token}, nil
}

// DeleteSession removes a session. Terminal-equivalent for retrieval.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	return s.Sessions.DeleteSession(ctx, sessionID)
}
