package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// MemoryStore is an in-memory reference implementation of ScriptStore,
// SessionStore and SessionIndexStore, suitable for tests and single-process
// local runs. Every read and write clones through deepCloneValue so callers
// can never observe or corrupt another goroutine's in-flight mutation of a
// returned Session or Envelope.
type MemoryStore struct {
	mu       sync.RWMutex
	scripts  map[string]*models.Envelope
	sessions map[string]*models.Session
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scripts:  make(map[string]*models.Envelope),
		sessions: make(map[string]*models.Session),
	}
}

func (m *MemoryStore) RegisterScript(ctx context.Context, scriptID string, envelope *models.Envelope) error {
	if scriptID == "" {
		return errors.New("sessions: script id is required")
	}
	if envelope == nil {
		return errors.New("sessions: envelope is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[scriptID] = cloneEnvelope(envelope)
	return nil
}

func (m *MemoryStore) GetScript(ctx context.Context, scriptID string) (*models.Envelope, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.scripts[scriptID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneEnvelope(env), nil
}

func (m *MemoryStore) DeleteScript(ctx context.Context, scriptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[scriptID]; !ok {
		return ErrNotFound
	}
	delete(m.scripts, scriptID)
	return nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("sessions: session is required")
	}
	if session.SessionID == "" {
		return errors.New("sessions: session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[session.SessionID]; exists {
		return fmt.Errorf("sessions: session %q already exists", session.SessionID)
	}
	m.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errors.New("sessions: session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.SessionID]; !ok {
		return ErrNotFound
	}
	m.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

// ListSessionIDs pages sessions ordered by (updatedAt desc, sessionId asc)
// using an opaque "offset:<n>" continuation token. An unparseable or
// negative token degrades to offset 0 rather than erroring.
func (m *MemoryStore) ListSessionIDs(ctx context.Context, scriptID string, page PageRequest) ([]string, string, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := decodeOffsetToken(page.ContinuationToken)

	m.mu.RLock()
	matches := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if scriptID != "" && s.ScriptID != scriptID {
			continue
		}
		matches = append(matches, s)
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].SessionID < matches[j].SessionID
	})

	if offset > len(matches) {
		offset = len(matches)
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	page0 := matches[offset:end]

	ids := make([]string, len(page0))
	for i, s := range page0 {
		ids[i] = s.SessionID
	}

	nextToken := ""
	if end < len(matches) {
		nextToken = encodeOffsetToken(end)
	}
	return ids, nextToken, nil
}

func encodeOffsetToken(offset int) string {
	return fmt.Sprintf("offset:%d", offset)
}

func decodeOffsetToken(token string) int {
	if token == "" {
		return 0
	}
	var offset int
	if _, err := fmt.Sscanf(token, "offset:%d", &offset); err != nil || offset < 0 {
		return 0
	}
	return offset
}

// deepCloneMap creates a deep copy of a map[string]any to prevent shared references.
func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

// deepCloneValue recursively clones a value, handling nested maps and slices.
func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	case []int:
		cloned := make([]int, len(val))
		copy(cloned, val)
		return cloned
	case []float64:
		cloned := make([]float64, len(val))
		copy(cloned, val)
		return cloned
	case []bool:
		cloned := make([]bool, len(val))
		copy(cloned, val)
		return cloned
	default:
		// Primitives (string, int, bool, float64, etc.) are safe to copy by value.
		return v
	}
}

func cloneAnyMap(m models.CaseInsensitiveMap[any]) models.CaseInsensitiveMap[any] {
	out := models.NewCaseInsensitiveMap[any]()
	m.Range(func(k string, v any) bool {
		out.Set(k, deepCloneValue(v))
		return true
	})
	return out
}

func cloneArtifactMap(m models.CaseInsensitiveMap[models.Artifact]) models.CaseInsensitiveMap[models.Artifact] {
	out := models.NewCaseInsensitiveMap[models.Artifact]()
	m.Range(func(k string, v models.Artifact) bool {
		v.Content = deepCloneValue(v.Content)
		out.Set(k, v)
		return true
	})
	return out
}

func cloneHistory(records []models.MessageExecutionRecord) []models.MessageExecutionRecord {
	if records == nil {
		return nil
	}
	out := make([]models.MessageExecutionRecord, len(records))
	for i, r := range records {
		r.Inputs = deepCloneValue(r.Inputs)
		if r.Outputs != nil {
			outputs := make([]models.Artifact, len(r.Outputs))
			for j, a := range r.Outputs {
				a.Content = deepCloneValue(a.Content)
				outputs[j] = a
			}
			r.Outputs = outputs
		}
		if r.Logs != nil {
			r.Logs = append([]string(nil), r.Logs...)
		}
		if r.Error != nil {
			errCopy := *r.Error
			r.Error = &errCopy
		}
		out[i] = r
	}
	return out
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	clone.Vars = cloneAnyMap(session.Vars)
	clone.Artifacts = cloneArtifactMap(session.Artifacts)
	clone.Metadata = session.Metadata.Clone()
	clone.ExecutionIDIndex = session.ExecutionIDIndex.Clone()
	clone.History = cloneHistory(session.History)
	if session.Transcript != nil {
		clone.Transcript = append([]models.ChatEntry(nil), session.Transcript...)
	}
	return &clone
}

func cloneEnvelope(env *models.Envelope) *models.Envelope {
	if env == nil {
		return nil
	}
	clone := &models.Envelope{Version: env.Version, Messages: make([]models.Message, len(env.Messages))}
	for i, msg := range env.Messages {
		msg.Content = deepCloneValue(msg.Content)
		clone.Messages[i] = msg
	}
	return clone
}
