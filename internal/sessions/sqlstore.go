package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// sqlSchema creates the tables SQLStore depends on, plus the session_locks
// table DBLocker uses. Safe to run repeatedly.
const sqlSchema = `
CREATE TABLE IF NOT EXISTS scripts (
	script_id  TEXT PRIMARY KEY,
	envelope   TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id         TEXT PRIMARY KEY,
	script_id          TEXT NOT NULL,
	current_index      INTEGER NOT NULL,
	status             TEXT NOT NULL,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	vars               TEXT NOT NULL,
	artifacts          TEXT NOT NULL,
	history            TEXT NOT NULL,
	transcript         TEXT NOT NULL,
	metadata           TEXT NOT NULL,
	execution_id_index TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_script_updated
	ON sessions(script_id, updated_at DESC, session_id ASC);

CREATE TABLE IF NOT EXISTS session_locks (
	session_id  TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	acquired_at TEXT NOT NULL,
	expires_at  TEXT NOT NULL
);
`

// SQLStoreConfig configures the SQLite-backed stores.
type SQLStoreConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLStoreConfig returns sane defaults for a single-file SQLite store.
func DefaultSQLStoreConfig() SQLStoreConfig {
	return SQLStoreConfig{
		Path:            "harmonix.db",
		MaxOpenConns:    1, // modernc.org/sqlite serializes writers; one conn avoids SQLITE_BUSY churn
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// SQLStore implements ScriptStore, SessionStore and SessionIndexStore on top
// of a single SQLite database, durable across process restarts and shareable
// by multiple engine processes (paired with DBLocker for mutual exclusion).
type SQLStore struct {
	db *sql.DB

	stmtUpsertScript  *sql.Stmt
	stmtGetScript     *sql.Stmt
	stmtDeleteScript  *sql.Stmt
	stmtInsertSession *sql.Stmt
	stmtGetSession    *sql.Stmt
	stmtUpdateSession *sql.Stmt
	stmtDeleteSession *sql.Stmt
}

// NewSQLStore opens (or creates) the SQLite database at cfg.Path, ensures the
// schema exists, and prepares the statements SQLStore reuses.
func NewSQLStore(cfg SQLStoreConfig) (*SQLStore, error) {
	if cfg.Path == "" {
		cfg = DefaultSQLStoreConfig()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: ensure schema: %w", err)
	}

	store := &SQLStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: prepare statements: %w", err)
	}
	return store, nil
}

// DB exposes the underlying connection, for callers that also want to pair
// this store with a DBLocker against the same database.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) prepareStatements() error {
	var err error

	s.stmtUpsertScript, err = s.db.Prepare(`
		INSERT INTO scripts (script_id, envelope, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(script_id) DO UPDATE SET
			envelope = excluded.envelope,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.stmtGetScript, err = s.db.Prepare(`
		SELECT envelope FROM scripts WHERE script_id = ?
	`)
	if err != nil {
		return err
	}

	s.stmtDeleteScript, err = s.db.Prepare(`
		DELETE FROM scripts WHERE script_id = ?
	`)
	if err != nil {
		return err
	}

	s.stmtInsertSession, err = s.db.Prepare(`
		INSERT INTO sessions (
			session_id, script_id, current_index, status, created_at, updated_at,
			vars, artifacts, history, transcript, metadata, execution_id_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT session_id, script_id, current_index, status, created_at, updated_at,
			vars, artifacts, history, transcript, metadata, execution_id_index
		FROM sessions WHERE session_id = ?
	`)
	if err != nil {
		return err
	}

	s.stmtUpdateSession, err = s.db.Prepare(`
		UPDATE sessions SET
			current_index = ?, status = ?, updated_at = ?,
			vars = ?, artifacts = ?, history = ?, transcript = ?,
			metadata = ?, execution_id_index = ?
		WHERE session_id = ?
	`)
	if err != nil {
		return err
	}

	s.stmtDeleteSession, err = s.db.Prepare(`
		DELETE FROM sessions WHERE session_id = ?
	`)
	return err
}

// Close closes the prepared statements and the underlying database.
func (s *SQLStore) Close() error {
	stmts := []*sql.Stmt{
		s.stmtUpsertScript, s.stmtGetScript, s.stmtDeleteScript,
		s.stmtInsertSession, s.stmtGetSession, s.stmtUpdateSession, s.stmtDeleteSession,
	}
	var errs []error
	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("sessions: errors closing store: %v", errs)
	}
	return nil
}

func (s *SQLStore) RegisterScript(ctx context.Context, scriptID string, envelope *models.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("sessions: marshal envelope: %w", err)
	}
	_, err = s.stmtUpsertScript.ExecContext(ctx, scriptID, payload, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sessions: register script: %w", err)
	}
	return nil
}

func (s *SQLStore) GetScript(ctx context.Context, scriptID string) (*models.Envelope, error) {
	var payload []byte
	err := s.stmtGetScript.QueryRowContext(ctx, scriptID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get script: %w", err)
	}
	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("sessions: unmarshal envelope: %w", err)
	}
	return &env, nil
}

func (s *SQLStore) DeleteScript(ctx context.Context, scriptID string) error {
	result, err := s.stmtDeleteScript.ExecContext(ctx, scriptID)
	if err != nil {
		return fmt.Errorf("sessions: delete script: %w", err)
	}
	return requireRowsAffected(result)
}

func (s *SQLStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil || session.SessionID == "" {
		return errors.New("sessions: session id is required")
	}
	vars, artifacts, history, transcript, metadata, executionIDIndex, err := marshalSessionColumns(session)
	if err != nil {
		return err
	}
	_, err = s.stmtInsertSession.ExecContext(ctx,
		session.SessionID, session.ScriptID, session.CurrentIndex, string(session.Status),
		session.CreatedAt.UTC().Format(time.RFC3339Nano), session.UpdatedAt.UTC().Format(time.RFC3339Nano),
		vars, artifacts, history, transcript, metadata, executionIDIndex,
	)
	if err != nil {
		return fmt.Errorf("sessions: create session: %w", err)
	}
	return nil
}

func (s *SQLStore) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var (
		scriptID                                                              string
		currentIndex                                                          int
		status, createdAt, updatedAt                                          string
		varsJSON, artifactsJSON, historyJSON, transcriptJSON                  []byte
		metadataJSON, executionIDIndexJSON                                    []byte
	)
	row := s.stmtGetSession.QueryRowContext(ctx, sessionID)
	err := row.Scan(&sessionID, &scriptID, &currentIndex, &status, &createdAt, &updatedAt,
		&varsJSON, &artifactsJSON, &historyJSON, &transcriptJSON, &metadataJSON, &executionIDIndexJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get session: %w", err)
	}

	session := &models.Session{
		SessionID:    sessionID,
		ScriptID:     scriptID,
		CurrentIndex: currentIndex,
		Status:       models.SessionStatus(status),
	}
	if session.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("sessions: parse created_at: %w", err)
	}
	if session.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("sessions: parse updated_at: %w", err)
	}
	if err := unmarshalSessionColumns(session, varsJSON, artifactsJSON, historyJSON, transcriptJSON, metadataJSON, executionIDIndexJSON); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SQLStore) UpdateSession(ctx context.Context, session *models.Session) error {
	if session == nil || session.SessionID == "" {
		return errors.New("sessions: session id is required")
	}
	vars, artifacts, history, transcript, metadata, executionIDIndex, err := marshalSessionColumns(session)
	if err != nil {
		return err
	}
	result, err := s.stmtUpdateSession.ExecContext(ctx,
		session.CurrentIndex, string(session.Status), session.UpdatedAt.UTC().Format(time.RFC3339Nano),
		vars, artifacts, history, transcript, metadata, executionIDIndex,
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("sessions: update session: %w", err)
	}
	return requireRowsAffected(result)
}

func (s *SQLStore) DeleteSession(ctx context.Context, sessionID string) error {
	result, err := s.stmtDeleteSession.ExecContext(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("sessions: delete session: %w", err)
	}
	return requireRowsAffected(result)
}

// ListSessionIDs pages sessions ordered by (updated_at desc, session_id asc)
// using an opaque "offset:<n>" continuation token, matching MemoryStore.
func (s *SQLStore) ListSessionIDs(ctx context.Context, scriptID string, page PageRequest) ([]string, string, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := decodeOffsetToken(page.ContinuationToken)

	query := `SELECT session_id FROM sessions WHERE (? = '' OR script_id = ?)
		ORDER BY updated_at DESC, session_id ASC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, scriptID, scriptID, limit+1, offset)
	if err != nil {
		return nil, "", fmt.Errorf("sessions: list session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, "", fmt.Errorf("sessions: scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("sessions: iterate session ids: %w", err)
	}

	nextToken := ""
	if len(ids) > limit {
		ids = ids[:limit]
		nextToken = encodeOffsetToken(offset + limit)
	}
	return ids, nextToken, nil
}

func requireRowsAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessions: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalSessionColumns(session *models.Session) (vars, artifacts, history, transcript, metadata, executionIDIndex []byte, err error) {
	if vars, err = json.Marshal(session.Vars); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("sessions: marshal vars: %w", err)
	}
	if artifacts, err = json.Marshal(session.Artifacts); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("sessions: marshal artifacts: %w", err)
	}
	if history, err = json.Marshal(session.History); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("sessions: marshal history: %w", err)
	}
	if transcript, err = json.Marshal(session.Transcript); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("sessions: marshal transcript: %w", err)
	}
	if metadata, err = json.Marshal(session.Metadata); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("sessions: marshal metadata: %w", err)
	}
	if executionIDIndex, err = json.Marshal(session.ExecutionIDIndex); err != nil {
		return nil, nil, nil, nil, nil, nil, fmt.Errorf("sessions: marshal execution id index: %w", err)
	}
	return vars, artifacts, history, transcript, metadata, executionIDIndex, nil
}

func unmarshalSessionColumns(session *models.Session, vars, artifacts, history, transcript, metadata, executionIDIndex []byte) error {
	if err := json.Unmarshal(vars, &session.Vars); err != nil {
		return fmt.Errorf("sessions: unmarshal vars: %w", err)
	}
	if err := json.Unmarshal(artifacts, &session.Artifacts); err != nil {
		return fmt.Errorf("sessions: unmarshal artifacts: %w", err)
	}
	if err := json.Unmarshal(history, &session.History); err != nil {
		return fmt.Errorf("sessions: unmarshal history: %w", err)
	}
	if err := json.Unmarshal(transcript, &session.Transcript); err != nil {
		return fmt.Errorf("sessions: unmarshal transcript: %w", err)
	}
	if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
		return fmt.Errorf("sessions: unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(executionIDIndex, &session.ExecutionIDIndex); err != nil {
		return fmt.Errorf("sessions: unmarshal execution id index: %w", err)
	}
	return nil
}
