// Package sessions implements the session service driving algorithm, the
// pluggable script/session/index stores (with in-memory and SQLite
// implementations), the session-lock providers, and the response DTOs the
// service projects for external callers.
package sessions

import (
	"context"

	"github.com/harmonix-run/harmonix/pkg/models"
)

// ScriptStore persists envelopes keyed by an opaque scriptId. Scripts are
// write-rare and replace-semantics only: RegisterScript overwrites whatever
// was previously registered under the same id.
type ScriptStore interface {
	RegisterScript(ctx context.Context, scriptID string, envelope *models.Envelope) error
	GetScript(ctx context.Context, scriptID string) (*models.Envelope, error)
	DeleteScript(ctx context.Context, scriptID string) error
}

// SessionStore persists Session rows. All reads and writes the engine
// performs go through the session's LockProvider handle; the store itself
// need not be safe against two concurrent writers of the same sessionId
// (though the in-memory and SQLite implementations both are, defensively).
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	UpdateSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// SessionIndexStore answers the paged ListSessions query independent of how
// full Session rows are stored, ordered by (updatedAt desc, sessionId asc).
type SessionIndexStore interface {
	ListSessionIDs(ctx context.Context, scriptID string, page PageRequest) (ids []string, nextToken string, err error)
}

// ErrNotFound is returned by store lookups that find nothing for the given
// key. Callers match on errors.Is, not on a specific store's error text.
var ErrNotFound = models.NewError("NOT_FOUND", "not found")
