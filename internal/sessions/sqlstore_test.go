package sessions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harmonix-run/harmonix/pkg/models"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewSQLStore(SQLStoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStore_ScriptRoundTrip(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	env := &models.Envelope{Version: models.FormatVersion, Messages: []models.Message{
		{Role: models.RoleUser, ContentType: models.ContentText, Content: "hi"},
	}}

	if err := store.RegisterScript(ctx, "script-1", env); err != nil {
		t.Fatalf("RegisterScript: %v", err)
	}
	got, err := store.GetScript(ctx, "script-1")
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Fatalf("unexpected envelope: %+v", got)
	}

	// Re-registering overwrites.
	env.Messages[0].Content = "updated"
	if err := store.RegisterScript(ctx, "script-1", env); err != nil {
		t.Fatalf("RegisterScript overwrite: %v", err)
	}
	got2, _ := store.GetScript(ctx, "script-1")
	if got2.Messages[0].Content != "updated" {
		t.Fatalf("expected overwrite, got %+v", got2)
	}

	if err := store.DeleteScript(ctx, "script-1"); err != nil {
		t.Fatalf("DeleteScript: %v", err)
	}
	if _, err := store.GetScript(ctx, "script-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_SessionCRUD(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	session := models.NewSession("sess-1", "script-1", time.Now().UTC())
	session.Vars.Set("count", float64(1))
	session.Metadata.Set("source", "test")

	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if v, _ := got.Vars.Get("count"); v != float64(1) {
		t.Fatalf("expected count 1, got %v", v)
	}
	if v, _ := got.Metadata.Get("source"); v != "test" {
		t.Fatalf("expected metadata source=test, got %v", v)
	}

	got.Status = models.StatusCompleted
	got.CurrentIndex = 3
	got.UpdatedAt = time.Now().UTC()
	if err := store.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	again, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession after update: %v", err)
	}
	if again.Status != models.StatusCompleted || again.CurrentIndex != 3 {
		t.Fatalf("update did not persist: %+v", again)
	}

	if err := store.DeleteSession(ctx, "sess-1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_UpdateUnknownSessionFails(t *testing.T) {
	store := newTestSQLStore(t)
	session := models.NewSession("missing", "script-1", time.Now().UTC())
	if err := store.UpdateSession(context.Background(), session); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLStore_ListSessionIDsOrdersByUpdatedAtDesc(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	ids := []string{"a", "b", "c"}
	for i, id := range ids {
		s := models.NewSession(id, "script-1", base)
		s.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	got, token, err := store.ListSessionIDs(ctx, "script-1", PageRequest{Limit: 2})
	if err != nil {
		t.Fatalf("ListSessionIDs: %v", err)
	}
	if len(got) != 2 || got[0] != "c" {
		t.Fatalf("expected newest-first page [c, b], got %v", got)
	}
	if token == "" {
		t.Fatal("expected a continuation token")
	}

	rest, token2, err := store.ListSessionIDs(ctx, "script-1", PageRequest{Limit: 2, ContinuationToken: token})
	if err != nil {
		t.Fatalf("ListSessionIDs page 2: %v", err)
	}
	if len(rest) != 1 || rest[0] != "a" || token2 != "" {
		t.Fatalf("expected final page [a] with no token, got %v token=%q", rest, token2)
	}
}

func TestSQLStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "persist.db")

	store, err := NewSQLStore(SQLStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLStore: %v", err)
	}
	session := models.NewSession("sess-1", "script-1", time.Now().UTC())
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected db file on disk: %v", err)
	}

	reopened, err := NewSQLStore(SQLStoreConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen NewSQLStore: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("expected session to survive reopen: %v", err)
	}
}
