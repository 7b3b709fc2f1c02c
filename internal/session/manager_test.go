package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"webx/internal/extract"
	"webx/internal/store"
	"webx/pkg/logging"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	logger := logging.NewLoggerWithService("session-test")
	s, err := store.Open(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	m := NewManager(s, t.TempDir(), false, "", logger)
	t.Cleanup(m.Close)
	return m, s
}

func TestCreateSessionPersistsRow(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "github", "bot account")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Name != "github" || session.Notes != "bot account" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if filepath.Base(session.StorageStatePath) != "github.json" {
		t.Fatalf("unexpected storage state path: %q", session.StorageStatePath)
	}

	stored, err := s.GetSession(ctx, "github")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.StorageStatePath != session.StorageStatePath {
		t.Fatalf("session not persisted: %+v", stored)
	}
}

func TestCreateSessionRejectsBadNames(t *testing.T) {
	m, _ := newTestManager(t)
	for _, name := range []string{"", "a/b", "a b", "..", `a\b`} {
		if _, err := m.CreateSession(context.Background(), name, ""); err == nil {
			t.Fatalf("expected rejection for name %q", name)
		}
	}
}

func TestListActionsRequiresSession(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.ListActions(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListActionsRequiresOpenPage(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateSession(ctx, "shop", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.ListActions(ctx, "shop"); !errors.Is(err, ErrNoActivePage) {
		t.Fatalf("expected ErrNoActivePage, got %v", err)
	}
	if _, err := m.ExecuteAction(ctx, "shop", "deadbeef", nil); !errors.Is(err, ErrNoActivePage) {
		t.Fatalf("expected ErrNoActivePage, got %v", err)
	}
}

func TestSaveSessionWithoutBrowserTouchesRow(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateSession(ctx, "shop", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, err := s.GetSession(ctx, "shop")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	saved, err := m.SaveSession(ctx, "shop")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.UpdatedAt.Before(before.UpdatedAt) {
		t.Fatalf("updated_at should not go backwards: %v vs %v", saved.UpdatedAt, before.UpdatedAt)
	}
}

func TestFindAction(t *testing.T) {
	actions := []extract.Action{
		{ID: "aaa", Type: extract.ActionFill},
		{ID: "bbb", Type: extract.ActionSubmit},
	}
	if action, ok := findAction(actions, "bbb"); !ok || action.Type != extract.ActionSubmit {
		t.Fatalf("lookup failed: %+v %v", action, ok)
	}
	if _, ok := findAction(actions, "zzz"); ok {
		t.Fatal("missing id should not resolve")
	}
}
