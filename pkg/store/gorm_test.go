package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func setupStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return s
}

func TestLoadMissing(t *testing.T) {
	s := setupStore(t)

	_, err := s.Load(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load of missing document: got %v, want ErrNotFound", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	lang := "markdown"
	if err := s.Save(ctx, &PersistedDocument{ID: "doc1", Text: "hello", Language: &lang}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	doc, err := s.Load(ctx, "doc1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Text != "hello" {
		t.Errorf("Text = %q, want %q", doc.Text, "hello")
	}
	if doc.Language == nil || *doc.Language != "markdown" {
		t.Errorf("Language = %v, want markdown", doc.Language)
	}
}

func TestSaveUpserts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, &PersistedDocument{ID: "doc1", Text: "v1"}); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	lang := "go"
	if err := s.Save(ctx, &PersistedDocument{ID: "doc1", Text: "v2", Language: &lang}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	doc, err := s.Load(ctx, "doc1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.Text != "v2" || doc.Language == nil || *doc.Language != "go" {
		t.Errorf("upsert did not replace the snapshot: %+v", doc)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

func TestExists(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	exists, err := s.Exists(ctx, "doc1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("Exists = true for unsaved document")
	}

	if err := s.Save(ctx, &PersistedDocument{ID: "doc1", Text: "hi"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	exists, err = s.Exists(ctx, "doc1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("Exists = false for saved document")
	}
}

func TestCount(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(ctx, &PersistedDocument{ID: id, Text: id}); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Count = %d, want 3", count)
	}
}

func TestSize(t *testing.T) {
	t.Run("file backed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "copad.db")
		s, err := New(&Config{
			Type:   DatabaseTypeSQLite,
			SQLite: SQLiteConfig{Path: path},
		})
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()

		size, err := s.Size(context.Background())
		if err != nil {
			t.Fatalf("Size failed: %v", err)
		}
		if size <= 0 {
			t.Errorf("Size = %d, want > 0", size)
		}
	})

	t.Run("in memory", func(t *testing.T) {
		s := setupStore(t)
		size, err := s.Size(context.Background())
		if err != nil {
			t.Fatalf("Size failed: %v", err)
		}
		if size != -1 {
			t.Errorf("Size = %d, want -1 for in-memory database", size)
		}
	})
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{ID: "abc123"}
	if err.Error() != "document not found: abc123" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError should match ErrNotFound")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "sqlite with path",
			config: Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: "x.db"}},
		},
		{
			name:    "sqlite without path",
			config:  Config{Type: DatabaseTypeSQLite},
			wantErr: true,
		},
		{
			name: "postgres complete",
			config: Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{
				Host: "localhost", Database: "copad", User: "copad",
			}},
		},
		{
			name:    "postgres missing host",
			config:  Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Database: "copad", User: "copad"}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			config:  Config{Type: "mysql"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
