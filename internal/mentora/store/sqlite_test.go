package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "mentora.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreCRUD(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, CollectionCourses, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on fresh database: err = %v, want ErrNotFound", err)
	}

	data := json.RawMessage(`{"user_id":"u1","course":"math"}`)
	if err := s.Create(ctx, CollectionCourses, "c1", data); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc, err := s.Get(ctx, CollectionCourses, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.ID != "c1" {
		t.Errorf("ID = %q", doc.ID)
	}
	if string(doc.Data) != string(data) {
		t.Errorf("Data = %s", doc.Data)
	}
	if doc.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not parsed")
	}

	// Update is an upsert over the same row.
	if err := s.Update(ctx, CollectionCourses, "c1", json.RawMessage(`{"user_id":"u1","course":"piano"}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, _ = s.Get(ctx, CollectionCourses, "c1")
	if string(doc.Data) != `{"user_id":"u1","course":"piano"}` {
		t.Errorf("after update Data = %s", doc.Data)
	}

	if err := s.Delete(ctx, CollectionCourses, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, CollectionCourses, "c1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, CollectionCourses, "c1"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestSQLiteStoreRejectsInvalidJSON(t *testing.T) {
	s := newTestSQLite(t)
	if err := s.Update(context.Background(), CollectionCourses, "c1", json.RawMessage(`{broken`)); err == nil {
		t.Error("invalid JSON accepted")
	}
}

func TestSQLiteStoreQueryFilters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	docs := map[string]string{
		"c1": `{"user_id":"u1","course":"math","teacher":"Chen"}`,
		"c2": `{"user_id":"u1","course":"piano","teacher":"Adams"}`,
		"c3": `{"user_id":"u2","course":"math","teacher":"Chen"}`,
	}
	for id, data := range docs {
		if err := s.Create(ctx, CollectionCourses, id, json.RawMessage(data)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []string
	}{
		{"by user", Filter{"user_id": "u1"}, []string{"c1", "c2"}},
		{"by user and teacher", Filter{"user_id": "u1", "teacher": "Chen"}, []string{"c1"}},
		{"no filter returns all", nil, []string{"c1", "c2", "c3"}},
		{"no match", Filter{"user_id": "u9"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, CollectionCourses, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d documents, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("docs[%d].ID = %q, want %q (ORDER BY id)", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestSQLiteStoreCollectionsAreIsolated(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	if err := s.Create(ctx, CollectionCourses, "x", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, CollectionUserMemories, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("document leaked across collections: err = %v", err)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mentora.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Create(context.Background(), CollectionCourses, "c1", json.RawMessage(`{"course":"math"}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Migrations are idempotent and the data survives a reopen.
	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	doc, err := s2.Get(context.Background(), CollectionCourses, "c1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(doc.Data) != `{"course":"math"}` {
		t.Errorf("Data = %s", doc.Data)
	}
}

func TestParseTimestamp(t *testing.T) {
	got := parseTimestamp("2026-03-01T10:30:00Z")
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseTimestamp = %v, want %v", got, want)
	}
	if !parseTimestamp("garbage").IsZero() {
		t.Error("unparseable timestamp should be zero")
	}
}
