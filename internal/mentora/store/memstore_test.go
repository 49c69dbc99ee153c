package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestMemoryStoreCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Get(ctx, CollectionCourses, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store: err = %v, want ErrNotFound", err)
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
		t.Error("UpdatedAt not set")
	}

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

	// Deleting an absent document is a no-op.
	if err := s.Delete(ctx, CollectionCourses, "ghost"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestMemoryStoreRejectsInvalidJSON(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Update(context.Background(), CollectionCourses, "c1", json.RawMessage(`{broken`)); err == nil {
		t.Error("invalid JSON accepted")
	}
}

func TestMemoryStoreQuery(t *testing.T) {
	s := NewMemoryStore()
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
		{"missing field", Filter{"location": "online"}, nil},
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
					t.Errorf("docs[%d].ID = %q, want %q (sorted)", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Create(ctx, CollectionCourses, "c1", json.RawMessage(`{"course":"math"}`)); err != nil {
		t.Fatal(err)
	}
	doc, _ := s.Get(ctx, CollectionCourses, "c1")
	doc.Data[2] = 'X'

	fresh, _ := s.Get(ctx, CollectionCourses, "c1")
	if string(fresh.Data) != `{"course":"math"}` {
		t.Error("caller mutation leaked into the store")
	}
}
