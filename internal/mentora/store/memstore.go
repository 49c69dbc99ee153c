package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map. It backs tests and
// the degraded mode used when no durable backend is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document // collection → id → document
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]Document)}
}

// Get returns the document at (collection, id), or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := doc
	cp.Data = append(json.RawMessage(nil), doc.Data...)
	return &cp, nil
}

// Query returns the documents in collection whose top-level JSON fields
// equal every filter entry.
func (s *MemoryStore) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for _, doc := range s.docs[collection] {
		if matchesFilter(doc.Data, filter) {
			cp := doc
			cp.Data = append(json.RawMessage(nil), doc.Data...)
			docs = append(docs, cp)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Create inserts (or overwrites) a document.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, data json.RawMessage) error {
	return s.Update(ctx, collection, id, data)
}

// Update writes the document at (collection, id), inserting when absent.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("store: write %s/%s: payload is not valid JSON", collection, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]Document)
	}
	s.docs[collection][id] = Document{
		ID:        id,
		Data:      append(json.RawMessage(nil), data...),
		UpdatedAt: time.Now(),
	}
	return nil
}

// Delete removes the document at (collection, id). Absent documents are a
// no-op.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], id)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// matchesFilter reports whether the document's top-level fields equal every
// filter entry. Values are compared through their JSON representation so
// numeric types do not need to match exactly.
func matchesFilter(data json.RawMessage, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := fields[k]
		if !ok {
			return false
		}
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			return false
		}
	}
	return true
}

// Compile-time interface satisfaction check.
var _ Store = (*MemoryStore)(nil)
