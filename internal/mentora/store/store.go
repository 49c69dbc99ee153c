// Package store provides the durable document store the memory subsystem
// and the query bypass path persist into.
//
// The contract is deliberately small: JSON documents addressed by
// (collection, id), plus an equality filter query. Two production backends
// exist (SQLite via modernc.org/sqlite, PostgreSQL via pgx) and an in-memory
// backend serves tests and degraded operation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no document exists under the given
// collection and id. Callers distinguish it with errors.Is.
var ErrNotFound = errors.New("store: document not found")

// Well-known collections owned by this service.
const (
	// CollectionUserMemories holds one long-term memory blob per user.
	CollectionUserMemories = "user_memories"
	// CollectionCourses holds the course/schedule documents read by the
	// bypass router and the reminder dispatcher.
	CollectionCourses = "courses"
)

// Document is one stored JSON document.
type Document struct {
	// ID is the document's identifier within its collection.
	ID string
	// Data is the raw JSON payload.
	Data json.RawMessage
	// UpdatedAt is when the document was last written.
	UpdatedAt time.Time
}

// Filter is an equality filter over top-level JSON fields. An empty filter
// matches every document in the collection.
type Filter map[string]any

// Store is the document-store contract. Implementations are safe for
// concurrent use; per-call latency is assumed non-trivial, which is why the
// memory subsystem fronts reads with a cache.
type Store interface {
	// Get returns the document at (collection, id), or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)

	// Query returns the documents in collection matching filter.
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// Create inserts a new document. Creating over an existing id
	// overwrites it; the collaborator is eventually consistent, so strict
	// create-vs-update semantics are not promised.
	Create(ctx context.Context, collection, id string, data json.RawMessage) error

	// Update writes the document at (collection, id), inserting when absent.
	Update(ctx context.Context, collection, id string, data json.RawMessage) error

	// Delete removes the document at (collection, id). Deleting an absent
	// document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Close releases any resources held by the store.
	Close() error
}
