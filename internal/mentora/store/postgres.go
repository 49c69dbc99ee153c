package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on PostgreSQL with a JSONB documents table.
// Equality filters use JSONB containment (@>), which the default GIN index
// on data accelerates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// postgresSchema is applied idempotently on startup. The documents table
// mirrors the SQLite layout so either backend can be restored from the other.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection  TEXT NOT NULL,
    id          TEXT NOT NULL,
    data        JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data);
`

// NewPostgresStore connects to databaseURL, verifies the connection, and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Get returns the document at (collection, id), or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var (
		doc       Document
		data      []byte
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, data, updated_at FROM documents
		WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&doc.ID, &data, &updatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}

	doc.Data = json.RawMessage(data)
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

// Query returns the documents in collection matching filter via JSONB
// containment.
func (s *PostgresStore) Query(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	query := "SELECT id, data, updated_at FROM documents WHERE collection = $1"
	args := []any{collection}

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("store: marshal filter: %w", err)
		}
		query += " AND data @> $2"
		args = append(args, filterJSON)
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			doc       Document
			data      []byte
			updatedAt time.Time
		)
		if err := rows.Scan(&doc.ID, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		doc.Data = json.RawMessage(data)
		doc.UpdatedAt = updatedAt
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rows: %w", err)
	}
	return docs, nil
}

// Create inserts (or overwrites) a document.
func (s *PostgresStore) Create(ctx context.Context, collection, id string, data json.RawMessage) error {
	return s.upsert(ctx, collection, id, data)
}

// Update writes the document at (collection, id), inserting when absent.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, data json.RawMessage) error {
	return s.upsert(ctx, collection, id, data)
}

func (s *PostgresStore) upsert(ctx context.Context, collection, id string, data json.RawMessage) error {
	if !json.Valid(data) {
		return fmt.Errorf("store: write %s/%s: payload is not valid JSON", collection, id)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		collection, id, []byte(data),
	)
	if err != nil {
		return fmt.Errorf("store: write %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the document at (collection, id). Absent documents are a
// no-op.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2",
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Compile-time interface satisfaction check.
var _ Store = (*PostgresStore)(nil)
