// Package postgres provides a descriptor.Store backed by the relational
// collection registry.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"

	"github.com/histtext/lexivec/descriptor"
)

const lookupQuery = `SELECT embeddings_path FROM collections WHERE backend_id = $1 AND name = $2`

// Store reads collection descriptors from Postgres.
type Store struct {
	db *sql.DB
}

// Open connects to the registry database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EmbeddingsPath implements descriptor.Store. A collection without a row or
// with a NULL path has no embeddings.
func (s *Store) EmbeddingsPath(ctx context.Context, key descriptor.Key) (string, error) {
	var path sql.NullString
	err := s.db.QueryRowContext(ctx, lookupQuery, key.BackendID, key.Collection).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return descriptor.ValueNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("descriptor lookup %s: %w", key, err)
	}
	if !path.Valid || path.String == "" {
		return descriptor.ValueNone, nil
	}
	return path.String, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
