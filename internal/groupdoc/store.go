package groupdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// docID is the primary key of the only row in the group_doc table.
const docID = 1

// Store persists the Document in Postgres as a single JSONB row. Every write
// replaces the whole document.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a document store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Read returns the persisted document, or the default document when nothing
// has been written yet.
func (s *Store) Read(ctx context.Context) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM group_doc WHERE id = $1`, docID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Default(), nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading group document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshaling group document: %w", err)
	}
	return doc, nil
}

// Write overwrites the persisted document. Callers must not confirm a
// dependent action to the user until Write has returned nil.
func (s *Store) Write(ctx context.Context, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling group document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO group_doc (id, doc)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		docID, raw,
	)
	if err != nil {
		return fmt.Errorf("writing group document: %w", err)
	}
	return nil
}
