package postgres

import (
	"context"
	"database/sql"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/docleaai/doclea/pkg/memory"
)

// --- DocumentStore ---

func (s *Store) CreateDocument(ctx context.Context, d *memory.Document, chunks []memory.Chunk) (string, error) {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO documents (id, title, content, created_at) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Title, d.Content, d.CreatedAt); err != nil {
		return "", fmt.Errorf("relstore/postgres: create document: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = newID()
		}
		c.DocumentID = d.ID
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, content, vector_id, start_offset, end_offset)
VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.DocumentID, c.Content, c.VectorID, c.StartOffset, c.EndOffset); err != nil {
			return "", fmt.Errorf("relstore/postgres: create chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return d.ID, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*memory.Document, error) {
	var d memory.Document
	err := s.db.QueryRowContext(ctx, `SELECT id, title, content, created_at FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

func (s *Store) GetChunks(ctx context.Context, documentID string) ([]memory.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, content, vector_id, start_offset, end_offset
FROM chunks WHERE document_id = $1 ORDER BY start_offset ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("relstore/postgres: get chunks: %w", err)
	}
	defer rows.Close()

	var out []memory.Chunk
	for rows.Next() {
		var c memory.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.VectorID, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListDocuments(ctx context.Context) ([]memory.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, content, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("relstore/postgres: list documents: %w", err)
	}
	defer rows.Close()

	var out []memory.Document
	for rows.Next() {
		var d memory.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, memory.ErrNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// GetEmbeddingCache looks up a cached embedding, stored as a pgvector
// column rather than the JSON-in-TEXT encoding the sqlite backend uses
// (see schema.go), since this backend already depends on the pgvector
// extension for the vector store.
func (s *Store) GetEmbeddingCache(ctx context.Context, contentHash, model string) (*memory.EmbeddingCacheEntry, error) {
	var e memory.EmbeddingCacheEntry
	var vec pgvector.Vector
	err := s.db.QueryRowContext(ctx, `
SELECT content_hash, model, embedding, created_at FROM embedding_cache WHERE content_hash = $1 AND model = $2`,
		contentHash, model).Scan(&e.ContentHash, &e.Model, &vec, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Embedding = vec.Slice()
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *Store) PutEmbeddingCache(ctx context.Context, e *memory.EmbeddingCacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO embedding_cache (content_hash, model, embedding, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (content_hash, model) DO UPDATE SET embedding = excluded.embedding, created_at = excluded.created_at`,
		e.ContentHash, e.Model, pgvector.NewVector(e.Embedding), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("relstore/postgres: put embedding cache: %w", err)
	}
	return nil
}
