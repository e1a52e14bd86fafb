package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

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

	if _, err := tx.ExecContext(ctx, `INSERT INTO documents (id, title, content, created_at) VALUES (?, ?, ?, ?)`,
		d.ID, d.Title, d.Content, d.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("relstore/sqlite: create document: %w", err)
	}

	for i := range chunks {
		c := &chunks[i]
		if c.ID == "" {
			c.ID = newID()
		}
		c.DocumentID = d.ID
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, content, vector_id, start_offset, end_offset)
VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.Content, c.VectorID, c.StartOffset, c.EndOffset); err != nil {
			return "", fmt.Errorf("relstore/sqlite: create chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return d.ID, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*memory.Document, error) {
	var d memory.Document
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, title, content, created_at FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.Title, &d.Content, &createdAt)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &d, nil
}

func (s *Store) GetChunks(ctx context.Context, documentID string) ([]memory.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, document_id, content, vector_id, start_offset, end_offset
FROM chunks WHERE document_id = ? ORDER BY start_offset ASC`, documentID)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: get chunks: %w", err)
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
		return nil, fmt.Errorf("relstore/sqlite: list documents: %w", err)
	}
	defer rows.Close()

	var out []memory.Document
	for rows.Next() {
		var d memory.Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
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

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, memory.ErrNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetEmbeddingCache(ctx context.Context, contentHash, model string) (*memory.EmbeddingCacheEntry, error) {
	var e memory.EmbeddingCacheEntry
	var embeddingJSON, createdAt string
	err := s.db.QueryRowContext(ctx, `
SELECT content_hash, model, embedding, created_at FROM embedding_cache WHERE content_hash = ? AND model = ?`,
		contentHash, model).Scan(&e.ContentHash, &e.Model, &embeddingJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Embedding = decodeFloat32JSON(embeddingJSON)
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func (s *Store) PutEmbeddingCache(ctx context.Context, e *memory.EmbeddingCacheEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO embedding_cache (content_hash, model, embedding, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (content_hash, model) DO UPDATE SET embedding = excluded.embedding, created_at = excluded.created_at`,
		e.ContentHash, e.Model, encodeFloat32JSON(e.Embedding), e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("relstore/sqlite: put embedding cache: %w", err)
	}
	return nil
}
