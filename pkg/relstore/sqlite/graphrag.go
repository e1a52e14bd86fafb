package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docleaai/doclea/pkg/memory"
)

// --- GraphRAGStore ---

func (s *Store) UpsertEntity(ctx context.Context, e *memory.GraphEntity) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO graph_entities (id, name, type, description, vector_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	name = excluded.name, type = excluded.type, description = excluded.description,
	vector_id = excluded.vector_id`,
		e.ID, e.Name, e.Type, e.Description, e.VectorID, e.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("relstore/sqlite: upsert entity: %w", err)
	}
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (*memory.GraphEntity, error) {
	var e memory.GraphEntity
	var createdAt string
	err := s.db.QueryRowContext(ctx, `SELECT id, name, type, description, vector_id, created_at FROM graph_entities WHERE id = ?`, id).
		Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.VectorID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func (s *Store) UpsertRelationship(ctx context.Context, r *memory.GraphRelationship) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO graph_relationships (id, source_id, target_id, type, description, strength, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	type = excluded.type, description = excluded.description, strength = excluded.strength`,
		r.ID, r.SourceID, r.TargetID, r.Type, r.Description, r.Strength, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("relstore/sqlite: upsert relationship: %w", err)
	}
	return nil
}

func (s *Store) RelationshipsFrom(ctx context.Context, entityID string) ([]memory.GraphRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_id, target_id, type, description, strength, created_at
FROM graph_relationships WHERE source_id = ? OR target_id = ?`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: relationships from: %w", err)
	}
	defer rows.Close()

	var out []memory.GraphRelationship
	for rows.Next() {
		var r memory.GraphRelationship
		var createdAt string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Description, &r.Strength, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertCommunity(ctx context.Context, c *memory.GraphCommunity) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO graph_communities (id, level, entity_ids, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET level = excluded.level, entity_ids = excluded.entity_ids`,
		c.ID, c.Level, marshalStrings(c.EntityIDs), c.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("relstore/sqlite: upsert community: %w", err)
	}
	return nil
}

func (s *Store) UpsertReport(ctx context.Context, r *memory.GraphReport) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO graph_reports (id, community_id, title, summary, full_content, level, vector_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	title = excluded.title, summary = excluded.summary, full_content = excluded.full_content,
	level = excluded.level, vector_id = excluded.vector_id`,
		r.ID, r.CommunityID, r.Title, r.Summary, r.FullContent, r.Level, r.VectorID,
		r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("relstore/sqlite: upsert report: %w", err)
	}
	return nil
}

func (s *Store) GetReport(ctx context.Context, id string) (*memory.GraphReport, error) {
	var r memory.GraphReport
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
SELECT id, community_id, title, summary, full_content, level, vector_id, created_at
FROM graph_reports WHERE id = ?`, id).
		Scan(&r.ID, &r.CommunityID, &r.Title, &r.Summary, &r.FullContent, &r.Level, &r.VectorID, &createdAt)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

func (s *Store) ReportsByLevel(ctx context.Context, level int) ([]memory.GraphReport, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, community_id, title, summary, full_content, level, vector_id, created_at
FROM graph_reports WHERE level = ?`, level)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: reports by level: %w", err)
	}
	defer rows.Close()

	var out []memory.GraphReport
	for rows.Next() {
		var r memory.GraphReport
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CommunityID, &r.Title, &r.Summary, &r.FullContent, &r.Level, &r.VectorID, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
