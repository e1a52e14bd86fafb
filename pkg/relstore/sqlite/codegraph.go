package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/docleaai/doclea/pkg/memory"
)

// --- CodeGraphStore ---

func (s *Store) UpsertCodeNodes(ctx context.Context, nodes []memory.CodeNode) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			n.ID = newID()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO code_nodes (id, type, name, file_path, start_line, end_line, signature, summary, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	type = excluded.type, name = excluded.name, file_path = excluded.file_path,
	start_line = excluded.start_line, end_line = excluded.end_line,
	signature = excluded.signature, summary = excluded.summary, metadata = excluded.metadata`,
			n.ID, string(n.Type), n.Name, n.FilePath, n.StartLine, n.EndLine,
			n.Signature, n.Summary, marshalMeta(n.Metadata)); err != nil {
			return fmt.Errorf("relstore/sqlite: upsert code node: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) UpsertCodeEdges(ctx context.Context, edges []memory.CodeEdge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range edges {
		e := &edges[i]
		if e.ID == "" {
			e.ID = newID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO code_edges (id, from_node, to_node, type, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	from_node = excluded.from_node, to_node = excluded.to_node,
	type = excluded.type, metadata = excluded.metadata`,
			e.ID, e.FromNode, e.ToNode, string(e.Type), marshalMeta(e.Metadata),
			e.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("relstore/sqlite: upsert code edge: %w", err)
		}
	}
	return tx.Commit()
}

func scanCodeNode(row interface{ Scan(dest ...any) error }) (*memory.CodeNode, error) {
	var n memory.CodeNode
	var typ, meta string
	err := row.Scan(&n.ID, &typ, &n.Name, &n.FilePath, &n.StartLine, &n.EndLine, &n.Signature, &n.Summary, &meta)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	n.Type = memory.CodeNodeType(typ)
	n.Metadata = unmarshalMeta(meta)
	return &n, nil
}

const selectCodeNodeCols = `id, type, name, file_path, start_line, end_line, signature, summary, metadata`

func (s *Store) GetCodeNode(ctx context.Context, id string) (*memory.CodeNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectCodeNodeCols+` FROM code_nodes WHERE id = ?`, id)
	return scanCodeNode(row)
}

func (s *Store) FindCodeNodesByName(ctx context.Context, name string) ([]memory.CodeNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCodeNodeCols+` FROM code_nodes WHERE name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: find code nodes by name: %w", err)
	}
	defer rows.Close()
	return scanCodeNodes(rows)
}

func (s *Store) FindCodeNodesByFile(ctx context.Context, filePath string) ([]memory.CodeNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectCodeNodeCols+` FROM code_nodes WHERE file_path = ? ORDER BY start_line ASC`, filePath)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: find code nodes by file: %w", err)
	}
	defer rows.Close()
	return scanCodeNodes(rows)
}

func scanCodeNodes(rows *sql.Rows) ([]memory.CodeNode, error) {
	var out []memory.CodeNode
	for rows.Next() {
		n, err := scanCodeNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) GetCodeEdges(ctx context.Context, nodeID string) ([]memory.CodeEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, from_node, to_node, type, metadata, created_at
FROM code_edges WHERE from_node = ? OR to_node = ?`, nodeID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: get code edges: %w", err)
	}
	defer rows.Close()

	var out []memory.CodeEdge
	for rows.Next() {
		var e memory.CodeEdge
		var typ, meta, createdAt string
		if err := rows.Scan(&e.ID, &e.FromNode, &e.ToNode, &typ, &meta, &createdAt); err != nil {
			return nil, err
		}
		e.Type = memory.CodeEdgeType(typ)
		e.Metadata = unmarshalMeta(meta)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateCrossLayerRelation(ctx context.Context, r *memory.CrossLayerRelation) (string, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cross_layer_relations (id, memory_id, code_node_id, type, direction, confidence, metadata, created_at, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'approved')`,
		r.ID, r.MemoryID, r.CodeNodeID, string(r.Type), string(r.Direction), r.Confidence,
		marshalMeta(r.Metadata), r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return "", memory.ErrConflict
		}
		return "", fmt.Errorf("relstore/sqlite: create cross-layer relation: %w", err)
	}
	return r.ID, nil
}

func (s *Store) ListCrossLayerRelations(ctx context.Context, memoryID string) ([]memory.CrossLayerRelation, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, memory_id, code_node_id, type, direction, confidence, metadata, created_at
FROM cross_layer_relations WHERE memory_id = ? AND status = 'approved'`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: list cross-layer relations: %w", err)
	}
	defer rows.Close()

	var out []memory.CrossLayerRelation
	for rows.Next() {
		r, err := scanCrossLayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanCrossLayer(row interface{ Scan(dest ...any) error }) (*memory.CrossLayerRelation, error) {
	var r memory.CrossLayerRelation
	var typ, direction, meta, createdAt string
	if err := row.Scan(&r.ID, &r.MemoryID, &r.CodeNodeID, &typ, &direction, &r.Confidence, &meta, &createdAt); err != nil {
		return nil, err
	}
	r.Type = memory.CrossLayerRelationType(typ)
	r.Direction = memory.CrossLayerDirection(direction)
	r.Metadata = unmarshalMeta(meta)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

func (s *Store) CrossLayerRelationExists(ctx context.Context, memoryID, codeNodeID string, typ memory.CrossLayerRelationType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM cross_layer_relations WHERE memory_id = ? AND code_node_id = ? AND type = ?`,
		memoryID, codeNodeID, string(typ)).Scan(&n)
	return n > 0, err
}

func (s *Store) CreateCrossLayerSuggestion(ctx context.Context, sg *memory.CrossLayerSuggestion) (string, error) {
	if sg.ID == "" {
		sg.ID = newID()
	}
	if sg.CreatedAt.IsZero() {
		sg.CreatedAt = s.now().UTC()
	}
	if sg.Status == "" {
		sg.Status = memory.SuggestionPending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cross_layer_relations (id, memory_id, code_node_id, type, direction, confidence, metadata, created_at, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sg.ID, sg.MemoryID, sg.CodeNodeID, string(sg.Type), string(sg.Direction), sg.Confidence,
		marshalMeta(sg.Metadata), sg.CreatedAt.Format(time.RFC3339Nano), string(sg.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return "", memory.ErrConflict
		}
		return "", fmt.Errorf("relstore/sqlite: create cross-layer suggestion: %w", err)
	}
	return sg.ID, nil
}

func (s *Store) ListCrossLayerSuggestions(ctx context.Context, status memory.SuggestionStatus) ([]memory.CrossLayerSuggestion, error) {
	query := `
SELECT id, memory_id, code_node_id, type, direction, confidence, metadata, created_at, status, reviewed_at
FROM cross_layer_relations`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relstore/sqlite: list cross-layer suggestions: %w", err)
	}
	defer rows.Close()

	var out []memory.CrossLayerSuggestion
	for rows.Next() {
		var sg memory.CrossLayerSuggestion
		var typ, direction, meta, createdAt, st string
		var reviewedAt sql.NullString
		if err := rows.Scan(&sg.ID, &sg.MemoryID, &sg.CodeNodeID, &typ, &direction, &sg.Confidence,
			&meta, &createdAt, &st, &reviewedAt); err != nil {
			return nil, err
		}
		sg.Type = memory.CrossLayerRelationType(typ)
		sg.Direction = memory.CrossLayerDirection(direction)
		sg.Metadata = unmarshalMeta(meta)
		sg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sg.Status = memory.SuggestionStatus(st)
		sg.ReviewedAt = parseNullTime(reviewedAt)
		out = append(out, sg)
	}
	return out, rows.Err()
}

func (s *Store) ReviewCrossLayerSuggestion(ctx context.Context, id string, approve bool, now time.Time) error {
	status := memory.SuggestionRejected
	if approve {
		status = memory.SuggestionApproved
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE cross_layer_relations SET status = ?, reviewed_at = ? WHERE id = ? AND status = 'pending'`,
		string(status), now.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("relstore/sqlite: review cross-layer suggestion: %w", err)
	}
	return requireAffected(res, memory.ErrNotFound)
}
