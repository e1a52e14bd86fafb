// Package embedded implements [vectorstore.Store] on top of sqlite-vec, the
// native KNN virtual-table extension for SQLite (spec.md §4.B "embedded
// index on the relational store's vector extension").
//
// sqlite-vec's Go bindings load as a runtime extension into a cgo-enabled
// SQLite connection (`github.com/mattn/go-sqlite3`); the pure-Go
// `modernc.org/sqlite` driver backing pkg/relstore cannot load native
// extensions, so the vector index keeps a dedicated connection onto its own
// file (`<project>/.doclea/vectors.db`) rather than sharing the relational
// connection pool.
package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	// registers the "sqlite3" driver with the sqlite-vec extension
	// auto-loaded into every new connection.
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/docleaai/doclea/pkg/vectorstore"
)

func init() {
	sqlite_vec.Auto()
}

// Store is the embedded sqlite-vec backend.
type Store struct {
	db         *sql.DB
	dimensions int
}

var _ vectorstore.Store = (*Store)(nil)

// Open opens (creating if necessary) a dedicated vector database file and
// its vec0 virtual table sized for dimensions.
func Open(ctx context.Context, path string, dimensions int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/embedded: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore/embedded: ping: %w", err)
	}

	ddl := fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_items USING vec0(
	embedding float[%d]
);
CREATE TABLE IF NOT EXISTS vec_meta (
	vec_rowid  INTEGER PRIMARY KEY,
	id         TEXT UNIQUE NOT NULL,
	owner_kind TEXT NOT NULL,
	owner_id   TEXT NOT NULL,
	UNIQUE (owner_kind, owner_id)
);`, dimensions)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorstore/embedded: create schema: %w", err)
	}

	return &Store{db: db, dimensions: dimensions}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Info(context.Context) (vectorstore.Info, error) {
	return vectorstore.Info{Backend: "sqlite-vec", Dimensions: s.dimensions}, nil
}

func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if len(rec.Embedding) != s.dimensions {
		return fmt.Errorf("vectorstore/embedded: embedding has %d dims, want %d", len(rec.Embedding), s.dimensions)
	}
	raw, err := sqlite_vec.SerializeFloat32(rec.Embedding)
	if err != nil {
		return fmt.Errorf("vectorstore/embedded: serialize: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Replace any existing binding for (owner_kind, owner_id): a memory's
	// vector rebinds whenever it is re-embedded (spec.md §3 invariant 1).
	var existingRowID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT vec_rowid FROM vec_meta WHERE owner_kind = ? AND owner_id = ?`,
		string(rec.OwnerKind), rec.OwnerID).Scan(&existingRowID)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if existingRowID.Valid {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_items WHERE rowid = ?`, existingRowID.Int64); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_meta WHERE vec_rowid = ?`, existingRowID.Int64); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO vec_items (embedding) VALUES (?)`, raw)
	if err != nil {
		return fmt.Errorf("vectorstore/embedded: insert vector: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO vec_meta (vec_rowid, id, owner_kind, owner_id) VALUES (?, ?, ?, ?)`,
		rowID, rec.ID, string(rec.OwnerKind), rec.OwnerID); err != nil {
		return fmt.Errorf("vectorstore/embedded: insert meta: %w", err)
	}

	return tx.Commit()
}

func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	if len(embedding) != s.dimensions {
		return nil, fmt.Errorf("vectorstore/embedded: query embedding has %d dims, want %d", len(embedding), s.dimensions)
	}
	raw, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/embedded: serialize query: %w", err)
	}

	// Overfetch past filters, since vec0's KNN clause cannot see vec_meta's
	// owner_kind column directly; min(topK*5, 100) bounds the rescan.
	overfetch := topK * 5
	if overfetch > 100 {
		overfetch = 100
	}
	if overfetch < topK {
		overfetch = topK
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT vec_meta.id, vec_meta.owner_kind, vec_meta.owner_id, vec_items.distance
FROM vec_items
JOIN vec_meta ON vec_meta.vec_rowid = vec_items.rowid
WHERE vec_items.embedding MATCH ? AND k = ?
ORDER BY vec_items.distance`, raw, overfetch)
	if err != nil {
		return nil, fmt.Errorf("vectorstore/embedded: search: %w", err)
	}
	defer rows.Close()

	allowed := map[string]bool{}
	for _, k := range filter.OwnerKinds {
		allowed[string(k)] = true
	}

	var out []vectorstore.SearchResult
	for rows.Next() && len(out) < topK {
		var id, ownerKind, ownerID string
		var distance float64
		if err := rows.Scan(&id, &ownerKind, &ownerID, &distance); err != nil {
			return nil, err
		}
		if len(allowed) > 0 && !allowed[ownerKind] {
			continue
		}
		out = append(out, vectorstore.SearchResult{
			Record: vectorstore.Record{
				ID:        id,
				OwnerKind: vectorstore.OwnerKind(ownerKind),
				OwnerID:   ownerID,
			},
			// vec0 reports Euclidean (L2) distance in [0,2] for
			// normalized vectors; spec.md §4.B converts that to a
			// similarity via max(0, 1 - d/2).
			Similarity: math.Max(0, 1-distance/2),
		})
	}
	return out, rows.Err()
}

func (s *Store) DeleteByOwner(ctx context.Context, ownerKind vectorstore.OwnerKind, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var rowID sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT vec_rowid FROM vec_meta WHERE owner_kind = ? AND owner_id = ?`,
		string(ownerKind), ownerID).Scan(&rowID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_items WHERE rowid = ?`, rowID.Int64); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_meta WHERE vec_rowid = ?`, rowID.Int64); err != nil {
		return err
	}
	return tx.Commit()
}
