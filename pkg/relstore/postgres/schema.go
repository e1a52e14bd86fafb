// Package postgres is the alternate relational backend described in
// spec.md §6 ("vector.provider" may point at a remote/managed store): a
// PostgreSQL database reached through database/sql via the pgx stdlib
// driver, with embeddings persisted through pgvector rather than a
// JSON-in-TEXT column. It implements the same [relstore.Migrator]-driven
// forward/backward migration contract as pkg/relstore/sqlite so the two
// backends are interchangeable behind pkg/memory's storage interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/docleaai/doclea/pkg/relstore"
)

const schemaVersion1 = "0001"

const ddlV1 = `
CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	type              TEXT NOT NULL,
	title             TEXT NOT NULL,
	content           TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	importance        DOUBLE PRECISION NOT NULL DEFAULT 0,
	tags              TEXT NOT NULL DEFAULT '[]',
	related_files     TEXT NOT NULL DEFAULT '[]',
	git_commit        TEXT NOT NULL DEFAULT '',
	source_pr         TEXT NOT NULL DEFAULT '',
	experts           TEXT NOT NULL DEFAULT '[]',
	created_at        TIMESTAMPTZ NOT NULL,
	accessed_at       TIMESTAMPTZ NOT NULL,
	access_count      INTEGER NOT NULL DEFAULT 0,
	needs_review      BOOLEAN NOT NULL DEFAULT FALSE,
	vector_id         TEXT NOT NULL DEFAULT '',
	decay_rate        DOUBLE PRECISION,
	last_refreshed_at TIMESTAMPTZ,
	confidence_floor  DOUBLE PRECISION,
	decay_function    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories (type);
CREATE INDEX IF NOT EXISTS idx_memories_accessed ON memories (accessed_at);

CREATE TABLE IF NOT EXISTS memory_relations (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	target_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	weight     DOUBLE PRECISION NOT NULL DEFAULT 1,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (source_id, target_id, type)
);
CREATE INDEX IF NOT EXISTS idx_rel_source ON memory_relations (source_id);
CREATE INDEX IF NOT EXISTS idx_rel_target ON memory_relations (target_id);

CREATE TABLE IF NOT EXISTS relation_suggestions (
	id               TEXT PRIMARY KEY,
	source_id        TEXT NOT NULL,
	target_id        TEXT NOT NULL,
	suggested_type   TEXT NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	reason           TEXT NOT NULL DEFAULT '',
	detection_method TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	created_at       TIMESTAMPTZ NOT NULL,
	reviewed_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_suggestions_status ON relation_suggestions (status);

CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
	content       TEXT NOT NULL,
	vector_id     TEXT NOT NULL DEFAULT '',
	start_offset  INTEGER NOT NULL,
	end_offset    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);

-- embedding_cache keeps the vector itself in a pgvector column (unbounded
-- dimension: callers may mix models with different output sizes) rather
-- than the JSON-in-TEXT encoding pkg/relstore/sqlite uses, since this
-- backend already pays for the pgvector extension.
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS embedding_cache (
	content_hash TEXT NOT NULL,
	model        TEXT NOT NULL,
	embedding    vector NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (content_hash, model)
);

CREATE TABLE IF NOT EXISTS code_nodes (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	name       TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line   INTEGER NOT NULL DEFAULT 0,
	signature  TEXT NOT NULL DEFAULT '',
	summary    TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_code_nodes_name ON code_nodes (name);
CREATE INDEX IF NOT EXISTS idx_code_nodes_file ON code_nodes (file_path);

CREATE TABLE IF NOT EXISTS code_edges (
	id         TEXT PRIMARY KEY,
	from_node  TEXT NOT NULL,
	to_node    TEXT NOT NULL,
	type       TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_code_edges_from ON code_edges (from_node);

CREATE TABLE IF NOT EXISTS cross_layer_relations (
	id           TEXT PRIMARY KEY,
	memory_id    TEXT NOT NULL,
	code_node_id TEXT NOT NULL,
	type         TEXT NOT NULL,
	direction    TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL DEFAULT 'approved',
	reviewed_at  TIMESTAMPTZ,
	UNIQUE (memory_id, code_node_id, type)
);
CREATE INDEX IF NOT EXISTS idx_clr_memory ON cross_layer_relations (memory_id);
CREATE INDEX IF NOT EXISTS idx_clr_status ON cross_layer_relations (status);

CREATE TABLE IF NOT EXISTS graph_entities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	vector_id   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entities_name ON graph_entities (name);

CREATE TABLE IF NOT EXISTS graph_relationships (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL REFERENCES graph_entities (id) ON DELETE CASCADE,
	target_id   TEXT NOT NULL REFERENCES graph_entities (id) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	strength    DOUBLE PRECISION NOT NULL DEFAULT 1,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_graph_rel_source ON graph_relationships (source_id);

CREATE TABLE IF NOT EXISTS graph_communities (
	id         TEXT PRIMARY KEY,
	level      INTEGER NOT NULL,
	entity_ids TEXT NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_reports (
	id           TEXT PRIMARY KEY,
	community_id TEXT NOT NULL,
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	full_content TEXT NOT NULL DEFAULT '',
	level        INTEGER NOT NULL DEFAULT 0,
	vector_id    TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_level ON graph_reports (level);
`

// Open connects to the Postgres database at dsn through the pgx stdlib
// driver and runs the schema-v1 migration. dataDir is passed to the
// migrator, but a remote Postgres instance has no local file to copy, so
// no pre-migration backup is taken and [relstore.Migrator.Apply] never
// records a BackupPath for this backend.
func Open(ctx context.Context, dsn, dataDir string) (*sql.DB, *relstore.Migrator, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("relstore/postgres: open: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("relstore/postgres: ping: %w", err)
	}

	// No physical single-file backup applies to a remote database; dbFile
	// is left empty so the migrator skips the file-copy backup step.
	migrator := relstore.NewMigrator(db, dataDir, "", migrations())

	if _, err := migrator.Apply(ctx, ""); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("relstore/postgres: migrate: %w", err)
	}

	return db, migrator, nil
}

func migrations() []relstore.Migration {
	return []relstore.Migration{
		{
			Version:     schemaVersion1,
			Description: "initial schema",
			Destructive: false,
			Up: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, ddlV1)
				return err
			},
			Down: func(ctx context.Context, tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
DROP TABLE IF EXISTS graph_reports;
DROP TABLE IF EXISTS graph_communities;
DROP TABLE IF EXISTS graph_relationships;
DROP TABLE IF EXISTS graph_entities;
DROP TABLE IF EXISTS cross_layer_relations;
DROP TABLE IF EXISTS code_edges;
DROP TABLE IF EXISTS code_nodes;
DROP TABLE IF EXISTS embedding_cache;
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS relation_suggestions;
DROP TABLE IF EXISTS memory_relations;
DROP TABLE IF EXISTS memories;
`)
				return err
			},
		},
	}
}
