// Package relstore implements the relational schema and forward/backward
// migrator described in spec.md §4.C: an embedded SQLite file by default,
// with the teacher's own Postgres/pgvector stack kept as an alternate
// backend (pkg/relstore/postgres).
package relstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Migration is one forward/backward schema step, ordered by Version
// (lexicographic).
type Migration struct {
	Version     string
	Description string
	Destructive bool
	Up          func(ctx context.Context, tx *sql.Tx) error
	Down        func(ctx context.Context, tx *sql.Tx) error
}

// PlanResult describes what a migration run would do (or did).
type PlanResult struct {
	Pending    []string
	Applied    []string
	Failed     string
	Success    bool
	Error      error
	BackupPath string
}

// Migrator runs ordered [Migration]s against a *sql.DB, tracking applied
// versions in `_doclea_migrations` and the current version in
// `_doclea_meta`.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	dataDir    string // holds backups/ for physical pre-migration snapshots
	dbFile     string // path to the physical db file, for backup copies
	now        func() time.Time
}

// NewMigrator constructs a Migrator. dbFile is the physical path of the
// database file backing db (used only for backups); it may be empty for
// backends (e.g. Postgres) where a file-level backup does not apply.
func NewMigrator(db *sql.DB, dataDir, dbFile string, migrations []Migration) *Migrator {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: db, migrations: sorted, dataDir: dataDir, dbFile: dbFile, now: time.Now}
}

const ddlMeta = `
CREATE TABLE IF NOT EXISTS _doclea_meta (
	schema_version TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS _doclea_migrations (
	version TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

// ensureMeta creates the meta/migration-log tables if absent.
func (m *Migrator) ensureMeta(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, ddlMeta)
	return err
}

func (m *Migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM _doclea_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// pending computes the not-yet-applied migrations, optionally capped at
// targetVersion (empty means no cap — apply everything).
func (m *Migrator) pending(ctx context.Context, targetVersion string) ([]Migration, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		if targetVersion != "" && mig.Version > targetVersion {
			continue
		}
		out = append(out, mig)
	}
	return out, nil
}

// Plan reports what would run without writing anything (dry-run mode).
func (m *Migrator) Plan(ctx context.Context, targetVersion string) (*PlanResult, error) {
	if err := m.ensureMeta(ctx); err != nil {
		return nil, fmt.Errorf("relstore: plan: ensure meta: %w", err)
	}
	pend, err := m.pending(ctx, targetVersion)
	if err != nil {
		return nil, fmt.Errorf("relstore: plan: %w", err)
	}
	versions := make([]string, len(pend))
	for i, p := range pend {
		versions[i] = p.Version
	}
	return &PlanResult{Pending: versions, Success: true}, nil
}

// Apply runs every pending migration (capped at targetVersion when
// non-empty) inside individual transactions. If any pending migration is
// [Migration.Destructive], a physical backup is written before any
// migration in the batch runs. On failure, rolls back only the failing
// migration's transaction — previously applied migrations in this run stay
// applied.
func (m *Migrator) Apply(ctx context.Context, targetVersion string) (*PlanResult, error) {
	if err := m.ensureMeta(ctx); err != nil {
		return nil, fmt.Errorf("relstore: apply: ensure meta: %w", err)
	}
	pend, err := m.pending(ctx, targetVersion)
	if err != nil {
		return nil, fmt.Errorf("relstore: apply: %w", err)
	}
	if len(pend) == 0 {
		return &PlanResult{Success: true}, nil
	}

	result := &PlanResult{Success: true}

	needsBackup := false
	for _, mig := range pend {
		if mig.Destructive {
			needsBackup = true
			break
		}
	}
	if needsBackup && m.dbFile != "" {
		path, err := m.backup(m.now())
		if err != nil {
			return nil, fmt.Errorf("relstore: apply: backup: %w", err)
		}
		result.BackupPath = path
	}

	for _, mig := range pend {
		if err := m.runOne(ctx, mig, mig.Up, mig.Version); err != nil {
			result.Success = false
			result.Failed = mig.Version
			result.Error = err
			return result, err
		}
		result.Applied = append(result.Applied, mig.Version)
	}
	return result, nil
}

// Rollback runs `down` for applied migrations with version > targetVersion,
// in reverse order, each inside its own transaction. Each migration's log
// row is removed and schema_version is updated as it rolls back.
func (m *Migrator) Rollback(ctx context.Context, targetVersion string) (*PlanResult, error) {
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, fmt.Errorf("relstore: rollback: %w", err)
	}

	var toRoll []Migration
	for i := len(m.migrations) - 1; i >= 0; i-- {
		mig := m.migrations[i]
		if applied[mig.Version] && mig.Version > targetVersion {
			toRoll = append(toRoll, mig)
		}
	}

	result := &PlanResult{Success: true}
	for _, mig := range toRoll {
		if mig.Down == nil {
			err := fmt.Errorf("relstore: rollback: migration %s has no down step", mig.Version)
			result.Success = false
			result.Failed = mig.Version
			result.Error = err
			return result, err
		}
		if err := m.runOne(ctx, mig, mig.Down, ""); err != nil {
			result.Success = false
			result.Failed = mig.Version
			result.Error = err
			return result, err
		}
		if err := m.removeLog(ctx, mig.Version); err != nil {
			result.Success = false
			result.Error = err
			return result, err
		}
		prev := ""
		for _, other := range m.migrations {
			if applied[other.Version] && other.Version < mig.Version {
				prev = other.Version
			}
		}
		_, err := m.db.ExecContext(ctx, `DELETE FROM _doclea_meta`)
		if err == nil && prev != "" {
			_, err = m.db.ExecContext(ctx, `INSERT INTO _doclea_meta (schema_version) VALUES (?)`, prev)
		}
		if err != nil {
			result.Success = false
			result.Error = err
			return result, err
		}
		result.Applied = append(result.Applied, mig.Version)
	}
	return result, nil
}

// runOne executes fn inside a transaction, then — when logVersion is
// non-empty (the forward/up case) — records the migration as applied and
// bumps schema_version. Rolls back the transaction on any failure.
func (m *Migrator) runOne(ctx context.Context, mig Migration, fn func(context.Context, *sql.Tx) error, logVersion string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("relstore: begin tx for %s: %w", mig.Version, err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return fmt.Errorf("relstore: migration %s: %w", mig.Version, err)
	}

	if logVersion != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO _doclea_migrations (version, applied_at) VALUES (?, ?)`,
			logVersion, m.now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("relstore: migration %s: log: %w", mig.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM _doclea_meta`); err != nil {
			return fmt.Errorf("relstore: migration %s: clear meta: %w", mig.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _doclea_meta (schema_version) VALUES (?)`, logVersion); err != nil {
			return fmt.Errorf("relstore: migration %s: set meta: %w", mig.Version, err)
		}
	}

	return tx.Commit()
}

func (m *Migrator) removeLog(ctx context.Context, version string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM _doclea_migrations WHERE version = ?`, version)
	return err
}

// backup copies the physical database file into dataDir/backups before a
// destructive migration runs.
func (m *Migrator) backup(at time.Time) (string, error) {
	backupDir := filepath.Join(m.dataDir, "backups")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", err
	}

	applied, err := m.appliedVersionOrEmpty()
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("backup-%s-%s.db", at.UTC().Format("20060102T150405Z"), applied)
	dest := filepath.Join(backupDir, name)

	if err := copyFile(m.dbFile, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (m *Migrator) appliedVersionOrEmpty() (string, error) {
	var v string
	row := m.db.QueryRow(`SELECT schema_version FROM _doclea_meta LIMIT 1`)
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return "none", nil
		}
		return "", err
	}
	return v, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to back up yet
		}
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
