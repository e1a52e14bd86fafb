package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docleaai/doclea/pkg/memory"
)

// Store implements [memory.MemoryStore], [memory.DocumentStore],
// [memory.CodeGraphStore] and [memory.GraphRAGStore] against a single
// Postgres connection pool reached through database/sql, mirroring the
// split pkg/relstore/sqlite uses for the same four interfaces.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ memory.MemoryStore    = (*Store)(nil)
	_ memory.DocumentStore  = (*Store)(nil)
	_ memory.CodeGraphStore = (*Store)(nil)
	_ memory.GraphRAGStore  = (*Store)(nil)
)

// New wraps an already-migrated *sql.DB (see [Open]).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func newID() string { return uuid.NewString() }

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func marshalMeta(m map[string]string) string {
	if len(m) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMeta(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := map[string]string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func parseNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func parseNullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

func requireAffected(res sql.Result, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// placeholders builds a comma-joined "$n, $n+1, ..." list for an IN clause,
// starting at *next and advancing it by len(values).
func placeholders(next *int, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = "$" + strconv.Itoa(*next)
		*next++
	}
	return out
}

// --- MemoryStore ---

func (s *Store) CreateMemory(ctx context.Context, m *memory.Memory) (string, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.AccessedAt.IsZero() {
		m.AccessedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO memories (
	id, type, title, content, summary, importance, tags, related_files,
	git_commit, source_pr, experts, created_at, accessed_at, access_count,
	needs_review, vector_id, decay_rate, last_refreshed_at, confidence_floor,
	decay_function
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		m.ID, string(m.Type), m.Title, m.Content, m.Summary, m.Importance,
		marshalStrings(m.Tags), marshalStrings(m.RelatedFiles), m.GitCommit,
		m.SourcePR, marshalStrings(m.Experts), m.CreatedAt, m.AccessedAt, m.AccessCount,
		m.NeedsReview, m.VectorID, nullFloat(m.DecayRate), nullTime(m.LastRefreshedAt),
		nullFloat(m.ConfidenceFloor), string(m.DecayFunction))
	if err != nil {
		return "", fmt.Errorf("relstore/postgres: create memory: %w", err)
	}
	return m.ID, nil
}

func (s *Store) scanMemory(row interface {
	Scan(dest ...any) error
}) (*memory.Memory, error) {
	var m memory.Memory
	var typ, tags, relatedFiles, experts, decayFn string
	var decayRate, confidenceFloor sql.NullFloat64
	var lastRefreshed sql.NullTime

	err := row.Scan(&m.ID, &typ, &m.Title, &m.Content, &m.Summary, &m.Importance,
		&tags, &relatedFiles, &m.GitCommit, &m.SourcePR, &experts,
		&m.CreatedAt, &m.AccessedAt, &m.AccessCount, &m.NeedsReview, &m.VectorID,
		&decayRate, &lastRefreshed, &confidenceFloor, &decayFn)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	m.Type = memory.MemoryType(typ)
	m.Tags = unmarshalStrings(tags)
	m.RelatedFiles = unmarshalStrings(relatedFiles)
	m.Experts = unmarshalStrings(experts)
	m.CreatedAt = m.CreatedAt.UTC()
	m.AccessedAt = m.AccessedAt.UTC()
	m.DecayRate = parseNullFloat(decayRate)
	m.ConfidenceFloor = parseNullFloat(confidenceFloor)
	m.LastRefreshedAt = parseNullTime(lastRefreshed)
	m.DecayFunction = memory.DecayFunction(decayFn)
	return &m, nil
}

const selectMemoryCols = `
id, type, title, content, summary, importance, tags, related_files,
git_commit, source_pr, experts, created_at, accessed_at, access_count,
needs_review, vector_id, decay_rate, last_refreshed_at, confidence_floor,
decay_function`

func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectMemoryCols+` FROM memories WHERE id = $1`, id)
	return s.scanMemory(row)
}

func (s *Store) UpdateMemory(ctx context.Context, id string, patch *memory.MemoryPatch) error {
	var sets []string
	var args []any
	next := 1

	set := func(col string, v any) {
		sets = append(sets, col+" = $"+strconv.Itoa(next))
		next++
		args = append(args, v)
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Content != nil {
		set("content", *patch.Content)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Importance != nil {
		set("importance", *patch.Importance)
	}
	if patch.Tags != nil {
		set("tags", marshalStrings(patch.Tags))
	}
	if patch.RelatedFiles != nil {
		set("related_files", marshalStrings(patch.RelatedFiles))
	}
	if patch.NeedsReview != nil {
		set("needs_review", *patch.NeedsReview)
	}
	if patch.VectorID != nil {
		set("vector_id", *patch.VectorID)
	}
	if patch.DecayRate != nil {
		set("decay_rate", *patch.DecayRate)
	}
	if patch.LastRefreshedAt != nil {
		set("last_refreshed_at", patch.LastRefreshedAt.UTC())
	}
	if patch.ConfidenceFloor != nil {
		set("confidence_floor", *patch.ConfidenceFloor)
	}
	if patch.DecayFunction != nil {
		set("decay_function", string(*patch.DecayFunction))
	}

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := `UPDATE memories SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(next)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("relstore/postgres: update memory: %w", err)
	}
	return requireAffected(res, memory.ErrNotFound)
}

func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_relations WHERE source_id = $1 OR target_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cross_layer_relations WHERE memory_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, memory.ErrNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListMemories(ctx context.Context, filter memory.MemoryFilter) ([]memory.Memory, error) {
	var where []string
	var args []any
	next := 1

	if len(filter.Types) > 0 {
		ph := placeholders(&next, len(filter.Types))
		for _, t := range filter.Types {
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(ph, ", ")+")")
	}
	if filter.RelatedFile != "" {
		where = append(where, "related_files LIKE $"+strconv.Itoa(next))
		next++
		args = append(args, "%\""+filter.RelatedFile+"\"%")
	}
	if filter.MinImportance > 0 {
		where = append(where, "importance >= $"+strconv.Itoa(next))
		next++
		args = append(args, filter.MinImportance)
	}
	if filter.NeedsReview != nil {
		where = append(where, "needs_review = $"+strconv.Itoa(next))
		next++
		args = append(args, *filter.NeedsReview)
	}

	query := `SELECT ` + selectMemoryCols + ` FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY accessed_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relstore/postgres: list memories: %w", err)
	}
	defer rows.Close()

	var out []memory.Memory
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if !matchesTags(m.Tags, filter.Tags, filter.TagsMatch) {
			continue
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// matchesTags applies the in-process Tags/TagsMatch filter, since tag
// membership over a JSON-encoded column is awkward to push into SQL.
func matchesTags(have, want []string, match string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	if match == "all" {
		for _, t := range want {
			if !set[t] {
				return false
			}
		}
		return true
	}
	for _, t := range want {
		if set[t] {
			return true
		}
	}
	return false
}

func (s *Store) TouchAccess(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE memories
SET access_count = access_count + 1,
    accessed_at = CASE WHEN $1 > accessed_at THEN $1 ELSE accessed_at END
WHERE id = $2`,
		now.UTC(), id)
	if err != nil {
		return fmt.Errorf("relstore/postgres: touch access: %w", err)
	}
	return requireAffected(res, memory.ErrNotFound)
}

func (s *Store) CreateRelation(ctx context.Context, r *memory.MemoryRelation) (string, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO memory_relations (id, source_id, target_id, type, weight, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SourceID, r.TargetID, string(r.Type), r.Weight, marshalMeta(r.Metadata), r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return "", memory.ErrConflict
		}
		return "", fmt.Errorf("relstore/postgres: create relation: %w", err)
	}
	return r.ID, nil
}

func (s *Store) GetRelations(ctx context.Context, id string, opts ...memory.RelQueryOpt) ([]memory.MemoryRelation, error) {
	relTypes, dirIn, dirOut, limit := memory.ApplyRelQueryOpts(opts)

	var dirClauses []string
	var args []any
	next := 1
	if dirOut {
		dirClauses = append(dirClauses, "source_id = $"+strconv.Itoa(next))
		next++
		args = append(args, id)
	}
	if dirIn {
		dirClauses = append(dirClauses, "target_id = $"+strconv.Itoa(next))
		next++
		args = append(args, id)
	}
	if len(dirClauses) == 0 {
		return nil, nil
	}

	query := `SELECT id, source_id, target_id, type, weight, metadata, created_at FROM memory_relations WHERE (` +
		strings.Join(dirClauses, " OR ") + ")"

	if len(relTypes) > 0 {
		ph := placeholders(&next, len(relTypes))
		for _, t := range relTypes {
			args = append(args, t)
		}
		query += " AND type IN (" + strings.Join(ph, ", ") + ")"
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relstore/postgres: get relations: %w", err)
	}
	defer rows.Close()

	var out []memory.MemoryRelation
	for rows.Next() {
		var r memory.MemoryRelation
		var typ, meta string
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &typ, &r.Weight, &meta, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Type = memory.RelationType(typ)
		r.Metadata = unmarshalMeta(meta)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RelationExists(ctx context.Context, sourceID, targetID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM memory_relations
WHERE (source_id = $1 AND target_id = $2) OR (source_id = $2 AND target_id = $1)`,
		sourceID, targetID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Traverse(ctx context.Context, id string, opts ...memory.TraversalOpt) ([]memory.Memory, error) {
	relTypes, nodeTypes, maxNodes := memory.ApplyTraversalOpts(opts)

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []memory.Memory

	for len(frontier) > 0 && len(out) < maxNodes {
		next := frontier[0]
		frontier = frontier[1:]

		rels, err := s.GetRelations(ctx, next, relOptsFor(relTypes)...)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			neighbor := r.TargetID
			if neighbor == next {
				neighbor = r.SourceID
			}
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true

			m, err := s.GetMemory(ctx, neighbor)
			if err != nil {
				if err == memory.ErrNotFound {
					continue
				}
				return nil, err
			}
			if len(nodeTypes) > 0 && !containsStr(nodeTypes, string(m.Type)) {
				continue
			}
			out = append(out, *m)
			frontier = append(frontier, neighbor)
			if len(out) >= maxNodes {
				break
			}
		}
	}
	return out, nil
}

func relOptsFor(relTypes []string) []memory.RelQueryOpt {
	if len(relTypes) == 0 {
		return nil
	}
	return []memory.RelQueryOpt{memory.WithRelTypes(relTypes...)}
}

func containsStr(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) CreateSuggestion(ctx context.Context, sg *memory.RelationSuggestion) (string, error) {
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
INSERT INTO relation_suggestions (id, source_id, target_id, suggested_type, confidence, reason, detection_method, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sg.ID, sg.SourceID, sg.TargetID, sg.SuggestedType, sg.Confidence, sg.Reason,
		sg.DetectionMethod, string(sg.Status), sg.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("relstore/postgres: create suggestion: %w", err)
	}
	return sg.ID, nil
}

func (s *Store) ListSuggestions(ctx context.Context, status memory.SuggestionStatus) ([]memory.RelationSuggestion, error) {
	query := `SELECT id, source_id, target_id, suggested_type, confidence, reason, detection_method, status, created_at, reviewed_at FROM relation_suggestions`
	var args []any
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relstore/postgres: list suggestions: %w", err)
	}
	defer rows.Close()

	var out []memory.RelationSuggestion
	for rows.Next() {
		var sg memory.RelationSuggestion
		var st string
		var reviewedAt sql.NullTime
		if err := rows.Scan(&sg.ID, &sg.SourceID, &sg.TargetID, &sg.SuggestedType, &sg.Confidence,
			&sg.Reason, &sg.DetectionMethod, &st, &sg.CreatedAt, &reviewedAt); err != nil {
			return nil, err
		}
		sg.Status = memory.SuggestionStatus(st)
		sg.CreatedAt = sg.CreatedAt.UTC()
		sg.ReviewedAt = parseNullTime(reviewedAt)
		out = append(out, sg)
	}
	return out, rows.Err()
}

// ReviewSuggestion approves or rejects a pending suggestion. Approving
// materializes a [memory.MemoryRelation], collapsing any richer
// SuggestedType label (e.g. "causes"/"solves") to [memory.RelationReferences].
func (s *Store) ReviewSuggestion(ctx context.Context, id string, approve bool, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT source_id, target_id, suggested_type FROM relation_suggestions WHERE id = $1 AND status = $2`,
		id, string(memory.SuggestionPending))
	var sourceID, targetID, suggestedType string
	if err := row.Scan(&sourceID, &targetID, &suggestedType); err != nil {
		if err == sql.ErrNoRows {
			return memory.ErrNotFound
		}
		return err
	}

	status := memory.SuggestionRejected
	if approve {
		status = memory.SuggestionApproved
	}
	if _, err := tx.ExecContext(ctx, `UPDATE relation_suggestions SET status = $1, reviewed_at = $2 WHERE id = $3`,
		string(status), now.UTC(), id); err != nil {
		return err
	}

	if approve {
		relType := memory.RelationReferences
		switch suggestedType {
		case string(memory.RelationImplements), string(memory.RelationExtends),
			string(memory.RelationRelatedTo), string(memory.RelationSupersedes),
			string(memory.RelationRequires):
			relType = memory.RelationType(suggestedType)
		}
		relID := newID()
		_, err := tx.ExecContext(ctx, `
INSERT INTO memory_relations (id, source_id, target_id, type, weight, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (source_id, target_id, type) DO NOTHING`,
			relID, sourceID, targetID, string(relType), 1.0, "{}", now.UTC())
		if err != nil {
			return fmt.Errorf("relstore/postgres: materialize relation: %w", err)
		}
	}

	return tx.Commit()
}
