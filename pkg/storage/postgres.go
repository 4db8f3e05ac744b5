package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// PGStore persists the trail in PostgreSQL. Entries are stored as one
// row per entry with the full document in a JSONB column and the
// chain/query columns lifted out for indexing. Appends are upserts by
// entry ID, matching the scheduler's at-least-once delivery.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects, verifies the connection and creates the schema
// if needed.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return s, nil
}

// Ping checks database connectivity.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AppendEntries upserts the batch in one transaction so a partial
// batch is never visible.
func (s *PGStore) AppendEntries(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return opErr("AppendEntries", "entry", "", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO audit_entries (id, sequence_num, ts, actor_id, entity_kind, entity_id, action, severity, correlation_id, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`
	for _, e := range entries {
		doc, err := json.Marshal(e)
		if err != nil {
			return opErr("AppendEntries", "entry", e.ID, fmt.Errorf("%w: %v", ErrMarshalFailed, err))
		}
		if _, err := tx.Exec(ctx, query,
			e.ID, e.SequenceNum, e.Timestamp, e.ActorID, e.EntityKind, e.EntityID,
			string(e.Action), string(e.Severity), e.CorrelationID, doc,
		); err != nil {
			return opErr("AppendEntries", "entry", e.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return opErr("AppendEntries", "entry", "", err)
	}
	return nil
}

// LoadEntries returns live entries ordered by sequence.
func (s *PGStore) LoadEntries(ctx context.Context) ([]*audit.Entry, error) {
	const query = `
		SELECT e.document
		FROM audit_entries e
		LEFT JOIN audit_tombstones t ON t.sequence_num = e.sequence_num
		WHERE t.sequence_num IS NULL
		ORDER BY e.sequence_num
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, opErr("LoadEntries", "entry", "", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, opErr("LoadEntries", "entry", "", err)
		}
		var e audit.Entry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, opErr("LoadEntries", "entry", "", fmt.Errorf("corrupt document: %w", err))
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("LoadEntries", "entry", "", err)
	}
	return entries, nil
}

// RemoveEntries deletes the rows for the given sequence numbers.
func (s *PGStore) RemoveEntries(ctx context.Context, seqs []uint64) error {
	if len(seqs) == 0 {
		return nil
	}
	ids := make([]int64, len(seqs))
	for i, seq := range seqs {
		ids[i] = int64(seq)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM audit_entries WHERE sequence_num = ANY($1)`, ids); err != nil {
		return opErr("RemoveEntries", "entry", "", err)
	}
	return nil
}

// SaveTombstones inserts tombstones; re-inserts are ignored.
func (s *PGStore) SaveTombstones(ctx context.Context, tombstones []audit.Tombstone) error {
	const query = `
		INSERT INTO audit_tombstones (sequence_num, previous_hash, current_hash, disposition, archive_id, policy_id, removed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence_num) DO NOTHING
	`
	for _, t := range tombstones {
		if _, err := s.pool.Exec(ctx, query,
			int64(t.SequenceNum), t.PreviousHash, t.CurrentHash,
			string(t.Disposition), t.ArchiveID, t.PolicyID, t.RemovedAt,
		); err != nil {
			return opErr("SaveTombstones", "tombstone", "", err)
		}
	}
	return nil
}

// LoadTombstones returns all tombstones ordered by sequence.
func (s *PGStore) LoadTombstones(ctx context.Context) ([]audit.Tombstone, error) {
	const query = `
		SELECT sequence_num, previous_hash, current_hash, disposition, archive_id, policy_id, removed_at
		FROM audit_tombstones ORDER BY sequence_num
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, opErr("LoadTombstones", "tombstone", "", err)
	}
	defer rows.Close()

	var out []audit.Tombstone
	for rows.Next() {
		var (
			t   audit.Tombstone
			seq int64
		)
		if err := rows.Scan(&seq, &t.PreviousHash, &t.CurrentHash, &t.Disposition, &t.ArchiveID, &t.PolicyID, &t.RemovedAt); err != nil {
			return nil, opErr("LoadTombstones", "tombstone", "", err)
		}
		t.SequenceNum = uint64(seq)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("LoadTombstones", "tombstone", "", err)
	}
	return out, nil
}

// DeleteTombstones clears tombstones for restored entries.
func (s *PGStore) DeleteTombstones(ctx context.Context, seqs []uint64) error {
	if len(seqs) == 0 {
		return nil
	}
	ids := make([]int64, len(seqs))
	for i, seq := range seqs {
		ids[i] = int64(seq)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM audit_tombstones WHERE sequence_num = ANY($1)`, ids); err != nil {
		return opErr("DeleteTombstones", "tombstone", "", err)
	}
	return nil
}

// SavePolicy upserts a policy document.
func (s *PGStore) SavePolicy(ctx context.Context, policy *audit.RetentionPolicy) error {
	doc, err := json.Marshal(policy)
	if err != nil {
		return opErr("SavePolicy", "policy", policy.ID, fmt.Errorf("%w: %v", ErrMarshalFailed, err))
	}
	const query = `
		INSERT INTO audit_policies (id, document) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`
	if _, err := s.pool.Exec(ctx, query, policy.ID, doc); err != nil {
		return opErr("SavePolicy", "policy", policy.ID, err)
	}
	return nil
}

// DeletePolicy removes a policy row.
func (s *PGStore) DeletePolicy(ctx context.Context, policyID string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM audit_policies WHERE id = $1`, policyID)
	if err != nil {
		return opErr("DeletePolicy", "policy", policyID, err)
	}
	if result.RowsAffected() == 0 {
		return opErr("DeletePolicy", "policy", policyID, ErrPolicyNotFound)
	}
	return nil
}

// LoadPolicies returns all policy documents.
func (s *PGStore) LoadPolicies(ctx context.Context) ([]*audit.RetentionPolicy, error) {
	rows, err := s.pool.Query(ctx, `SELECT document FROM audit_policies ORDER BY id`)
	if err != nil {
		return nil, opErr("LoadPolicies", "policy", "", err)
	}
	defer rows.Close()

	var out []*audit.RetentionPolicy
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, opErr("LoadPolicies", "policy", "", err)
		}
		var p audit.RetentionPolicy
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, opErr("LoadPolicies", "policy", "", fmt.Errorf("corrupt document: %w", err))
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("LoadPolicies", "policy", "", err)
	}
	return out, nil
}

// SaveArchive upserts an archive manifest.
func (s *PGStore) SaveArchive(ctx context.Context, archive *audit.Archive) error {
	doc, err := json.Marshal(archive)
	if err != nil {
		return opErr("SaveArchive", "archive", archive.ID, fmt.Errorf("%w: %v", ErrMarshalFailed, err))
	}
	const query = `
		INSERT INTO audit_archives (id, from_sequence, to_sequence, document) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`
	if _, err := s.pool.Exec(ctx, query, archive.ID, int64(archive.FromSequence), int64(archive.ToSequence), doc); err != nil {
		return opErr("SaveArchive", "archive", archive.ID, err)
	}
	return nil
}

// LoadArchives returns all archive manifests ordered by sequence range.
func (s *PGStore) LoadArchives(ctx context.Context) ([]*audit.Archive, error) {
	rows, err := s.pool.Query(ctx, `SELECT document FROM audit_archives ORDER BY from_sequence`)
	if err != nil {
		return nil, opErr("LoadArchives", "archive", "", err)
	}
	defer rows.Close()

	var out []*audit.Archive
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, opErr("LoadArchives", "archive", "", err)
		}
		var a audit.Archive
		if err := json.Unmarshal(doc, &a); err != nil {
			return nil, opErr("LoadArchives", "archive", "", fmt.Errorf("corrupt document: %w", err))
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, opErr("LoadArchives", "archive", "", err)
	}
	return out, nil
}

// GetArchive fetches a single manifest by ID.
func (s *PGStore) GetArchive(ctx context.Context, archiveID string) (*audit.Archive, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM audit_archives WHERE id = $1`, archiveID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, opErr("GetArchive", "archive", archiveID, ErrArchiveNotFound)
	}
	if err != nil {
		return nil, opErr("GetArchive", "archive", archiveID, err)
	}
	var a audit.Archive
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, opErr("GetArchive", "archive", archiveID, fmt.Errorf("corrupt document: %w", err))
	}
	return &a, nil
}

// Close closes the connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
