package storage

import "context"

// migrate creates the audit tables if they don't exist.
func (s *PGStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id             TEXT PRIMARY KEY,
		sequence_num   BIGINT NOT NULL,
		ts             TIMESTAMPTZ NOT NULL,
		actor_id       TEXT NOT NULL,
		entity_kind    TEXT NOT NULL,
		entity_id      TEXT NOT NULL,
		action         TEXT NOT NULL,
		severity       TEXT NOT NULL,
		correlation_id TEXT,
		document       JSONB NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_entries_sequence ON audit_entries (sequence_num);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_ts ON audit_entries (ts);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_actor ON audit_entries (actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_entity ON audit_entries (entity_kind, entity_id);

	CREATE TABLE IF NOT EXISTS audit_tombstones (
		sequence_num  BIGINT PRIMARY KEY,
		previous_hash TEXT NOT NULL,
		current_hash  TEXT NOT NULL,
		disposition   TEXT NOT NULL,
		archive_id    TEXT,
		policy_id     TEXT,
		removed_at    TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_policies (
		id       TEXT PRIMARY KEY,
		document JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_archives (
		id            TEXT PRIMARY KEY,
		from_sequence BIGINT NOT NULL,
		to_sequence   BIGINT NOT NULL,
		document      JSONB NOT NULL
	);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}
