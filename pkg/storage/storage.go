// Package storage persists chained audit entries, tombstones,
// retention policies and archive manifests. The trail engine treats a
// Store as an eventually-consistent mirror of its in-memory state:
// writes are batched and retried by the persistence scheduler, reads
// happen once at startup recovery. Adapters exist for append-only
// JSONL files, PostgreSQL and plain memory; archive blobs go to a
// separate ArchiveStore (filesystem or S3).
package storage

import (
	"context"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// Store is the durable mirror of the trail. AppendEntries must be
// idempotent per entry ID: the scheduler delivers at-least-once.
type Store interface {
	// AppendEntries writes a batch durably, merging with whatever the
	// store already holds for the affected time buckets.
	AppendEntries(ctx context.Context, entries []*audit.Entry) error

	// LoadEntries returns every persisted live entry, ordered by
	// sequence number. Entries covered by a tombstone are not live.
	LoadEntries(ctx context.Context) ([]*audit.Entry, error)

	// RemoveEntries makes the entries with the given sequence numbers
	// unavailable to future LoadEntries calls. Callers record the
	// matching tombstones themselves; append-only adapters may rely on
	// those tombstones instead of physical deletion.
	RemoveEntries(ctx context.Context, seqs []uint64) error

	SaveTombstones(ctx context.Context, tombstones []audit.Tombstone) error
	LoadTombstones(ctx context.Context) ([]audit.Tombstone, error)

	// DeleteTombstones clears tombstones whose entries have been
	// restored from an archive.
	DeleteTombstones(ctx context.Context, seqs []uint64) error

	SavePolicy(ctx context.Context, policy *audit.RetentionPolicy) error
	DeletePolicy(ctx context.Context, policyID string) error
	LoadPolicies(ctx context.Context) ([]*audit.RetentionPolicy, error)

	SaveArchive(ctx context.Context, archive *audit.Archive) error
	LoadArchives(ctx context.Context) ([]*audit.Archive, error)

	Close() error
}

// ArchiveStore holds sealed archive blobs. Location strings returned
// by Put are opaque to callers and recorded on the archive manifest.
type ArchiveStore interface {
	Put(ctx context.Context, archiveID string, blob []byte) (location string, err error)
	Get(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}
