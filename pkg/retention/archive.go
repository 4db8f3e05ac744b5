package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/pools"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/storage"
)

// sealArchive serializes entries into a blob: JSON, snappy-compressed,
// checksummed, optionally AES-256-GCM encrypted. The checksum covers
// the compressed bytes, before encryption.
func (en *Engine) sealArchive(entries []*audit.Entry) (blob []byte, checksum uint32, err error) {
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to serialize archive: %w", err)
	}

	buf := pools.GetBytesSized(snappy.MaxEncodedLen(len(raw)))
	compressed := snappy.Encode(buf, raw)
	checksum = crc32.ChecksumIEEE(compressed)

	if en.cfg.EncryptArchives {
		sealed, err := en.crypto.Encrypt(compressed)
		pools.PutBytes(buf)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encrypt archive: %w", err)
		}
		return sealed, checksum, nil
	}
	// The blob outlives the pooled buffer, so copy out.
	out := make([]byte, len(compressed))
	copy(out, compressed)
	pools.PutBytes(buf)
	return out, checksum, nil
}

// openArchive reverses sealArchive against the manifest's checksum.
func (en *Engine) openArchive(manifest *audit.Archive, blob []byte) ([]*audit.Entry, error) {
	compressed := blob
	if manifest.Encrypted {
		if en.crypto == nil {
			return nil, fmt.Errorf("archive %s is encrypted and no encryption engine is configured", manifest.ID)
		}
		var err error
		compressed, err = en.crypto.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt archive %s: %w", manifest.ID, err)
		}
	}
	if got := crc32.ChecksumIEEE(compressed); got != manifest.Checksum {
		return nil, fmt.Errorf("archive %s checksum mismatch: got %08x, manifest says %08x", manifest.ID, got, manifest.Checksum)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress archive %s: %w", manifest.ID, err)
	}
	var entries []*audit.Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to deserialize archive %s: %w", manifest.ID, err)
	}
	return entries, nil
}

// archiveEntries seals one policy's expired entries into a blob,
// persists the manifest and then tombstones the entries. The order
// matters: the manifest goes durable before any entry disappears, so a
// crash mid-archive loses nothing.
func (en *Engine) archiveEntries(ctx context.Context, policy *audit.RetentionPolicy, entries []*audit.Entry) (string, int, error) {
	if len(entries) == 0 {
		return "", 0, nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SequenceNum < entries[j].SequenceNum })
	first, last := entries[0], entries[len(entries)-1]

	blob, checksum, err := en.sealArchive(entries)
	if err != nil {
		return "", 0, err
	}

	archiveID := uuid.New().String()
	location, err := en.blobs.Put(ctx, archiveID, blob)
	if err != nil {
		return "", 0, fmt.Errorf("failed to store archive blob: %w", err)
	}

	manifest := &audit.Archive{
		ID:               archiveID,
		CreatedAt:        time.Now().UTC(),
		PolicyID:         policy.ID,
		EntryCount:       len(entries),
		FromSequence:     first.SequenceNum,
		ToSequence:       last.SequenceNum,
		BoundaryPrevHash: first.PreviousHash,
		BoundaryLastHash: last.CurrentHash,
		Location:         location,
		CompressedSize:   int64(len(blob)),
		Checksum:         checksum,
		Encrypted:        en.cfg.EncryptArchives,
	}
	if err := en.trail.Store().SaveArchive(ctx, manifest); err != nil {
		// Orphaned blob; the manifest never existed, so the entries
		// stay live and the next run retries.
		if delErr := en.blobs.Delete(ctx, location); delErr != nil {
			en.logger.Warn("failed to clean up orphaned archive blob",
				logging.Error(delErr),
				logging.ArchiveID(archiveID),
			)
		}
		return "", 0, fmt.Errorf("failed to persist archive manifest: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if _, err := en.trail.Remove(ctx, e.SequenceNum, audit.DispositionArchived, archiveID, policy.ID); err != nil {
			en.logger.Warn("failed to tombstone archived entry",
				logging.Error(err),
				logging.Sequence(e.SequenceNum),
			)
			continue
		}
		removed++
	}

	en.metrics.RecordArchiveBlob(len(blob))
	en.logger.Info("sealed archive",
		logging.ArchiveID(archiveID),
		logging.PolicyID(policy.ID),
		logging.Count(removed),
		logging.Int("blob_bytes", len(blob)),
	)
	return archiveID, removed, nil
}

// Restore brings an archive's entries back into the live trail. The
// blob is checksummed, the boundary hashes must match the manifest,
// and every entry must verify before anything is reinserted.
func (en *Engine) Restore(ctx context.Context, sc *security.SecurityContext, archiveID string) (int, error) {
	if err := sc.Require(security.CapManageRetention); err != nil {
		en.metrics.RecordUnauthorized("retention.restore")
		return 0, err
	}

	manifest, err := en.findArchive(ctx, archiveID)
	if err != nil {
		return 0, err
	}
	blob, err := en.blobs.Get(ctx, manifest.Location)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch archive blob: %w", err)
	}
	entries, err := en.openArchive(manifest, blob)
	if err != nil {
		return 0, err
	}

	if len(entries) != manifest.EntryCount {
		return 0, fmt.Errorf("archive %s holds %d entries, manifest says %d", archiveID, len(entries), manifest.EntryCount)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SequenceNum < entries[j].SequenceNum })
	first, last := entries[0], entries[len(entries)-1]
	if first.PreviousHash != manifest.BoundaryPrevHash || last.CurrentHash != manifest.BoundaryLastHash {
		return 0, fmt.Errorf("archive %s boundary hashes do not match the manifest", archiveID)
	}

	if err := en.trail.RestoreEntries(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to restore entries: %w", err)
	}

	en.trail.RecordSystem(
		audit.New(sc.Actor(), audit.ActionArchive, "audit-archive", archiveID).
			WithDescription("restored %d entries (sequences %d..%d) from archive",
				len(entries), first.SequenceNum, last.SequenceNum),
	)
	en.logger.Info("restored archive",
		logging.ArchiveID(archiveID),
		logging.Count(len(entries)),
	)
	return len(entries), nil
}

func (en *Engine) findArchive(ctx context.Context, archiveID string) (*audit.Archive, error) {
	archives, err := en.trail.Store().LoadArchives(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range archives {
		if a.ID == archiveID {
			return a, nil
		}
	}
	return nil, storage.ErrArchiveNotFound
}
