package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/encryption"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/security"
	"github.com/dd0wney/cluso-audit/pkg/storage"
	"github.com/dd0wney/cluso-audit/pkg/trail"
)

func archivePolicy(days, priority int) *audit.RetentionPolicy {
	return &audit.RetentionPolicy{
		Name:          "archive-old",
		RetentionDays: days,
		Action:        audit.RetentionArchive,
		EntityKinds:   []string{"customer"},
		Enabled:       true,
		Priority:      priority,
	}
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	seedAged(t, store, 60*24*time.Hour, agedDrafts(6)...)
	en, tr := newEngineOver(t, store, Config{}, Deps{})
	ctx := context.Background()

	if err := en.SavePolicy(ctx, officer(), archivePolicy(30, 1)); err != nil {
		t.Fatal(err)
	}
	report, err := en.Run(ctx, officer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Archived != 6 {
		t.Fatalf("Archived = %d, want 6", report.Archived)
	}
	if len(report.Archives) != 1 {
		t.Fatalf("sealed %d archives, want 1", len(report.Archives))
	}
	archiveID := report.Archives[0]

	// Entries are gone from the live trail but the chain verifies
	// across the archived range.
	for seq := uint64(1); seq <= 6; seq++ {
		if tr.Index().BySequence(seq) != nil {
			t.Errorf("sequence %d still live after archival", seq)
		}
	}
	if verify := tr.Verify(); !verify.Intact() {
		t.Fatalf("chain broken after archival: %+v", verify.Violations)
	}

	// The manifest records the chain boundary.
	archives, err := en.Archives(ctx, officer())
	if err != nil {
		t.Fatalf("Archives: %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("got %d manifests, want 1", len(archives))
	}
	m := archives[0]
	if m.FromSequence != 1 || m.ToSequence != 6 || m.EntryCount != 6 {
		t.Errorf("manifest range = %d..%d (%d entries), want 1..6 (6)", m.FromSequence, m.ToSequence, m.EntryCount)
	}
	if m.BoundaryPrevHash == "" || m.BoundaryLastHash == "" {
		t.Error("manifest missing boundary hashes")
	}
	if m.Encrypted {
		t.Error("manifest flagged encrypted without an encryption engine")
	}

	// Restore brings the entries back and clears the tombstones.
	restored, err := en.Restore(ctx, officer(), archiveID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored != 6 {
		t.Errorf("restored %d entries, want 6", restored)
	}
	for seq := uint64(1); seq <= 6; seq++ {
		e := tr.Index().BySequence(seq)
		if e == nil {
			t.Fatalf("sequence %d not live after restore", seq)
		}
		if e.EntityKind != "customer" {
			t.Errorf("restored entry %d kind = %q", seq, e.EntityKind)
		}
	}
	if verify := tr.Verify(); !verify.Intact() {
		t.Fatalf("chain broken after restore: %+v", verify.Violations)
	}
}

func TestEncryptedArchiveRoundTrip(t *testing.T) {
	key, err := encryption.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	crypto, err := encryption.NewEngine(key)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	store := storage.NewMemoryStore()
	blobs := storage.NewMemoryArchiveStore()
	seedAged(t, store, 60*24*time.Hour, agedDrafts(3)...)
	en, tr := newEngineOver(t, store, Config{EncryptArchives: true}, Deps{
		Archive:    blobs,
		Encryption: crypto,
	})
	ctx := context.Background()

	if err := en.SavePolicy(ctx, officer(), archivePolicy(30, 1)); err != nil {
		t.Fatal(err)
	}
	report, err := en.Run(ctx, officer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Archived != 3 {
		t.Fatalf("Archived = %d, want 3", report.Archived)
	}

	archives, err := en.Archives(ctx, officer())
	if err != nil {
		t.Fatal(err)
	}
	if !archives[0].Encrypted {
		t.Error("manifest not flagged encrypted")
	}

	restored, err := en.Restore(ctx, officer(), report.Archives[0])
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored != 3 {
		t.Errorf("restored %d entries, want 3", restored)
	}
	if verify := tr.Verify(); !verify.Intact() {
		t.Fatalf("chain broken after encrypted round trip: %+v", verify.Violations)
	}
}

func TestRestoreDetectsCorruptBlob(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := storage.NewMemoryArchiveStore()
	seedAged(t, store, 60*24*time.Hour, agedDrafts(2)...)
	en, _ := newEngineOver(t, store, Config{}, Deps{Archive: blobs})
	ctx := context.Background()

	if err := en.SavePolicy(ctx, officer(), archivePolicy(30, 1)); err != nil {
		t.Fatal(err)
	}
	report, err := en.Run(ctx, officer())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Corrupt the stored blob.
	archives, err := en.Archives(ctx, officer())
	if err != nil {
		t.Fatal(err)
	}
	blob, err := blobs.Get(ctx, archives[0].Location)
	if err != nil {
		t.Fatal(err)
	}
	blob[len(blob)/2] ^= 0xff
	if _, err := blobs.Put(ctx, archives[0].ID, blob); err != nil {
		t.Fatal(err)
	}

	if _, err := en.Restore(ctx, officer(), report.Archives[0]); err == nil {
		t.Error("Restore accepted a corrupted blob")
	}
}

func TestRestoreUnknownArchive(t *testing.T) {
	en, _ := newEngineOver(t, storage.NewMemoryStore(), Config{}, Deps{})

	if _, err := en.Restore(context.Background(), officer(), "no-such-archive"); !errors.Is(err, storage.ErrArchiveNotFound) {
		t.Errorf("Restore = %v, want ErrArchiveNotFound", err)
	}
}

func TestRestoreRequiresManageCapability(t *testing.T) {
	en, _ := newEngineOver(t, storage.NewMemoryStore(), Config{}, Deps{})

	auditor := security.FromRoles("auditor-1", security.RoleAuditor)
	if _, err := en.Restore(context.Background(), auditor, "any"); !errors.Is(err, security.ErrUnauthorized) {
		t.Errorf("Restore = %v, want ErrUnauthorized", err)
	}
}

func TestEncryptedArchivesRequireEngine(t *testing.T) {
	tr, err := trail.New(trail.Config{}, trail.Deps{
		Store:  storage.NewMemoryStore(),
		Logger: logging.NewNopLogger(),
	})
	if err != nil {
		t.Fatalf("trail.New: %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	_, err = NewEngine(Config{EncryptArchives: true}, Deps{
		Trail:   tr,
		Archive: storage.NewMemoryArchiveStore(),
	})
	if err == nil {
		t.Error("NewEngine accepted encrypted archives without an encryption engine")
	}
}
