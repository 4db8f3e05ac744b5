package hashchain

import (
	"testing"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

func draft(actor string, n int) *audit.Entry {
	return audit.New(actor, audit.ActionUpdate, "customer", "c-1").
		WithDescription("change %d", n).
		WithChange("name", "old", "new").
		WithSensitiveChange("ssn", "111-22-3333", "444-55-6666")
}

func chainN(t *testing.T, m *Manager, n int) []*audit.Entry {
	t.Helper()
	entries := make([]*audit.Entry, 0, n)
	for i := 0; i < n; i++ {
		e := draft("alice", i)
		m.Chain(e)
		entries = append(entries, e)
	}
	return entries
}

func TestChainAssignsSequenceAndHashes(t *testing.T) {
	m := NewManager()
	entries := chainN(t, m, 3)

	for i, e := range entries {
		want := uint64(i + 1)
		if e.SequenceNum != want {
			t.Errorf("entry %d: sequence = %d, want %d", i, e.SequenceNum, want)
		}
		if !Verify(e) {
			t.Errorf("entry %d: does not verify", i)
		}
	}
	if entries[0].PreviousHash != GenesisHash {
		t.Errorf("first previous_hash = %s, want genesis", entries[0].PreviousHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PreviousHash != entries[i-1].CurrentHash {
			t.Errorf("entry %d does not link to predecessor", i)
		}
	}
	if len(entries[0].CurrentHash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(entries[0].CurrentHash))
	}
}

func TestChainTimestampsNeverDecrease(t *testing.T) {
	m := NewManager()
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return frozen }

	entries := chainN(t, m, 5)
	for i := 1; i < len(entries); i++ {
		if !entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Errorf("timestamp %d not after predecessor", i)
		}
	}
}

func TestChainBatchIsContiguous(t *testing.T) {
	m := NewManager()
	chainN(t, m, 2)

	batch := []*audit.Entry{draft("bob", 0), draft("bob", 1), draft("bob", 2)}
	m.ChainBatch(batch)

	for i, e := range batch {
		want := uint64(3 + i)
		if e.SequenceNum != want {
			t.Errorf("batch entry %d: sequence = %d, want %d", i, e.SequenceNum, want)
		}
		if !Verify(e) {
			t.Errorf("batch entry %d does not verify", i)
		}
	}
}

func TestVerifyDetectsCoveredFieldMutation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*audit.Entry)
	}{
		{"description", func(e *audit.Entry) { e.Description = "rewritten" }},
		{"action", func(e *audit.Entry) { e.Action = audit.ActionDelete }},
		{"entity id", func(e *audit.Entry) { e.EntityID = "c-2" }},
		{"success flag", func(e *audit.Entry) { e.Success = !e.Success }},
		{"sequence", func(e *audit.Entry) { e.SequenceNum++ }},
		{"timestamp", func(e *audit.Entry) { e.Timestamp = e.Timestamp.Add(time.Minute) }},
		{"actor identity", func(e *audit.Entry) { e.ActorID = "mallory" }},
		{"plain change value", func(e *audit.Entry) { e.Changes[0].NewValue = "forged" }},
		{"change path", func(e *audit.Entry) { e.Changes[1].FieldPath = "other" }},
		{"previous hash", func(e *audit.Entry) { e.PreviousHash = GenesisHash[:63] + "1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			e := draft("alice", 0)
			m.Chain(e)
			if !Verify(e) {
				t.Fatal("entry should verify before mutation")
			}
			tt.mutate(e)
			if Verify(e) {
				t.Error("mutation was not detected")
			}
		})
	}
}

func TestVerifyIgnoresAnonymizableFields(t *testing.T) {
	m := NewManager()
	e := draft("alice", 0)
	e.WithActor("Alice", "alice@example.com", "admin").
		WithSession("sess-1", "10.0.0.1", "cli/1.0").
		WithMetadata("request_id", "r-1")
	m.Chain(e)

	// The sanctioned anonymization rewrites.
	e.ActorID = AnonymizedAlias(e.ActorID)
	e.ActorName = ""
	e.ActorEmail = ""
	e.ActorRoles = nil
	e.ClientIP = ""
	e.UserAgent = ""
	e.Metadata = nil
	e.Changes[1].OldValue = "[REDACTED]"
	e.Changes[1].NewValue = "[REDACTED]"
	e.Anonymized = true

	if !Verify(e) {
		t.Error("anonymized entry should still verify")
	}
}

func TestActorDigestStableAcrossAlias(t *testing.T) {
	digest := ActorDigest("alice")
	alias := AnonymizedAlias("alice")

	if ActorDigest(alias) != digest {
		t.Error("digest of alias differs from digest of original")
	}
	if AnonymizedAlias(alias) != alias {
		t.Error("alias should be a fixed point")
	}
	if !IsAnonymized(alias) {
		t.Error("alias should report as anonymized")
	}
	if IsAnonymized("alice") {
		t.Error("raw id should not report as anonymized")
	}
	if len(digest) != 16 {
		t.Errorf("digest length = %d, want 16", len(digest))
	}
}

func TestHashIndependentOfChangeOrder(t *testing.T) {
	a := audit.New("alice", audit.ActionUpdate, "customer", "c-1").
		WithChange("beta", "1", "2").
		WithChange("alpha", "3", "4")
	b := audit.New("alice", audit.ActionUpdate, "customer", "c-1").
		WithChange("alpha", "3", "4").
		WithChange("beta", "1", "2")
	b.ID = a.ID

	a.SequenceNum, b.SequenceNum = 7, 7
	ts := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
	a.Timestamp, b.Timestamp = ts, ts
	a.PreviousHash, b.PreviousHash = GenesisHash, GenesisHash

	if ComputeHash(a) != ComputeHash(b) {
		t.Error("hash depends on change record order")
	}
}

func TestSnapshotRestore(t *testing.T) {
	m := NewManager()
	entries := chainN(t, m, 4)

	hash, seq, ts := m.Snapshot()
	if hash != entries[3].CurrentHash || seq != 4 || !ts.Equal(entries[3].Timestamp) {
		t.Fatal("snapshot does not match chain tail")
	}

	recovered := NewManager()
	recovered.Restore(hash, seq, ts)
	next := draft("alice", 4)
	recovered.Chain(next)

	if next.SequenceNum != 5 {
		t.Errorf("sequence after restore = %d, want 5", next.SequenceNum)
	}
	if next.PreviousHash != entries[3].CurrentHash {
		t.Error("restored chain does not link to recovered tail")
	}
}

func TestRestoreEmptyHashMeansGenesis(t *testing.T) {
	m := NewManager()
	m.Restore("", 0, time.Time{})
	e := draft("alice", 0)
	m.Chain(e)
	if e.PreviousHash != GenesisHash {
		t.Error("empty restore should position at genesis")
	}
}

func TestVerifyNilAndUnchained(t *testing.T) {
	if Verify(nil) {
		t.Error("nil entry should not verify")
	}
	if Verify(draft("alice", 0)) {
		t.Error("unchained entry should not verify")
	}
}
