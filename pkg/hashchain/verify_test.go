package hashchain

import (
	"testing"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

func builtChain(t *testing.T, n int) (*Manager, []*audit.Entry) {
	t.Helper()
	m := NewManager()
	return m, chainN(t, m, n)
}

func tombstoneFor(e *audit.Entry, d audit.Disposition) audit.Tombstone {
	return audit.Tombstone{
		SequenceNum:  e.SequenceNum,
		PreviousHash: e.PreviousHash,
		CurrentHash:  e.CurrentHash,
		Disposition:  d,
		RemovedAt:    time.Now().UTC(),
	}
}

func TestVerifyChainIntact(t *testing.T) {
	_, entries := builtChain(t, 10)
	report := VerifyChain(entries, nil)

	if !report.Intact() {
		t.Fatalf("expected intact chain, got violations: %+v", report.Violations)
	}
	if report.EntriesChecked != 10 {
		t.Errorf("entries checked = %d, want 10", report.EntriesChecked)
	}
	if report.FromSequence != 1 || report.ToSequence != 10 {
		t.Errorf("window = [%d, %d], want [1, 10]", report.FromSequence, report.ToSequence)
	}
}

func TestVerifyChainEmpty(t *testing.T) {
	report := VerifyChain(nil, nil)
	if !report.Intact() {
		t.Error("empty window should be intact")
	}
	if report.EntriesChecked != 0 {
		t.Errorf("entries checked = %d, want 0", report.EntriesChecked)
	}
}

func TestVerifyChainReportsMutatedEntry(t *testing.T) {
	_, entries := builtChain(t, 5)
	entries[2].Description = "rewritten after the fact"

	report := VerifyChain(entries, nil)
	if report.Intact() {
		t.Fatal("mutation not reported")
	}
	tampered := report.TamperedSequences()
	if len(tampered) != 1 || tampered[0] != 3 {
		t.Errorf("tampered sequences = %v, want [3]", tampered)
	}
	if report.Violations[0].Reason != ReasonContentMutated {
		t.Errorf("reason = %s, want %s", report.Violations[0].Reason, ReasonContentMutated)
	}
}

func TestVerifyChainReportsUnsanctionedGap(t *testing.T) {
	_, entries := builtChain(t, 5)
	// Entry 3 vanishes without a tombstone.
	window := []*audit.Entry{entries[0], entries[1], entries[3], entries[4]}

	report := VerifyChain(window, nil)
	if report.Intact() {
		t.Fatal("gap not reported")
	}
	var sawGap bool
	for _, v := range report.Violations {
		if v.Reason == ReasonSequenceGap && v.SequenceNum == 3 {
			sawGap = true
		}
	}
	if !sawGap {
		t.Errorf("expected sequence_gap at 3, got %+v", report.Violations)
	}
}

func TestVerifyChainAcceptsTombstonedGap(t *testing.T) {
	_, entries := builtChain(t, 5)
	window := []*audit.Entry{entries[0], entries[1], entries[3], entries[4]}
	tombs := map[uint64]audit.Tombstone{
		3: tombstoneFor(entries[2], audit.DispositionDeleted),
	}

	report := VerifyChain(window, tombs)
	if !report.Intact() {
		t.Fatalf("tombstoned gap should verify, got %+v", report.Violations)
	}
	if report.TombstonesSeen != 1 {
		t.Errorf("tombstones seen = %d, want 1", report.TombstonesSeen)
	}
}

func TestVerifyChainConsecutiveTombstones(t *testing.T) {
	_, entries := builtChain(t, 6)
	window := []*audit.Entry{entries[0], entries[4], entries[5]}
	tombs := map[uint64]audit.Tombstone{
		2: tombstoneFor(entries[1], audit.DispositionArchived),
		3: tombstoneFor(entries[2], audit.DispositionArchived),
		4: tombstoneFor(entries[3], audit.DispositionArchived),
	}

	report := VerifyChain(window, tombs)
	if !report.Intact() {
		t.Fatalf("run of tombstones should verify, got %+v", report.Violations)
	}
}

func TestVerifyChainReportsReordering(t *testing.T) {
	_, entries := builtChain(t, 4)
	// Swap the content of entries 2 and 3 wholesale, keeping their
	// claimed sequence numbers.
	entries[1].SequenceNum, entries[2].SequenceNum = entries[2].SequenceNum, entries[1].SequenceNum

	report := VerifyChain(entries, nil)
	if report.Intact() {
		t.Fatal("reordering not reported")
	}
}

func TestVerifyChainFirstEntryMustLinkGenesis(t *testing.T) {
	_, entries := builtChain(t, 2)
	entries[0].PreviousHash = entries[1].CurrentHash
	report := VerifyChain(entries[:1], nil)

	var sawLink bool
	for _, v := range report.Violations {
		if v.Reason == ReasonLinkBroken && v.SequenceNum == 1 {
			sawLink = true
		}
	}
	if !sawLink {
		t.Errorf("expected link_broken at 1, got %+v", report.Violations)
	}
}

func TestVerifyChainMidWindowStart(t *testing.T) {
	_, entries := builtChain(t, 8)
	// A window that starts mid-chain cannot check the first link but
	// everything inside must still verify.
	report := VerifyChain(entries[3:7], nil)
	if !report.Intact() {
		t.Fatalf("mid-chain window should be intact, got %+v", report.Violations)
	}
	if report.FromSequence != 4 || report.ToSequence != 7 {
		t.Errorf("window = [%d, %d], want [4, 7]", report.FromSequence, report.ToSequence)
	}
}

func TestVerifyChainDuplicateSequence(t *testing.T) {
	_, entries := builtChain(t, 3)
	forged := entries[1].Clone()
	forged.ID = "forged-id"
	window := append(entries, forged)

	report := VerifyChain(window, nil)
	var sawDup bool
	for _, v := range report.Violations {
		if v.Reason == ReasonDuplicateSequence && v.SequenceNum == 2 {
			sawDup = true
		}
	}
	if !sawDup {
		t.Errorf("expected duplicate_sequence at 2, got %+v", report.Violations)
	}
}

func TestVerifyChainTimestampRegression(t *testing.T) {
	_, entries := builtChain(t, 3)
	// Rebuild entry 3 with an earlier timestamp and a recomputed hash
	// so only the regression is reported.
	entries[2].Timestamp = entries[0].Timestamp.Add(-time.Hour)
	entries[2].CurrentHash = ComputeHash(entries[2])

	report := VerifyChain(entries, nil)
	var sawRegression bool
	for _, v := range report.Violations {
		if v.Reason == ReasonTimestampRegression && v.SequenceNum == 3 {
			sawRegression = true
		}
	}
	if !sawRegression {
		t.Errorf("expected timestamp_regression at 3, got %+v", report.Violations)
	}
}
