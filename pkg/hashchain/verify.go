package hashchain

import (
	"fmt"
	"sort"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// Reason classifies a chain violation.
type Reason string

const (
	ReasonContentMutated      Reason = "content_mutated"
	ReasonLinkBroken          Reason = "link_broken"
	ReasonSequenceGap         Reason = "sequence_gap"
	ReasonDuplicateSequence   Reason = "duplicate_sequence"
	ReasonTimestampRegression Reason = "timestamp_regression"
)

// Violation reports one offending sequence number.
type Violation struct {
	SequenceNum uint64 `json:"sequence_num"`
	Reason      Reason `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// Report is the outcome of verifying a chain window. Violations are
// data about the trail; verification itself never fails.
type Report struct {
	FromSequence   uint64      `json:"from_sequence"`
	ToSequence     uint64      `json:"to_sequence"`
	EntriesChecked int         `json:"entries_checked"`
	TombstonesSeen int         `json:"tombstones_seen"`
	Violations     []Violation `json:"violations,omitempty"`
	VerifiedAt     time.Time   `json:"verified_at"`
}

// Intact reports whether the window verified cleanly.
func (r *Report) Intact() bool {
	return len(r.Violations) == 0
}

// TamperedSequences returns the distinct offending sequence numbers in
// ascending order.
func (r *Report) TamperedSequences() []uint64 {
	seen := make(map[uint64]bool, len(r.Violations))
	var out []uint64
	for _, v := range r.Violations {
		if !seen[v.SequenceNum] {
			seen[v.SequenceNum] = true
			out = append(out, v.SequenceNum)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// chainItem is one position in the window: a live entry or a tombstone
// left by retention.
type chainItem struct {
	prevHash string
	currHash string
	entry    *audit.Entry
}

// VerifyChain checks a window of entries together with the tombstones
// of removed sequence numbers. It verifies per-entry content hashes,
// hash linkage between consecutive positions (flowing through
// tombstoned gaps), sequence continuity and timestamp monotonicity.
// A position that is neither live nor tombstoned is an unsanctioned
// gap. The window is whatever the input spans; an empty input yields
// an intact report.
func VerifyChain(entries []*audit.Entry, tombstones map[uint64]audit.Tombstone) *Report {
	report := &Report{VerifiedAt: time.Now().UTC()}
	if len(entries) == 0 && len(tombstones) == 0 {
		return report
	}

	items := make(map[uint64]chainItem, len(entries)+len(tombstones))
	lo, hi := uint64(0), uint64(0)

	track := func(seq uint64) {
		if lo == 0 || seq < lo {
			lo = seq
		}
		if seq > hi {
			hi = seq
		}
	}

	for _, e := range entries {
		if e == nil {
			continue
		}
		if prev, dup := items[e.SequenceNum]; dup && prev.entry != nil {
			report.Violations = append(report.Violations, Violation{
				SequenceNum: e.SequenceNum,
				Reason:      ReasonDuplicateSequence,
				Detail:      fmt.Sprintf("entries %s and %s share sequence %d", prev.entry.ID, e.ID, e.SequenceNum),
			})
			continue
		}
		items[e.SequenceNum] = chainItem{prevHash: e.PreviousHash, currHash: e.CurrentHash, entry: e}
		track(e.SequenceNum)
		report.EntriesChecked++
	}

	for seq, t := range tombstones {
		if _, live := items[seq]; live {
			// A live entry and a tombstone for the same sequence means
			// the entry was restored; the live entry wins.
			continue
		}
		items[seq] = chainItem{prevHash: t.PreviousHash, currHash: t.CurrentHash}
		track(seq)
		report.TombstonesSeen++
	}

	report.FromSequence = lo
	report.ToSequence = hi

	var (
		prevHashKnown bool
		prevHash      string
		prevEntryTS   time.Time
		havePrevTS    bool
	)

	for seq := lo; seq <= hi; seq++ {
		item, ok := items[seq]
		if !ok {
			report.Violations = append(report.Violations, Violation{
				SequenceNum: seq,
				Reason:      ReasonSequenceGap,
				Detail:      "no entry and no tombstone for this sequence",
			})
			prevHashKnown = false
			continue
		}

		if item.entry != nil && !Verify(item.entry) {
			report.Violations = append(report.Violations, Violation{
				SequenceNum: seq,
				Reason:      ReasonContentMutated,
				Detail:      "stored hash does not match recomputed hash",
			})
		}

		if seq == 1 && item.prevHash != GenesisHash {
			report.Violations = append(report.Violations, Violation{
				SequenceNum: seq,
				Reason:      ReasonLinkBroken,
				Detail:      "first entry does not link to the genesis hash",
			})
		} else if prevHashKnown && item.prevHash != prevHash {
			report.Violations = append(report.Violations, Violation{
				SequenceNum: seq,
				Reason:      ReasonLinkBroken,
				Detail:      fmt.Sprintf("previous_hash does not match hash of sequence %d", seq-1),
			})
		}

		if item.entry != nil {
			if havePrevTS && item.entry.Timestamp.Before(prevEntryTS) {
				report.Violations = append(report.Violations, Violation{
					SequenceNum: seq,
					Reason:      ReasonTimestampRegression,
					Detail:      "timestamp is earlier than a preceding entry",
				})
			}
			prevEntryTS = item.entry.Timestamp
			havePrevTS = true
		}

		prevHash = item.currHash
		prevHashKnown = true
	}

	return report
}
