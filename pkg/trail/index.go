package trail

import (
	"sort"
	"sync"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// Index is the live in-memory view of the trail. Readers take
// snapshots under a read lock and never block ingestion for long;
// retention mutates by whole-pointer replacement so a concurrent
// reader sees an entry fully or not at all.
type Index struct {
	mu         sync.RWMutex
	byID       map[string]*audit.Entry
	bySeq      map[uint64]*audit.Entry
	tombstones map[uint64]audit.Tombstone
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byID:       make(map[string]*audit.Entry),
		bySeq:      make(map[uint64]*audit.Entry),
		tombstones: make(map[uint64]audit.Tombstone),
	}
}

// Insert adds a chained entry.
func (ix *Index) Insert(e *audit.Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byID[e.ID] = e
	ix.bySeq[e.SequenceNum] = e
}

// InsertBatch adds a batch under one lock acquisition.
func (ix *Index) InsertBatch(entries []*audit.Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range entries {
		ix.byID[e.ID] = e
		ix.bySeq[e.SequenceNum] = e
	}
}

// Get returns the entry with the given ID, or nil.
func (ix *Index) Get(id string) *audit.Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.byID[id]
}

// BySequence returns the live entry at a sequence number, or nil.
func (ix *Index) BySequence(seq uint64) *audit.Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.bySeq[seq]
}

// Replace swaps in a rewritten entry for the same ID and sequence.
// Used by anonymization; the pointer swap is what guarantees readers
// never see a half-rewritten entry.
func (ix *Index) Replace(e *audit.Entry) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.byID[e.ID]; !ok {
		return false
	}
	ix.byID[e.ID] = e
	ix.bySeq[e.SequenceNum] = e
	return true
}

// Remove drops an entry and records its tombstone atomically.
func (ix *Index) Remove(seq uint64, t audit.Tombstone) *audit.Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.bySeq[seq]
	if !ok {
		return nil
	}
	delete(ix.bySeq, seq)
	delete(ix.byID, e.ID)
	ix.tombstones[seq] = t
	return e
}

// Restore reinserts previously removed entries and clears their
// tombstones.
func (ix *Index) Restore(entries []*audit.Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, e := range entries {
		ix.byID[e.ID] = e
		ix.bySeq[e.SequenceNum] = e
		delete(ix.tombstones, e.SequenceNum)
	}
}

// PutTombstone records a tombstone loaded during recovery.
func (ix *Index) PutTombstone(t audit.Tombstone) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.tombstones[t.SequenceNum] = t
}

// Snapshot returns all live entries sorted by sequence. The slice is
// fresh; the entry pointers are shared and must be treated as
// immutable.
func (ix *Index) Snapshot() []*audit.Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*audit.Entry, 0, len(ix.bySeq))
	for _, e := range ix.bySeq {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out
}

// Tombstones returns a copy of the tombstone set.
func (ix *Index) Tombstones() map[uint64]audit.Tombstone {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[uint64]audit.Tombstone, len(ix.tombstones))
	for seq, t := range ix.tombstones {
		out[seq] = t
	}
	return out
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.bySeq)
}
