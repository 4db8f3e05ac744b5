// Package hashchain assigns sequence numbers and chained SHA-256
// hashes to audit entries, and verifies chains after the fact. All
// chaining goes through a single Manager whose mutex serializes the
// (lastHash, lastSeq, lastTimestamp) state, so concurrent producers
// always observe a consistent tail.
package hashchain

import (
	"sync"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// GenesisHash is the previous_hash of the first entry in a trail.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Manager owns the chain tail. Exactly one Manager exists per trail.
type Manager struct {
	mu       sync.Mutex
	lastHash string
	lastSeq  uint64
	lastTS   time.Time

	now func() time.Time
}

// NewManager returns a Manager positioned at the genesis state.
func NewManager() *Manager {
	return &Manager{
		lastHash: GenesisHash,
		now:      time.Now,
	}
}

// Chain assigns the next sequence number, a monotonic timestamp, the
// previous hash and the computed current hash to the entry, then
// advances the tail. The entry must not already be chained.
func (m *Manager) Chain(e *audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainLocked(e)
}

// ChainBatch chains all entries under one lock acquisition so the
// batch occupies a contiguous sequence range.
func (m *Manager) ChainBatch(entries []*audit.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.chainLocked(e)
	}
}

func (m *Manager) chainLocked(e *audit.Entry) {
	ts := m.now().UTC()
	if !ts.After(m.lastTS) {
		ts = m.lastTS.Add(time.Nanosecond)
	}

	e.SequenceNum = m.lastSeq + 1
	e.Timestamp = ts
	e.PreviousHash = m.lastHash
	e.CurrentHash = ComputeHash(e)

	m.lastSeq = e.SequenceNum
	m.lastTS = ts
	m.lastHash = e.CurrentHash
}

// Snapshot returns the current tail state.
func (m *Manager) Snapshot() (lastHash string, lastSeq uint64, lastTS time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHash, m.lastSeq, m.lastTS
}

// Restore positions the tail at a recovered state. Used once at
// startup after replaying persisted entries; an empty hash restores
// the genesis state.
func (m *Manager) Restore(lastHash string, lastSeq uint64, lastTS time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lastHash == "" {
		lastHash = GenesisHash
	}
	m.lastHash = lastHash
	m.lastSeq = lastSeq
	m.lastTS = lastTS
}
