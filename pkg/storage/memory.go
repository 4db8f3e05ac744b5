package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

// MemoryStore keeps everything in maps. Used by tests and by
// deployments that accept losing the trail on restart (the chain is
// still verifiable within a run).
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*audit.Entry
	tombstones map[uint64]audit.Tombstone
	policies   map[string]*audit.RetentionPolicy
	archives   map[string]*audit.Archive
	closed     bool

	// FailAppends makes AppendEntries fail while set. Tests use it to
	// exercise the scheduler's retry path.
	FailAppends bool
	appendErr   error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*audit.Entry),
		tombstones: make(map[uint64]audit.Tombstone),
		policies:   make(map[string]*audit.RetentionPolicy),
		archives:   make(map[string]*audit.Archive),
	}
}

// SetAppendError arms or clears an injected append failure.
func (s *MemoryStore) SetAppendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
	s.FailAppends = err != nil
}

// AppendEntries upserts the batch by entry ID.
func (s *MemoryStore) AppendEntries(ctx context.Context, entries []*audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("AppendEntries", "entry", "", ErrStoreClosed)
	}
	if s.FailAppends {
		return opErr("AppendEntries", "entry", "", s.appendErr)
	}
	for _, e := range entries {
		s.entries[e.ID] = e.Clone()
	}
	return nil
}

// LoadEntries returns live entries sorted by sequence.
func (s *MemoryStore) LoadEntries(ctx context.Context) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, opErr("LoadEntries", "entry", "", ErrStoreClosed)
	}
	out := make([]*audit.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if _, gone := s.tombstones[e.SequenceNum]; gone {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out, nil
}

// RemoveEntries deletes the entries with the given sequence numbers.
func (s *MemoryStore) RemoveEntries(ctx context.Context, seqs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("RemoveEntries", "entry", "", ErrStoreClosed)
	}
	drop := make(map[uint64]struct{}, len(seqs))
	for _, seq := range seqs {
		drop[seq] = struct{}{}
	}
	for id, e := range s.entries {
		if _, gone := drop[e.SequenceNum]; gone {
			delete(s.entries, id)
		}
	}
	return nil
}

// SaveTombstones records tombstones keyed by sequence.
func (s *MemoryStore) SaveTombstones(ctx context.Context, tombstones []audit.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("SaveTombstones", "tombstone", "", ErrStoreClosed)
	}
	for _, t := range tombstones {
		s.tombstones[t.SequenceNum] = t
	}
	return nil
}

// LoadTombstones returns all tombstones sorted by sequence.
func (s *MemoryStore) LoadTombstones(ctx context.Context) ([]audit.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, opErr("LoadTombstones", "tombstone", "", ErrStoreClosed)
	}
	out := make([]audit.Tombstone, 0, len(s.tombstones))
	for _, t := range s.tombstones {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out, nil
}

// DeleteTombstones clears tombstones for restored entries.
func (s *MemoryStore) DeleteTombstones(ctx context.Context, seqs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("DeleteTombstones", "tombstone", "", ErrStoreClosed)
	}
	for _, seq := range seqs {
		delete(s.tombstones, seq)
	}
	return nil
}

// SavePolicy upserts a policy.
func (s *MemoryStore) SavePolicy(ctx context.Context, policy *audit.RetentionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("SavePolicy", "policy", policy.ID, ErrStoreClosed)
	}
	s.policies[policy.ID] = policy
	return nil
}

// DeletePolicy removes a policy.
func (s *MemoryStore) DeletePolicy(ctx context.Context, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("DeletePolicy", "policy", policyID, ErrStoreClosed)
	}
	if _, ok := s.policies[policyID]; !ok {
		return opErr("DeletePolicy", "policy", policyID, ErrPolicyNotFound)
	}
	delete(s.policies, policyID)
	return nil
}

// LoadPolicies returns all policies.
func (s *MemoryStore) LoadPolicies(ctx context.Context) ([]*audit.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, opErr("LoadPolicies", "policy", "", ErrStoreClosed)
	}
	out := make([]*audit.RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SaveArchive upserts an archive manifest.
func (s *MemoryStore) SaveArchive(ctx context.Context, archive *audit.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("SaveArchive", "archive", archive.ID, ErrStoreClosed)
	}
	s.archives[archive.ID] = archive
	return nil
}

// LoadArchives returns all archive manifests sorted by sequence range.
func (s *MemoryStore) LoadArchives(ctx context.Context) ([]*audit.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, opErr("LoadArchives", "archive", "", ErrStoreClosed)
	}
	out := make([]*audit.Archive, 0, len(s.archives))
	for _, a := range s.archives {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FromSequence < out[j].FromSequence })
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MemoryArchiveStore keeps blobs in a map, for tests.
type MemoryArchiveStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryArchiveStore returns an empty blob store.
func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{blobs: make(map[string][]byte)}
}

// Put stores a blob under mem://<archiveID>.
func (s *MemoryArchiveStore) Put(ctx context.Context, archiveID string, blob []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	location := "mem://" + archiveID
	s.blobs[location] = append([]byte(nil), blob...)
	return location, nil
}

// Get returns a stored blob.
func (s *MemoryArchiveStore) Get(ctx context.Context, location string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[location]
	if !ok {
		return nil, opErr("Get", "archive blob", location, ErrArchiveNotFound)
	}
	return append([]byte(nil), blob...), nil
}

// Delete removes a blob.
func (s *MemoryArchiveStore) Delete(ctx context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, location)
	return nil
}
