package storage

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
)

const (
	entryFilePrefix = "entries-"
	entryFileSuffix = ".jsonl"
	tombstoneFile   = "tombstones.jsonl"
	policyFile      = "policies.json"
	archiveIdxFile  = "archives.json"
)

// FileStore is an append-only JSONL store. Entries land in one file
// per UTC day (entries-2006-01-02.jsonl); a batch spanning days is
// split across its buckets. Every append ends with an fsync, so a
// batch acknowledged to the scheduler survives a crash. Older buckets
// may be gzip-compressed out of band; LoadEntries reads .gz buckets
// transparently.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// AppendEntries writes the batch to its day buckets. Re-delivered
// entries append a duplicate line; LoadEntries keeps the last line per
// entry ID, which also makes anonymization rewrites effective.
func (s *FileStore) AppendEntries(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("AppendEntries", "entry", "", ErrStoreClosed)
	}
	if err := ctx.Err(); err != nil {
		return opErr("AppendEntries", "entry", "", err)
	}

	buckets := make(map[string][]*audit.Entry)
	for _, e := range entries {
		name := entryFilePrefix + e.Timestamp.UTC().Format("2006-01-02") + entryFileSuffix
		buckets[name] = append(buckets[name], e)
	}

	for name, batch := range buckets {
		if err := s.appendJSONL(filepath.Join(s.dir, name), batch); err != nil {
			return opErr("AppendEntries", "entry", "", err)
		}
	}
	return nil
}

// appendJSONL appends one JSON document per line and syncs the file.
func (s *FileStore) appendJSONL(path string, docs []*audit.Entry) (retErr error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open bucket: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("failed to close bucket: %w", closeErr)
		}
	}()

	w := bufio.NewWriter(file)
	for _, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMarshalFailed, err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush bucket: %w", err)
	}
	return file.Sync()
}

// LoadEntries reads every bucket, keeps the last line per entry ID,
// drops tombstoned sequences and returns the rest sorted by sequence.
func (s *FileStore) LoadEntries(ctx context.Context) ([]*audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("LoadEntries", "entry", "", ErrStoreClosed)
	}

	tombstoned, err := s.loadTombstoneSet()
	if err != nil {
		return nil, opErr("LoadEntries", "tombstone", "", err)
	}

	files, err := s.entryFiles()
	if err != nil {
		return nil, opErr("LoadEntries", "entry", "", err)
	}

	byID := make(map[string]*audit.Entry)
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, opErr("LoadEntries", "entry", "", err)
		}
		if err := s.scanFile(name, func(line []byte) {
			var e audit.Entry
			if json.Unmarshal(line, &e) != nil {
				// Torn final line after a crash; the entry is still in
				// the scheduler's queue and will be re-appended.
				return
			}
			byID[e.ID] = &e
		}); err != nil {
			return nil, opErr("LoadEntries", "entry", name, err)
		}
	}

	out := make([]*audit.Entry, 0, len(byID))
	for _, e := range byID {
		if _, gone := tombstoned[e.SequenceNum]; gone {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out, nil
}

// RemoveEntries relies on tombstones: LoadEntries filters them out, so
// an append-only store needs no physical rewrite.
func (s *FileStore) RemoveEntries(ctx context.Context, seqs []uint64) error {
	return nil
}

// SaveTombstones appends tombstones to the tombstone log.
func (s *FileStore) SaveTombstones(ctx context.Context, tombstones []audit.Tombstone) (retErr error) {
	if len(tombstones) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("SaveTombstones", "tombstone", "", ErrStoreClosed)
	}

	file, err := os.OpenFile(filepath.Join(s.dir, tombstoneFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return opErr("SaveTombstones", "tombstone", "", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && retErr == nil {
			retErr = opErr("SaveTombstones", "tombstone", "", closeErr)
		}
	}()

	w := bufio.NewWriter(file)
	for _, t := range tombstones {
		data, err := json.Marshal(t)
		if err != nil {
			return opErr("SaveTombstones", "tombstone", "", fmt.Errorf("%w: %v", ErrMarshalFailed, err))
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return opErr("SaveTombstones", "tombstone", "", err)
		}
	}
	if err := w.Flush(); err != nil {
		return opErr("SaveTombstones", "tombstone", "", err)
	}
	return file.Sync()
}

// LoadTombstones returns all recorded tombstones sorted by sequence.
func (s *FileStore) LoadTombstones(ctx context.Context) ([]audit.Tombstone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("LoadTombstones", "tombstone", "", ErrStoreClosed)
	}

	var out []audit.Tombstone
	err := s.scanFile(tombstoneFile, func(line []byte) {
		var t audit.Tombstone
		if json.Unmarshal(line, &t) == nil {
			out = append(out, t)
		}
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, opErr("LoadTombstones", "tombstone", "", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceNum < out[j].SequenceNum })
	return out, nil
}

// DeleteTombstones rewrites the tombstone log without the given
// sequences. Called when archived entries are restored.
func (s *FileStore) DeleteTombstones(ctx context.Context, seqs []uint64) error {
	if len(seqs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("DeleteTombstones", "tombstone", "", ErrStoreClosed)
	}

	drop := make(map[uint64]struct{}, len(seqs))
	for _, seq := range seqs {
		drop[seq] = struct{}{}
	}

	var kept []audit.Tombstone
	err := s.scanFile(tombstoneFile, func(line []byte) {
		var t audit.Tombstone
		if json.Unmarshal(line, &t) != nil {
			return
		}
		if _, gone := drop[t.SequenceNum]; !gone {
			kept = append(kept, t)
		}
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return opErr("DeleteTombstones", "tombstone", "", err)
	}

	var buf strings.Builder
	for _, t := range kept {
		data, err := json.Marshal(t)
		if err != nil {
			return opErr("DeleteTombstones", "tombstone", "", fmt.Errorf("%w: %v", ErrMarshalFailed, err))
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if err := s.rewriteFile(tombstoneFile, []byte(buf.String())); err != nil {
		return opErr("DeleteTombstones", "tombstone", "", err)
	}
	return nil
}

// rewriteFile atomically replaces a file's contents.
func (s *FileStore) rewriteFile(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) loadTombstoneSet() (map[uint64]struct{}, error) {
	set := make(map[uint64]struct{})
	err := s.scanFile(tombstoneFile, func(line []byte) {
		var t audit.Tombstone
		if json.Unmarshal(line, &t) == nil {
			set[t.SequenceNum] = struct{}{}
		}
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return set, nil
}

// SavePolicy upserts a policy in the policy index file.
func (s *FileStore) SavePolicy(ctx context.Context, policy *audit.RetentionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("SavePolicy", "policy", policy.ID, ErrStoreClosed)
	}

	policies, err := s.readPolicies()
	if err != nil {
		return opErr("SavePolicy", "policy", policy.ID, err)
	}
	replaced := false
	for i, p := range policies {
		if p.ID == policy.ID {
			policies[i] = policy
			replaced = true
			break
		}
	}
	if !replaced {
		policies = append(policies, policy)
	}
	if err := s.writeIndexFile(policyFile, policies); err != nil {
		return opErr("SavePolicy", "policy", policy.ID, err)
	}
	return nil
}

// DeletePolicy removes a policy from the index file.
func (s *FileStore) DeletePolicy(ctx context.Context, policyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("DeletePolicy", "policy", policyID, ErrStoreClosed)
	}

	policies, err := s.readPolicies()
	if err != nil {
		return opErr("DeletePolicy", "policy", policyID, err)
	}
	kept := policies[:0]
	found := false
	for _, p := range policies {
		if p.ID == policyID {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return opErr("DeletePolicy", "policy", policyID, ErrPolicyNotFound)
	}
	if err := s.writeIndexFile(policyFile, kept); err != nil {
		return opErr("DeletePolicy", "policy", policyID, err)
	}
	return nil
}

// LoadPolicies returns all stored retention policies.
func (s *FileStore) LoadPolicies(ctx context.Context) ([]*audit.RetentionPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("LoadPolicies", "policy", "", ErrStoreClosed)
	}
	policies, err := s.readPolicies()
	if err != nil {
		return nil, opErr("LoadPolicies", "policy", "", err)
	}
	return policies, nil
}

func (s *FileStore) readPolicies() ([]*audit.RetentionPolicy, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, policyFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var policies []*audit.RetentionPolicy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("corrupt policy index: %w", err)
	}
	return policies, nil
}

// SaveArchive upserts an archive manifest in the archive index file.
func (s *FileStore) SaveArchive(ctx context.Context, archive *audit.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return opErr("SaveArchive", "archive", archive.ID, ErrStoreClosed)
	}

	archives, err := s.readArchives()
	if err != nil {
		return opErr("SaveArchive", "archive", archive.ID, err)
	}
	replaced := false
	for i, a := range archives {
		if a.ID == archive.ID {
			archives[i] = archive
			replaced = true
			break
		}
	}
	if !replaced {
		archives = append(archives, archive)
	}
	if err := s.writeIndexFile(archiveIdxFile, archives); err != nil {
		return opErr("SaveArchive", "archive", archive.ID, err)
	}
	return nil
}

// LoadArchives returns all archive manifests sorted by sequence range.
func (s *FileStore) LoadArchives(ctx context.Context) ([]*audit.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, opErr("LoadArchives", "archive", "", ErrStoreClosed)
	}
	archives, err := s.readArchives()
	if err != nil {
		return nil, opErr("LoadArchives", "archive", "", err)
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].FromSequence < archives[j].FromSequence })
	return archives, nil
}

func (s *FileStore) readArchives() ([]*audit.Archive, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, archiveIdxFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var archives []*audit.Archive
	if err := json.Unmarshal(data, &archives); err != nil {
		return nil, fmt.Errorf("corrupt archive index: %w", err)
	}
	return archives, nil
}

// writeIndexFile writes small index documents atomically: temp file,
// fsync, rename.
func (s *FileStore) writeIndexFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Close marks the store closed. Subsequent operations fail with
// ErrStoreClosed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// entryFiles returns the entry bucket filenames in lexical (= day)
// order.
func (s *FileStore) entryFiles() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, entryFilePrefix) &&
			(strings.HasSuffix(name, entryFileSuffix) || strings.HasSuffix(name, entryFileSuffix+".gz")) {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}

// scanFile streams a file line by line, decompressing .gz buckets.
func (s *FileStore) scanFile(name string, fn func(line []byte)) (retErr error) {
	file, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && retErr == nil {
			retErr = closeErr
		}
	}()

	var reader io.Reader = file
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		fn(scanner.Bytes())
	}
	return scanner.Err()
}

// FSArchiveStore keeps archive blobs as flat files next to the store.
type FSArchiveStore struct {
	dir string
}

// NewFSArchiveStore creates the blob directory if needed.
func NewFSArchiveStore(dir string) (*FSArchiveStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FSArchiveStore{dir: dir}, nil
}

// Put writes a blob and returns its location.
func (s *FSArchiveStore) Put(ctx context.Context, archiveID string, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("archive-%s-%s.bin", time.Now().UTC().Format("2006-01-02"), archiveID)
	path := filepath.Join(s.dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create archive blob: %w", err)
	}
	if _, err := file.Write(blob); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write archive blob: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to sync archive blob: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close archive blob: %w", err)
	}
	return path, nil
}

// Get reads a blob back.
func (s *FSArchiveStore) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, opErr("Get", "archive blob", location, ErrArchiveNotFound)
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a blob.
func (s *FSArchiveStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
