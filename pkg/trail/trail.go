// Package trail is the ingestion pipeline: it validates drafts, chains
// them through the hash chain manager, keeps the live index and hands
// chained entries to a background persistence scheduler. Once Record
// returns, the entry is chained and queryable; durability follows
// asynchronously.
package trail

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/hashchain"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/metrics"
	"github.com/dd0wney/cluso-audit/pkg/pubsub"
	"github.com/dd0wney/cluso-audit/pkg/storage"
	"github.com/dd0wney/cluso-audit/pkg/validation"
)

// ErrTrailClosed is returned by Record after Close.
var ErrTrailClosed = errors.New("trail is closed")

// Config tunes the persistence scheduler.
type Config struct {
	// FlushInterval is how often the scheduler drains the queue.
	FlushInterval time.Duration `yaml:"flush_interval"`
	// BatchSize is the maximum entries per durable write.
	BatchSize int `yaml:"batch_size"`
	// WriteTimeout bounds one storage write; a timeout requeues the
	// batch.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval: 5 * time.Second,
		BatchSize:     256,
		WriteTimeout:  30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.NewConfigValidator("trail").
		Positive("batch_size", c.BatchSize).
		MinDuration("flush_interval", c.FlushInterval, 10*time.Millisecond).
		MinDuration("write_timeout", c.WriteTimeout, 100*time.Millisecond).
		Validate()
}

// normalize clamps zero values to defaults so an empty Config works.
func (c *Config) normalize() {
	def := DefaultConfig()
	c.FlushInterval = validation.DefaultOrDuration(c.FlushInterval, def.FlushInterval)
	c.BatchSize = validation.DefaultOrInt(c.BatchSize, def.BatchSize)
	c.WriteTimeout = validation.DefaultOrDuration(c.WriteTimeout, def.WriteTimeout)
}

// Deps are the trail's collaborators. Store is required; the rest are
// optional (nil logger means the default logger, nil metrics and
// events are no-ops).
type Deps struct {
	Store   storage.Store
	Logger  logging.Logger
	Metrics *metrics.Registry
	Events  *pubsub.PubSub
}

// Trail owns the hash chain, the live index and the persistence
// scheduler.
type Trail struct {
	chain   *hashchain.Manager
	index   *Index
	sched   *scheduler
	store   storage.Store
	logger  logging.Logger
	metrics *metrics.Registry
	events  *pubsub.PubSub

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// LifecycleEvent is published on pubsub.TopicLifecycle.
type LifecycleEvent struct {
	Event     string    `json:"event"`
	LastSeq   uint64    `json:"last_seq"`
	Recovered int       `json:"recovered,omitempty"`
	At        time.Time `json:"at"`
}

// New recovers persisted state from the store, restores the chain tail
// and starts the persistence scheduler.
func New(cfg Config, deps Deps) (*Trail, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("trail requires a store")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	logger = logger.With(logging.Component("trail"))

	t := &Trail{
		chain:   hashchain.NewManager(),
		index:   NewIndex(),
		store:   deps.Store,
		logger:  logger,
		metrics: deps.Metrics,
		events:  deps.Events,
	}

	recovered, err := t.recover(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to recover trail: %w", err)
	}

	t.sched = newScheduler(deps.Store, logger, deps.Metrics, cfg.FlushInterval, cfg.BatchSize, cfg.WriteTimeout)

	_, lastSeq, _ := t.chain.Snapshot()
	logger.Info("trail started",
		logging.Int("recovered_entries", recovered),
		logging.Sequence(lastSeq),
	)
	t.publish(pubsub.TopicLifecycle, LifecycleEvent{
		Event: "started", LastSeq: lastSeq, Recovered: recovered, At: time.Now().UTC(),
	})
	return t, nil
}

// recover reloads entries and tombstones, rebuilds the index and
// positions the chain tail after the highest known sequence. The
// recovered tail is verified; violations are logged and published but
// do not block startup — they are data for the compliance surface.
func (t *Trail) recover(ctx context.Context) (int, error) {
	entries, err := t.store.LoadEntries(ctx)
	if err != nil {
		return 0, err
	}
	tombstones, err := t.store.LoadTombstones(ctx)
	if err != nil {
		return 0, err
	}

	t.index.InsertBatch(entries)
	var (
		lastSeq  uint64
		lastHash string
		lastTS   time.Time
	)
	for _, tomb := range tombstones {
		t.index.PutTombstone(tomb)
		if tomb.SequenceNum > lastSeq {
			lastSeq = tomb.SequenceNum
			lastHash = tomb.CurrentHash
		}
	}
	for _, e := range entries {
		if e.SequenceNum > lastSeq {
			lastSeq = e.SequenceNum
			lastHash = e.CurrentHash
		}
		if e.Timestamp.After(lastTS) {
			lastTS = e.Timestamp
		}
	}
	t.chain.Restore(lastHash, lastSeq, lastTS)

	if len(entries) > 0 || len(tombstones) > 0 {
		report := hashchain.VerifyChain(entries, t.index.Tombstones())
		if !report.Intact() {
			tampered := report.TamperedSequences()
			t.metrics.RecordIntegrityViolations(len(tampered))
			t.logger.Error("recovered trail failed verification",
				logging.Int("tampered_sequences", len(tampered)),
			)
			t.publish(pubsub.TopicIntegrity, report)
		}
	}
	return len(entries), nil
}

// Record validates, chains and indexes a draft, then queues it for
// persistence. On return the entry is queryable and tamper-evident.
func (t *Trail) Record(ctx context.Context, draft *audit.Entry) (*audit.Entry, error) {
	if t.closed.Load() {
		return nil, ErrTrailClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := draft.Validate(); err != nil {
		t.metrics.RecordRejected("validation")
		return nil, fmt.Errorf("invalid audit entry: %w", err)
	}
	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}

	start := time.Now()
	t.chain.Chain(draft)
	chainTime := time.Since(start)

	t.index.Insert(draft)
	t.sched.enqueue(draft)

	t.metrics.RecordIngest(string(draft.Action), chainTime, draft.SequenceNum, t.index.Len())
	return draft, nil
}

// RecordBatch records a parent entry plus its children as one
// contiguous sequence range. All drafts are validated up front; the
// children share a generated correlation ID and link to the parent.
func (t *Trail) RecordBatch(ctx context.Context, parent *audit.Entry, children []*audit.Entry) (*audit.Entry, error) {
	if t.closed.Load() {
		return nil, ErrTrailClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := parent.Validate(); err != nil {
		t.metrics.RecordRejected("validation")
		return nil, fmt.Errorf("invalid parent entry: %w", err)
	}
	for i, c := range children {
		if err := c.Validate(); err != nil {
			t.metrics.RecordRejected("validation")
			return nil, fmt.Errorf("invalid child entry %d: %w", i, err)
		}
	}

	correlationID := parent.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
		parent.CorrelationID = correlationID
	}
	if parent.ID == "" {
		parent.ID = uuid.New().String()
	}
	batch := make([]*audit.Entry, 0, len(children)+1)
	batch = append(batch, parent)
	for _, c := range children {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		c.CorrelationID = correlationID
		c.ParentID = parent.ID
		batch = append(batch, c)
	}

	start := time.Now()
	t.chain.ChainBatch(batch)
	chainTime := time.Since(start)

	t.index.InsertBatch(batch)
	t.sched.enqueue(batch...)

	for _, e := range batch {
		t.metrics.RecordIngest(string(e.Action), chainTime/time.Duration(len(batch)), e.SequenceNum, t.index.Len())
	}
	return parent, nil
}

// RecordSystem records an engine-generated entry (search logs,
// retention run summaries). Failures are logged, never surfaced: the
// caller's operation already succeeded.
func (t *Trail) RecordSystem(draft *audit.Entry) {
	draft.SystemGenerated = true
	if _, err := t.Record(context.Background(), draft); err != nil && !errors.Is(err, ErrTrailClosed) {
		t.logger.Warn("failed to record system entry",
			logging.Error(err),
			logging.String("action", string(draft.Action)),
		)
	}
}

// Remove drops a live entry, records its tombstone and removes it from
// storage. The sequence number stays reserved forever.
func (t *Trail) Remove(ctx context.Context, seq uint64, disposition audit.Disposition, archiveID, policyID string) (*audit.Entry, error) {
	e := t.index.BySequence(seq)
	if e == nil {
		return nil, storage.ErrEntryNotFound
	}
	tomb := audit.Tombstone{
		SequenceNum:  seq,
		PreviousHash: e.PreviousHash,
		CurrentHash:  e.CurrentHash,
		Disposition:  disposition,
		ArchiveID:    archiveID,
		PolicyID:     policyID,
		RemovedAt:    time.Now().UTC(),
	}
	// Tombstone goes durable before the entry leaves the index: a
	// crash in between leaves a hidden-but-present entry, not a gap.
	if err := t.store.SaveTombstones(ctx, []audit.Tombstone{tomb}); err != nil {
		return nil, fmt.Errorf("failed to persist tombstone: %w", err)
	}
	removed := t.index.Remove(seq, tomb)
	if removed == nil {
		return nil, storage.ErrEntryNotFound
	}
	if err := t.store.RemoveEntries(ctx, []uint64{seq}); err != nil {
		// The tombstone already hides the entry from loads; log and
		// carry on.
		t.logger.Warn("failed to remove entry from storage",
			logging.Error(err),
			logging.Sequence(seq),
		)
	}
	t.metrics.SetQueueDepth(t.sched.depth())
	return removed, nil
}

// Replace swaps a rewritten entry (anonymization) into the index and
// queues it for persistence.
func (t *Trail) Replace(ctx context.Context, e *audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.index.Replace(e) {
		return storage.ErrEntryNotFound
	}
	t.sched.enqueue(e)
	return nil
}

// RestoreEntries reinserts archived entries and clears their
// tombstones. Entries are re-persisted through the scheduler.
func (t *Trail) RestoreEntries(ctx context.Context, entries []*audit.Entry) error {
	seqs := make([]uint64, len(entries))
	for i, e := range entries {
		seqs[i] = e.SequenceNum
	}
	if err := t.store.DeleteTombstones(ctx, seqs); err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}
	t.index.Restore(entries)
	t.sched.enqueue(entries...)
	return nil
}

// Index exposes the live index to the query and retention engines.
func (t *Trail) Index() *Index {
	return t.index
}

// Store exposes the durable store to the retention engine.
func (t *Trail) Store() storage.Store {
	return t.store
}

// ChainSnapshot returns the chain tail.
func (t *Trail) ChainSnapshot() (lastHash string, lastSeq uint64, lastTS time.Time) {
	return t.chain.Snapshot()
}

// Verify runs chain verification over the whole live trail.
func (t *Trail) Verify() *hashchain.Report {
	report := hashchain.VerifyChain(t.index.Snapshot(), t.index.Tombstones())
	if !report.Intact() {
		t.metrics.RecordIntegrityViolations(len(report.TamperedSequences()))
		t.publish(pubsub.TopicIntegrity, report)
	}
	return report
}

// Flush triggers an immediate persistence cycle and waits for the
// queue to settle. Intended for tests and the CLI.
func (t *Trail) Flush() {
	for i := 0; i < 2 && t.sched.depth() > 0; i++ {
		t.sched.flushOnce()
	}
}

// PendingCount returns the persistence queue depth.
func (t *Trail) PendingCount() int {
	return t.sched.depth()
}

// Close stops intake, drains the queue and closes the store. Safe to
// call more than once.
func (t *Trail) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		t.sched.stop()
		_, lastSeq, _ := t.chain.Snapshot()
		t.publish(pubsub.TopicLifecycle, LifecycleEvent{
			Event: "stopped", LastSeq: lastSeq, At: time.Now().UTC(),
		})
		t.closeErr = t.store.Close()
		t.logger.Info("trail stopped", logging.Sequence(lastSeq))
	})
	return t.closeErr
}

func (t *Trail) publish(topic string, msg any) {
	if t.events != nil {
		t.events.Publish(topic, msg)
	}
}
