package trail

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-audit/pkg/audit"
	"github.com/dd0wney/cluso-audit/pkg/logging"
	"github.com/dd0wney/cluso-audit/pkg/metrics"
	"github.com/dd0wney/cluso-audit/pkg/storage"
)

// scheduler drains the pending queue to durable storage in batches.
// Callers never wait on it: Record returns as soon as the entry is
// chained and queued. A failed write leaves the batch at the head of
// the queue for the next cycle, so delivery is at-least-once and the
// store must upsert by entry ID.
type scheduler struct {
	store    storage.Store
	logger   logging.Logger
	metrics  *metrics.Registry
	interval time.Duration
	batch    int
	timeout  time.Duration

	mu       sync.Mutex
	pending  []*audit.Entry
	failures int

	stopCh    chan struct{}
	flushCh   chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newScheduler(store storage.Store, logger logging.Logger, reg *metrics.Registry, interval time.Duration, batchSize int, timeout time.Duration) *scheduler {
	s := &scheduler{
		store:    store,
		logger:   logger.With(logging.Component("persistence")),
		metrics:  reg,
		interval: interval,
		batch:    batchSize,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
		flushCh:  make(chan struct{}, 1),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// enqueue adds chained entries to the pending queue and nudges the
// flusher if a full batch is waiting.
func (s *scheduler) enqueue(entries ...*audit.Entry) {
	s.mu.Lock()
	s.pending = append(s.pending, entries...)
	depth := len(s.pending)
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)

	if depth >= s.batch {
		select {
		case s.flushCh <- struct{}{}:
		default:
		}
	}
}

// depth returns the current queue depth.
func (s *scheduler) depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			// Final synchronous drain: no queued entry is lost silently.
			s.drain()
			return
		case <-ticker.C:
			s.flushOnce()
		case <-s.flushCh:
			s.flushOnce()
		}
	}
}

// flushOnce writes one batch. On failure the batch stays at the head
// of the queue; the entries stay queryable in the live index either
// way, so integrity is decoupled from storage availability. The queue
// is re-read after the write: enqueue only ever appends, so the batch
// is still the head, and anything that arrived during the write sits
// behind it and must survive.
func (s *scheduler) flushOnce() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	n := len(s.pending)
	if n > s.batch {
		n = s.batch
	}
	batch := make([]*audit.Entry, n)
	copy(batch, s.pending)
	s.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.store.AppendEntries(ctx, batch)
	cancel()

	s.mu.Lock()
	if err != nil {
		// Leave the queue untouched: the batch is still its head and
		// gets retried next cycle.
		s.failures++
		failures := s.failures
		depth := len(s.pending)
		s.mu.Unlock()

		s.metrics.RecordFlush("failure", time.Since(start), 0, depth)
		s.metrics.RecordRetry()
		s.logger.Error("persistence flush failed, batch requeued",
			logging.Error(err),
			logging.Count(len(batch)),
			logging.Int("queue_depth", depth),
			logging.Int("consecutive_failures", failures),
		)
		return
	}
	// Drop the written head in place, keeping entries enqueued while
	// the write was in flight.
	m := copy(s.pending, s.pending[n:])
	s.pending = s.pending[:m]
	s.failures = 0
	depth := len(s.pending)
	s.mu.Unlock()

	s.metrics.RecordFlush("success", time.Since(start), len(batch), depth)
	s.logger.Debug("persisted batch",
		logging.Count(len(batch)),
		logging.Int("queue_depth", depth),
		logging.Latency(time.Since(start)),
	)
}

// drain flushes until the queue is empty or a write fails twice in a
// row, in which case the remaining entries are logged as unpersisted
// rather than silently dropped.
func (s *scheduler) drain() {
	attempts := 0
	for {
		before := s.depth()
		if before == 0 {
			return
		}
		s.flushOnce()
		after := s.depth()
		if after >= before {
			attempts++
			if attempts >= 2 {
				s.logger.Error("shutdown drain could not persist all entries",
					logging.Int("unpersisted", after),
				)
				return
			}
			continue
		}
		attempts = 0
	}
}

// stop shuts the flusher down after one final drain.
func (s *scheduler) stop() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
}
