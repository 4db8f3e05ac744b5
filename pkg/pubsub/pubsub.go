// Package pubsub fans engine events out to in-process subscribers.
// The trail publishes lifecycle and integrity events and the retention
// engine publishes run reports; operational tooling subscribes.
// Delivery is best-effort: a subscriber that falls behind its buffer
// misses messages rather than blocking the publisher.
package pubsub

import (
	"context"
	"errors"
	"sync"
)

// Topics published by the audit engine. Subscribers type-assert the
// payload documented per topic.
const (
	// TopicLifecycle carries trail LifecycleEvent values on engine
	// start and close.
	TopicLifecycle = "audit.lifecycle"

	// TopicRetentionRun carries retention RunReport values after every
	// sweep.
	TopicRetentionRun = "audit.retention.run"

	// TopicIntegrity carries hashchain Report values whenever a
	// verification finds violations.
	TopicIntegrity = "audit.integrity"
)

// ErrShutdown is returned by Subscribe after Shutdown.
var ErrShutdown = errors.New("pubsub: shut down")

// subscriptionBuffer is the per-subscriber channel depth. Publish
// drops on a full buffer.
const subscriptionBuffer = 100

// PubSub routes published events to topic subscribers. The zero value
// is not usable; construct with NewPubSub.
type PubSub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscription]struct{}
	shutdown    chan struct{}
	closed      bool
}

// Subscription is one subscriber's feed for a single topic.
type Subscription struct {
	topic     string
	ch        chan any
	ps        *PubSub
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPubSub returns an empty event bus.
func NewPubSub() *PubSub {
	return &PubSub{
		subscribers: make(map[string]map[*Subscription]struct{}),
		shutdown:    make(chan struct{}),
	}
}

// Subscribe registers a new subscriber for a topic. Cancelling the
// context unsubscribes and closes the feed.
func (ps *PubSub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:  topic,
		ch:     make(chan any, subscriptionBuffer),
		ps:     ps,
		cancel: cancel,
	}

	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		cancel()
		return nil, ErrShutdown
	}
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription]struct{})
	}
	ps.subscribers[topic][sub] = struct{}{}
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			sub.close()
		}
	}()

	return sub, nil
}

// Publish delivers an event to every subscriber of the topic. Sends
// never block: a full subscriber buffer drops the event for that
// subscriber only.
func (ps *PubSub) Publish(topic string, event any) {
	ps.mu.RLock()
	if ps.closed || len(ps.subscribers[topic]) == 0 {
		ps.mu.RUnlock()
		return
	}
	// Snapshot under the lock; the sends happen outside it so a slow
	// subscriber cannot stall Unsubscribe.
	subs := make([]*Subscription, 0, len(ps.subscribers[topic]))
	for sub := range ps.subscribers[topic] {
		subs = append(subs, sub)
	}
	ps.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// SubscriberCount reports how many subscribers a topic has.
func (ps *PubSub) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes every subscription feed. Publish becomes a no-op and
// Subscribe fails afterwards. Idempotent.
func (ps *PubSub) Shutdown() {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return
	}
	ps.closed = true
	close(ps.shutdown)
	for topic, subs := range ps.subscribers {
		for sub := range subs {
			sub.close()
		}
		delete(ps.subscribers, topic)
	}
	ps.mu.Unlock()
}

// Channel is the subscriber's event feed. It is closed by Unsubscribe,
// context cancellation or Shutdown.
func (s *Subscription) Channel() <-chan any {
	return s.ch
}

// Unsubscribe removes the subscription and closes its feed.
func (s *Subscription) Unsubscribe() {
	s.cancel()

	s.ps.mu.Lock()
	if subs := s.ps.subscribers[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}
	s.ps.mu.Unlock()

	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}
