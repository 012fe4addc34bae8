// Package events implements the flow/alert broker: an in-process pub/sub
// bus for local mode, plus Redis- and Pub/Sub-backed variants for
// deployments that need cross-process or durable delivery.
package events

import (
	"context"
	"errors"
	"log"
	"sync"
)

// Well-known topics.
const (
	TopicTraffic = "telemetry.traffic"
	TopicAlerts  = "alerts"
)

// Handler consumes one published message. A non-nil error is logged by the
// broker and the message is skipped — there is no redelivery.
type Handler func(ctx context.Context, msg interface{}) error

// Broker is the pub/sub contract the analyzer is written against. The
// in-memory broker satisfies it locally; a durable external broker can be
// swapped in for production without touching the pipeline.
type Broker interface {
	Start() error
	Stop(ctx context.Context) error

	// Publish enqueues msg for every subscriber of topic. Non-blocking in
	// local mode; per topic, subscribers see messages in publish order.
	Publish(topic string, msg interface{}) error

	// Subscribe registers h for every future publish to topic.
	Subscribe(topic string, h Handler)
}

var ErrBrokerStopped = errors.New("broker is stopped")

// MemoryBroker is the in-process broker. Each topic has an unbounded FIFO
// queue drained by a single dispatcher goroutine, so handlers for one topic
// run serially and in publish order. There is no persistence; a restart
// loses buffered messages.
type MemoryBroker struct {
	mu      sync.Mutex
	topics  map[string]*topicQueue
	subs    map[string][]Handler
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *log.Logger
}

// topicQueue is an unbounded FIFO guarded by the broker mutex and signaled
// through a condition variable.
type topicQueue struct {
	cond    *sync.Cond
	pending []interface{}
	closed  bool
}

// NewMemoryBroker creates a stopped in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		topics: make(map[string]*topicQueue),
		subs:   make(map[string][]Handler),
		logger: log.New(log.Writer(), "[Broker] ", log.LstdFlags),
	}
}

// Start makes the broker accept publishes. Idempotent.
func (b *MemoryBroker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.topics = make(map[string]*topicQueue) // dispatchers from a prior run are gone
	b.running = true
	b.logger.Printf("MemoryBroker started")
	return nil
}

// Stop cancels dispatch and waits for in-flight handlers until ctx expires.
func (b *MemoryBroker) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.cancel()
	for _, q := range b.topics {
		q.closed = true
		q.cond.Broadcast()
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Printf("MemoryBroker stopped")
		return nil
	case <-ctx.Done():
		b.logger.Printf("MemoryBroker stop deadline hit; abandoning in-flight handlers")
		return ctx.Err()
	}
}

// Publish enqueues msg on topic. Never blocks: the per-topic queue is
// unbounded and slow subscribers simply accumulate backlog.
func (b *MemoryBroker) Publish(topic string, msg interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return ErrBrokerStopped
	}
	q := b.queueLocked(topic)
	q.pending = append(q.pending, msg)
	q.cond.Signal()
	return nil
}

// Subscribe registers h for topic. May be called before or after Start.
func (b *MemoryBroker) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
	if b.running {
		b.queueLocked(topic)
	}
	b.logger.Printf("Subscribed handler to %s", topic)
}

// queueLocked returns the topic queue, spawning its dispatcher on first use.
// Caller must hold b.mu.
func (b *MemoryBroker) queueLocked(topic string) *topicQueue {
	q, ok := b.topics[topic]
	if !ok {
		q = &topicQueue{cond: sync.NewCond(&b.mu)}
		b.topics[topic] = q
		b.wg.Add(1)
		go b.dispatch(topic, q)
	}
	return q
}

// dispatch drains one topic queue, invoking subscribers serially so that
// per-topic, per-subscriber ordering matches publish order.
func (b *MemoryBroker) dispatch(topic string, q *topicQueue) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.pending) == 0 {
			b.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending = q.pending[1:]
		handlers := make([]Handler, len(b.subs[topic]))
		copy(handlers, b.subs[topic])
		ctx := b.ctx
		b.mu.Unlock()

		for _, h := range handlers {
			if err := h(ctx, msg); err != nil {
				b.logger.Printf("handler error on %s: %v (message skipped)", topic, err)
			}
		}
	}
}

var _ Broker = (*MemoryBroker)(nil)
