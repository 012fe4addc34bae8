// Redis-backed broker for multi-process deployments. Events published on
// one process are received by subscribers on every process sharing the same
// Redis, while local subscribers still get zero-latency in-process fan-out.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shadowhunt/backend/internal/core"
)

// envelope is the wire form of a broker message on a Redis channel. Flow
// events and alerts travel as their JSON encodings with a kind tag so the
// receiving side can rebuild the typed value.
type envelope struct {
	Kind    string          `json:"kind"` // "flow" | "alert" | "raw"
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker distributes messages across processes using Redis Pub/Sub.
// Local handlers are fed by an embedded MemoryBroker that subscribes to the
// Redis channels, so per-topic ordering is preserved by the single
// receiver goroutine per channel.
type RedisBroker struct {
	local  *MemoryBroker
	rdb    *redis.Client
	prefix string // channel prefix, e.g. "sh:events:"

	mu        sync.Mutex
	pubsubs   []*redis.PubSub
	receiving map[string]bool
	logger    *log.Logger
}

// NewRedisBroker connects to Redis and returns a broker publishing on
// channels named prefix+topic. The connection is verified with a ping.
func NewRedisBroker(addr, password string, db int, prefix string) (*RedisBroker, error) {
	if prefix == "" {
		prefix = "sh:events:"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	b := &RedisBroker{
		local:  NewMemoryBroker(),
		rdb:    rdb,
		prefix: prefix,
		logger: log.New(log.Writer(), "[RedisBroker] ", log.LstdFlags),
	}
	b.logger.Printf("Connected to Redis at %s (db %d)", addr, db)
	return b, nil
}

func (b *RedisBroker) Start() error {
	return b.local.Start()
}

func (b *RedisBroker) Stop(ctx context.Context) error {
	b.mu.Lock()
	for _, ps := range b.pubsubs {
		ps.Close()
	}
	b.pubsubs = nil
	b.mu.Unlock()

	err := b.local.Stop(ctx)
	if cerr := b.rdb.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Publish serializes msg and publishes it to the Redis channel for topic.
// On Redis failure the message still reaches local subscribers.
func (b *RedisBroker) Publish(topic string, msg interface{}) error {
	env, err := wrap(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.prefix+topic, data).Err(); err != nil {
		b.logger.Printf("Redis publish failed on %s, falling back to local: %v", topic, err)
		return b.local.Publish(topic, msg)
	}
	return nil
}

// Subscribe registers h locally and, on first subscription to a topic,
// starts a Redis receiver that feeds the local queue for that topic.
func (b *RedisBroker) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	_, receiving := b.receiving[topic]
	if !receiving {
		if b.receiving == nil {
			b.receiving = make(map[string]bool)
		}
		b.receiving[topic] = true
	}
	b.mu.Unlock()

	b.local.Subscribe(topic, h)
	if receiving {
		return
	}

	ps := b.rdb.Subscribe(context.Background(), b.prefix+topic)
	b.mu.Lock()
	b.pubsubs = append(b.pubsubs, ps)
	b.mu.Unlock()

	go func() {
		for m := range ps.Channel() {
			msg, err := unwrap([]byte(m.Payload))
			if err != nil {
				b.logger.Printf("drop malformed message on %s: %v", topic, err)
				continue
			}
			if err := b.local.Publish(topic, msg); err != nil {
				b.logger.Printf("local enqueue failed on %s: %v", topic, err)
			}
		}
	}()
	b.logger.Printf("Receiving channel %s%s", b.prefix, topic)
}

func wrap(msg interface{}) (*envelope, error) {
	var kind string
	switch msg.(type) {
	case *core.FlowEvent, core.FlowEvent:
		kind = "flow"
	case *core.Alert, core.Alert:
		kind = "alert"
	default:
		kind = "raw"
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return &envelope{Kind: kind, Payload: payload}, nil
}

func unwrap(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case "flow":
		var e core.FlowEvent
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "alert":
		var a core.Alert
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, err
		}
		return &a, nil
	default:
		var m map[string]interface{}
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

var _ Broker = (*RedisBroker)(nil)
