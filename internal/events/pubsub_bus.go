package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
)

// PubSubBroker publishes every message to a Google Cloud Pub/Sub topic for
// durable, at-least-once delivery to downstream consumers, and also fans
// out to the embedded in-memory broker for co-located subscribers.
//
// This is the production replacement for MemoryBroker: real backpressure
// and redelivery come from Pub/Sub, while the analyzer keeps the same
// Broker interface.
type PubSubBroker struct {
	local  *MemoryBroker
	client *pubsub.Client

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
	logger *log.Logger
}

// NewPubSubBroker connects to the project. Pub/Sub topics are created
// lazily as sh-<topic> (dots replaced) on first publish.
func NewPubSubBroker(projectID string) (*PubSubBroker, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	b := &PubSubBroker{
		local:  NewMemoryBroker(),
		client: client,
		topics: make(map[string]*pubsub.Topic),
		logger: log.New(log.Writer(), "[PubSubBroker] ", log.LstdFlags),
	}
	b.logger.Printf("Connected to Pub/Sub project %s", projectID)
	return b, nil
}

func (b *PubSubBroker) Start() error { return b.local.Start() }

func (b *PubSubBroker) Stop(ctx context.Context) error {
	b.mu.Lock()
	for _, t := range b.topics {
		t.Stop()
	}
	b.mu.Unlock()

	err := b.local.Stop(ctx)
	if cerr := b.client.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("pubsub client close: %w", cerr)
	}
	return err
}

// Publish sends msg to Pub/Sub (durable) and to local subscribers. The
// publish result is checked off the hot path.
func (b *PubSubBroker) Publish(topic string, msg interface{}) error {
	env, err := wrap(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	t, err := b.topic(topic)
	if err != nil {
		b.logger.Printf("Pub/Sub unavailable for %s, local delivery only: %v", topic, err)
		return b.local.Publish(topic, msg)
	}

	id := uuid.New().String()
	res := t.Publish(context.Background(), &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"sh-topic": topic,
			"sh-kind":  env.Kind,
			"sh-id":    id,
			"sh-time":  time.Now().Format(time.RFC3339Nano),
		},
		OrderingKey: topic, // per-topic publish order
	})
	go func() {
		if _, err := res.Get(context.Background()); err != nil {
			b.logger.Printf("Pub/Sub publish failed on %s: %v", topic, err)
		}
	}()

	return b.local.Publish(topic, msg)
}

// Subscribe registers h on the local fan-out. Durable consumption from
// Pub/Sub subscriptions is expected to run in separate consumer processes.
func (b *PubSubBroker) Subscribe(topic string, h Handler) {
	b.local.Subscribe(topic, h)
}

// topic returns the Pub/Sub topic handle, creating the topic if missing.
func (b *PubSubBroker) topic(name string) (*pubsub.Topic, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		return t, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := "sh-" + sanitizeTopicID(name)
	t := b.client.Topic(id)
	exists, err := t.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		t, err = b.client.CreateTopic(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
		b.logger.Printf("Created Pub/Sub topic %s", id)
	}
	t.EnableMessageOrdering = true
	b.topics[name] = t
	return t, nil
}

// sanitizeTopicID maps broker topic names onto Pub/Sub's allowed charset
// ("telemetry.traffic" -> "telemetry-traffic").
func sanitizeTopicID(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '/' {
			c = '-'
		}
		out[i] = c
	}
	return string(out)
}

var _ Broker = (*PubSubBroker)(nil)
