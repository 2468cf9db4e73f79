package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/AdamBeresnev/bracket-engine/internal/events"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Publisher sends one encoded message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error
}

// PubSubSink forwards events as msgpack payloads.
type PubSubSink struct {
	pub   Publisher
	topic string
}

func NewPubSubSink(pub Publisher, topic string) *PubSubSink {
	return &PubSubSink{pub: pub, topic: topic}
}

func (s *PubSubSink) Notify(ctx context.Context, ev events.Event) error {
	data, err := msgpack.Marshal(ev)
	if err != nil {
		log.Error("MessagePack marshal error", "error", err)
		return err
	}
	attrs := map[string]string{
		"type":          string(ev.Type),
		"tournament_id": ev.TournamentID,
	}
	return s.pub.Publish(ctx, s.topic, data, attrs)
}

// Decode reverses the sink's payload encoding for consumers.
func Decode(data []byte) (events.Event, error) {
	var ev events.Event
	if err := msgpack.Unmarshal(data, &ev); err != nil {
		return events.Event{}, err
	}
	return ev, nil
}

// topicCache opens one handle per topic name and stops them all on close.
type topicCache[T interface{ Stop() }] struct {
	mu     sync.Mutex
	open   func(name string) T
	byName map[string]T
	closed bool
}

func newTopicCache[T interface{ Stop() }](open func(string) T) *topicCache[T] {
	return &topicCache[T]{open: open, byName: make(map[string]T)}
}

func (c *topicCache[T]) get(name string) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		var zero T
		return zero, ErrPublisherClosed
	}
	t, ok := c.byName[name]
	if !ok {
		t = c.open(name)
		c.byName[name] = t
	}
	return t, nil
}

// stopAll flushes and stops every handle. Later gets fail.
func (c *topicCache[T]) stopAll() {
	c.mu.Lock()
	topics := c.byName
	c.byName = nil
	c.closed = true
	c.mu.Unlock()
	for _, t := range topics {
		t.Stop()
	}
}

var ErrPublisherClosed = errors.New("publisher closed")

type GCPPublisher struct {
	client *pubsub.Client
	topics *topicCache[*pubsub.Topic]
}

// NewGCPPublisher connects to Google Cloud Pub/Sub. Close flushes pending
// messages and releases the client.
func NewGCPPublisher(ctx context.Context, projectID string) (*GCPPublisher, error) {
	c, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &GCPPublisher{client: c, topics: newTopicCache(c.Topic)}, nil
}

func (p *GCPPublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) error {
	t, err := p.topics.get(topic)
	if err != nil {
		return err
	}
	result := t.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	serverID, err := result.Get(ctx)
	if err != nil {
		log.Error("Failed to publish message", "error", err, "topic", topic)
		return err
	}
	log.Debug("Published", "serverID", serverID, "topic", topic)
	return nil
}

func (p *GCPPublisher) Close() error {
	p.topics.stopAll()
	return p.client.Close()
}
