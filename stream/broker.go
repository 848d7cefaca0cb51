// Package stream provides the in-memory message broker: a topic-based
// pub/sub fabric implementing the publisher port for tests and
// single-process deployments. Work addressed to a worker lands on that
// worker's topic; replies flow back on the responses topic. The Redis
// Streams broker in stream/redis carries the same envelopes across
// processes.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
)

// Compile-time interface check.
var _ message.Publisher = (*Broker)(nil)

// DefaultBufferSize is the default per-subscriber delivery buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the in-memory message broker. It fans published messages out
// to per-worker and global topics via credit-controlled subscribers.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalExpired   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64

	wg sync.WaitGroup
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber delivery buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new in-memory broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Publish routes a message by its type and destination header: requests
// reach the requests topic (plus the destination worker's topic when
// addressed), responses and errors reach the responses topic, and
// everything reaches the firehose.
func (b *Broker) Publish(_ context.Context, m *message.Message) error {
	if m.IsExpired() {
		b.totalExpired.Add(1)
		return fmt.Errorf("stream: message %s ttl expired: %w", m.ID, orchestrator.ErrPublishFailed)
	}

	b.broadcast(resolveTopics(m), m)
	return nil
}

// PublishToWorker delivers a message to one worker's topic.
func (b *Broker) PublishToWorker(_ context.Context, workerID id.WorkerID, m *message.Message) error {
	if m.IsExpired() {
		b.totalExpired.Add(1)
		return fmt.Errorf("stream: message %s ttl expired: %w", m.ID, orchestrator.ErrPublishFailed)
	}
	if m.Headers.Destination == "" {
		m.Headers.Destination = workerID.String()
	}

	b.broadcast([]string{WorkerTopic(workerID.String()), TopicRequests, TopicFirehose}, m)
	return nil
}

// SubscribeToResponses consumes the responses topic, invoking the handler
// for every worker reply until the context is cancelled. Handler errors
// are logged and do not stop consumption.
func (b *Broker) SubscribeToResponses(ctx context.Context, handler message.Handler) error {
	sub := b.Subscribe("responses-"+id.NewMessageID().String(), TopicResponses)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.RemoveSubscriber(sub.ID())
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-sub.C():
				if !ok {
					return
				}
				sub.AddCredits(1)
				if err := handler(ctx, d.Message); err != nil {
					b.logger.Error("response handler failed",
						slog.String("message_id", d.Message.ID.String()),
						slog.String("correlation_id", d.Message.CorrelationID),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}()
	return nil
}

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeWorker creates a subscriber on one worker's topic. The worker
// side of the bus consumes it to receive addressed work.
func (b *Broker) SubscribeWorker(workerID id.WorkerID) *Subscriber {
	return b.Subscribe("worker-"+workerID.String(), WorkerTopic(workerID.String()))
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Close shuts every subscriber down and waits for consumption loops.
func (b *Broker) Close() {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		b.topics.UnsubscribeAll(sub.ID())
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.wg.Wait()
	b.logger.Info("stream broker closed")
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalExpired:    b.totalExpired.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalExpired    int64 `json:"total_expired"`
}

// broadcast fans one message out across topics. A subscriber on more
// than one of the topics receives it once; Delivery.Topic carries the
// most specific topic, which is first in the list.
func (b *Broker) broadcast(topics []string, m *message.Message) {
	delivered := b.topics.Broadcast(topics, &Delivery{
		Topic:     topics[0],
		Message:   m,
		Timestamp: time.Now().UTC(),
	})
	b.totalPublished.Add(int64(delivered))
}

// resolveTopics maps a message to the topics it belongs on, most
// specific first.
func resolveTopics(m *message.Message) []string {
	var topics []string

	switch m.Type {
	case message.TypeResponse, message.TypeError:
		topics = append(topics, TopicResponses)
	case message.TypeRequest, message.TypeCommand:
		if m.Headers.Destination != "" {
			topics = append(topics, WorkerTopic(m.Headers.Destination))
		}
		topics = append(topics, TopicRequests)
	case message.TypeHeartbeat, message.TypeEvent:
		// Firehose only.
	}

	return append(topics, TopicFirehose)
}
