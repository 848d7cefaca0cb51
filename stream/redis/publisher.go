// Package redis implements the message publisher port on Redis Streams.
// Work messages are appended to per-worker streams; replies flow through a
// shared responses stream consumed via a consumer group, so multiple
// orchestrator instances can split reply ingestion without double delivery.
//
// The publisher does not own the Redis client; the caller creates it,
// shares it, and closes it.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	orchestrator "github.com/Engineer-s-Edge/enginedge-core-sub005"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
)

// Compile-time interface check.
var _ message.Publisher = (*Publisher)(nil)

const (
	streamPrefix = "orchmsg:"

	// ResponsesStream is the shared stream all worker replies land on.
	ResponsesStream = streamPrefix + "responses"

	// RequestsStream receives work messages with no destination worker.
	RequestsStream = streamPrefix + "requests"

	// DefaultGroup is the consumer group used for reply ingestion.
	DefaultGroup = "orchestrator"

	// DefaultBlock bounds each blocking read so the consumer loop can
	// notice context cancellation.
	DefaultBlock = 2 * time.Second
)

// WorkerStream returns the stream key for one worker's inbound messages.
func WorkerStream(workerID id.WorkerID) string {
	return streamPrefix + "worker:" + workerID.String()
}

// Publisher sends messages over Redis Streams and consumes worker replies
// through a consumer group.
type Publisher struct {
	client   goredis.UniversalClient
	logger   *slog.Logger
	group    string
	consumer string
	block    time.Duration

	wg sync.WaitGroup
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithGroup sets the consumer group name for reply ingestion.
func WithGroup(group string) Option {
	return func(p *Publisher) { p.group = group }
}

// WithConsumer sets this instance's consumer name within the group.
func WithConsumer(consumer string) Option {
	return func(p *Publisher) { p.consumer = consumer }
}

// WithBlock sets the per-read blocking window of the consumer loop.
func WithBlock(d time.Duration) Option {
	return func(p *Publisher) { p.block = d }
}

// New creates a Publisher on an existing Redis client.
func New(client goredis.UniversalClient, opts ...Option) *Publisher {
	p := &Publisher{
		client:   client,
		logger:   slog.Default(),
		group:    DefaultGroup,
		consumer: "consumer-" + id.NewMessageID().String(),
		block:    DefaultBlock,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish appends the message to the stream named by its type and
// destination: replies and errors go to the responses stream, work with a
// destination to that worker's stream, the rest to the requests stream.
func (p *Publisher) Publish(ctx context.Context, m *message.Message) error {
	if m.IsExpired() {
		return fmt.Errorf("stream/redis: message %s expired in transit: %w", m.ID, orchestrator.ErrPublishFailed)
	}
	return p.append(ctx, p.resolveStream(m), m)
}

// PublishToWorker appends the message to the worker's stream.
func (p *Publisher) PublishToWorker(ctx context.Context, workerID id.WorkerID, m *message.Message) error {
	if m.IsExpired() {
		return fmt.Errorf("stream/redis: message %s expired in transit: %w", m.ID, orchestrator.ErrPublishFailed)
	}
	if m.Headers.Destination == "" {
		m.Headers.Destination = workerID.String()
	}
	return p.append(ctx, WorkerStream(workerID), m)
}

// SubscribeToResponses consumes the responses stream through the consumer
// group and invokes the handler for every reply. Handler errors are logged
// and the entry is acknowledged anyway; redelivery of a poisoned reply
// would fail the same way forever.
func (p *Publisher) SubscribeToResponses(ctx context.Context, h message.Handler) error {
	if err := p.ensureGroup(ctx, ResponsesStream); err != nil {
		return err
	}

	p.wg.Add(1)
	go p.consumeLoop(ctx, h)
	return nil
}

// Close waits for consumer loops to finish. The Redis client stays open;
// it belongs to the caller.
func (p *Publisher) Close() error {
	p.wg.Wait()
	return nil
}

func (p *Publisher) append(ctx context.Context, stream string, m *message.Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("stream/redis: encode message %s: %w", m.ID, err)
	}
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"message": string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("stream/redis: publish to %s: %w", stream, orchestrator.ErrPublishFailed)
	}
	return nil
}

func (p *Publisher) resolveStream(m *message.Message) string {
	switch m.Type {
	case message.TypeResponse, message.TypeError:
		return ResponsesStream
	default:
		if m.Headers.Destination != "" {
			if workerID, err := id.ParseWorkerID(m.Headers.Destination); err == nil {
				return WorkerStream(workerID)
			}
		}
		return RequestsStream
	}
}

// ensureGroup creates the consumer group, tolerating one that already
// exists.
func (p *Publisher) ensureGroup(ctx context.Context, stream string) error {
	err := p.client.XGroupCreateMkStream(ctx, stream, p.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("stream/redis: create group %s on %s: %w", p.group, stream, err)
	}
	return nil
}

func (p *Publisher) consumeLoop(ctx context.Context, h message.Handler) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := p.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    p.group,
			Consumer: p.consumer,
			Streams:  []string{ResponsesStream, ">"},
			Count:    16,
			Block:    p.block,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			p.logger.Warn("read responses stream",
				slog.String("error", err.Error()),
			)
			// Back off briefly so a down Redis doesn't spin the loop.
			select {
			case <-time.After(p.block):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				p.handleEntry(ctx, h, entry)
			}
		}
	}
}

func (p *Publisher) handleEntry(ctx context.Context, h message.Handler, entry goredis.XMessage) {
	defer p.ack(ctx, entry.ID)

	raw, ok := entry.Values["message"].(string)
	if !ok {
		p.logger.Warn("response entry without message body",
			slog.String("entry_id", entry.ID),
		)
		return
	}

	var m message.Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		p.logger.Warn("decode response message",
			slog.String("entry_id", entry.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := h(ctx, &m); err != nil {
		p.logger.Error("response handler failed",
			slog.String("message_id", m.ID.String()),
			slog.String("correlation_id", m.CorrelationID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Publisher) ack(ctx context.Context, entryID string) {
	if err := p.client.XAck(ctx, ResponsesStream, p.group, entryID).Err(); err != nil {
		p.logger.Warn("ack response entry",
			slog.String("entry_id", entryID),
			slog.String("error", err.Error()),
		)
	}
}
