package message

import (
	"context"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Handler consumes an inbound message. Returning an error leaves the
// message unacknowledged on brokers that support redelivery.
type Handler func(ctx context.Context, m *Message) error

// Publisher is the outbound port to the message bus, and the single
// inbound channel for asynchronous worker replies.
type Publisher interface {
	// Publish sends a message to the channel named by its headers.
	Publish(ctx context.Context, m *Message) error

	// PublishToWorker sends a message to a specific worker's channel.
	PublishToWorker(ctx context.Context, workerID id.WorkerID, m *Message) error

	// SubscribeToResponses registers the handler invoked for every
	// worker reply. The subscription lives until ctx is cancelled.
	SubscribeToResponses(ctx context.Context, h Handler) error
}
