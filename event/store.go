package event

import (
	"context"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Store is the persistence contract the bus delegates to. Each storage
// backend implements it alongside the other subsystem stores.
type Store interface {
	// PublishEvent persists evt and makes it visible to subscribers.
	PublishEvent(ctx context.Context, evt *Event) error

	// SubscribeEvent blocks until an unacked event with the given name
	// exists or the timeout expires, whichever is first. A nil event with
	// a nil error means the timeout won.
	SubscribeEvent(ctx context.Context, name string, timeout time.Duration) (*Event, error)

	// AckEvent marks an event consumed so no later subscriber sees it.
	AckEvent(ctx context.Context, eventID id.EventID) error
}
