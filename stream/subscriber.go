package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/message"
)

// Delivery is the envelope handed to subscribers: the message plus the
// topic it arrived on.
type Delivery struct {
	// Topic is the channel this message was published on.
	Topic string `json:"topic"`

	// Message is the published envelope.
	Message *message.Message `json:"message"`

	// Timestamp is when the broker accepted the message.
	Timestamp time.Time `json:"ts"`
}

// Subscriber receives messages from topics it is subscribed to.
// It uses credit-based flow control: the subscriber grants credits
// indicating how many messages it can receive. The broker stops
// sending when credits reach zero.
type Subscriber struct {
	// id uniquely identifies this subscriber.
	id string

	// ch is the buffered channel deliveries are sent on.
	ch chan *Delivery

	// credits tracks remaining flow-control credits.
	// When zero, the broker skips this subscriber.
	credits atomic.Int64

	// topics tracks which topics this subscriber is on.
	topics map[string]struct{}
	mu     sync.RWMutex

	// filter is an optional predicate. If set, only deliveries
	// matching the filter are handed over.
	filter func(*Delivery) bool

	// closed prevents double-close of the channel.
	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given buffer size
// and initial credits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Delivery, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the read-only delivery channel.
func (s *Subscriber) C() <-chan *Delivery { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) {
	s.credits.Add(n)
}

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 {
	return s.credits.Load()
}

// SetFilter sets an optional delivery filter predicate.
func (s *Subscriber) SetFilter(fn func(*Delivery) bool) {
	s.filter = fn
}

// addTopic records that this subscriber is on the given topic.
func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

// removeTopic removes a topic from the subscriber's tracked set.
func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send attempts to deliver a message to the subscriber.
// Returns false if it was dropped (no credits, filter mismatch, or full
// buffer).
func (s *Subscriber) send(d *Delivery) bool {
	if s.closed.Load() {
		return false
	}

	if s.filter != nil && !s.filter(d) {
		return false
	}

	for {
		current := s.credits.Load()
		if current <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	select {
	case s.ch <- d:
		return true
	default:
		// Buffer full, restore credit.
		s.credits.Add(1)
		return false
	}
}

// Close closes the subscriber channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
