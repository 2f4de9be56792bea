package broadcast

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies the class of a published event.
type EventType string

// Event types emitted by the connection lifecycle and relay layers.
const (
	// EventDeviceResponse is an unsolicited or command-triggered device
	// response.
	EventDeviceResponse EventType = "device.response"

	// EventDeviceRegistered fires when a device completes the registration
	// handshake.
	EventDeviceRegistered EventType = "device.registered"

	// EventDeviceDisconnected fires when a registered device's transport
	// closes.
	EventDeviceDisconnected EventType = "device.disconnected"
)

// ResponseKind tags a device response payload by result category.
// The server does not interpret payloads; the kind is a routing hint for
// dashboards (e.g. render a map for location fixes, an image for captures).
type ResponseKind string

const (
	KindGeneric  ResponseKind = "generic"
	KindLocation ResponseKind = "location"
	KindImage    ResponseKind = "image"
)

// Event is a single broadcast item. Payload is opaque to the server.
type Event struct {
	Type      EventType       `json:"type"`
	DeviceID  string          `json:"device_id"`
	Kind      ResponseKind    `json:"kind,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Subscriber is one observer's handle on the event stream.
type Subscriber struct {
	events chan Event
}

// Events returns the subscriber's receive channel. The channel is closed by
// Unsubscribe (or Broadcaster.Close); ranging over it is safe.
func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// defaultBufferSize is the per-subscriber event buffer. A subscriber that
// falls this far behind starts losing events rather than blocking publishers.
const defaultBufferSize = 64

// Broadcaster delivers events to all current subscribers.
// All methods are safe for concurrent use.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]struct{}
	bufferSize  int
	closed      bool
}

// New creates a Broadcaster. bufferSize <= 0 selects the default.
func New(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Broadcaster{
		subscribers: make(map[*Subscriber]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new observer. The returned subscriber receives every
// event published after this call until Unsubscribe. Subscribing on a closed
// broadcaster returns a subscriber whose channel is already closed.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{events: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.events)
		return sub
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes an observer and closes its channel. Unsubscribing an
// already-removed subscriber is a no-op, so defer-based cleanup is safe.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.events)
	}
}

// Publish delivers the event to every current subscriber. The send is
// non-blocking: subscribers with a full buffer are skipped. Events with a
// zero timestamp are stamped at publish time.
//
// Sends happen under the read lock while Unsubscribe closes channels under
// the write lock, so a publish can never race a channel close.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub.events <- event:
		default:
			// Subscriber buffer full; drop rather than block the
			// connection handler.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close removes all subscribers and closes their channels. Publishing after
// Close is a silent no-op; subscribing returns a closed subscriber.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub.events)
	}
	b.closed = true
}
