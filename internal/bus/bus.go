// Package bus implements the activity/event bus (SPEC_FULL.md
// "SUPPLEMENTED FEATURES"): a bounded in-memory ring buffer of typed
// events with a subscribe API, optionally fanned out over NATS
// (bus.go/nats.go), grounded on pkg/natsutil's typed publish/subscribe
// helpers.
package bus

import (
	"sync"
	"time"
)

// Kind enumerates the closed set of event types the daemon emits.
type Kind string

const (
	KindEpisodeStored     Kind = "episode.stored"
	KindTierTransitioned  Kind = "tier.transitioned"
	KindRouteSelected     Kind = "route.selected"
	KindPipelineGenerated Kind = "pipeline.generated"
	KindEvictionRan       Kind = "eviction.ran"
)

// Event is one bus message.
type Event struct {
	Kind      Kind
	Subject   string // e.g. vector id, agent key, pipeline id
	Data      map[string]any
	Timestamp time.Time
}

// Handler receives bus events pushed to a subscription.
type Handler func(Event)

// Bus is a bounded ring buffer of recent events plus live subscribers.
// Handlers run synchronously after the bus lock is released: a slow
// handler delays its Publish call (without holding the lock), and a
// panicking handler's panic propagates out of Publish.
type Bus struct {
	mu          sync.Mutex
	capacity    int
	ring        []Event
	next        int
	size        int
	subscribers map[int]subscription
	subID       int
	now         func() time.Time
}

type subscription struct {
	kind    Kind // empty means all kinds
	handler Handler
}

// DefaultCapacity bounds the ring buffer.
const DefaultCapacity = 1000

// New builds a Bus with the given ring capacity (DefaultCapacity if <= 0).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:    capacity,
		ring:        make([]Event, capacity),
		subscribers: make(map[int]subscription),
		now:         time.Now,
	}
}

// Publish records e in the ring buffer and synchronously notifies every
// subscriber whose kind filter matches (or has no filter).
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.ring[b.next] = e
	b.next = (b.next + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
	handlers := make([]Handler, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.kind == "" || sub.kind == e.Kind {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
}

// Subscribe registers handler for events of kind (all kinds if kind is
// empty), returning a token for Unsubscribe.
func (b *Bus) Subscribe(kind Kind, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subID++
	id := b.subID
	b.subscribers[id] = subscription{kind: kind, handler: handler}
	return id
}

// Unsubscribe removes a subscription registered by Subscribe.
func (b *Bus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, token)
}

// Recent returns up to n most-recently-published events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]Event, n)
	start := (b.next - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		out[i] = b.ring[(start+i)%b.capacity]
	}
	return out
}
