package courier

import (
	"sync"
	"time"
)

// AuthFailureEvent is the event name carried by every authentication
// failure broadcast.
const AuthFailureEvent = "auth.failure"

// AuthEvent is the process-wide notification published for every attempt
// that fails with an authentication status (401 or 403). Consumers such as
// a session-expiry handler subscribe independently of the call sites.
type AuthEvent struct {
	Name      string
	Status    int
	Message   string
	Timestamp time.Time
}

// Broadcaster is an in-process publish/subscribe facility for auth-failure
// events. Publishing never blocks: subscribers that fall behind their
// buffer miss events rather than stalling the pipeline.
type Broadcaster struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan AuthEvent
	bufferSize  int
}

// NewBroadcaster creates a broadcaster with a per-subscriber buffer of 16
// events.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]chan AuthEvent),
		bufferSize:  16,
	}
}

// Subscribe registers a listener and returns its event channel together
// with an unsubscribe handle. The channel is closed on unsubscribe.
func (b *Broadcaster) Subscribe() (<-chan AuthEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan AuthEvent, b.bufferSize)
	b.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish delivers the event to every current subscriber without blocking.
func (b *Broadcaster) Publish(event AuthEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
