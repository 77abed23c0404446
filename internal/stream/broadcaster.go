package stream

import (
	"sync"

	"github.com/intelligence-lair/threatwatch/internal/logger"
)

// Broadcaster manages fanout of values to multiple subscribers. Sends are
// non-blocking: a subscriber that cannot keep up misses values instead of
// slowing the producer.
type Broadcaster[T any] struct {
	name string

	mu      sync.Mutex
	clients map[int]chan T
	nextID  int
	closed  bool
}

// NewBroadcaster creates a broadcaster; name tags its log lines.
func NewBroadcaster[T any](name string) *Broadcaster[T] {
	return &Broadcaster[T]{
		name:    name,
		clients: make(map[int]chan T),
	}
}

// Subscribe adds a new client and returns a channel for receiving values.
func (b *Broadcaster[T]) Subscribe() (int, <-chan T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan T, 2) // Buffer 2 to avoid blocking the producer
	if !b.closed {
		b.clients[id] = ch
	} else {
		close(ch)
	}

	logger.Debug(b.name, "Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *Broadcaster[T]) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		logger.Debug(b.name, "Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// Publish fans a value out to all subscribers. Slow clients skip it.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- v:
		default:
			// Client too slow, skip this value for this client
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broadcaster[T]) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects all subscribers. Further subscriptions get a closed
// channel.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}
