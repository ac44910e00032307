package httpapi

import (
	"sync"

	"macro-meal-engine/internal/session"
)

// clientBuffer is the number of snapshots a stream client may lag behind
// before it is dropped.
const clientBuffer = 16

// Broadcaster fans state snapshots out to stream clients. Slow clients are
// dropped instead of blocking the store.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[chan session.State]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[chan session.State]struct{})}
}

// Add registers a client channel seeded with snapshot(). The snapshot is taken
// while holding the broadcaster lock, so every transition either is reflected
// in it or is delivered to the new channel afterwards.
func (b *Broadcaster) Add(snapshot func() session.State) chan session.State {
	ch := make(chan session.State, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	ch <- snapshot()
	b.clients[ch] = struct{}{}
	return ch
}

// Remove unregisters and closes ch. Removing twice is a no-op.
func (b *Broadcaster) Remove(ch chan session.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(ch)
}

func (b *Broadcaster) removeLocked(ch chan session.State) {
	if _, ok := b.clients[ch]; !ok {
		return
	}
	delete(b.clients, ch)
	close(ch)
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Observe is a session.Subscriber that broadcasts every new state.
func (b *Broadcaster) Observe(_, next session.State, _ session.Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- next:
		default:
			b.removeLocked(ch)
		}
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		b.removeLocked(ch)
	}
}
