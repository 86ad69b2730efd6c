package bus

import (
	"context"
	"sync"
	"time"
)

// Local is the single-instance bus: buffered channels per subscriber,
// non-blocking sends. A subscriber that stops draining loses events
// rather than stalling the publisher.
type Local struct {
	mu          sync.RWMutex
	subscribers map[int64][]chan Event
}

func NewLocal() *Local {
	return &Local{
		subscribers: make(map[int64][]chan Event),
	}
}

func (b *Local) Subscribe(roomID int64) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 32)
	b.subscribers[roomID] = append(b.subscribers[roomID], ch)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { b.remove(roomID, ch) })
	}
	return ch, unsubscribe
}

func (b *Local) remove(roomID int64, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[roomID]
	for i, sub := range subs {
		if sub == ch {
			b.subscribers[roomID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(b.subscribers[roomID]) == 0 {
		delete(b.subscribers, roomID)
	}
}

func (b *Local) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[e.RoomID] {
		select {
		case ch <- e:
		default:
			// Subscriber buffer full, skip
		}
	}
	return nil
}
