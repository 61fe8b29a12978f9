package presentation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/acme/hotline/internal/domain"
)

// Hub fans out an invalidate signal to every subscriber after each registry mutation.
// Signals coalesce: a subscriber that has not consumed the previous one sees a single pending refresh.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]chan struct{}
	next        uint64
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[uint64]chan struct{})}
}

// Subscribe returns a refresh channel and a function that unsubscribes and closes it.
func (h *Hub) Subscribe() (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.next++
	id := h.next
	ch := make(chan struct{}, 1)
	h.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers, id)
			close(ch)
		})
	}
}

// Notify implements registry.Observer.
func (h *Hub) Notify(_ context.Context, _ domain.Event) error {
	h.invalidate()
	return nil
}

// Pruned implements registry.PruneObserver.
func (h *Hub) Pruned(_ context.Context, _ []uuid.UUID) {
	h.invalidate()
}

func (h *Hub) invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
