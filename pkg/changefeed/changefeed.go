// Package changefeed tells subscribers that data behind a topic changed.
// Notifications carry no payload; subscribers re-read what they watch.
package changefeed

import (
	"context"
	"sync"
)

// Feed publishes and subscribes to change notifications by topic.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a channel that receives a signal after each change
	// and a cancel func that must be called to release the subscription.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error)
}

// UserTopic is the topic carrying changes visible to one Clerk user.
func UserTopic(clerkUserID string) string {
	return "user:" + clerkUserID
}

// Hub is an in-process Feed.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan struct{})}
}

func (h *Hub) Publish(_ context.Context, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[topic] {
		signal(ch)
	}
	return nil
}

func (h *Hub) Subscribe(_ context.Context, topic string) (<-chan struct{}, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan struct{})
	}
	h.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[topic], id)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (h *Hub) subscriberCount(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// signal coalesces: a subscriber that has not drained the previous signal
// still sees exactly one pending change.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
