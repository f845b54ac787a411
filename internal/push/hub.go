package push

import (
	"context"
	"sync"
)

// Hub is an in-process Channel and Subscriber for single-instance deployments and tests
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*hubSub
	buffer int
}

type hubSub struct {
	userID int64
	role   string
	ch     chan Message
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]*hubSub), buffer: 32}
}

func (h *Hub) PushToUser(ctx context.Context, userID int64, msg Message) error {
	h.fanOut(func(s *hubSub) bool { return s.userID == userID }, msg)
	return nil
}

func (h *Hub) PushToRole(ctx context.Context, role string, msg Message) error {
	h.fanOut(func(s *hubSub) bool { return s.role == role }, msg)
	return nil
}

func (h *Hub) fanOut(match func(*hubSub) bool, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if !match(s) {
			continue
		}
		select {
		case s.ch <- msg:
		default:
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context, userID int64, role string) (<-chan Message, func(), error) {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	sub := &hubSub{userID: userID, role: role, ch: make(chan Message, h.buffer)}
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel, nil
}

// Subscribers returns the number of open subscriptions
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
