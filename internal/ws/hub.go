package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"parley/internal/chat"
)

// Subscription is one connection's membership in a group.
type Subscription struct {
	ID    uint64
	Group string
	C     <-chan []byte
}

// Hub is the in-process broadcast bus. Groups are created by their first
// member and removed with their last.
type Hub struct {
	groups     map[string]*chat.Group
	bufferSize int
	nextID     atomic.Uint64
	log        *slog.Logger

	mu sync.RWMutex
}

func NewHub(bufferSize int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		groups:     make(map[string]*chat.Group),
		bufferSize: bufferSize,
		log:        log,
	}
}

func (h *Hub) Join(group string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[group]
	if !ok {
		g = chat.New(chat.Config{ID: group, BufferSize: h.bufferSize})
		h.groups[group] = g
	}

	id := h.nextID.Add(1)
	return &Subscription{
		ID:    id,
		Group: group,
		C:     g.Join(id),
	}
}

// Leave removes sub from its group and closes its channel. Leaving twice is a no-op.
func (h *Hub) Leave(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[sub.Group]
	if !ok {
		return
	}
	if _, remaining := g.Leave(sub.ID); remaining == 0 {
		delete(h.groups, sub.Group)
	}
}

// Publish delivers payload to every current member of group.
func (h *Hub) Publish(group string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	g, ok := h.groups[group]
	if !ok {
		return
	}
	if dropped := g.Broadcast(payload); len(dropped) > 0 {
		h.log.Warn("dropped event for slow subscribers", "group", group, "subscribers", dropped)
	}
}

// Members returns the number of subscriptions in group.
func (h *Hub) Members(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if g, ok := h.groups[group]; ok {
		return g.Len()
	}
	return 0
}
