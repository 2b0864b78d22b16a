// Package chat holds the subscribers of one broadcast group.
package chat

import (
	"sync"
)

// Group fans payloads out to its members. Each member owns a buffered
// channel; a member whose buffer is full misses the payload.
type Group struct {
	ID         string
	BufferSize int

	members map[uint64]chan []byte
	mux     sync.RWMutex
}

type Config struct {
	ID         string
	BufferSize int
}

const DefaultBufferSize = 64

func New(config Config) *Group {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	return &Group{
		ID:         config.ID,
		BufferSize: config.BufferSize,
		members:    make(map[uint64]chan []byte),
	}
}

// Join adds member and returns the channel it receives payloads on.
// Joining twice returns the existing channel.
func (g *Group) Join(member uint64) <-chan []byte {
	g.mux.Lock()
	defer g.mux.Unlock()

	if ch, ok := g.members[member]; ok {
		return ch
	}
	ch := make(chan []byte, g.BufferSize)
	g.members[member] = ch
	return ch
}

// Leave removes member and closes its channel. It reports whether member was
// in the group, and how many members remain.
func (g *Group) Leave(member uint64) (bool, int) {
	g.mux.Lock()
	defer g.mux.Unlock()

	ch, ok := g.members[member]
	if ok {
		delete(g.members, member)
		close(ch)
	}
	return ok, len(g.members)
}

// Broadcast offers payload to every member without blocking and returns the
// members it could not deliver to.
func (g *Group) Broadcast(payload []byte) []uint64 {
	g.mux.RLock()
	defer g.mux.RUnlock()

	var dropped []uint64
	for member, ch := range g.members {
		select {
		case ch <- payload:
		default:
			dropped = append(dropped, member)
		}
	}
	return dropped
}

func (g *Group) Len() int {
	g.mux.RLock()
	defer g.mux.RUnlock()
	return len(g.members)
}

func (g *Group) Has(member uint64) bool {
	g.mux.RLock()
	defer g.mux.RUnlock()
	_, ok := g.members[member]
	return ok
}
