package presence

import (
	"slices"
	"sync"

	"github.com/c-pro/geche"
	"github.com/samber/lo"
)

// Registry tracks the display names of authenticated, connected users.
// Each name is counted once per Add, so a user with several open connections
// stays online until the last one is removed. It is safe for concurrent use;
// construct one per process and share it between connection handlers.
type Registry struct {
	// mu makes the read-modify-write of a count atomic.
	mu     sync.Mutex
	online geche.Geche[string, int]
}

func NewRegistry() *Registry {
	return &Registry{
		online: geche.NewMapCache[string, int](),
	}
}

// Add registers one more connection for name.
func (r *Registry) Add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.online.Get(name)
	if err != nil {
		n = 0
	}
	r.online.Set(name, n+1)
}

// Remove releases one connection of name. Removing an absent name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.online.Get(name)
	if err != nil {
		return
	}
	if n <= 1 {
		_ = r.online.Del(name)
		return
	}
	r.online.Set(name, n-1)
}

// Contains reports whether name has at least one connection.
func (r *Registry) Contains(name string) bool {
	_, err := r.online.Get(name)
	return err == nil
}

// Snapshot returns the online names sorted, each once.
// Clients must not rely on the order.
func (r *Registry) Snapshot() []string {
	names := lo.Keys(r.online.Snapshot())
	slices.Sort(names)
	return names
}

// Len returns the number of distinct online names.
func (r *Registry) Len() int {
	return r.online.Len()
}
