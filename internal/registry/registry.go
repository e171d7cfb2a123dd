// Package registry tracks which users currently hold live real-time
// connections. It is process-local and memory-only: after a restart every
// user appears offline until they reconnect.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/avestan-labs/pigeon/internal/metrics"
)

// Handle is one live connection belonging to an authenticated user. A user
// may hold several at once (multi-device); a handle belongs to at most one
// user at a time.
type Handle interface {
	ID() uuid.UUID
	Deliver(event interface{}) bool
}

// Registry maps user ids to their live connection handles. Connections
// authenticate and disconnect from independent goroutines, so all access
// goes through the mutex.
type Registry struct {
	mu    sync.RWMutex
	users map[int]map[uuid.UUID]Handle
}

func New() *Registry {
	return &Registry{users: make(map[int]map[uuid.UUID]Handle)}
}

// Register adds a handle to the user's set, creating the set if absent.
// Registering the same handle twice is a no-op.
func (r *Registry) Register(userID int, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		set = make(map[uuid.UUID]Handle)
		r.users[userID] = set
	}
	if _, ok := set[h.ID()]; !ok {
		set[h.ID()] = h
		metrics.WsConnections.Inc()
	}
}

// Unregister removes a handle. When the user's set empties, the user entry
// goes with it so the map does not accumulate stale empty sets.
func (r *Registry) Unregister(userID int, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.users[userID]
	if !ok {
		return
	}
	if _, ok := set[h.ID()]; ok {
		delete(set, h.ID())
		metrics.WsConnections.Dec()
	}
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

// HandlesFor returns a snapshot of the user's live handles, possibly empty.
func (r *Registry) HandlesFor(userID int) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	handles := make([]Handle, 0, len(set))
	for _, h := range set {
		handles = append(handles, h)
	}
	return handles
}

func (r *Registry) IsOnline(userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// OnlineUserIDs returns the ids of every user with at least one handle.
func (r *Registry) OnlineUserIDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}
