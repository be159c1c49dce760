// ABOUTME: Concurrent registry of known clients keyed by client identifier.
// ABOUTME: Registration upserts wholesale; heartbeats refresh LastSeen; pruning is cutoff-based.

package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/droverlabs/drover/internal/protocol"
)

// Entry is the registry's record of one client.
type Entry struct {
	ID           string
	Info         protocol.SystemInfo
	RegisteredAt time.Time
	LastSeen     time.Time
}

// Registry maps client identifiers to their most recent registration. It is
// safe for concurrent use; share one instance by pointer.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{clients: make(map[string]Entry)}
}

// Upsert records info under id, replacing any previous entry wholesale
// (last writer wins). It reports whether an entry already existed.
func (r *Registry) Upsert(id string, info protocol.SystemInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.clients[id]
	now := time.Now()
	r.clients[id] = Entry{ID: id, Info: info, RegisteredAt: now, LastSeen: now}
	return existed
}

// Touch refreshes LastSeen for id and reports whether id is known. Unknown
// ids are never created here; only registration adds entries.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[id]
	if !ok {
		return false
	}
	entry.LastSeen = time.Now()
	r.clients[id] = entry
	return true
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.clients[id]
	return entry, ok
}

// Snapshot returns a copy of every entry, sorted by id.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.clients))
	for _, entry := range r.clients {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Remove deletes id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.clients[id]
	delete(r.clients, id)
	return ok
}

// Prune removes every entry whose LastSeen is before cutoff and returns the
// removed ids, sorted.
func (r *Registry) Prune(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, entry := range r.clients {
		if entry.LastSeen.Before(cutoff) {
			delete(r.clients, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
