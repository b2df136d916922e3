// Package registry tracks live browser units and their session counts.
package registry

import (
	"slices"
	"sync"
)

// Entry describes one live browser unit.
type Entry struct {
	UnitID       int `json:"unit_id"`
	PID          int `json:"pid"`
	SessionCount int `json:"session_count"`
}

// Registry maps unit id to Entry. Iteration follows insertion order.
type Registry struct {
	mu      sync.Mutex
	order   []int
	entries map[int]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[int]*Entry)}
}

// Register records a unit with zero sessions. Registering an existing id
// replaces its pid and resets the session count.
func (r *Registry) Register(unitID, pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[unitID]; ok {
		e.PID = pid
		e.SessionCount = 0
		return
	}
	r.entries[unitID] = &Entry{UnitID: unitID, PID: pid}
	r.order = append(r.order, unitID)
}

// Unregister removes a unit. Unknown ids are ignored.
func (r *Registry) Unregister(unitID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[unitID]; !ok {
		return
	}
	delete(r.entries, unitID)
	if i := slices.Index(r.order, unitID); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// AddSessions adjusts a unit's session count by delta, never going below zero.
// It reports false when the unit is not registered.
func (r *Registry) AddSessions(unitID, delta int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[unitID]
	if !ok {
		return false
	}
	e.SessionCount = max(e.SessionCount+delta, 0)
	return true
}

// Get returns a copy of the entry for unitID.
func (r *Registry) Get(unitID int) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[unitID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// List returns copies of all entries in registration order.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// PIDs returns the pid of every registered unit in registration order.
func (r *Registry) PIDs() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pids := make([]int, 0, len(r.order))
	for _, id := range r.order {
		pids = append(pids, r.entries[id].PID)
	}
	return pids
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset removes every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = nil
	r.entries = make(map[int]*Entry)
}
