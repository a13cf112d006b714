package scheduler

import (
	"sync"
	"time"
)

// Registry is the in-memory schedule registry: at most one pending entry
// per taskId. It holds no durable state and is always rebuildable from the
// task store; the file system stays the source of truth.
//
// Deletion notifications carry only a file name, so the registry keeps a
// path index alongside the id index.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	byPath  map[string]string // record file path -> taskId
}

type entry struct {
	id    string
	path  string
	due   time.Time
	timer Timer
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		byPath:  make(map[string]string),
	}
}

// Has reports whether a pending entry exists for the task id.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Len returns the number of pending entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Add installs a pending entry. It returns false when an entry for the id
// already exists; the caller owns stopping the rejected timer.
func (r *Registry) Add(id, path string, due time.Time, t Timer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = &entry{id: id, path: path, due: due, timer: t}
	r.byPath[path] = id
	return true
}

// Remove drops the entry without stopping its timer. Used by a fire
// callback to retire its own entry.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	delete(r.entries, id)
	delete(r.byPath, e.path)
	return true
}

// Cancel stops the pending timer and drops the entry.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
		delete(r.byPath, e.path)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

// CancelPath cancels the entry backed by the given record file, returning
// the cancelled task id.
func (r *Registry) CancelPath(path string) (string, bool) {
	r.mu.Lock()
	id, ok := r.byPath[path]
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	return id, r.Cancel(id)
}

// Paths snapshots the path index. Used by the full reconcile to detect
// entries whose backing file vanished without a notification.
func (r *Registry) Paths() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.byPath))
	for p, id := range r.byPath {
		out[p] = id
	}
	return out
}

// DrainCancel cancels every pending entry and returns how many were
// dropped. Shutdown path.
func (r *Registry) DrainCancel() int {
	r.mu.Lock()
	dropped := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		dropped = append(dropped, e)
		delete(r.entries, id)
		delete(r.byPath, e.path)
	}
	r.mu.Unlock()
	for _, e := range dropped {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	return len(dropped)
}
