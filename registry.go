package websocket

import "sync"

// Registry tracks open connections by id.
//
// Each Server owns one Registry. It only holds references for lookup
// and broadcast; every Conn is owned by its own goroutine.
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	lastID uint64
	conns  map[uint64]*Conn
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uint64]*Conn),
	}
}

// Insert assigns c the next id and records it.
// Ids start at 1 and are never reused.
func (r *Registry) Insert(c *Conn) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	id := r.lastID
	c.id = id
	r.conns[id] = c
	return id
}

// Remove deletes the connection with the given id.
// Removing an id that is not present is a no-op.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	delete(r.conns, id)
	r.mu.Unlock()
}

// Lookup returns the connection with the given id.
func (r *Registry) Lookup(id uint64) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	return c, ok
}

// ForEach calls fn for every connection registered at the time of the call.
// fn runs without the registry lock held so it may block or call back
// into the registry.
func (r *Registry) ForEach(fn func(c *Conn)) {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		fn(c)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
