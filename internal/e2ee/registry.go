package e2ee

import "sync"

// Registry owns one Distributor per room, created on first use and
// dropped once its room empties, mirroring the room package's
// create-on-demand/destroy-on-empty lifecycle.
type Registry struct {
	mu   sync.Mutex
	byID map[string]*Distributor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Distributor)}
}

// Get returns roomID's Distributor, creating it if absent.
func (r *Registry) Get(roomID string) *Distributor {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[roomID]
	if !ok {
		d = New(roomID)
		r.byID[roomID] = d
	}
	return d
}

// Drop removes roomID's Distributor, e.g. once its room is destroyed.
func (r *Registry) Drop(roomID string) {
	r.mu.Lock()
	delete(r.byID, roomID)
	r.mu.Unlock()
}
