package agent

import (
	"fmt"
	"sync"
)

// Registry is the ordered map of live agents plus the slot index. It is
// the single authority on slot occupancy; the scheduler never tracks
// occupancy on the side.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Agent
	slots map[int]string
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Agent),
		slots: make(map[int]string),
	}
}

// Insert registers a new agent. The slot must be free and the bounds
// usable.
func (r *Registry) Insert(id string, slot int, bounds Bounds) error {
	if !bounds.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBounds, bounds.W, bounds.H)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, ok := r.slots[slot]; ok {
		return fmt.Errorf("%w: slot %d held by %s", ErrSlotOccupied, slot, holder)
	}
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: id %s already registered", ErrSlotOccupied, id)
	}

	r.byID[id] = &Agent{ID: id, Slot: slot, Status: StatusIdle, Bounds: bounds}
	r.slots[slot] = id
	r.order = append(r.order, id)
	return nil
}

// Remove deregisters the agent. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.slots, a.Slot)
	for n, other := range r.order {
		if other == id {
			r.order = append(r.order[:n], r.order[n+1:]...)
			break
		}
	}
}

// SetBounds updates the agent's rectangle.
func (r *Registry) SetBounds(id string, bounds Bounds) error {
	if !bounds.Valid() {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBounds, bounds.W, bounds.H)
	}
	return r.update(id, func(a *Agent) { a.Bounds = bounds })
}

// SetURL records the agent's current URL.
func (r *Registry) SetURL(id, url string) error {
	return r.update(id, func(a *Agent) { a.URL = url })
}

// SetStatus records the agent's navigation state.
func (r *Registry) SetStatus(id string, status Status) error {
	return r.update(id, func(a *Agent) { a.Status = status })
}

func (r *Registry) update(id string, fn func(*Agent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	fn(a)
	return nil
}

// Get returns a copy of the agent's record.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// AtSlot returns the agent occupying the slot, if any.
func (r *Registry) AtSlot(slot int) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.slots[slot]
	if !ok {
		return Agent{}, false
	}
	return *r.byID[id], true
}

// List returns copies of all agents in insertion order.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// Len reports the number of live agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
