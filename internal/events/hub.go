package events

import "sync"

// Hub tracks the live event bus for each job.
type Hub struct {
	mu    sync.Mutex
	size  int
	buses map[string]*Bus
}

// NewHub creates a hub whose buses use the given ring buffer capacity.
func NewHub(size int) *Hub {
	return &Hub{
		size:  size,
		buses: make(map[string]*Bus),
	}
}

// GetOrCreate returns the bus for a job, creating one if absent.
func (h *Hub) GetOrCreate(jobID string) *Bus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.buses[jobID]; ok {
		return b
	}
	b := NewBus(h.size)
	h.buses[jobID] = b
	return b
}

// Get returns the bus for a job, or nil if none exists.
func (h *Hub) Get(jobID string) *Bus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buses[jobID]
}

// Replace discards a job's current bus (closing it if still open) and
// installs a fresh one. Used on retry: clients reconnecting after a
// retry see only events from the new run.
func (h *Hub) Replace(jobID string) *Bus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.buses[jobID]; ok {
		old.Close()
	}
	b := NewBus(h.size)
	h.buses[jobID] = b
	return b
}

// Remove closes and forgets a job's bus.
func (h *Hub) Remove(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if b, ok := h.buses[jobID]; ok {
		b.Close()
		delete(h.buses, jobID)
	}
}
