package game

import "sync"

// History is a fixed-capacity FIFO of crash points, oldest first.
type History struct {
	mu       sync.RWMutex
	capacity int
	values   []float64
}

// NewHistory returns an empty history holding at most capacity values.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Push appends v, evicting the oldest entry when full.
func (h *History) Push(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.values) == h.capacity {
		copy(h.values, h.values[1:])
		h.values = h.values[:h.capacity-1]
	}
	h.values = append(h.values, v)
}

// Load replaces the contents with values, keeping the newest capacity entries.
func (h *History) Load(values []float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(values) > h.capacity {
		values = values[len(values)-h.capacity:]
	}
	h.values = append(h.values[:0], values...)
}

func (h *History) Values() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]float64, len(h.values))
	copy(out, h.values)
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.values)
}

func (h *History) Capacity() int {
	return h.capacity
}
