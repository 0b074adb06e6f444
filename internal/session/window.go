package session

// DefaultWindowSize is the default dedup window capacity in packets.
const DefaultWindowSize = 50

// Window is a bounded FIFO of recently accepted packet counters. It guards
// against the multi-receiver topology where the same physical packet arrives
// redundantly through independent receivers relaying to one ingestion point.
//
// Membership is exact within the window only: a counter old enough to have
// been evicted is accepted again. That is the accepted price of bounded
// memory.
type Window struct {
	capacity int
	counters []uint32
}

// NewWindow creates a Window with the given capacity. Non-positive
// capacities fall back to DefaultWindowSize.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		capacity: capacity,
		counters: make([]uint32, 0, capacity),
	}
}

// Accept returns false if counter is already present in the window.
// Otherwise it records the counter, evicting the oldest entry when at
// capacity, and returns true.
func (w *Window) Accept(counter uint32) bool {
	for _, c := range w.counters {
		if c == counter {
			return false
		}
	}

	if len(w.counters) == w.capacity {
		copy(w.counters, w.counters[1:])
		w.counters = w.counters[:len(w.counters)-1]
	}

	w.counters = append(w.counters, counter)
	return true
}

// Len returns the number of counters currently held.
func (w *Window) Len() int {
	return len(w.counters)
}
