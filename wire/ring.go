package wire

import "sync"

// Ring is a bounded single-producer/single-consumer queue with
// overwrite-on-full semantics: once depth d items have been pushed without
// a pop, the next push discards the oldest rather than blocking the
// producer. Used for the audio plug-in's encoded send queue and its
// per-remote decoded-PCM queues (P5).
//
// Ring is safe for concurrent Push/Pop from one producer and one consumer
// goroutine; it is not safe for multiple producers or multiple consumers.
// A mutex (rather than a lock-free scheme like TripleBuffer) is used here
// because Ring must support variable occupancy and draining by count, which
// a lock-free SPSC ring would need a CAS loop to get right with no more
// benefit at this queue's depth (single digits to low hundreds of items).
type Ring[T any] struct {
	mu   sync.Mutex
	buf  []T
	head int // index of oldest item
	n    int // number of items currently stored
}

// NewRing returns an empty ring of the given depth. depth must be > 0.
func NewRing[T any](depth int) *Ring[T] {
	if depth <= 0 {
		depth = 1
	}
	return &Ring[T]{buf: make([]T, depth)}
}

// Push appends v, overwriting the oldest entry if the ring is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	depth := len(r.buf)
	tail := (r.head + r.n) % depth
	r.buf[tail] = v
	if r.n < depth {
		r.n++
	} else {
		// Full: the write above already overwrote the old head's slot, so
		// the head pointer must advance to the next-oldest item.
		r.head = (r.head + 1) % depth
	}
}

// Pop removes and returns the oldest item. ok is false if the ring is
// empty.
func (r *Ring[T]) Pop() (v T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return v, false
	}
	v = r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Len reports the number of items currently stored.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Cap reports the ring's configured depth.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Drain pops every currently stored item in oldest-to-newest order.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, r.n)
	depth := len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%depth]
	}
	r.head = 0
	r.n = 0
	return out
}
