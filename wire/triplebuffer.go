package wire

import "sync/atomic"

// tripleBufNewFlag marks the packed state's low bits as "unread by the
// consumer yet" (i.e. the producer has published since the last claim).
const tripleBufNewFlag = uint32(1 << 2)

// TripleBuffer is a lock-free single-producer/single-consumer triple
// buffer. The producer writes into a back slot and publishes it by
// atomically swapping it with the shared "middle" slot; the consumer
// atomically claims the middle slot whenever it carries unread data,
// handing back its previous slot in exchange. Neither side ever blocks the
// other and there is no data race: the back slot and the claimed slot are
// always disjoint from whichever slot the other side currently owns.
//
// Used for per-remote ClientState mirrors (the fan-out receive goroutine is
// the producer, the render/frame callback is the consumer) and for decoded
// video frames (the per-remote decode goroutine is the producer, the render
// hook is the consumer).
type TripleBuffer[T any] struct {
	slots [3]T

	state   atomic.Uint32 // low bits: middle-slot index; tripleBufNewFlag: unread
	hasData atomic.Bool

	writeIndex int // producer-private
	readIndex  int // consumer-private
}

// NewTripleBuffer returns an empty triple buffer. Read returns ok=false
// until the first Write.
func NewTripleBuffer[T any]() *TripleBuffer[T] {
	tb := &TripleBuffer[T]{writeIndex: 0, readIndex: 1}
	tb.state.Store(uint32(2))
	return tb
}

// Write stores v into the producer's back slot and publishes it. Must only
// ever be called from the producer goroutine.
func (tb *TripleBuffer[T]) Write(v T) {
	tb.slots[tb.writeIndex] = v
	published := uint32(tb.writeIndex) | tripleBufNewFlag
	prev := tb.state.Swap(published)
	tb.writeIndex = int(prev &^ tripleBufNewFlag)
	tb.hasData.Store(true)
}

// Read returns the most recently published value, claiming the latest
// middle slot if the producer has published since the last call. Must only
// ever be called from the consumer goroutine.
func (tb *TripleBuffer[T]) Read() (v T, ok bool) {
	if !tb.hasData.Load() {
		return v, false
	}
	for {
		s := tb.state.Load()
		if s&tripleBufNewFlag == 0 {
			break // nothing new since the last claim
		}
		newIndex := s &^ tripleBufNewFlag
		if tb.state.CompareAndSwap(s, uint32(tb.readIndex)) {
			tb.readIndex = int(newIndex)
			break
		}
	}
	return tb.slots[tb.readIndex], true
}
