// Package jitter implements a per-sender jitter buffer for the audio
// plug-in's encoded voice packets.
//
// It reorders out-of-order packets using sequence numbers, buffers a
// configurable number of frames before starting playback, and signals
// missing frames so the caller can invoke the codec's packet-loss
// concealment.
package jitter

import "time"

const (
	ringSize = 16 // must be power of 2
	ringMask = ringSize - 1

	// staleTimeout is how long a sender must be silent before their stream
	// is pruned from the buffer.
	staleTimeout = 500 * time.Millisecond
)

// Frame is a single voice frame output from the jitter buffer.
type Frame struct {
	SenderID uint32
	Packet   []byte // nil signals a missing packet (caller should run PLC)
	// FECData is set only on a missing-packet frame, to the next sequence's
	// packet when that one is already buffered, so the caller can recover
	// the lost frame from its in-band FEC instead of concealing it.
	FECData []byte
}

type slot struct {
	packet []byte
	seq    uint16
	set    bool
}

type stream struct {
	ring     [ringSize]slot
	nextPlay uint16
	primed   bool
	count    int
	lastRecv time.Time
}

// Buffer is a per-sender jitter buffer. Not safe for concurrent use; the
// caller (the audio plug-in's decode goroutine) is the sole reader and
// synchronises externally.
type Buffer struct {
	streams map[uint32]*stream
	depth   int // frames to buffer before starting playback
}

// New creates a jitter buffer with the given depth (in 20 ms frames).
func New(depth int) *Buffer {
	if depth < 1 {
		depth = 1
	}
	if depth > ringSize/2 {
		depth = ringSize / 2
	}
	return &Buffer{
		streams: make(map[uint32]*stream),
		depth:   depth,
	}
}

// Push inserts a received packet into the sender's ring buffer.
func (b *Buffer) Push(senderID uint32, seq uint16, packet []byte) {
	s, ok := b.streams[senderID]
	if !ok {
		s = &stream{nextPlay: seq}
		b.streams[senderID] = s
	}
	s.lastRecv = time.Now()

	idx := int(seq) & ringMask

	if !s.primed {
		s.ring[idx] = slot{packet: packet, seq: seq, set: true}
		s.count++
		if s.count >= b.depth {
			s.primed = true
		}
		return
	}

	dist := int16(seq - s.nextPlay)

	if dist < 0 {
		return // late arrival, already played past this seq
	}
	if int(dist) >= ringSize {
		*s = stream{
			nextPlay: seq,
			lastRecv: time.Now(),
			count:    1,
		}
		s.ring[idx] = slot{packet: packet, seq: seq, set: true}
		if s.count >= b.depth {
			s.primed = true
		}
		return
	}

	s.ring[idx] = slot{packet: packet, seq: seq, set: true}
}

// Pop returns one frame per active sender for the current playback tick.
// Senders that have gone silent for more than staleTimeout are pruned.
func (b *Buffer) Pop() []Frame {
	now := time.Now()
	var frames []Frame
	var stale []uint32

	for id, s := range b.streams {
		if now.Sub(s.lastRecv) > staleTimeout {
			stale = append(stale, id)
			continue
		}
		if !s.primed {
			continue
		}

		idx := int(s.nextPlay) & ringMask
		if s.ring[idx].set && s.ring[idx].seq == s.nextPlay {
			frames = append(frames, Frame{SenderID: id, Packet: s.ring[idx].packet})
			s.ring[idx] = slot{}
		} else {
			s.ring[idx] = slot{}
			var fec []byte
			next := s.nextPlay + 1
			if n := s.ring[int(next)&ringMask]; n.set && n.seq == next {
				fec = n.packet
			}
			frames = append(frames, Frame{SenderID: id, Packet: nil, FECData: fec})
		}
		s.nextPlay++
	}

	for _, id := range stale {
		delete(b.streams, id)
	}

	return frames
}

// Reset clears all buffered state (e.g. on disconnect).
func (b *Buffer) Reset() {
	b.streams = make(map[uint32]*stream)
}

// SetDepth adjusts the priming depth for streams not yet primed; already
// primed streams keep playing at their original depth until they go stale
// and re-prime. Clamped the same way New clamps its argument.
func (b *Buffer) SetDepth(depth int) {
	if depth < 1 {
		depth = 1
	}
	if depth > ringSize/2 {
		depth = ringSize / 2
	}
	b.depth = depth
}

// Depth returns the current (clamped) priming depth in frames.
func (b *Buffer) Depth() int { return b.depth }

// ActiveSenders returns the number of senders with primed streams.
func (b *Buffer) ActiveSenders() int {
	n := 0
	for _, s := range b.streams {
		if s.primed {
			n++
		}
	}
	return n
}
