package theoravid

import (
	"sync"

	"github.com/pion/rtp"
	"github.com/vrhub/collab/wire"
)

// serverState is the opaque per-client state the server keeps: the most
// recent tick's packet from that client, forwarded verbatim to every peer
// sharing this plug-in. The server never decodes video.
type serverState struct {
	mu      sync.Mutex
	pending *Packet
}

func newServerState() *serverState { return &serverState{} }

// selfState is this endpoint's own capture/encode side: the extractor and
// encoder, a triple-buffered uncompressed preview for the local UI, and the
// most recently encoded packet awaiting transmit. Created once negotiation
// succeeds, since ClientPlugin.SendClientUpdate takes no state argument.
type selfState struct {
	mu sync.Mutex

	extractor FrameExtractor
	encoder   Encoder

	preview  *wire.TripleBuffer[*Frame]
	outgoing *Packet // cleared by SendClientUpdate once read

	nextSeq     int64
	lastGranule int64
	frameIdx    int
	gopSize     int
	sentAny     bool
}

// newSelfState seeds the packet sequence counter at a non-predictable
// starting value, the same RFC 3550 convention pion/rtp's own random
// sequencer follows for RTP streams — picked once per connection rather
// than always starting at zero.
func newSelfState(extractor FrameExtractor, encoder Encoder, gopSize int) *selfState {
	return &selfState{
		extractor: extractor,
		encoder:   encoder,
		preview:   wire.NewTripleBuffer[*Frame](),
		gopSize:   gopSize,
		nextSeq:   int64(rtp.NewRandomSequencer().NextSequenceNumber()),
	}
}

// remoteState is a peer's opaque state: the headers this peer announced at
// connect time, a single-slot mailbox guarded by a condition variable for
// the dedicated decode thread, and the triple-buffered decoded frame the
// render hook drains.
type remoteState struct {
	mu      sync.Mutex
	cond    *sync.Cond
	latest  *Packet
	stopped bool
	done    chan struct{}

	decoder Decoder
	decoded *wire.TripleBuffer[*Frame]
}

func newRemoteState(dec Decoder) *remoteState {
	r := &remoteState{
		decoder: dec,
		decoded: wire.NewTripleBuffer[*Frame](),
		done:    make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}
