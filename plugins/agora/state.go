package agora

import (
	"sync"

	"github.com/vrhub/collab/plugins/agora/dsp/aec"
	"github.com/vrhub/collab/plugins/agora/dsp/agc"
	"github.com/vrhub/collab/plugins/agora/dsp/noisegate"
	"github.com/vrhub/collab/plugins/agora/dsp/vad"
	"github.com/vrhub/collab/plugins/agora/jitter"
	"github.com/vrhub/collab/wire"
)

// serverState is the opaque per-client state the server keeps for this
// plug-in: the most recent tick's batch of fixed-size encoded packets
// received from that client, forwarded verbatim to every peer that shares
// this plug-in.
type serverState struct {
	mu         sync.Mutex
	packetSize int
	pending    [][]byte
}

func newServerState(packetSize int) *serverState {
	return &serverState{packetSize: packetSize}
}

// selfState is this endpoint's own capture/send side: the DSP chain, the
// encoder, and a drop-tolerant ring of fixed-size encoded packets awaiting
// transmit. Created once negotiation succeeds, since
// ClientPlugin.SendClientUpdate takes no state argument of its own.
type selfState struct {
	mu sync.Mutex

	encoder    Encoder
	packetSize int

	gate *noisegate.Gate
	vad  *vad.VAD
	agc  *agc.AGC
	aec  *aec.AEC

	queue *wire.Ring[[]byte]
}

func newSelfState(enc Encoder, packetSize, queueDepth int) *selfState {
	return &selfState{
		encoder:    enc,
		packetSize: packetSize,
		gate:       noisegate.New(),
		vad:        vad.New(),
		agc:        agc.New(),
		aec:        aec.New(FrameSize),
		queue:      wire.NewRing[[]byte](queueDepth),
	}
}

// remoteState is a peer's opaque state: its jitter buffer, a dedicated
// decoder, and the ring of decoded PCM frames the embedder's playback
// callback drains. nextSeq assigns a locally-monotonic sequence number to
// each packet as it arrives, since the wire format carries none — the
// per-connection transport already guarantees in-order delivery (no
// reordering to detect), so the jitter buffer's reordering/priming logic
// is purely about decode-thread scheduling, not network loss.
type remoteState struct {
	mu      sync.Mutex
	decoder Decoder
	jb      *jitter.Buffer
	pcm     *wire.Ring[[]float32]
	nextSeq uint16
}

func newRemoteState(dec Decoder, jitterDepth, pcmDepth int) *remoteState {
	return &remoteState{
		decoder: dec,
		jb:      jitter.New(jitterDepth),
		pcm:     wire.NewRing[[]float32](pcmDepth),
	}
}
