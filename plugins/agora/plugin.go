package agora

import (
	"io"

	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/plugins/agora/adapt"
)

// Plugin implements plugin.ServerPlugin and plugin.ClientPlugin. The two
// roles share no mutable state; a process only ever instantiates the half
// it plays (see server/internal/hub and client/internal/session wiring).
//
// On the client side, self is this endpoint's own capture/send state,
// created once negotiation succeeds (ReceiveConnectReply) since
// ClientPlugin.SendClientUpdate takes no state argument of its own.
type Plugin struct {
	host plugin.Host

	newEncoder func() (Encoder, error)
	newDecoder func() (Decoder, error)

	queueDepth    int
	jitterDepth   int
	playbackDepth int
	bitrate       int

	// rolloff controls how quickly a remote's voice attenuates with
	// distance from the listener's mouth position (spatial mix, applied by
	// the embedder against the projected remote position).
	rolloff float64

	self *selfState
}

// New returns an audio plug-in using real Opus codecs at DefaultBitrate.
// The encoder is configured CBR (see codec.go), so every participant in a
// session produces fixed-size packets of PacketSize(DefaultBitrate,
// FrameSize) bytes — the value negotiated in the connect payload.
func New() *Plugin {
	p := &Plugin{
		queueDepth:    DefaultQueueDepth,
		jitterDepth:   DefaultJitterDepth,
		playbackDepth: DefaultPlaybackDepth,
		rolloff:       DefaultRolloffFactor,
		bitrate:       DefaultBitrate,
	}
	p.newEncoder = func() (Encoder, error) { return NewOpusEncoder(SampleRate, p.bitrate) }
	p.newDecoder = func() (Decoder, error) { return NewOpusDecoder(SampleRate) }
	return p
}

// packetSize returns the fixed encoded-packet size for this plug-in's
// configured bitrate.
func (p *Plugin) packetSize() int { return PacketSize(p.bitrate, FrameSize) }

func (p *Plugin) Name() string     { return Name }
func (p *Plugin) NumMessages() int { return 0 }

func (p *Plugin) Initialize(host plugin.Host, cfg plugin.Config) error {
	p.host = host
	if cfg == nil {
		return nil
	}
	if v := cfg.GetInt("sendQueueSize"); v > 0 {
		p.queueDepth = v
	}
	if v := cfg.GetInt("jitterBufferSize"); v > 0 {
		p.jitterDepth = v
	}
	if v := cfg.GetFloat("rolloffFactor"); v > 0 {
		p.rolloff = v
	}
	return nil
}

// Attenuation returns the linear gain for a remote voice at the given
// distance (in metres) from the listener's mouth position, following an
// inverse-distance rolloff scaled by the configured factor.
func (p *Plugin) Attenuation(distance float64) float64 {
	if distance <= 1.0 {
		return 1.0
	}
	g := 1.0 / (1.0 + p.rolloff*(distance-1.0))
	if g < 0 {
		return 0
	}
	return g
}

func (p *Plugin) localCapabilities() capabilities {
	return capabilities{frameSize: FrameSize, packetSize: uint32(p.packetSize()), queueDepth: uint32(p.queueDepth)}
}

// ReceiveConnectRequest reads the client's proposed capabilities. Every
// endpoint in a session is built from the same config-driven bitrate; the
// request is rejected if its frame size or packet size differs from this
// server's.
func (p *Plugin) ReceiveConnectRequest(r io.Reader, payloadLen uint32) (bool, error) {
	caps, err := readCapabilities(r)
	if err != nil {
		return false, err
	}
	if caps.frameSize != FrameSize || int(caps.packetSize) != p.packetSize() {
		return false, nil
	}
	return true, nil
}

func (p *Plugin) WriteConnectReplyPayload(w io.Writer) error {
	return writeCapabilities(w, p.localCapabilities())
}

func (p *Plugin) ConnectClient(clientID uint32) (any, error) {
	return newServerState(p.packetSize()), nil
}

func (p *Plugin) DisconnectClient(clientID uint32, state any) {}

// ReceiveClientUpdate reads this client's tick of encoded voice packets and
// stores them for fan-out to every peer sharing this plug-in.
func (p *Plugin) ReceiveClientUpdate(state any, r io.Reader) error {
	s := state.(*serverState)
	pkts, err := readPackets(r, s.packetSize)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = pkts
	s.mu.Unlock()
	return nil
}

func (p *Plugin) BeforeServerUpdate()               {}
func (p *Plugin) BeforeServerUpdateClient(state any) {}

// SendServerUpdate forwards the source client's tick of packets to a
// destination peer verbatim; attenuation by listener distance happens on
// the receiving client's own mix, not on the server (the server has no
// notion of spatial position).
func (p *Plugin) SendServerUpdate(state, destState any, w io.Writer) error {
	s := state.(*serverState)
	s.mu.Lock()
	pkts := s.pending
	s.mu.Unlock()
	return writePackets(w, s.packetSize, pkts)
}

func (p *Plugin) AfterServerUpdate(state any) {
	s := state.(*serverState)
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

func (p *Plugin) WriteConnectRequestPayload(w io.Writer) error {
	return writeCapabilities(w, p.localCapabilities())
}

// ReceiveConnectReply creates this endpoint's own capture/send state now
// that the server accepted the proposal.
func (p *Plugin) ReceiveConnectReply(r io.Reader, messageIDBase uint16) error {
	caps, err := readCapabilities(r)
	if err != nil {
		return err
	}
	enc, err := p.newEncoder()
	if err != nil {
		return err
	}
	p.self = newSelfState(enc, int(caps.packetSize), p.queueDepth)
	return nil
}

func (p *Plugin) ReceiveConnectReject(r io.Reader) error {
	_, err := readCapabilities(r)
	return err
}

func (p *Plugin) RejectedByServer() { p.self = nil }

func (p *Plugin) ReceiveClientConnect(r io.Reader) (any, error) {
	dec, err := p.newDecoder()
	if err != nil {
		return nil, err
	}
	return newRemoteState(dec, p.jitterDepth, p.playbackDepth), nil
}

func (p *Plugin) DisconnectRemote(remoteState any) {}

// SendClientUpdate drains this endpoint's own send queue and frames it as
// the CLIENT_UPDATE's audio block.
func (p *Plugin) SendClientUpdate(w io.Writer) error {
	if p.self == nil {
		return writePackets(w, p.packetSize(), nil)
	}
	p.self.mu.Lock()
	pkts := p.self.queue.Drain()
	packetSize := p.self.packetSize
	p.self.mu.Unlock()
	return writePackets(w, packetSize, pkts)
}

func (p *Plugin) ReceiveServerUpdateGlobal(r io.Reader) error { return nil }

// ReceiveServerUpdateRemote pushes the peer's tick of packets into its
// jitter buffer; decoding of the frame that is due happens later, in
// FrameRemote.
func (p *Plugin) ReceiveServerUpdateRemote(state any, r io.Reader) error {
	remote := state.(*remoteState)
	pkts, err := readPackets(r, p.packetSize())
	if err != nil {
		return err
	}
	remote.mu.Lock()
	for _, data := range pkts {
		remote.jb.Push(localSenderID, remote.nextSeq, data)
		remote.nextSeq++
	}
	remote.mu.Unlock()
	return nil
}

// AdjustRemoteJitterDepth retunes a peer's jitter buffer from connection
// quality measured outside this plug-in (the embedder's transport layer
// already tracks inter-arrival jitter and loss for its own RTT/congestion
// purposes); this only changes when a not-yet-primed stream starts playing,
// never mid-stream.
func (p *Plugin) AdjustRemoteJitterDepth(remoteState any, jitterMs, lossRate float64) {
	remote := remoteState.(*remoteState)
	remote.mu.Lock()
	remote.jb.SetDepth(adapt.TargetJitterDepth(jitterMs, lossRate))
	remote.mu.Unlock()
}

func (p *Plugin) Frame() {}

// FrameRemote decodes this tick's jitter-buffered frame for state.
func (p *Plugin) FrameRemote(state any) {
	remote := state.(*remoteState)
	decodeRemoteTick(remote)
}

func (p *Plugin) HandleMessage(id uint16, r io.Reader) bool { return false }
