package theoravid

import (
	"io"

	"github.com/vrhub/collab/plugin"
)

// Plugin implements plugin.ServerPlugin and plugin.ClientPlugin. The two
// roles share no mutable state; a process only ever instantiates the half
// it plays (see server/internal/hub and client/internal/session wiring).
//
// On the client side, self is this endpoint's own capture/encode state,
// created once negotiation succeeds (ReceiveConnectReply) since
// ClientPlugin.SendClientUpdate takes no state argument of its own.
type Plugin struct {
	host plugin.Host

	extractor  FrameExtractor
	newEncoder func() Encoder
	newDecoder func() Decoder

	width, height int
	gopSize       int

	self *selfState
}

// New returns a video plug-in using the software passthrough codec and
// width/height dimensions, wired for a real codec binding by replacing
// newEncoder/newDecoder (see codec.go).
func New(extractor FrameExtractor, width, height int) *Plugin {
	p := &Plugin{extractor: extractor, width: width, height: height, gopSize: DefaultEncoderConfig().GopSize}
	p.newEncoder = func() Encoder { return newPassthroughEncoder(EncoderConfig{GopSize: p.gopSize}) }
	p.newDecoder = func() Decoder { return newPassthroughDecoder(p.width, p.height) }
	return p
}

func (p *Plugin) Name() string     { return Name }
func (p *Plugin) NumMessages() int { return 0 }

func (p *Plugin) Initialize(host plugin.Host, cfg plugin.Config) error {
	p.host = host
	if cfg == nil {
		return nil
	}
	if v := cfg.GetInt("theoraGopSize"); v > 0 {
		p.gopSize = v
	}
	if v := cfg.GetInt("width"); v > 0 {
		p.width = v
	}
	if v := cfg.GetInt("height"); v > 0 {
		p.height = v
	}
	return nil
}

// ReceiveConnectRequest reads the peer's stream headers. This plug-in
// accepts any proposal whose headers it can read; a peer that never
// captures video still negotiates the module so its absent frames are
// framed consistently (an all-absent <u8 present> every tick).
func (p *Plugin) ReceiveConnectRequest(r io.Reader, payloadLen uint32) (bool, error) {
	_, err := readHeaders(r)
	if err != nil {
		return false, err
	}
	return true, nil
}

// WriteConnectReplyPayload writes no payload; the server has no stream of
// its own to announce.
func (p *Plugin) WriteConnectReplyPayload(io.Writer) error { return nil }

func (p *Plugin) ConnectClient(clientID uint32) (any, error) {
	return newServerState(), nil
}

func (p *Plugin) DisconnectClient(clientID uint32, state any) {}

// ReceiveClientUpdate reads this client's tick of video (present or not)
// and stores it for fan-out to every peer sharing this plug-in.
func (p *Plugin) ReceiveClientUpdate(state any, r io.Reader) error {
	s := state.(*serverState)
	pkt, err := readPacket(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pending = pkt
	s.mu.Unlock()
	return nil
}

func (p *Plugin) BeforeServerUpdate()               {}
func (p *Plugin) BeforeServerUpdateClient(state any) {}

// SendServerUpdate forwards the source client's tick verbatim to a
// destination peer; the server never decodes or re-encodes video.
func (p *Plugin) SendServerUpdate(state, destState any, w io.Writer) error {
	s := state.(*serverState)
	s.mu.Lock()
	pkt := s.pending
	s.mu.Unlock()
	return writePacket(w, pkt)
}

func (p *Plugin) AfterServerUpdate(state any) {
	s := state.(*serverState)
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}

// WriteConnectRequestPayload announces this endpoint's encoder stream
// headers once, so the server can replay them in CLIENT_CONNECT to every
// peer that also negotiated this plug-in; a peer without video support is
// not sent these bytes at all.
func (p *Plugin) WriteConnectRequestPayload(w io.Writer) error {
	enc := p.newEncoder()
	return writeHeaders(w, enc.Headers())
}

// ReceiveConnectReply creates this endpoint's own capture/encode state now
// that the server has accepted the proposal.
func (p *Plugin) ReceiveConnectReply(r io.Reader, messageIDBase uint16) error {
	p.self = newSelfState(p.extractor, p.newEncoder(), p.gopSize)
	return nil
}

func (p *Plugin) ReceiveConnectReject(io.Reader) error { return nil }

func (p *Plugin) RejectedByServer() { p.self = nil }

// ReceiveClientConnect reads the peer's announced stream headers, primes a
// decoder with them, and starts that peer's dedicated decode thread.
func (p *Plugin) ReceiveClientConnect(r io.Reader) (any, error) {
	headers, err := readHeaders(r)
	if err != nil {
		return nil, err
	}
	dec := p.newDecoder()
	if err := dec.SetHeaders(headers); err != nil {
		return nil, err
	}
	remote := newRemoteState(dec)
	go decodeLoop(remote)
	return remote, nil
}

// DisconnectRemote stops and synchronously joins the peer's decode thread
// before its state is released.
func (p *Plugin) DisconnectRemote(state any) {
	remote, ok := state.(*remoteState)
	if !ok {
		return
	}
	remote.mu.Lock()
	remote.stopped = true
	remote.cond.Broadcast()
	remote.mu.Unlock()
	<-remote.done
}

// SendClientUpdate writes this tick's encoded packet, if any, clearing it
// so a silent tick doesn't resend stale video.
func (p *Plugin) SendClientUpdate(w io.Writer) error {
	if p.self == nil {
		return writePacket(w, nil)
	}
	p.self.mu.Lock()
	pkt := p.self.outgoing
	p.self.outgoing = nil
	p.self.mu.Unlock()
	return writePacket(w, pkt)
}

func (p *Plugin) ReceiveServerUpdateGlobal(io.Reader) error { return nil }

// ReceiveServerUpdateRemote hands the peer's tick of video, if present, to
// its decode thread.
func (p *Plugin) ReceiveServerUpdateRemote(state any, r io.Reader) error {
	remote, ok := state.(*remoteState)
	if !ok {
		return nil
	}
	pkt, err := readPacket(r)
	if err != nil {
		return err
	}
	if pkt == nil {
		return nil
	}
	remote.mu.Lock()
	remote.latest = pkt
	remote.cond.Signal()
	remote.mu.Unlock()
	return nil
}

func (p *Plugin) Frame()                {}
func (p *Plugin) FrameRemote(state any) {}

func (p *Plugin) HandleMessage(id uint16, r io.Reader) bool { return false }
