package cheria

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/wire"
)

// Message ids within this plug-in's registered range, offsets relative to
// the server-assigned messageIdBase.
const (
	MsgCreateDevice uint16 = iota
	MsgDestroyDevice
	MsgCreateTool
	MsgDestroyTool
	MsgDeviceStates
	NumMessages
)

const Name = "Cheria"

// State is the per-client (server side) or per-remote (client side) opaque
// state created at connect and destroyed at disconnect: the set of devices
// and tools that endpoint currently owns.
type State struct {
	mu      sync.Mutex
	Devices map[uint32]*Device
	Tools   map[uint32]*Tool

	// outgoing accumulates locally-originated CREATE_DEVICE/DESTROY_DEVICE/
	// CREATE_TOOL/DESTROY_TOOL/DEVICE_STATES messages between ticks, framed
	// into one <u32 size> batch per SERVER_UPDATE/CLIENT_UPDATE.
	outgoing bytes.Buffer
}

func newState() *State {
	return &State{Devices: make(map[uint32]*Device), Tools: make(map[uint32]*Tool)}
}

// Plugin implements plugin.ServerPlugin and plugin.ClientPlugin. The two
// roles share no mutable state; a process only ever instantiates the half
// it plays (see server/internal/hub and client/internal/session wiring).
//
// On the client side, self holds this endpoint's own devices/tools and
// accumulated outgoing batch; it is created once negotiation succeeds
// (ReceiveConnectReply) since ClientPlugin.SendClientUpdate takes no state
// argument of its own to operate on.
type Plugin struct {
	host plugin.Host
	self *State
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string      { return Name }
func (p *Plugin) NumMessages() int  { return int(NumMessages) }
func (p *Plugin) Initialize(host plugin.Host, _ plugin.Config) error {
	p.host = host
	return nil
}

// ReceiveConnectRequest accepts the device-sharing plug-in unconditionally;
// it carries no connect-time payload of its own.
func (p *Plugin) ReceiveConnectRequest(_ io.Reader, payloadLen uint32) (bool, error) {
	return true, nil
}

// WriteConnectReplyPayload writes no payload; per-device state is created
// fresh on every connection.
func (p *Plugin) WriteConnectReplyPayload(io.Writer) error { return nil }

func (p *Plugin) ConnectClient(clientID uint32) (any, error) {
	return newState(), nil
}

func (p *Plugin) DisconnectClient(clientID uint32, state any) {}

// ReceiveClientUpdate reads the client's length-prefixed batch buffer and
// replays each message against the server-side mirror of that client's
// devices/tools, exactly mirroring what a peer client would do on receipt.
// The raw batch is also kept in the client's outgoing buffer so that
// SendServerUpdate can forward it to every peer.
func (p *Plugin) ReceiveClientUpdate(state any, r io.Reader) error {
	s := state.(*State)
	raw, err := readBatch(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.outgoing.Write(raw)
	s.mu.Unlock()
	framed := &bytes.Buffer{}
	if err := writeBatch(framed, raw); err != nil {
		return err
	}
	return applyBatch(s, framed)
}

func (p *Plugin) BeforeServerUpdate()                   {}
func (p *Plugin) BeforeServerUpdateClient(state any)     {}
func (p *Plugin) AfterServerUpdate(state any) {
	s := state.(*State)
	s.mu.Lock()
	s.outgoing.Reset()
	s.mu.Unlock()
}

// SendServerUpdate forwards the source client's accumulated batch buffer to
// a destination peer, framed by a <u32 size> prefix so a peer that lacks
// this plug-in can skip it cleanly (P7).
func (p *Plugin) SendServerUpdate(state, destState any, w io.Writer) error {
	s := state.(*State)
	s.mu.Lock()
	payload := append([]byte(nil), s.outgoing.Bytes()...)
	s.mu.Unlock()
	return writeBatch(w, payload)
}

func (p *Plugin) WriteConnectRequestPayload(io.Writer) error { return nil }

// ReceiveConnectReply creates this endpoint's own device/tool state now that
// the server has accepted the proposal and assigned a message-id range.
func (p *Plugin) ReceiveConnectReply(io.Reader, uint16) error {
	p.self = newState()
	return nil
}
func (p *Plugin) ReceiveConnectReject(io.Reader) error { return nil }
func (p *Plugin) RejectedByServer()                    {}

func (p *Plugin) ReceiveClientConnect(r io.Reader) (any, error) {
	return newState(), nil
}
func (p *Plugin) DisconnectRemote(remoteState any) {}

// Self returns this endpoint's own device/tool state, for the embedder to
// call CreateDevice/CreateTool/FlushDeviceStates on between ticks.
func (p *Plugin) Self() *State { return p.self }

// SendClientUpdate forwards this endpoint's own accumulated batch buffer to
// the server, which fans it out to every peer sharing this plug-in.
func (p *Plugin) SendClientUpdate(w io.Writer) error {
	if p.self == nil {
		return writeBatch(w, nil)
	}
	p.self.mu.Lock()
	payload := append([]byte(nil), p.self.outgoing.Bytes()...)
	p.self.outgoing.Reset()
	p.self.mu.Unlock()
	return writeBatch(w, payload)
}

func (p *Plugin) ReceiveServerUpdateGlobal(io.Reader) error { return nil }

func (p *Plugin) ReceiveServerUpdateRemote(remoteState any, r io.Reader) error {
	s := remoteState.(*State)
	return applyBatch(s, r)
}

func (p *Plugin) Frame()                     {}
func (p *Plugin) FrameRemote(remoteState any) {}

func (p *Plugin) HandleMessage(id uint16, r io.Reader) bool { return false }

// writeBatch frames payload as <u32 size><bytes>.
func writeBatch(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readBatch reads a <u32 size><bytes> batch buffer, returning its raw
// bytes for replay, or for skipping entirely by a peer without this
// plug-in registered (P7).
func readBatch(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// applyBatch decodes and replays a batch buffer's messages against s.
func applyBatch(s *State, r io.Reader) error {
	raw, err := readBatch(r)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	p := wire.NewPipe(bytes.NewReader(raw), binary.BigEndian)
	for {
		id, err := p.ReadUint32()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch uint16(id) {
		case uint16(MsgCreateDevice):
			devID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			d, err := ReadDeviceLayout(devID, p)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.Devices[devID] = d
			s.mu.Unlock()
		case uint16(MsgDestroyDevice):
			devID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			s.mu.Lock()
			delete(s.Devices, devID)
			s.mu.Unlock()
		case uint16(MsgCreateTool):
			toolID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			tool, err := ReadToolLayout(toolID, p)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.Tools[toolID] = tool
			tool.ApplyBindings(s.Devices, true)
			s.mu.Unlock()
		case uint16(MsgDestroyTool):
			toolID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			s.mu.Lock()
			if tool, ok := s.Tools[toolID]; ok {
				tool.ApplyBindings(s.Devices, false)
				delete(s.Tools, toolID)
			}
			s.mu.Unlock()
		case uint16(MsgDeviceStates):
			s.mu.Lock()
			for {
				devID, err := p.ReadUint32()
				if err != nil {
					s.mu.Unlock()
					return err
				}
				if devID == 0 {
					break
				}
				d, ok := s.Devices[devID]
				if !ok {
					s.mu.Unlock()
					return io.ErrUnexpectedEOF
				}
				if err := d.Read(p); err != nil {
					s.mu.Unlock()
					return err
				}
			}
			s.mu.Unlock()
		}
	}
}
