package graphein

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/wire"
)

// Message ids within this plug-in's registered range.
const (
	MsgAddCurve uint16 = iota
	MsgAppendPoint
	MsgDeleteCurve
	MsgDeleteAllCurves
	MsgUpdateEnd
	NumMessages
)

const Name = "Graphein"

// State is the per-client/per-remote opaque curve set. Authorship is
// implicit by owning client id; the wire format has no way to delete
// another client's curves, matching the original protocol's design.
type State struct {
	mu       sync.Mutex
	Curves   map[uint32]*Curve
	outgoing bytes.Buffer
}

func newState() *State {
	return &State{Curves: make(map[uint32]*Curve)}
}

// Plugin implements plugin.ServerPlugin and plugin.ClientPlugin. On the
// client side, self holds this endpoint's own curve set and accumulated
// outgoing batch, created once negotiation succeeds since
// ClientPlugin.SendClientUpdate takes no state argument of its own.
type Plugin struct {
	host plugin.Host
	self *State
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string     { return Name }
func (p *Plugin) NumMessages() int { return int(NumMessages) }
func (p *Plugin) Initialize(host plugin.Host, _ plugin.Config) error {
	p.host = host
	return nil
}

func (p *Plugin) ReceiveConnectRequest(io.Reader, uint32) (bool, error) { return true, nil }
func (p *Plugin) WriteConnectReplyPayload(io.Writer) error              { return nil }

func (p *Plugin) ConnectClient(clientID uint32) (any, error)  { return newState(), nil }
func (p *Plugin) DisconnectClient(clientID uint32, state any) {}

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

func (p *Plugin) BeforeServerUpdate()               {}
func (p *Plugin) BeforeServerUpdateClient(state any) {}

func (p *Plugin) AfterServerUpdate(state any) {
	s := state.(*State)
	s.mu.Lock()
	s.outgoing.Reset()
	s.mu.Unlock()
}

func (p *Plugin) SendServerUpdate(state, destState any, w io.Writer) error {
	s := state.(*State)
	s.mu.Lock()
	payload := append([]byte(nil), s.outgoing.Bytes()...)
	s.mu.Unlock()
	return writeBatch(w, payload)
}

func (p *Plugin) WriteConnectRequestPayload(io.Writer) error { return nil }

func (p *Plugin) ReceiveConnectReply(io.Reader, uint16) error {
	p.self = newState()
	return nil
}
func (p *Plugin) ReceiveConnectReject(io.Reader) error { return nil }
func (p *Plugin) RejectedByServer()                    {}

func (p *Plugin) ReceiveClientConnect(r io.Reader) (any, error) { return newState(), nil }
func (p *Plugin) DisconnectRemote(remoteState any)              {}

// Self returns this endpoint's own curve state, for the embedder to call
// AddCurve/AppendPoint/DeleteCurve on between ticks.
func (p *Plugin) Self() *State { return p.self }

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
	return applyBatch(remoteState.(*State), r)
}

func (p *Plugin) Frame()                     {}
func (p *Plugin) FrameRemote(remoteState any) {}
func (p *Plugin) HandleMessage(id uint16, r io.Reader) bool { return false }

func writeBatch(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

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
		case MsgAddCurve:
			curveID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			c, err := ReadCurve(curveID, p)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.Curves[curveID] = c
			s.mu.Unlock()
		case MsgAppendPoint:
			curveID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			idx, err := p.ReadUint32()
			if err != nil {
				return err
			}
			pt, err := p.ReadPoint()
			if err != nil {
				return err
			}
			s.mu.Lock()
			if c, ok := s.Curves[curveID]; ok {
				if int(idx) == len(c.Vertices) {
					c.Vertices = append(c.Vertices, pt)
				} else if int(idx) < len(c.Vertices) {
					c.Vertices[idx] = pt
				}
			}
			s.mu.Unlock()
		case MsgDeleteCurve:
			curveID, err := p.ReadUint32()
			if err != nil {
				return err
			}
			s.mu.Lock()
			delete(s.Curves, curveID)
			s.mu.Unlock()
		case MsgDeleteAllCurves:
			s.mu.Lock()
			s.Curves = make(map[uint32]*Curve)
			s.mu.Unlock()
		case MsgUpdateEnd:
			// Marks a batch boundary; no payload, no state change.
		}
	}
}
