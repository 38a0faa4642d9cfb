package session

import (
	"bytes"

	"github.com/vrhub/collab/proto"
)

// sendConnectRequest writes CONNECT_REQUEST: the full local ClientState,
// then every registered plug-in's proposal, each framed by a length prefix
// so a future server build can skip a plug-in it doesn't recognize without
// desyncing the rest of the handshake.
func (s *Session) sendConnectRequest() error {
	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	if err := s.pipe.WriteUint16(proto.ConnectRequest); err != nil {
		return proto.TransportError(err)
	}
	if err := s.state.WriteFull(s.pipe); err != nil {
		return proto.TransportError(err)
	}
	if err := s.pipe.WriteUint32(uint32(len(s.byIndex))); err != nil {
		return proto.TransportError(err)
	}
	for _, p := range s.byIndex {
		var buf bytes.Buffer
		if err := p.WriteConnectRequestPayload(&buf); err != nil {
			return err
		}
		if err := s.pipe.WriteString(p.Name()); err != nil {
			return proto.TransportError(err)
		}
		if err := s.pipe.WriteUint32(uint32(buf.Len())); err != nil {
			return proto.TransportError(err)
		}
		if err := s.pipe.WriteBytes(buf.Bytes()); err != nil {
			return proto.TransportError(err)
		}
	}
	return nil
}

// readConnectReplyOrReject reads exactly one of CONNECT_REPLY or
// CONNECT_REJECT and settles every registered plug-in's fate (4.E): an
// accepted plug-in becomes a shared entry and is recorded in s.shared; every
// other registered plug-in is told RejectedByServer(), whether because the
// server's CONNECT_REPLY omitted it or because the whole handshake was
// rejected outright.
//
// This build's server never sends CONNECT_REJECT (rejection is per-plug-in,
// not connection-wide — see server/internal/hub/negotiate.go), but the
// branch is implemented for forward compatibility with a future
// base-protocol-level refusal.
func (s *Session) readConnectReplyOrReject() error {
	id, err := s.pipe.ReadUint16()
	if err != nil {
		return proto.TransportError(err)
	}

	switch id {
	case proto.ConnectReply:
		return s.readConnectReply()
	case proto.ConnectReject:
		return s.readConnectReject()
	default:
		return proto.NegotiationError("expected CONNECT_REPLY or CONNECT_REJECT")
	}
}

func (s *Session) readConnectReply() error {
	k, err := s.pipe.ReadUint32()
	if err != nil {
		return proto.TransportError(err)
	}

	accepted := make(map[int]bool, k)
	for i := uint32(0); i < k; i++ {
		idx, err := s.pipe.ReadUint32()
		if err != nil {
			return proto.TransportError(err)
		}
		base, err := s.pipe.ReadUint32()
		if err != nil {
			return proto.TransportError(err)
		}
		if int(idx) >= len(s.byIndex) {
			return proto.ProtocolError("CONNECT_REPLY named an unregistered plug-in index")
		}
		p := s.byIndex[idx]
		if err := p.ReceiveConnectReply(s.pipe.Raw(), uint16(base)); err != nil {
			return err
		}
		s.shared = append(s.shared, clientShared{index: int(idx), messageIDBase: uint16(base), plug: p})
		accepted[int(idx)] = true
	}

	for i, p := range s.byIndex {
		if !accepted[i] {
			p.RejectedByServer()
		}
	}
	return nil
}

func (s *Session) readConnectReject() error {
	k, err := s.pipe.ReadUint32()
	if err != nil {
		return proto.TransportError(err)
	}
	for i := uint32(0); i < k; i++ {
		idx, err := s.pipe.ReadUint32()
		if err != nil {
			return proto.TransportError(err)
		}
		if int(idx) >= len(s.byIndex) {
			return proto.ProtocolError("CONNECT_REJECT named an unregistered plug-in index")
		}
		if err := s.byIndex[idx].ReceiveConnectReject(s.pipe.Raw()); err != nil {
			return err
		}
	}
	// The whole connection failed, so every registered plug-in — whether or
	// not it was named above — is told to free any speculative state.
	for _, p := range s.byIndex {
		p.RejectedByServer()
	}
	return proto.NegotiationError("connection rejected by server")
}

// sharedByIndex looks up one of this session's own negotiated plug-ins by
// its server-wide registry index, used when decoding a peer's CLIENT_CONNECT
// shared-protocol list.
func (s *Session) sharedByIndex(idx int) (clientShared, bool) {
	for _, e := range s.shared {
		if e.index == idx {
			return e, true
		}
	}
	return clientShared{}, false
}
