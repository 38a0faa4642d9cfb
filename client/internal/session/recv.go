package session

import (
	"bytes"
	"context"

	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/proto"
)

// recvLoop is the session's single receive goroutine (4.E): it dispatches
// every inbound message by id and, on SERVER_UPDATE, composes and sends the
// matching CLIENT_UPDATE before looping for the next message — the two
// halves interlock in lockstep at the server's tick rate, so the client
// never sends faster than the server ticks.
func (s *Session) recvLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		id, err := s.pipe.ReadUint16()
		if err != nil {
			return proto.TransportError(err)
		}

		switch id {
		case proto.ClientConnect:
			if err := s.handleClientConnect(); err != nil {
				return err
			}
		case proto.ClientDisconnect:
			if err := s.handleClientDisconnect(); err != nil {
				return err
			}
		case proto.ServerUpdate:
			if err := s.handleServerUpdate(); err != nil {
				return err
			}
			if err := s.sendClientUpdate(); err != nil {
				return err
			}
		default:
			// No plug-in in this build dispatches a raw message id of its
			// own (see server/internal/hub/conn.go); any other id reaching
			// here is a protocol error.
			return proto.ProtocolError("unexpected message id outside the base protocol")
		}
	}
}

// handleClientConnect learns about a peer, whether newly joined or already
// connected at handshake time (the server sends both cases identically —
// 4.D START replays every existing peer to a just-joined client).
func (s *Session) handleClientConnect() error {
	peerID, err := s.pipe.ReadUint32()
	if err != nil {
		return proto.TransportError(err)
	}
	state, err := basestate.ReadFull(s.pipe)
	if err != nil {
		return proto.TransportError(err)
	}
	n, err := s.pipe.ReadUint32()
	if err != nil {
		return proto.TransportError(err)
	}

	remote := newRemoteClient(peerID, state)
	for i := uint32(0); i < n; i++ {
		idx, err := s.pipe.ReadUint32()
		if err != nil {
			return proto.TransportError(err)
		}
		size, err := s.pipe.ReadUint32()
		if err != nil {
			return proto.TransportError(err)
		}
		payload := make([]byte, size)
		if err := s.pipe.ReadBytes(payload); err != nil {
			return proto.TransportError(err)
		}

		local, ok := s.sharedByIndex(int(idx))
		if !ok {
			// The server only ever lists plug-ins already in the local
			// intersection (hub.peerEntriesSharedWith), so this shouldn't
			// happen — but skip gracefully rather than desync if it does.
			continue
		}
		remoteState, err := local.plug.ReceiveClientConnect(bytes.NewReader(payload))
		if err != nil {
			return err
		}
		remote.shared = append(remote.shared, remoteShared{
			index: local.index, messageIDBase: local.messageIDBase, plug: local.plug, state: remoteState,
		})
	}

	s.remotesMu.Lock()
	s.remotes[peerID] = remote
	s.remotesMu.Unlock()
	return nil
}

func (s *Session) handleClientDisconnect() error {
	peerID, err := s.pipe.ReadUint32()
	if err != nil {
		return proto.TransportError(err)
	}

	s.remotesMu.Lock()
	remote, ok := s.remotes[peerID]
	delete(s.remotes, peerID)
	s.remotesMu.Unlock()

	if ok {
		for _, e := range remote.shared {
			e.plug.DisconnectRemote(e.state)
		}
	}
	return nil
}

// handleServerUpdate reads one SERVER_UPDATE (4.C/4.D step 3): a peer count,
// then per peer a delta ClientState and each shared plug-in's payload, in
// the same ascending registry-index order the hub wrote them in. This build
// never writes SERVER_UPDATE's global (non-per-peer) payload section (see
// server/internal/hub/fanout.go), so none is read here either.
func (s *Session) handleServerUpdate() error {
	n, err := s.pipe.ReadUint32()
	if err != nil {
		return proto.TransportError(err)
	}

	for i := uint32(0); i < n; i++ {
		peerID, err := s.pipe.ReadUint32()
		if err != nil {
			return proto.TransportError(err)
		}

		s.remotesMu.RLock()
		remote, ok := s.remotes[peerID]
		s.remotesMu.RUnlock()
		if !ok {
			return proto.ProtocolError("SERVER_UPDATE named a peer with no prior CLIENT_CONNECT")
		}

		if err := remote.mirror.ApplyDelta(s.pipe); err != nil {
			return proto.TransportError(err)
		}
		remote.buf.Write(remote.mirror)

		for _, e := range remote.shared {
			if err := e.plug.ReceiveServerUpdateRemote(e.state, s.pipe.Raw()); err != nil {
				return err
			}
		}
	}
	return nil
}

// sendClientUpdate composes and writes one CLIENT_UPDATE from the locally
// buffered ClientState and every negotiated plug-in's own outgoing payload,
// in registration order, then clears the pending delta mask (4.E).
func (s *Session) sendClientUpdate() error {
	s.stateMu.Lock()
	mask := s.pendingMask
	state := s.state
	s.pendingMask = 0
	s.stateMu.Unlock()

	s.pipeMu.Lock()
	defer s.pipeMu.Unlock()

	if err := s.pipe.WriteUint16(proto.ClientUpdate); err != nil {
		return proto.TransportError(err)
	}
	if err := state.WriteDelta(s.pipe, mask); err != nil {
		return proto.TransportError(err)
	}
	for _, e := range s.shared {
		if err := e.plug.SendClientUpdate(s.pipe.Raw()); err != nil {
			return err
		}
	}
	return nil
}
