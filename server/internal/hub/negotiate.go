package hub

import (
	"bytes"
	"sort"

	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/proto"
	"github.com/vrhub/collab/wire"
)

// handleStart runs the START-state handshake on an already endian-negotiated
// pipe (4.A, 4.D START): reads CONNECT_REQUEST, negotiates each proposed
// plug-in independently, then replies with CONNECT_REPLY and one
// CLIENT_CONNECT per already-connected peer. The returned Conn is not yet
// visible to Tick's fan-out — the caller queues an add action for the next
// tick to commit it.
//
// This build never sends CONNECT_REJECT: rejection is entirely per-plug-in
// (a proposal the registry doesn't recognize, or that the plug-in itself
// refuses, is simply dropped from the shared list — P7), and a client that
// ends up with zero shared plug-ins still joins successfully for base
// protocol position sync. CONNECT_REJECT is read and handled on the client
// side for forward compatibility with a future base-protocol-level refusal.
func (h *Hub) handleStart(pipe *wire.Pipe) (*Conn, error) {
	id, err := pipe.ReadUint16()
	if err != nil {
		return nil, proto.TransportError(err)
	}
	if id != proto.ConnectRequest {
		return nil, proto.NegotiationError("expected CONNECT_REQUEST")
	}

	state, err := basestate.ReadFull(pipe)
	if err != nil {
		return nil, proto.TransportError(err)
	}

	shared, err := h.negotiateProposals(pipe)
	if err != nil {
		return nil, err
	}

	conn := &Conn{
		id:     h.nextID.Add(1), // client ids start at 1 (3. Client identity skips 0)
		pipe:   pipe,
		state:  state,
		shared: shared,
	}

	if err := h.sendConnectReply(conn); err != nil {
		return nil, err
	}
	if err := h.sendExistingPeersTo(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// negotiateProposals reads CONNECT_REQUEST's proposed plug-in list and
// returns the accepted subset, sorted by server-wide registration index.
func (h *Hub) negotiateProposals(pipe *wire.Pipe) ([]sharedEntry, error) {
	n, err := pipe.ReadUint32()
	if err != nil {
		return nil, proto.TransportError(err)
	}

	var shared []sharedEntry
	for i := uint32(0); i < n; i++ {
		name, err := pipe.ReadString()
		if err != nil {
			return nil, proto.TransportError(err)
		}
		payloadLen, err := pipe.ReadUint32()
		if err != nil {
			return nil, proto.TransportError(err)
		}
		payload := make([]byte, payloadLen)
		if err := pipe.ReadBytes(payload); err != nil {
			return nil, proto.TransportError(err)
		}

		p, base, ok := h.registry.ByName(name)
		if !ok {
			continue // unregistered plug-in: payload already consumed, proposal dropped (P7).
		}
		sp, ok := p.(plugin.ServerPlugin)
		if !ok {
			continue
		}
		accept, err := sp.ReceiveConnectRequest(bytes.NewReader(payload), payloadLen)
		if err != nil || !accept {
			continue
		}
		idx, _ := h.registry.Index(name)
		shared = append(shared, sharedEntry{
			index:          idx,
			messageIDBase:  base,
			plug:           sp,
			connectPayload: payload,
		})
	}

	sort.Slice(shared, func(i, j int) bool { return shared[i].index < shared[j].index })
	return shared, nil
}

// sendConnectReply writes CONNECT_REPLY: the accepted plug-in count, then
// each accepted plug-in's registry index, message-id base, and own reply
// payload, in that order.
func (h *Hub) sendConnectReply(c *Conn) error {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()

	if err := c.pipe.WriteUint16(proto.ConnectReply); err != nil {
		return proto.TransportError(err)
	}
	if err := c.pipe.WriteUint32(uint32(len(c.shared))); err != nil {
		return proto.TransportError(err)
	}
	for _, e := range c.shared {
		if err := c.pipe.WriteUint32(uint32(e.index)); err != nil {
			return proto.TransportError(err)
		}
		if err := c.pipe.WriteUint32(uint32(e.messageIDBase)); err != nil {
			return proto.TransportError(err)
		}
		if err := e.plug.WriteConnectReplyPayload(c.pipe.Raw()); err != nil {
			return proto.TransportError(err)
		}
	}
	return nil
}

// sendExistingPeersTo writes one CLIENT_CONNECT to c for every already
// committed client, replaying each shared plug-in's original CONNECT_REQUEST
// payload verbatim rather than invoking any hook a second time.
func (h *Hub) sendExistingPeersTo(c *Conn) error {
	h.mu.RLock()
	peers := make([]*Conn, len(h.order))
	for i, id := range h.order {
		peers[i] = h.clients[id]
	}
	h.mu.RUnlock()

	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()

	for _, peer := range peers {
		peer.stateMu.Lock()
		peerState := peer.state
		peerShared := peer.shared
		peer.stateMu.Unlock()

		common := peerEntriesSharedWith(peerShared, c.shared)

		if err := c.pipe.WriteUint16(proto.ClientConnect); err != nil {
			return proto.TransportError(err)
		}
		if err := c.pipe.WriteUint32(peer.id); err != nil {
			return proto.TransportError(err)
		}
		if err := peerState.WriteFull(c.pipe); err != nil {
			return proto.TransportError(err)
		}
		if err := c.pipe.WriteUint32(uint32(len(common))); err != nil {
			return proto.TransportError(err)
		}
		for _, e := range common {
			if err := c.pipe.WriteUint32(uint32(e.index)); err != nil {
				return proto.TransportError(err)
			}
			if err := c.pipe.WriteUint32(uint32(len(e.connectPayload))); err != nil {
				return proto.TransportError(err)
			}
			if err := c.pipe.WriteBytes(e.connectPayload); err != nil {
				return proto.TransportError(err)
			}
		}
	}
	return nil
}
