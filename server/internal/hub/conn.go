package hub

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/proto"
	"github.com/vrhub/collab/wire"
)

// sharedEntry is one plug-in this connection negotiated successfully: the
// plug-in's server-wide registration index (used to intersect two clients'
// shared lists in order), the message-id base the registry assigned it,
// the plug-in itself, the connect-time payload it originally sent (kept
// verbatim for replay into peers' CLIENT_CONNECT), and its opaque
// per-client state — nil until the fan-out tick's action-commit step calls
// ConnectClient.
type sharedEntry struct {
	index         int
	messageIDBase uint16
	plug          plugin.ServerPlugin
	connectPayload []byte
	state         any
}

// Conn is one connected client's server-side state (3. Per-client
// connection state). A receive goroutine owns reads; the fan-out tick
// (running on the hub's own goroutine) owns writes, both serialized by
// pipeMu. stateMu protects the mutable ClientState and shared list —
// mutated by the receive goroutine on CLIENT_UPDATE, read by the tick.
type Conn struct {
	id uint32

	pipeMu sync.Mutex
	pipe   *wire.Pipe

	stateMu     sync.Mutex
	state       basestate.State
	pendingMask uint8 // OR of CLIENT_UPDATE masks received since the last tick
	shared      []sharedEntry

	connected atomic.Bool
	dead      atomic.Bool
}

// ID returns the client's process-wide unique identifier.
func (c *Conn) ID() uint32 { return c.id }

// Connected reports whether the receive loop is currently running for this
// client (false before negotiation's serve call and after it returns).
func (c *Conn) Connected() bool { return c.connected.Load() }

// serve runs the CONNECTED-state receive loop until the peer disconnects,
// the transport fails, or ctx is canceled. Negotiation (START state) has
// already completed by the time serve is called.
func (c *Conn) serve(ctx context.Context, h *Hub) {
	c.connected.Store(true)
	defer c.connected.Store(false)
	defer c.dead.Store(true)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, err := c.pipe.ReadUint16()
		if err != nil {
			return
		}
		h.totalMessages.Add(1)

		switch id {
		case proto.ClientUpdate:
			if err := c.receiveClientUpdate(); err != nil {
				return
			}
		case proto.DisconnectRequest:
			c.receiveDisconnectRequest()
			c.sendDisconnectReply()
			return
		default:
			// No plug-in in this build dispatches a raw message id of its
			// own — every plug-in tunnels its sub-messages inside the
			// CLIENT_UPDATE/SERVER_UPDATE batch payload instead — so any id
			// outside {CLIENT_UPDATE, DISCONNECT_REQUEST} reaching here is a
			// protocol error regardless of whether it falls in a registered
			// plug-in's range (4.B).
			return
		}
	}
}

// receiveClientUpdate reads the delta ClientState and feeds each shared
// plug-in's ReceiveClientUpdate in registration order (4.D CONNECTED).
func (c *Conn) receiveClientUpdate() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	mask, err := c.state.ApplyDeltaMask(c.pipe)
	if err != nil {
		return err
	}
	c.pendingMask |= mask

	for i := range c.shared {
		e := &c.shared[i]
		if err := e.plug.ReceiveClientUpdate(e.state, c.pipe.Raw()); err != nil {
			return err
		}
	}
	return nil
}

// receiveDisconnectRequest drains the opaque per-plug-in payload list a
// well-behaved client sends with DISCONNECT_REQUEST. No plug-in in this
// build emits one (all WriteConnectReplyPayload/SendClientUpdate close out
// state on the ordinary disconnect path instead), so in practice n is
// always 0; the generic <u32 size> framing is read and discarded rather
// than assumed absent, so a future plug-in can add one without a wire
// break.
func (c *Conn) receiveDisconnectRequest() {
	n, err := c.pipe.ReadUint32()
	if err != nil {
		return
	}
	for i := uint32(0); i < n; i++ {
		size, err := c.pipe.ReadUint32()
		if err != nil {
			return
		}
		buf := make([]byte, size)
		if err := c.pipe.ReadBytes(buf); err != nil {
			return
		}
	}
}

func (c *Conn) sendDisconnectReply() {
	c.pipeMu.Lock()
	defer c.pipeMu.Unlock()
	_ = c.pipe.WriteUint16(proto.DisconnectReply)
	_ = c.pipe.WriteUint32(0)
}

// negotiateEndian wraps rw in a Pipe with the connection's byte-order
// agreement established (4.A).
func negotiateEndian(rw io.ReadWriteCloser) (*wire.Pipe, error) {
	return wire.NegotiateEndian(rw, byteOrder)
}

// snapshotSharedPayload copies the receive buffer for a plug-in's
// CONNECT_REQUEST payload so it can be replayed verbatim into every peer's
// CLIENT_CONNECT later (P7: a peer without the plug-in never sees these
// bytes at all, since CLIENT_CONNECT only lists the shared intersection).
func snapshotSharedPayload(r io.Reader, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
