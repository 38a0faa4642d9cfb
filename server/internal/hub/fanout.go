package hub

import (
	"sort"

	"github.com/vrhub/collab/proto"
)

// Tick runs one fan-out cycle (4.D CONNECTED), driven by RunTicks at the
// configured collaboration.tickTime cadence:
//
//  1. commit queued join/leave actions from the last tick's Accept calls;
//  2. lock every committed client's state (ascending id order, to avoid
//     deadlock against a concurrent Tick — Tick itself never runs
//     concurrently with itself, but the ordering is cheap insurance) and
//     run BeforeServerUpdate/BeforeServerUpdateClient;
//  3. for each destination, emit deferred CLIENT_CONNECT/CLIENT_DISCONNECT
//     for this tick's joins/leaves, then one SERVER_UPDATE relaying every
//     other client's state and shared plug-in payloads;
//  4. run AfterServerUpdate, clear each client's pending delta mask;
//  5. drop any client whose pipe write failed this tick.
func (h *Hub) Tick() {
	added, removed := h.drainActions()
	h.commitAdds(added)
	h.commitRemoves(removed)

	conns := h.snapshotOrdered()

	for _, c := range conns {
		c.stateMu.Lock()
	}
	defer func() {
		for _, c := range conns {
			c.stateMu.Unlock()
		}
	}()

	for _, p := range h.plugins {
		p.BeforeServerUpdate()
	}
	for _, c := range conns {
		for i := range c.shared {
			c.shared[i].plug.BeforeServerUpdateClient(c.shared[i].state)
		}
	}

	addedSet := make(map[uint32]bool, len(added))
	for _, c := range added {
		addedSet[c.id] = true
	}
	removedIDs := make([]uint32, len(removed))
	for i, c := range removed {
		removedIDs[i] = c.id
	}

	for _, dest := range conns {
		h.sendTickTo(dest, conns, addedSet, removedIDs)
	}

	for _, c := range conns {
		for i := range c.shared {
			c.shared[i].plug.AfterServerUpdate(c.shared[i].state)
		}
		c.pendingMask = 0
	}

	h.pruneDead(conns)
}

func (h *Hub) snapshotOrdered() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, len(h.order))
	for i, id := range h.order {
		conns[i] = h.clients[id]
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	return conns
}

func (h *Hub) drainActions() (added, removed []*Conn) {
	h.actionsMu.Lock()
	actions := h.actions
	h.actions = nil
	h.actionsMu.Unlock()

	for _, a := range actions {
		switch a.kind {
		case actionAdd:
			added = append(added, a.conn)
		case actionRemove:
			removed = append(removed, a.conn)
		}
	}
	return added, removed
}

func (h *Hub) commitAdds(added []*Conn) {
	if len(added) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range added {
		h.clients[c.id] = c
		h.order = append(h.order, c.id)
	}
	h.mu.Unlock()

	for _, c := range added {
		for i := range c.shared {
			e := &c.shared[i]
			state, err := e.plug.ConnectClient(c.id)
			if err != nil {
				h.log.Warnw("plug-in refused connect-client", "plugin", e.plug.Name(), "client", c.id, "err", err)
				continue
			}
			e.state = state
		}
	}
}

func (h *Hub) commitRemoves(removed []*Conn) {
	if len(removed) == 0 {
		return
	}
	for _, c := range removed {
		for i := range c.shared {
			e := &c.shared[i]
			e.plug.DisconnectClient(c.id, e.state)
		}
	}

	h.mu.Lock()
	for _, c := range removed {
		delete(h.clients, c.id)
	}
	newOrder := h.order[:0:0]
	for _, id := range h.order {
		if _, ok := h.clients[id]; ok {
			newOrder = append(newOrder, id)
		}
	}
	h.order = newOrder
	h.mu.Unlock()
}

// sendTickTo writes dest's deferred join/leave notices for this tick and
// its SERVER_UPDATE. A write failure marks dest dead for pruning at the end
// of Tick rather than retried (5.).
func (h *Hub) sendTickTo(dest *Conn, all []*Conn, added map[uint32]bool, removedIDs []uint32) {
	dest.pipeMu.Lock()
	defer dest.pipeMu.Unlock()

	for _, c := range all {
		if !added[c.id] || c.id == dest.id {
			continue
		}
		if err := writeClientConnect(dest, c); err != nil {
			dest.dead.Store(true)
			return
		}
	}

	for _, id := range removedIDs {
		if id == dest.id {
			continue
		}
		if err := dest.pipe.WriteUint16(proto.ClientDisconnect); err != nil {
			dest.dead.Store(true)
			return
		}
		if err := dest.pipe.WriteUint32(id); err != nil {
			dest.dead.Store(true)
			return
		}
	}

	if err := dest.pipe.WriteUint16(proto.ServerUpdate); err != nil {
		dest.dead.Store(true)
		return
	}
	peerCount := 0
	for _, src := range all {
		if src.id != dest.id {
			peerCount++
		}
	}
	if err := dest.pipe.WriteUint32(uint32(peerCount)); err != nil {
		dest.dead.Store(true)
		return
	}

	// No base-protocol component needs a connection-wide, non-per-peer
	// payload slot here (every ClientPlugin.ReceiveServerUpdateGlobal in
	// this build is a no-op), so that section of SERVER_UPDATE is omitted
	// from the wire entirely rather than writing an empty marker for it.

	for _, src := range all {
		if src.id == dest.id {
			continue
		}
		if err := dest.pipe.WriteUint32(src.id); err != nil {
			dest.dead.Store(true)
			return
		}
		if err := src.state.WriteDelta(dest.pipe, src.pendingMask); err != nil {
			dest.dead.Store(true)
			return
		}

		for _, pe := range pairShared(src.shared, dest.shared) {
			if err := pe.plug.SendServerUpdate(pe.srcState, pe.destState, dest.pipe.Raw()); err != nil {
				dest.dead.Store(true)
				return
			}
		}
	}
}

// writeClientConnect writes one CLIENT_CONNECT entry for peer onto dest's
// pipe (dest.pipeMu already held by the caller).
func writeClientConnect(dest, peer *Conn) error {
	if err := dest.pipe.WriteUint16(proto.ClientConnect); err != nil {
		return err
	}
	if err := dest.pipe.WriteUint32(peer.id); err != nil {
		return err
	}
	if err := peer.state.WriteFull(dest.pipe); err != nil {
		return err
	}
	common := peerEntriesSharedWith(peer.shared, dest.shared)
	if err := dest.pipe.WriteUint32(uint32(len(common))); err != nil {
		return err
	}
	for _, e := range common {
		if err := dest.pipe.WriteUint32(uint32(e.index)); err != nil {
			return err
		}
		if err := dest.pipe.WriteUint32(uint32(len(e.connectPayload))); err != nil {
			return err
		}
		if err := dest.pipe.WriteBytes(e.connectPayload); err != nil {
			return err
		}
	}
	return nil
}

// pruneDead removes every client whose pipe write failed during this tick,
// running the same per-plug-in teardown as a graceful DISCONNECT_REQUEST.
func (h *Hub) pruneDead(conns []*Conn) {
	var dead []*Conn
	for _, c := range conns {
		if c.dead.Load() {
			dead = append(dead, c)
		}
	}
	h.commitRemoves(dead)
}
