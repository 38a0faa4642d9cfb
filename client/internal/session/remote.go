package session

import (
	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/wire"
)

// remoteShared is one plug-in this remote peer and the local session both
// negotiated with the server, carrying the peer's own opaque remote state
// created by ReceiveClientConnect.
type remoteShared struct {
	index         int
	messageIDBase uint16
	plug          plugin.ClientPlugin
	state         any
}

// RemoteClient is the client-side mirror of one other connected peer (3.
// Per-remote-client state). The receive goroutine is the sole producer of
// State; the embedder's frame/render callbacks are the sole consumer,
// reading through the triple buffer so neither side ever blocks the other.
type RemoteClient struct {
	id uint32

	buf    *wire.TripleBuffer[basestate.State]
	mirror basestate.State // receive-goroutine-private; buf.Write publishes a copy of this

	shared []remoteShared
}

// ID returns the peer's server-assigned identifier.
func (r *RemoteClient) ID() uint32 { return r.id }

// State returns the most recently published mirror of the peer's
// ClientState. ok is false only before the first publish, which cannot
// happen for a RemoteClient obtained via Session.Remote/Remotes since one is
// never created without an initial CLIENT_CONNECT snapshot.
func (r *RemoteClient) State() (basestate.State, bool) { return r.buf.Read() }

func newRemoteClient(id uint32, initial basestate.State) *RemoteClient {
	r := &RemoteClient{id: id, buf: wire.NewTripleBuffer[basestate.State](), mirror: initial}
	r.buf.Write(initial)
	return r
}
