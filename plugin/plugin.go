// Package plugin defines the host interfaces that protocol modules
// (input-device sharing, shared annotations, audio, video) implement to
// ride on top of the base connection engines. A plug-in is identified by a
// stable string Name; the server-side and client-side halves are
// independent objects bound only by that name, matching the trait +
// tagged-variant pattern used in place of a virtual-hook base class
// hierarchy.
package plugin

import "io"

// Plugin is the identity and id-range contract every protocol module
// implements, on both the server and the client.
type Plugin interface {
	// Name is the string other endpoints negotiate by. Stable across
	// versions.
	Name() string

	// NumMessages is the size of this plug-in's message-id range,
	// allocated contiguously by the registry starting at its assigned
	// base.
	NumMessages() int

	// Initialize is called once at registration, before any connection is
	// accepted or opened. host exposes the facilities (logging, media
	// sinks) a plug-in needs without it reaching into the engine directly.
	Initialize(host Host, config Config) error
}

// Host is the subset of engine facilities a plug-in may call back into.
// Kept minimal and explicit per the "explicit subscription, not global
// observer lists" design note.
type Host interface {
	// Log returns a named sub-logger for this plug-in's own diagnostics.
	Log(name string) Logger
}

// Logger is the narrow logging surface plug-ins see; satisfied by a
// zap.SugaredLogger wrapper in the production binaries.
type Logger interface {
	Debugw(msg string, kv ...any)
	Infow(msg string, kv ...any)
	Warnw(msg string, kv ...any)
	Errorw(msg string, kv ...any)
}

// Config is a narrow read-only view of a plug-in's configuration
// subsection, keyed by plug-in name in the hierarchical config tree.
type Config interface {
	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool
}

// FailSentinel is returned by any plug-in hook that refuses to proceed; the
// host maps it to a session-terminating protocol or negotiation error.
var FailSentinel = fail{}

type fail struct{}

func (fail) Error() string { return "plugin: hook refused" }

// ServerPlugin is the server-side half of a protocol module.
type ServerPlugin interface {
	Plugin

	// ReceiveConnectRequest reads this plug-in's declared payload out of
	// the CONNECT_REQUEST stream (payloadLen bytes already framed by the
	// caller) and decides whether to accept the client's proposal.
	// Returning an error records the protocol as unavailable for this
	// connection rather than failing the whole handshake.
	ReceiveConnectRequest(r io.Reader, payloadLen uint32) (accept bool, err error)

	// WriteConnectReplyPayload writes this plug-in's own payload into an
	// accepted CONNECT_REPLY entry.
	WriteConnectReplyPayload(w io.Writer) error

	// ConnectClient is called once the plug-in's per-client opaque state
	// should be created, after negotiation completes successfully.
	ConnectClient(clientID uint32) (state any, err error)

	// DisconnectClient destroys a client's opaque state.
	DisconnectClient(clientID uint32, state any)

	// ReceiveClientUpdate consumes this plug-in's portion of a
	// CLIENT_UPDATE message for the given client's opaque state.
	ReceiveClientUpdate(state any, r io.Reader) error

	// BeforeServerUpdate is called once per tick before any per-client
	// hook, with no client argument (global hook).
	BeforeServerUpdate()

	// BeforeServerUpdateClient is called once per tick for each locked
	// client state, before SERVER_UPDATE composition begins for it.
	BeforeServerUpdateClient(state any)

	// SendServerUpdate writes this plug-in's payload comparing source
	// client state (state) against destination client state (destState)
	// into a peer's SERVER_UPDATE entry. Only called for clients that
	// negotiated this plug-in as shared.
	SendServerUpdate(state, destState any, w io.Writer) error

	// AfterServerUpdate is called once per tick per client, after
	// SERVER_UPDATE has been sent to every destination.
	AfterServerUpdate(state any)
}

// ClientPlugin is the client-side half of a protocol module.
type ClientPlugin interface {
	Plugin

	// WriteConnectRequestPayload writes this plug-in's payload into the
	// client's CONNECT_REQUEST plug-in proposal list.
	WriteConnectRequestPayload(w io.Writer) error

	// ReceiveConnectReply reads this plug-in's payload out of an accepted
	// CONNECT_REPLY entry; messageIDBase is the server-assigned id-range
	// base this plug-in now owns on the wire.
	ReceiveConnectReply(r io.Reader, messageIDBase uint16) error

	// ReceiveConnectReject reads this plug-in's payload out of a
	// CONNECT_REJECT entry when its proposal was not accepted.
	ReceiveConnectReject(r io.Reader) error

	// RejectedByServer is invoked after ReceiveConnectReject, and also for
	// every plug-in that the server's CONNECT_REPLY leaves out of the
	// shared list; the plug-in should free any state it speculatively
	// allocated.
	RejectedByServer()

	// ReceiveClientConnect creates this plug-in's per-remote opaque state
	// when a peer shares this plug-in, reading its CLIENT_CONNECT payload.
	ReceiveClientConnect(r io.Reader) (remoteState any, err error)

	// DisconnectRemote destroys a peer's opaque remote state.
	DisconnectRemote(remoteState any)

	// SendClientUpdate writes this plug-in's portion of the outgoing
	// CLIENT_UPDATE.
	SendClientUpdate(w io.Writer) error

	// ReceiveServerUpdateGlobal reads this plug-in's global payload out of
	// a SERVER_UPDATE (present once per message, not per peer).
	ReceiveServerUpdateGlobal(r io.Reader) error

	// ReceiveServerUpdateRemote reads this plug-in's per-peer payload for
	// remoteState out of a SERVER_UPDATE peer block.
	ReceiveServerUpdateRemote(remoteState any, r io.Reader) error

	// Frame is the embedder's global per-tick hook (no peer argument).
	Frame()

	// FrameRemote is the embedder's per-tick hook for a given peer's
	// remote state, used by plug-ins that drain accumulated message
	// buffers (devices, curves, video) on the render thread.
	FrameRemote(remoteState any)

	// HandleMessage is the fallback dispatch for any message id in this
	// plug-in's range not covered by the hooks above. Returning false
	// terminates the connection as a protocol error.
	HandleMessage(id uint16, r io.Reader) bool
}
