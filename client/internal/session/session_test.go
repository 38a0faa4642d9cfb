package session

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/config"
	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/proto"
	"github.com/vrhub/collab/wire"
)

// fakeRemoteState is the opaque per-peer state fakeClientPlugin creates.
type fakeRemoteState struct {
	mu    sync.Mutex
	value uint32
}

// fakeClientPlugin is a minimal plugin.ClientPlugin: an empty connect
// payload, and a single local value relayed via CLIENT_UPDATE/SERVER_UPDATE
// the same way plugins/cheria et al. self-frame their batch payloads in
// fixed big-endian, independent of the pipe's negotiated byte order.
type fakeClientPlugin struct {
	name     string
	value    sync.Mutex // guards local
	local    uint32
	rejected bool
}

func (f *fakeClientPlugin) Name() string                               { return f.name }
func (f *fakeClientPlugin) NumMessages() int                            { return 0 }
func (f *fakeClientPlugin) Initialize(plugin.Host, plugin.Config) error { return nil }

func (f *fakeClientPlugin) WriteConnectRequestPayload(io.Writer) error      { return nil }
func (f *fakeClientPlugin) ReceiveConnectReply(io.Reader, uint16) error     { return nil }
func (f *fakeClientPlugin) ReceiveConnectReject(io.Reader) error            { return nil }
func (f *fakeClientPlugin) RejectedByServer()                              { f.rejected = true }
func (f *fakeClientPlugin) ReceiveClientConnect(io.Reader) (any, error)     { return &fakeRemoteState{}, nil }
func (f *fakeClientPlugin) DisconnectRemote(any)                           {}
func (f *fakeClientPlugin) ReceiveServerUpdateGlobal(io.Reader) error      { return nil }
func (f *fakeClientPlugin) Frame()                                        {}
func (f *fakeClientPlugin) FrameRemote(any)                                {}
func (f *fakeClientPlugin) HandleMessage(uint16, io.Reader) bool          { return false }

func (f *fakeClientPlugin) setLocal(v uint32) {
	f.value.Lock()
	f.local = v
	f.value.Unlock()
}

func (f *fakeClientPlugin) SendClientUpdate(w io.Writer) error {
	f.value.Lock()
	v := f.local
	f.value.Unlock()
	return binary.Write(w, binary.BigEndian, v)
}

func (f *fakeClientPlugin) ReceiveServerUpdateRemote(state any, r io.Reader) error {
	var v uint32
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return err
	}
	rs := state.(*fakeRemoteState)
	rs.mu.Lock()
	rs.value = v
	rs.mu.Unlock()
	return nil
}

func newTestSession(t *testing.T, plugins ...plugin.ClientPlugin) *Session {
	t.Helper()
	s := New(zap.NewNop().Sugar())
	cfg, err := config.Load("")
	require.NoError(t, err)
	for _, p := range plugins {
		require.NoError(t, s.Register(p, cfg))
	}
	return s
}

// serverSide drives the peer half of the pipe, playing the server's part of
// the handshake and fan-out by hand (server/internal/hub cannot be imported
// from here — it lives under a different internal tree — so the protocol
// bytes are driven directly, matching hub's own wire behavior exactly).
type serverSide struct {
	t    *testing.T
	pipe *wire.Pipe
}

func dialServerSide(t *testing.T, conn net.Conn) *serverSide {
	t.Helper()
	p, err := wire.NegotiateEndian(conn, binary.BigEndian)
	require.NoError(t, err)
	return &serverSide{t: t, pipe: p}
}

type clientProposal struct {
	name    string
	payload []byte
}

// readConnectRequest reads CONNECT_REQUEST and returns the client's initial
// state and proposed plug-in list.
func (sv *serverSide) readConnectRequest() (basestate.State, []clientProposal) {
	sv.t.Helper()
	id, err := sv.pipe.ReadUint16()
	require.NoError(sv.t, err)
	require.Equal(sv.t, proto.ConnectRequest, id)

	state, err := basestate.ReadFull(sv.pipe)
	require.NoError(sv.t, err)

	n, err := sv.pipe.ReadUint32()
	require.NoError(sv.t, err)

	proposals := make([]clientProposal, n)
	for i := range proposals {
		name, err := sv.pipe.ReadString()
		require.NoError(sv.t, err)
		size, err := sv.pipe.ReadUint32()
		require.NoError(sv.t, err)
		buf := make([]byte, size)
		require.NoError(sv.t, sv.pipe.ReadBytes(buf))
		proposals[i] = clientProposal{name: name, payload: buf}
	}
	return state, proposals
}

// acceptEntry is one plug-in the fake server accepts, keyed by its
// server-wide registry index (matching the client's own registration order,
// since this is a single-build system where both sides know the fixed
// plug-in set — see negotiate.go).
type acceptEntry struct {
	index uint32
	base  uint16
}

func (sv *serverSide) sendConnectReply(entries []acceptEntry) {
	sv.t.Helper()
	require.NoError(sv.t, sv.pipe.WriteUint16(proto.ConnectReply))
	require.NoError(sv.t, sv.pipe.WriteUint32(uint32(len(entries))))
	for _, e := range entries {
		require.NoError(sv.t, sv.pipe.WriteUint32(e.index))
		require.NoError(sv.t, sv.pipe.WriteUint32(uint32(e.base)))
		// fakeClientPlugin's WriteConnectRequestPayload writes nothing, and
		// ReceiveConnectReply reads nothing — no reply payload bytes here.
	}
}

// sendClientConnect writes one CLIENT_CONNECT for peerID, replaying a
// verbatim shared-plugin payload per accepted index — matching hub's own
// CLIENT_CONNECT framing exactly (index, size, bytes).
func (sv *serverSide) sendClientConnect(peerID uint32, state basestate.State, shared []acceptEntry) {
	sv.t.Helper()
	require.NoError(sv.t, sv.pipe.WriteUint16(proto.ClientConnect))
	require.NoError(sv.t, sv.pipe.WriteUint32(peerID))
	require.NoError(sv.t, state.WriteFull(sv.pipe))
	require.NoError(sv.t, sv.pipe.WriteUint32(uint32(len(shared))))
	for _, e := range shared {
		require.NoError(sv.t, sv.pipe.WriteUint32(e.index))
		require.NoError(sv.t, sv.pipe.WriteUint32(0)) // empty verbatim payload
	}
}

func (sv *serverSide) sendClientDisconnect(peerID uint32) {
	sv.t.Helper()
	require.NoError(sv.t, sv.pipe.WriteUint16(proto.ClientDisconnect))
	require.NoError(sv.t, sv.pipe.WriteUint32(peerID))
}

// sendServerUpdate writes one SERVER_UPDATE naming a single peer, its delta
// ClientState under mask, and (if withPlugin) a uint32 plug-in payload.
func (sv *serverSide) sendServerUpdate(peerID uint32, state basestate.State, mask uint8, withPlugin bool, pluginVal uint32) {
	sv.t.Helper()
	require.NoError(sv.t, sv.pipe.WriteUint16(proto.ServerUpdate))
	require.NoError(sv.t, sv.pipe.WriteUint32(1))
	require.NoError(sv.t, sv.pipe.WriteUint32(peerID))
	require.NoError(sv.t, state.WriteDelta(sv.pipe, mask))
	if withPlugin {
		require.NoError(sv.t, binary.Write(sv.pipe.Raw(), binary.BigEndian, pluginVal))
	}
}

// readClientUpdate reads the client's CLIENT_UPDATE in response, applying
// its delta against mirror and reading one plug-in's uint32 payload if
// withPlugin.
func (sv *serverSide) readClientUpdate(mirror *basestate.State, withPlugin bool) uint32 {
	sv.t.Helper()
	id, err := sv.pipe.ReadUint16()
	require.NoError(sv.t, err)
	require.Equal(sv.t, proto.ClientUpdate, id)
	require.NoError(sv.t, mirror.ApplyDelta(sv.pipe))
	if !withPlugin {
		return 0
	}
	var v uint32
	require.NoError(sv.t, binary.Read(sv.pipe.Raw(), binary.BigEndian, &v))
	return v
}

func TestSessionHandshakeWithSharedPlugin(t *testing.T) {
	plug := &fakeClientPlugin{name: "echo"}
	s := newTestSession(t, plug)

	client, server := net.Pipe()
	sv := dialServerSide(t, server)

	done := make(chan error, 1)
	go func() {
		local := basestate.New()
		local.ClientName = "alice"
		done <- s.Connect(context.Background(), client, local)
	}()

	_, proposals := sv.readConnectRequest()
	require.Len(t, proposals, 1)
	require.Equal(t, "echo", proposals[0].name)
	sv.sendConnectReply([]acceptEntry{{index: 0, base: uint16(proto.MessagesEnd)}})

	require.NoError(t, <-done)
	require.Len(t, s.shared, 1)
	require.Equal(t, 0, s.shared[0].index)
}

func TestSessionRejectedPluginGetsRejectedByServer(t *testing.T) {
	accepted := &fakeClientPlugin{name: "echo"}
	rejected := &fakeClientPlugin{name: "unused"}
	s := newTestSession(t, accepted, rejected)

	client, server := net.Pipe()
	sv := dialServerSide(t, server)

	done := make(chan error, 1)
	go func() { done <- s.Connect(context.Background(), client, basestate.New()) }()

	_, proposals := sv.readConnectRequest()
	require.Len(t, proposals, 2)
	// Only "echo" (index 0) is accepted; "unused" (index 1) is silently
	// dropped from CONNECT_REPLY, matching P7's per-plug-in rejection.
	sv.sendConnectReply([]acceptEntry{{index: 0, base: uint16(proto.MessagesEnd)}})

	require.NoError(t, <-done)
	require.Len(t, s.shared, 1)
	require.True(t, rejected.rejected)
	require.False(t, accepted.rejected)
}

// TestSessionFanOutRelaysRemoteStateAndPlugin exercises the full CONNECTED
// loop: a peer join delivered via CLIENT_CONNECT, a SERVER_UPDATE relaying
// that peer's state and shared plug-in payload, and the resulting
// lockstep CLIENT_UPDATE the session sends back.
func TestSessionFanOutRelaysRemoteStateAndPlugin(t *testing.T) {
	plug := &fakeClientPlugin{name: "echo"}
	s := newTestSession(t, plug)

	client, server := net.Pipe()
	sv := dialServerSide(t, server)

	done := make(chan error, 1)
	go func() {
		local := basestate.New()
		local.ClientName = "alice"
		done <- s.Connect(context.Background(), client, local)
	}()

	_, proposals := sv.readConnectRequest()
	require.Len(t, proposals, 1)
	entries := []acceptEntry{{index: 0, base: uint16(proto.MessagesEnd)}}
	sv.sendConnectReply(entries)
	require.NoError(t, <-done)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	peerState := basestate.New()
	peerState.ClientName = "bob"
	sv.sendClientConnect(7, peerState, entries)

	require.Eventually(t, func() bool {
		return s.Remote(7) != nil
	}, time.Second, time.Millisecond)

	plug.setLocal(99)
	sv.sendServerUpdate(7, peerState, 0, true, 42)

	mirror := basestate.New()
	mirror.ClientName = "bob"
	gotPluginVal := sv.readClientUpdate(&mirror, true)
	require.Equal(t, uint32(99), gotPluginVal)

	remote := s.Remote(7)
	require.NotNil(t, remote)
	st, ok := remote.State()
	require.True(t, ok)
	require.Equal(t, "bob", st.ClientName)
	rs := remote.shared[0].state.(*fakeRemoteState)
	rs.mu.Lock()
	require.Equal(t, uint32(42), rs.value)
	rs.mu.Unlock()

	sv.sendClientDisconnect(7)
	require.Eventually(t, func() bool {
		return s.Remote(7) == nil
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, client.Close())
	<-runDone
}
