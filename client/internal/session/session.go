// Package session implements the client connection engine: the single
// duplex pipe to the server, the handshake that negotiates which plug-ins
// ride on it, and the one receive goroutine that both dispatches incoming
// messages and — per the base protocol's lockstep design — sends the
// client's own CLIENT_UPDATE immediately after processing each incoming
// SERVER_UPDATE.
package session

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vrhub/collab/basestate"
	"github.com/vrhub/collab/config"
	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/proto"
	"github.com/vrhub/collab/wire"
)

// byteOrder is the wire order this process writes in; NegotiateEndian flags
// swapOnRead for a peer whose marker shows the opposite order.
var byteOrder = binary.BigEndian

// clientShared is one plug-in this session negotiated successfully with the
// server: its server-wide registry index (stable across every client,
// because both halves of this build register the same fixed plug-in set in
// the same order), the message-id base the server assigned it, and the
// plug-in itself.
type clientShared struct {
	index         int
	messageIDBase uint16
	plug          plugin.ClientPlugin
}

// Session owns the duplex pipe to one server and every remote participant's
// mirrored state. One receive goroutine handles all inbound traffic; the
// embedder's own goroutine only mutates state under stateMu via SetState.
type Session struct {
	registry *proto.Registry
	byIndex  []plugin.ClientPlugin // registration order, parallel to registry bindings

	log *zap.SugaredLogger

	pipeMu sync.Mutex
	pipe   *wire.Pipe
	rw     io.ReadWriteCloser

	stateMu     sync.Mutex
	state       basestate.State
	pendingMask uint8
	shared      []clientShared

	remotesMu sync.RWMutex
	remotes   map[uint32]*RemoteClient

	connected atomic.Bool

	cbMu           sync.RWMutex
	onDisconnected func(error)
}

// New returns an empty Session. Plug-ins must be registered via Register
// before Connect is called.
func New(log *zap.SugaredLogger) *Session {
	return &Session{
		registry: proto.NewRegistry(),
		remotes:  make(map[uint32]*RemoteClient),
		log:      log,
	}
}

// pluginHost adapts a *zap.SugaredLogger to plugin.Host, matching the
// server-side hub's pluginHost.
type pluginHost struct{ log *zap.SugaredLogger }

func (h pluginHost) Log(name string) plugin.Logger { return zapPluginLogger{h.log.Named(name)} }

type zapPluginLogger struct{ l *zap.SugaredLogger }

func (z zapPluginLogger) Debugw(msg string, kv ...any) { z.l.Debugw(msg, kv...) }
func (z zapPluginLogger) Infow(msg string, kv ...any)  { z.l.Infow(msg, kv...) }
func (z zapPluginLogger) Warnw(msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z zapPluginLogger) Errorw(msg string, kv ...any) { z.l.Errorw(msg, kv...) }

// Register extends this session's registry by p's range and initializes it
// with its own configuration subsection. Must be called before Connect;
// registration order must match the server's for clientLocalIndex values in
// CONNECT_REPLY to resolve to the right local plug-in.
func (s *Session) Register(p plugin.ClientPlugin, cfg *config.Tree) error {
	if err := p.Initialize(pluginHost{s.log}, cfg.Sub(p.Name())); err != nil {
		return err
	}
	s.registry.Register(p)
	s.byIndex = append(s.byIndex, p)
	return nil
}

// SetOnDisconnected registers a callback fired once, from the receive
// goroutine, when the session terminates for any reason. err is nil only
// when the session ends because its context was canceled; a local Close
// surfaces as the transport error the closed stream produces.
func (s *Session) SetOnDisconnected(fn func(error)) {
	s.cbMu.Lock()
	s.onDisconnected = fn
	s.cbMu.Unlock()
}

// Connected reports whether the receive loop is currently running.
func (s *Session) Connected() bool { return s.connected.Load() }

// SetState applies mutate to the locally buffered ClientState under its
// mutex and ORs mask into the pending CLIENT_UPDATE mask — the embedder's
// frame callback is the only caller. The receive goroutine reads this state
// when composing the next CLIENT_UPDATE (4.E).
func (s *Session) SetState(mask uint8, mutate func(*basestate.State)) {
	s.stateMu.Lock()
	mutate(&s.state)
	s.pendingMask |= mask
	s.stateMu.Unlock()
}

// Remote returns the mirrored state for a connected peer, or nil if unknown.
func (s *Session) Remote(id uint32) *RemoteClient {
	s.remotesMu.RLock()
	defer s.remotesMu.RUnlock()
	return s.remotes[id]
}

// Remotes returns every currently known peer id.
func (s *Session) Remotes() []uint32 {
	s.remotesMu.RLock()
	defer s.remotesMu.RUnlock()
	out := make([]uint32, 0, len(s.remotes))
	for id := range s.remotes {
		out = append(out, id)
	}
	return out
}

// Connect dials nothing itself — rw is an already-open duplex stream (a
// QUIC/WebTransport stream pair, a net.Conn, or a net.Pipe half in tests) —
// and runs the full START-state handshake (4.E): endianness negotiation,
// CONNECT_REQUEST with local and every registered plug-in's payload, then
// exactly one of CONNECT_REPLY or CONNECT_REJECT.
func (s *Session) Connect(ctx context.Context, rw io.ReadWriteCloser, local basestate.State) error {
	pipe, err := wire.NegotiateEndian(rw, byteOrder)
	if err != nil {
		return proto.TransportError(err)
	}
	s.pipe = pipe
	s.rw = rw
	s.state = local

	if err := s.sendConnectRequest(); err != nil {
		return err
	}
	return s.readConnectReplyOrReject()
}

// Run drains the session's single receive goroutine until the peer
// disconnects, the transport fails, or ctx is canceled. Blocks for the
// lifetime of the connection.
func (s *Session) Run(ctx context.Context) error {
	s.connected.Store(true)
	defer s.connected.Store(false)

	err := s.recvLoop(ctx)

	s.cbMu.RLock()
	cb := s.onDisconnected
	s.cbMu.RUnlock()
	if cb != nil {
		cb(err)
	}
	return err
}

// Close tears down the transport from the embedder side (e.g. user-initiated
// disconnect). The receive goroutine observes the resulting read error and
// Run returns.
func (s *Session) Close() error {
	if s.rw == nil {
		return nil
	}
	return s.rw.Close()
}
