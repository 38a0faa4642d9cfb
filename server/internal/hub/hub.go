// Package hub implements the server connection engine: the accept loop,
// per-client receive state machine, and the fan-out tick that relays every
// client's state to every other client sharing a plug-in with it.
package hub

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vrhub/collab/config"
	"github.com/vrhub/collab/plugin"
	"github.com/vrhub/collab/proto"
)

// byteOrder is the wire order this process writes in; NegotiateEndian
// flags swapOnRead for a peer that differs.
var byteOrder = binary.BigEndian

// Hub holds every connected client and drives the periodic fan-out tick.
// It owns no transport of its own — Accept is handed an already-open
// io.ReadWriteCloser per connection (a QUIC/WebTransport stream pair, a
// net.Conn, or a net.Pipe half in tests) and spawns its receive goroutine.
type Hub struct {
	registry *proto.Registry
	plugins  []plugin.ServerPlugin // registration order, parallel to registry bindings

	mu      sync.RWMutex
	clients map[uint32]*Conn
	order   []uint32 // client ids in ascending join order, for deterministic lock/iterate order
	nextID  atomic.Uint32

	actionsMu sync.Mutex
	actions   []action

	log *zap.SugaredLogger

	totalMessages atomic.Uint64
	totalBytes    atomic.Uint64

	// connLimiter throttles how fast new connection attempts are admitted
	// to handleStart, independent of any per-client rate limiting a plug-in
	// does once connected. nil (the default) means unlimited.
	connLimiter *rate.Limiter
}

// SetConnectionRateLimit bounds the rate of new Accept calls that proceed
// to the handshake, guarding against a connection-attempt flood before any
// per-client state exists to hold it. burst is the number of attempts
// allowed in a sudden spike before the steady-state limit applies.
func (h *Hub) SetConnectionRateLimit(perSecond float64, burst int) {
	h.connLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

type actionKind int

const (
	actionAdd actionKind = iota
	actionRemove
)

type action struct {
	kind actionKind
	conn *Conn
}

// New returns an empty Hub. Plug-ins must be registered via Register before
// Accept is called for the first connection.
func New(log *zap.SugaredLogger) *Hub {
	return &Hub{
		registry: proto.NewRegistry(),
		clients:  make(map[uint32]*Conn),
		log:      log,
	}
}

// pluginHost adapts a *zap.SugaredLogger to plugin.Host.
type pluginHost struct{ log *zap.SugaredLogger }

func (h pluginHost) Log(name string) plugin.Logger { return zapPluginLogger{h.log.Named(name)} }

type zapPluginLogger struct{ l *zap.SugaredLogger }

func (z zapPluginLogger) Debugw(msg string, kv ...any) { z.l.Debugw(msg, kv...) }
func (z zapPluginLogger) Infow(msg string, kv ...any)  { z.l.Infow(msg, kv...) }
func (z zapPluginLogger) Warnw(msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z zapPluginLogger) Errorw(msg string, kv ...any) { z.l.Errorw(msg, kv...) }

// Register extends the message-id registry by p's range and initializes it
// with its own configuration subsection. Must be called before any
// connection is accepted (4.B).
func (h *Hub) Register(p plugin.ServerPlugin, cfg *config.Tree) error {
	if err := p.Initialize(pluginHost{h.log}, cfg.Sub(p.Name())); err != nil {
		return err
	}
	h.registry.Register(p)
	h.plugins = append(h.plugins, p)
	return nil
}

// ClientCount returns the number of clients currently in the committed
// client list (post negotiation, pre- or post-tick-commit).
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns the cumulative message counter since startup and the
// current client count, for the operator metrics surface. Bytes are not
// counted: the bytes value is always zero.
func (h *Hub) Stats() (messages, bytes uint64, clients int) {
	return h.totalMessages.Load(), h.totalBytes.Load(), h.ClientCount()
}

// Accept negotiates endianness and the CONNECT_REQUEST/REPLY/REJECT
// handshake on rw, then — on success — runs the connection's receive loop
// until it terminates. Blocks for the lifetime of the connection; callers
// spawn one goroutine per accepted transport stream.
func (h *Hub) Accept(ctx context.Context, rw io.ReadWriteCloser) error {
	defer rw.Close()

	// attemptID correlates this connection's log lines across the
	// handshake, before conn.id has been assigned (and for attempts that
	// never get one).
	attemptID := uuid.NewString()

	if h.connLimiter != nil && !h.connLimiter.Allow() {
		h.log.Debugw("connection attempt rejected by rate limiter", "attempt", attemptID)
		return proto.NegotiationError("connection rate limit exceeded")
	}

	pipe, err := negotiateEndian(rw)
	if err != nil {
		h.log.Debugw("endian negotiation failed", "attempt", attemptID, "error", err)
		return err
	}

	conn, err := h.handleStart(pipe)
	if err != nil {
		h.log.Debugw("handshake failed", "attempt", attemptID, "error", err)
		return err
	}
	if conn == nil {
		return nil // CONNECT_REJECT sent; peer is expected to close.
	}

	h.log.Infow("client connected", "attempt", attemptID, "client", conn.id)
	h.queueAction(action{kind: actionAdd, conn: conn})
	conn.serve(ctx, h)
	h.queueAction(action{kind: actionRemove, conn: conn})
	h.log.Infow("client disconnected", "attempt", attemptID, "client", conn.id)
	return nil
}

func (h *Hub) queueAction(a action) {
	h.actionsMu.Lock()
	h.actions = append(h.actions, a)
	h.actionsMu.Unlock()
}

// RunTicks calls Tick every period until ctx is canceled, matching the
// embedder-driven fan-out cadence described by collaboration.tickTime
// (default 20 ms).
func (h *Hub) RunTicks(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}
