package proto

import "github.com/cockroachdb/errors"

// The three fatal error kinds named in the error-handling design: transport
// errors and protocol errors both tear down the connection immediately;
// negotiation failures are answered with CONNECT_REJECT before teardown.
var (
	// ErrTransport wraps a pipe read/write failure. Fatal for the
	// connection it occurred on; never propagated to other clients.
	ErrTransport = errors.New("proto: transport error")

	// ErrProtocol wraps an unknown message id, a payload-length mismatch,
	// or a plug-in's handleMessage returning false.
	ErrProtocol = errors.New("proto: protocol error")

	// ErrNegotiation wraps a version mismatch, a plug-in rejecting a
	// request, or a missing required capability during CONNECT_REQUEST
	// processing.
	ErrNegotiation = errors.New("proto: negotiation failed")
)

// TransportError wraps err as a fatal transport error.
func TransportError(err error) error { return errors.Wrap(ErrTransport, err.Error()) }

// ProtocolError formats msg as a fatal protocol error.
func ProtocolError(msg string) error { return errors.Wrap(ErrProtocol, msg) }

// NegotiationError formats msg as a negotiation failure.
func NegotiationError(msg string) error { return errors.Wrap(ErrNegotiation, msg) }
