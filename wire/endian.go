package wire

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
)

// endianMarker is exchanged verbatim by both sides immediately after
// connect. Its value is arbitrary; only the byte pattern matters.
const endianMarker = uint16(0x0102)

// NegotiateEndian exchanges the marker byte pair with the peer and returns a
// Pipe configured for this process's native order, with swapOnRead set if
// the peer's marker shows the opposite byte order. local is the byte order
// this process uses when writing (big-endian in the production binaries, to
// match the original protocol's network order).
func NegotiateEndian(rw io.ReadWriter, local binary.ByteOrder) (*Pipe, error) {
	var out [2]byte
	local.PutUint16(out[:], endianMarker)
	if _, err := rw.Write(out[:]); err != nil {
		return nil, errors.Wrap(err, "wire: write endian marker")
	}

	var in [2]byte
	if _, err := io.ReadFull(rw, in[:]); err != nil {
		return nil, errors.Wrap(err, "wire: read endian marker")
	}

	p := &Pipe{rw: rw, order: local}
	if local.Uint16(in[:]) != endianMarker {
		// The peer's bytes only decode to the marker under the opposite
		// order: flag every subsequent read for swapping.
		p.swapOnRead = true
	}
	return p, nil
}
