// Package wire implements the framed binary protocol shared by the server
// and client connection engines: typed reads/writes over a duplex byte
// stream, endianness negotiation, geometric types, and the two lock-free
// buffer primitives (TripleBuffer, Ring) used throughout the media
// pipelines.
package wire

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/cockroachdb/errors"
)

// ErrShortRead is returned when the underlying stream yields fewer bytes
// than a primitive requires before EOF.
var ErrShortRead = errors.New("wire: short read")

// Pipe wraps an io.ReadWriter with typed marshalling for the base protocol
// and every plug-in's wire format. All cardinals are 32-bit unsigned and all
// scalars are 32-bit IEEE-754 floats on the wire, per the base protocol.
// Byte order is fixed at negotiation time; Pipe never renegotiates.
type Pipe struct {
	rw         io.ReadWriter
	order      binary.ByteOrder
	swapOnRead bool
}

// NewPipe wraps rw assuming native byte order and no swap. Used by tests
// and by callers that have already negotiated endianness out of band.
func NewPipe(rw io.ReadWriter, order binary.ByteOrder) *Pipe {
	return &Pipe{rw: rw, order: order}
}

// SwapOnRead reports whether this pipe's peer uses the opposite byte order.
func (p *Pipe) SwapOnRead() bool { return p.swapOnRead }

// Raw returns the underlying duplex stream, for callers that hand a plug-in
// its own io.Reader/io.Writer to self-frame a sub-protocol on (every
// plug-in payload is its own length-prefixed run of bytes within the base
// protocol message it rides inside, always big-endian regardless of
// SwapOnRead — that flag only governs Pipe's own typed base-protocol
// fields).
func (p *Pipe) Raw() io.ReadWriter { return p.rw }

func (p *Pipe) readFull(buf []byte) error {
	if _, err := io.ReadFull(p.rw, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return errors.Wrap(ErrShortRead, err.Error())
		}
		return errors.Wrap(err, "wire: read")
	}
	return nil
}

// ReadUint8 reads a single unsigned byte.
func (p *Pipe) ReadUint8() (uint8, error) {
	var b [1]byte
	if err := p.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteUint8 writes a single unsigned byte.
func (p *Pipe) WriteUint8(v uint8) error {
	_, err := p.rw.Write([]byte{v})
	return errors.Wrap(err, "wire: write")
}

// ReadInt8 reads a single signed byte.
func (p *Pipe) ReadInt8() (int8, error) {
	v, err := p.ReadUint8()
	return int8(v), err
}

// WriteInt8 writes a single signed byte.
func (p *Pipe) WriteInt8(v int8) error { return p.WriteUint8(uint8(v)) }

// ReadUint16 reads a 16-bit unsigned integer, swapping if negotiated.
func (p *Pipe) ReadUint16() (uint16, error) {
	var b [2]byte
	if err := p.readFull(b[:]); err != nil {
		return 0, err
	}
	v := p.order.Uint16(b[:])
	if p.swapOnRead {
		v = bits16swap(v)
	}
	return v, nil
}

// WriteUint16 writes a 16-bit unsigned integer in the pipe's native order.
// Writers never swap; only readers observing a foreign-endian peer swap.
func (p *Pipe) WriteUint16(v uint16) error {
	var b [2]byte
	p.order.PutUint16(b[:], v)
	_, err := p.rw.Write(b[:])
	return errors.Wrap(err, "wire: write")
}

// ReadInt16 reads a 16-bit signed integer.
func (p *Pipe) ReadInt16() (int16, error) {
	v, err := p.ReadUint16()
	return int16(v), err
}

// WriteInt16 writes a 16-bit signed integer.
func (p *Pipe) WriteInt16(v int16) error { return p.WriteUint16(uint16(v)) }

// ReadUint32 reads a 32-bit unsigned integer (the wire's cardinal type).
func (p *Pipe) ReadUint32() (uint32, error) {
	var b [4]byte
	if err := p.readFull(b[:]); err != nil {
		return 0, err
	}
	v := p.order.Uint32(b[:])
	if p.swapOnRead {
		v = bits32swap(v)
	}
	return v, nil
}

// WriteUint32 writes a 32-bit unsigned integer.
func (p *Pipe) WriteUint32(v uint32) error {
	var b [4]byte
	p.order.PutUint32(b[:], v)
	_, err := p.rw.Write(b[:])
	return errors.Wrap(err, "wire: write")
}

// ReadInt32 reads a 32-bit signed integer.
func (p *Pipe) ReadInt32() (int32, error) {
	v, err := p.ReadUint32()
	return int32(v), err
}

// WriteInt32 writes a 32-bit signed integer.
func (p *Pipe) WriteInt32(v int32) error { return p.WriteUint32(uint32(v)) }

// ReadUint64 reads a 64-bit unsigned integer.
func (p *Pipe) ReadUint64() (uint64, error) {
	var b [8]byte
	if err := p.readFull(b[:]); err != nil {
		return 0, err
	}
	v := p.order.Uint64(b[:])
	if p.swapOnRead {
		v = bits64swap(v)
	}
	return v, nil
}

// WriteUint64 writes a 64-bit unsigned integer.
func (p *Pipe) WriteUint64(v uint64) error {
	var b [8]byte
	p.order.PutUint64(b[:], v)
	_, err := p.rw.Write(b[:])
	return errors.Wrap(err, "wire: write")
}

// ReadInt64 reads a 64-bit signed integer.
func (p *Pipe) ReadInt64() (int64, error) {
	v, err := p.ReadUint64()
	return int64(v), err
}

// WriteInt64 writes a 64-bit signed integer.
func (p *Pipe) WriteInt64(v int64) error { return p.WriteUint64(uint64(v)) }

// ReadFloat32 reads a 32-bit IEEE-754 float, the wire's scalar type.
func (p *Pipe) ReadFloat32() (float32, error) {
	v, err := p.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// WriteFloat32 writes a 32-bit IEEE-754 float.
func (p *Pipe) WriteFloat32(v float32) error {
	return p.WriteUint32(math.Float32bits(v))
}

// ReadBytes reads a fixed-length byte block of exactly len(buf) bytes.
func (p *Pipe) ReadBytes(buf []byte) error { return p.readFull(buf) }

// WriteBytes writes a fixed-length byte block verbatim.
func (p *Pipe) WriteBytes(buf []byte) error {
	_, err := p.rw.Write(buf)
	return errors.Wrap(err, "wire: write")
}

// ReadString reads a <u32 length><bytes> string with no NUL terminator.
func (p *Pipe) ReadString() (string, error) {
	n, err := p.ReadUint32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := p.readFull(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteString writes a <u32 length><bytes> string.
func (p *Pipe) WriteString(s string) error {
	if err := p.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	return p.WriteBytes([]byte(s))
}

func bits16swap(v uint16) uint16 { return v<<8 | v>>8 }

func bits32swap(v uint32) uint32 {
	return v<<24 | v<<8&0x00FF0000 | v>>8&0x0000FF00 | v>>24
}

func bits64swap(v uint64) uint64 {
	return v<<56 | v<<40&0x00FF000000000000 | v<<24&0x0000FF0000000000 | v<<8&0x000000FF00000000 |
		v>>8&0x00000000FF000000 | v>>24&0x0000000000FF0000 | v>>40&0x000000000000FF00 | v>>56
}
