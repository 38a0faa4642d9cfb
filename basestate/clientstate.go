// Package basestate implements the base protocol's per-client ClientState:
// the physical-environment description and navigation transform every
// connected client publishes, plus its delta encode/decode discipline.
package basestate

import (
	"github.com/vrhub/collab/wire"
)

// Update mask bits, in wire order. A client's delta CLIENT_UPDATE carries a
// leading <u8 mask> naming which of these fields follow.
const (
	Environment uint8 = 1 << iota
	ClientName
	NumViewers
	Viewer
	NavTransform

	AllFields = Environment | ClientName | NumViewers | Viewer | NavTransform
)

// State is the full per-client state mirrored by the server and by every
// peer. ViewerStates is an ordered sequence of rigid transforms, one per
// viewer the client exposes (most clients expose exactly one).
type State struct {
	InchFactor    float32
	DisplayCenter wire.Point
	DisplaySize   float32
	Forward       wire.Vector
	Up            wire.Vector
	FloorPlane    wire.Plane

	ClientName string

	ViewerStates []wire.ONTransform

	NavTransform wire.OGTransform
}

// New returns a State with an identity navigation transform and no viewers.
func New() State {
	return State{NavTransform: wire.IdentityOG()}
}

// WriteFull writes the entire state unconditionally, used for
// CONNECT_REQUEST and CLIENT_CONNECT where the receiver has no prior state
// to apply a delta against.
func (s State) WriteFull(p *wire.Pipe) error {
	return s.writeMasked(p, AllFields)
}

// WriteDelta writes only the fields named by mask, preceded by the mask
// byte itself. Used for CLIENT_UPDATE and each peer block of SERVER_UPDATE.
func (s State) WriteDelta(p *wire.Pipe, mask uint8) error {
	if err := p.WriteUint8(mask); err != nil {
		return err
	}
	return s.writeMasked(p, mask)
}

func (s State) writeMasked(p *wire.Pipe, mask uint8) error {
	if mask&Environment != 0 {
		if err := p.WriteFloat32(s.InchFactor); err != nil {
			return err
		}
		if err := p.WritePoint(s.DisplayCenter); err != nil {
			return err
		}
		if err := p.WriteFloat32(s.DisplaySize); err != nil {
			return err
		}
		if err := p.WriteVector(s.Forward); err != nil {
			return err
		}
		if err := p.WriteVector(s.Up); err != nil {
			return err
		}
		if err := p.WritePlane(s.FloorPlane); err != nil {
			return err
		}
	}
	if mask&ClientName != 0 {
		if err := p.WriteString(s.ClientName); err != nil {
			return err
		}
	}
	if mask&NumViewers != 0 {
		if err := p.WriteUint32(uint32(len(s.ViewerStates))); err != nil {
			return err
		}
	}
	if mask&Viewer != 0 {
		for _, v := range s.ViewerStates {
			if err := p.WriteONTransform(v); err != nil {
				return err
			}
		}
	}
	if mask&NavTransform != 0 {
		if err := p.WriteOGTransform(s.NavTransform); err != nil {
			return err
		}
	}
	return nil
}

// ReadFull reads a full, unconditional state (CONNECT_REQUEST,
// CLIENT_CONNECT): equivalent to constructing a fresh State and applying a
// mask=AllFields delta to it.
func ReadFull(p *wire.Pipe) (State, error) {
	s := New()
	if err := s.applyMasked(p, AllFields); err != nil {
		return State{}, err
	}
	return s, nil
}

// ApplyDelta reads a leading mask byte and then the fields it names,
// mutating s in place; fields not named by the mask keep their previous
// value. A mask of 0 leaves s entirely unchanged (P3).
func (s *State) ApplyDelta(p *wire.Pipe) error {
	_, err := s.ApplyDeltaMask(p)
	return err
}

// ApplyDeltaMask behaves exactly like ApplyDelta but also returns the mask
// byte read, for callers (the server fan-out) that need to know which
// fields changed this tick in order to relay the same delta onward.
func (s *State) ApplyDeltaMask(p *wire.Pipe) (uint8, error) {
	mask, err := p.ReadUint8()
	if err != nil {
		return 0, err
	}
	return mask, s.applyMasked(p, mask)
}

func (s *State) applyMasked(p *wire.Pipe, mask uint8) error {
	if mask&Environment != 0 {
		v, err := p.ReadFloat32()
		if err != nil {
			return err
		}
		s.InchFactor = v

		pt, err := p.ReadPoint()
		if err != nil {
			return err
		}
		s.DisplayCenter = pt

		v, err = p.ReadFloat32()
		if err != nil {
			return err
		}
		s.DisplaySize = v

		vec, err := p.ReadVector()
		if err != nil {
			return err
		}
		s.Forward = vec

		vec, err = p.ReadVector()
		if err != nil {
			return err
		}
		s.Up = vec

		pl, err := p.ReadPlane()
		if err != nil {
			return err
		}
		s.FloorPlane = pl
	}
	if mask&ClientName != 0 {
		name, err := p.ReadString()
		if err != nil {
			return err
		}
		s.ClientName = name
	}
	if mask&NumViewers != 0 {
		n, err := p.ReadUint32()
		if err != nil {
			return err
		}
		resized := make([]wire.ONTransform, n)
		copy(resized, s.ViewerStates)
		s.ViewerStates = resized
	}
	if mask&Viewer != 0 {
		for i := range s.ViewerStates {
			v, err := p.ReadONTransform()
			if err != nil {
				return err
			}
			s.ViewerStates[i] = v
		}
	}
	// The nav-transform bit test below MUST be a bitwise AND. A prior
	// implementation used a logical AND here, which — since NavTransform
	// is nonzero and mask is rarely exactly zero — made the nav transform
	// decode almost unconditionally regardless of whether the sender
	// actually set the bit. See TestApplyDeltaMaskZeroLeavesNavUnchanged.
	if mask&NavTransform != 0 {
		t, err := p.ReadOGTransform()
		if err != nil {
			return err
		}
		s.NavTransform = t
	}
	return nil
}
