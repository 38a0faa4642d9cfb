package graphein

import (
	"encoding/binary"

	"github.com/vrhub/collab/wire"
)

func (s *State) bufPipe() *wire.Pipe {
	return wire.NewPipe(&s.outgoing, binary.BigEndian)
}

func (s *State) appendID(id uint16) error {
	return s.bufPipe().WriteUint32(uint32(id))
}

// AddCurve registers a new local curve and appends an ADD_CURVE message.
func (s *State) AddCurve(c *Curve) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Curves[c.ID] = c
	if err := s.appendID(MsgAddCurve); err != nil {
		return err
	}
	p := s.bufPipe()
	if err := p.WriteUint32(c.ID); err != nil {
		return err
	}
	return c.WriteFull(p)
}

// AppendPoint appends a vertex to an existing local curve and appends an
// APPEND_POINT message.
func (s *State) AppendPoint(curveID uint32, pt wire.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Curves[curveID]
	if !ok {
		return nil
	}
	idx := uint32(len(c.Vertices))
	c.Vertices = append(c.Vertices, pt)
	if err := s.appendID(MsgAppendPoint); err != nil {
		return err
	}
	p := s.bufPipe()
	if err := p.WriteUint32(curveID); err != nil {
		return err
	}
	if err := p.WriteUint32(idx); err != nil {
		return err
	}
	return p.WritePoint(pt)
}

// DeleteCurve removes a local curve and appends a DELETE_CURVE message.
func (s *State) DeleteCurve(curveID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Curves, curveID)
	if err := s.appendID(MsgDeleteCurve); err != nil {
		return err
	}
	return s.bufPipe().WriteUint32(curveID)
}

// DeleteAllCurves clears every local curve and appends a
// DELETE_ALL_CURVES message.
func (s *State) DeleteAllCurves() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Curves = make(map[uint32]*Curve)
	return s.appendID(MsgDeleteAllCurves)
}
