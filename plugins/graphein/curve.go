// Package graphein implements the shared-annotation plug-in: each client
// owns a set of curves (line width, colour, ordered 3-D point sequence)
// that peers render as a shared whiteboard. Named after the original
// GrapheinProtocol.
package graphein

import "github.com/vrhub/collab/wire"

// Color is an RGBA color, 4 floats in [0,1] as on the original wire format.
type Color [4]float32

// Curve is an ordered polyline in the shared navigational frame.
type Curve struct {
	ID        uint32
	LineWidth float32
	Color     Color
	Vertices  []wire.Point
}

func (c *Curve) writeColor(p *wire.Pipe) error {
	for _, v := range c.Color {
		if err := p.WriteFloat32(v); err != nil {
			return err
		}
	}
	return nil
}

func readColor(p *wire.Pipe) (Color, error) {
	var c Color
	for i := range c {
		v, err := p.ReadFloat32()
		if err != nil {
			return Color{}, err
		}
		c[i] = v
	}
	return c, nil
}

// WriteFull writes the curve's line width, color, and complete vertex
// list, sent by ADD_CURVE.
func (c *Curve) WriteFull(p *wire.Pipe) error {
	if err := p.WriteFloat32(c.LineWidth); err != nil {
		return err
	}
	if err := c.writeColor(p); err != nil {
		return err
	}
	if err := p.WriteUint32(uint32(len(c.Vertices))); err != nil {
		return err
	}
	for _, v := range c.Vertices {
		if err := p.WritePoint(v); err != nil {
			return err
		}
	}
	return nil
}

// ReadCurve reads a full curve as sent by ADD_CURVE.
func ReadCurve(id uint32, p *wire.Pipe) (*Curve, error) {
	lw, err := p.ReadFloat32()
	if err != nil {
		return nil, err
	}
	col, err := readColor(p)
	if err != nil {
		return nil, err
	}
	n, err := p.ReadUint32()
	if err != nil {
		return nil, err
	}
	verts := make([]wire.Point, n)
	for i := range verts {
		v, err := p.ReadPoint()
		if err != nil {
			return nil, err
		}
		verts[i] = v
	}
	return &Curve{ID: id, LineWidth: lw, Color: col, Vertices: verts}, nil
}

// SkipCurve advances past a full curve payload without constructing one.
func SkipCurve(p *wire.Pipe) error {
	if _, err := p.ReadFloat32(); err != nil {
		return err
	}
	if _, err := readColor(p); err != nil {
		return err
	}
	n, err := p.ReadUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := p.ReadPoint(); err != nil {
			return err
		}
	}
	return nil
}
