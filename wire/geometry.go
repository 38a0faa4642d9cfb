package wire

// Point is a 3-D position in some coordinate frame.
type Point [3]float32

// Vector is a 3-D direction or offset, distinguished from Point only by use.
type Vector [3]float32

// Rotation is a unit quaternion (x, y, z, w).
type Rotation [4]float32

// ONTransform is a rigid (orthonormal) transform: translation + rotation,
// no scale. Used for viewer poses, device poses, and anything that must not
// distort geometry.
type ONTransform struct {
	Translation Vector
	Rotation    Rotation
}

// OGTransform is an orthogonal transform: translation + rotation + uniform
// scale. Used for navTransform and videoTransform, where a client's physical
// space is mapped into shared navigational space at some scale factor.
type OGTransform struct {
	Translation Vector
	Rotation    Rotation
	Scale       float32
}

// Plane is a half-space boundary: unit normal plus signed offset along it.
type Plane struct {
	Normal Vector
	Offset float32
}

// ReadPoint reads a 3-float point.
func (p *Pipe) ReadPoint() (Point, error) {
	var pt Point
	for i := range pt {
		v, err := p.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		pt[i] = v
	}
	return pt, nil
}

// WritePoint writes a 3-float point.
func (p *Pipe) WritePoint(pt Point) error {
	for _, v := range pt {
		if err := p.WriteFloat32(v); err != nil {
			return err
		}
	}
	return nil
}

// ReadVector reads a 3-float vector.
func (p *Pipe) ReadVector() (Vector, error) {
	pt, err := p.ReadPoint()
	return Vector(pt), err
}

// WriteVector writes a 3-float vector.
func (p *Pipe) WriteVector(v Vector) error { return p.WritePoint(Point(v)) }

// ReadRotation reads a 4-float unit quaternion.
func (p *Pipe) ReadRotation() (Rotation, error) {
	var r Rotation
	for i := range r {
		v, err := p.ReadFloat32()
		if err != nil {
			return Rotation{}, err
		}
		r[i] = v
	}
	return r, nil
}

// WriteRotation writes a 4-float unit quaternion.
func (p *Pipe) WriteRotation(r Rotation) error {
	for _, v := range r {
		if err := p.WriteFloat32(v); err != nil {
			return err
		}
	}
	return nil
}

// ReadONTransform reads a rigid transform (translation + rotation).
func (p *Pipe) ReadONTransform() (ONTransform, error) {
	t, err := p.ReadVector()
	if err != nil {
		return ONTransform{}, err
	}
	r, err := p.ReadRotation()
	if err != nil {
		return ONTransform{}, err
	}
	return ONTransform{Translation: t, Rotation: r}, nil
}

// WriteONTransform writes a rigid transform.
func (p *Pipe) WriteONTransform(t ONTransform) error {
	if err := p.WriteVector(t.Translation); err != nil {
		return err
	}
	return p.WriteRotation(t.Rotation)
}

// ReadOGTransform reads a rigid-plus-scale transform.
func (p *Pipe) ReadOGTransform() (OGTransform, error) {
	t, err := p.ReadVector()
	if err != nil {
		return OGTransform{}, err
	}
	r, err := p.ReadRotation()
	if err != nil {
		return OGTransform{}, err
	}
	s, err := p.ReadFloat32()
	if err != nil {
		return OGTransform{}, err
	}
	return OGTransform{Translation: t, Rotation: r, Scale: s}, nil
}

// WriteOGTransform writes a rigid-plus-scale transform.
func (p *Pipe) WriteOGTransform(t OGTransform) error {
	if err := p.WriteVector(t.Translation); err != nil {
		return err
	}
	if err := p.WriteRotation(t.Rotation); err != nil {
		return err
	}
	return p.WriteFloat32(t.Scale)
}

// ReadPlane reads a normal+offset half-space boundary.
func (p *Pipe) ReadPlane() (Plane, error) {
	n, err := p.ReadVector()
	if err != nil {
		return Plane{}, err
	}
	o, err := p.ReadFloat32()
	if err != nil {
		return Plane{}, err
	}
	return Plane{Normal: n, Offset: o}, nil
}

// WritePlane writes a normal+offset half-space boundary.
func (p *Pipe) WritePlane(pl Plane) error {
	if err := p.WriteVector(pl.Normal); err != nil {
		return err
	}
	return p.WriteFloat32(pl.Offset)
}

// IdentityON returns the identity rigid transform.
func IdentityON() ONTransform {
	return ONTransform{Rotation: Rotation{0, 0, 0, 1}}
}

// IdentityOG returns the identity rigid-plus-scale transform (scale 1).
func IdentityOG() OGTransform {
	return OGTransform{Rotation: Rotation{0, 0, 0, 1}, Scale: 1}
}

// Invert returns the inverse of an OGTransform: for a unit quaternion
// rotation, the conjugate is the inverse; translation is un-rotated and
// un-scaled, then negated.
func (t OGTransform) Invert() OGTransform {
	invScale := float32(1)
	if t.Scale != 0 {
		invScale = 1 / t.Scale
	}
	invRot := Rotation{-t.Rotation[0], -t.Rotation[1], -t.Rotation[2], t.Rotation[3]}
	rotated := invRot.Rotate(t.Translation)
	return OGTransform{
		Translation: Vector{-rotated[0] * invScale, -rotated[1] * invScale, -rotated[2] * invScale},
		Rotation:    invRot,
		Scale:       invScale,
	}
}

// Rotate applies the quaternion rotation to v.
func (r Rotation) Rotate(v Vector) Vector {
	// Standard quaternion-vector rotation: v' = q*v*q^-1, expanded for a
	// unit quaternion (x,y,z,w).
	x, y, z, w := r[0], r[1], r[2], r[3]
	vx, vy, vz := v[0], v[1], v[2]

	// t = 2 * cross(q.xyz, v)
	tx := 2 * (y*vz - z*vy)
	ty := 2 * (z*vx - x*vz)
	tz := 2 * (x*vy - y*vx)

	return Vector{
		vx + w*tx + (y*tz - z*ty),
		vy + w*ty + (z*tx - x*tz),
		vz + w*tz + (x*ty - y*tx),
	}
}

// Compose returns the transform equivalent to applying t first, then outer:
// outer ∘ t. Used to compose a remote's inverse navigation with the local
// navigation transform (RemoteToLocal in package projection).
func (outer OGTransform) Compose(t OGTransform) OGTransform {
	rotated := outer.Rotation.Rotate(Vector{
		t.Translation[0] * outer.Scale,
		t.Translation[1] * outer.Scale,
		t.Translation[2] * outer.Scale,
	})
	return OGTransform{
		Translation: Vector{
			outer.Translation[0] + rotated[0],
			outer.Translation[1] + rotated[1],
			outer.Translation[2] + rotated[2],
		},
		Rotation: quatMul(outer.Rotation, t.Rotation),
		Scale:    outer.Scale * t.Scale,
	}
}

func quatMul(a, b Rotation) Rotation {
	ax, ay, az, aw := a[0], a[1], a[2], a[3]
	bx, by, bz, bw := b[0], b[1], b[2], b[3]
	return Rotation{
		aw*bx + ax*bw + ay*bz - az*by,
		aw*by - ax*bz + ay*bw + az*bx,
		aw*bz + ax*by - ay*bx + az*bw,
		aw*bw - ax*bx - ay*by - az*bz,
	}
}
