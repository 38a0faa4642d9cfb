// Package projection turns a remote client's reported state into geometry
// usable in the local viewer's coordinate frame. Every render frame, for
// each remote client sharing a navigational space, the remote's navigation
// transform is inverted and composed with the local navigation transform to
// produce a single remote-to-local transform; every piece of that remote's
// state that lives in its own navigational space — mouth position, device
// poses, curve points, the video quad — is projected through it before
// being drawn locally.
package projection

import "github.com/vrhub/collab/wire"

// RemoteToLocal composes the transform that maps a point expressed in the
// remote client's navigational space into the local client's navigational
// space: localNav ∘ remoteNav⁻¹. The result drops scale (ONTransform) since
// everything rendered locally is already sized in local navigational units;
// scale is folded into the translation/rotation during composition.
func RemoteToLocal(localNav, remoteNav wire.OGTransform) wire.ONTransform {
	combined := localNav.Compose(remoteNav.Invert())
	return wire.ONTransform{
		Translation: combined.Translation,
		Rotation:    combined.Rotation,
	}
}

// Point projects a point expressed in the remote's navigational space into
// the local client's navigational space.
func Point(remoteToLocal wire.ONTransform, p wire.Point) wire.Point {
	rotated := remoteToLocal.Rotation.Rotate(wire.Vector(p))
	return wire.Point{
		rotated[0] + remoteToLocal.Translation[0],
		rotated[1] + remoteToLocal.Translation[1],
		rotated[2] + remoteToLocal.Translation[2],
	}
}

// MouthPosition projects a remote speaker's mouth position, for attenuation
// and spatialization math performed in the local listener's frame.
func MouthPosition(remoteToLocal wire.ONTransform, mouth wire.Point) wire.Point {
	return Point(remoteToLocal, mouth)
}

// DeviceTransform projects a remote input device's pose (e.g. a cheria tool
// or probe) into the local frame, for rendering the device's proxy glyph.
func DeviceTransform(remoteToLocal wire.ONTransform, device wire.ONTransform) wire.ONTransform {
	rotated := remoteToLocal.Rotation.Rotate(device.Translation)
	return wire.ONTransform{
		Translation: wire.Vector{
			rotated[0] + remoteToLocal.Translation[0],
			rotated[1] + remoteToLocal.Translation[1],
			rotated[2] + remoteToLocal.Translation[2],
		},
		Rotation: quatMul(remoteToLocal.Rotation, device.Rotation),
	}
}

// CurvePoints projects a slice of remote annotation-curve control points
// into the local frame in place order, returning a new slice.
func CurvePoints(remoteToLocal wire.ONTransform, points []wire.Point) []wire.Point {
	out := make([]wire.Point, len(points))
	for i, p := range points {
		out[i] = Point(remoteToLocal, p)
	}
	return out
}

// VideoQuad projects a remote video plug-in's quad transform into the local
// frame, so a viewer's screen or camera feed appears at its correct
// relative pose regardless of which end of the shared space it's anchored
// to.
func VideoQuad(remoteToLocal wire.ONTransform, quad wire.ONTransform) wire.ONTransform {
	return DeviceTransform(remoteToLocal, quad)
}

func quatMul(a, b wire.Rotation) wire.Rotation {
	ax, ay, az, aw := a[0], a[1], a[2], a[3]
	bx, by, bz, bw := b[0], b[1], b[2], b[3]
	return wire.Rotation{
		aw*bx + ax*bw + ay*bz - az*by,
		aw*by - ax*bz + ay*bw + az*bx,
		aw*bz + ax*by - ay*bx + az*bw,
		aw*bw - ax*bx - ay*by - az*bz,
	}
}
