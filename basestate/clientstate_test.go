package basestate

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vrhub/collab/wire"
)

func TestFullRoundTrip(t *testing.T) {
	s := New()
	s.ClientName = "alice"
	s.ViewerStates = []wire.ONTransform{wire.IdentityON()}
	s.NavTransform = wire.OGTransform{Translation: wire.Vector{1, 2, 3}, Rotation: wire.Rotation{0, 0, 0, 1}, Scale: 2}

	buf := &bytes.Buffer{}
	p := wire.NewPipe(buf, binary.BigEndian)
	require.NoError(t, s.WriteFull(p))

	got, err := ReadFull(p)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

// TestApplyDeltaMaskZeroLeavesNavUnchanged is the regression test named by
// the design notes: applying a delta with mask=0 must leave every field —
// including NavTransform — completely unchanged. This guards against
// regressing to a logical (rather than bitwise) AND when testing the
// NavTransform bit, which would decode the nav transform from the stream
// even though the sender never set the bit and never wrote the bytes.
func TestApplyDeltaMaskZeroLeavesNavUnchanged(t *testing.T) {
	s := New()
	s.NavTransform = wire.OGTransform{Translation: wire.Vector{9, 9, 9}, Rotation: wire.Rotation{0, 0, 0, 1}, Scale: 3}
	want := s.NavTransform

	buf := &bytes.Buffer{}
	p := wire.NewPipe(buf, binary.BigEndian)
	require.NoError(t, s.WriteDelta(p, 0))

	require.NoError(t, s.ApplyDelta(p))
	require.Equal(t, want, s.NavTransform)
}

// TestDeltaNavTransformOnly covers end-to-end scenario 3: changing only
// navTransform produces a small delta (mask + one rigid-plus-scale
// transform), not a full ClientState.
func TestDeltaNavTransformOnly(t *testing.T) {
	s := New()
	s.NavTransform = wire.OGTransform{Translation: wire.Vector{5, 0, 0}, Rotation: wire.Rotation{0, 0, 0, 1}, Scale: 1}

	buf := &bytes.Buffer{}
	p := wire.NewPipe(buf, binary.BigEndian)
	require.NoError(t, s.WriteDelta(p, NavTransform))

	// mask(1) + translation(12) + rotation(16) + scale(4) = 33 bytes.
	require.Equal(t, 33, buf.Len())

	got := New()
	require.NoError(t, got.ApplyDelta(p))
	require.Equal(t, s.NavTransform, got.NavTransform)
	require.Equal(t, "", got.ClientName)
}

// TestApplyDeltaIdempotence covers P3's first half directly.
func TestApplyDeltaIdempotence(t *testing.T) {
	s := New()
	s.ClientName = "bob"
	before := s

	buf := &bytes.Buffer{}
	p := wire.NewPipe(buf, binary.BigEndian)
	require.NoError(t, s.WriteDelta(p, 0))
	require.NoError(t, s.ApplyDelta(p))
	require.Equal(t, before, s)
}
