package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRingDropTolerance covers P5: a ring of depth d that receives 2d
// pushes without any pop retains exactly the last d items in order.
func TestRingDropTolerance(t *testing.T) {
	const d = 8
	r := NewRing[int](d)
	for i := 1; i <= 2*d; i++ {
		r.Push(i)
	}
	require.Equal(t, d, r.Len())

	items := r.Drain()
	require.Len(t, items, d)
	for i, v := range items {
		require.Equal(t, d+1+i, v)
	}
}

func TestRingPopOrder(t *testing.T) {
	r := NewRing[string](4)
	r.Push("a")
	r.Push("b")
	r.Push("c")

	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, "a", v)

	r.Push("d")
	r.Push("e") // buffer now holds b,c,d,e

	got := r.Drain()
	require.Equal(t, []string{"b", "c", "d", "e"}, got)
}

func TestRingEmptyPop(t *testing.T) {
	r := NewRing[int](4)
	_, ok := r.Pop()
	require.False(t, ok)
}
