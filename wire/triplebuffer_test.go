package wire

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTripleBufferReadBeforeWrite(t *testing.T) {
	tb := NewTripleBuffer[int]()
	_, ok := tb.Read()
	require.False(t, ok)
}

func TestTripleBufferLatestWins(t *testing.T) {
	tb := NewTripleBuffer[int]()
	tb.Write(1)
	tb.Write(2)
	tb.Write(3)

	v, ok := tb.Read()
	require.True(t, ok)
	require.Equal(t, 3, v)

	// A second read with no intervening write returns the same value.
	v, ok = tb.Read()
	require.True(t, ok)
	require.Equal(t, 3, v)
}

func TestTripleBufferConcurrentProducerConsumer(t *testing.T) {
	tb := NewTripleBuffer[int]()
	const n = 10000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			tb.Write(i)
		}
	}()

	last := 0
	for {
		if v, ok := tb.Read(); ok {
			require.GreaterOrEqual(t, v, last)
			last = v
			if v == n {
				break
			}
		}
	}
	wg.Wait()
}
