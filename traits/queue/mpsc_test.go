package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMPSCEnqueueReportsEdgeOnce(t *testing.T) {
	q := NewMPSC[int]()

	start1 := q.Enqueue(1)
	start2 := q.Enqueue(2)
	require.True(t, start1)
	require.False(t, start2, "a second enqueue while still running must not report a new edge")

	batch, more := q.Drain()
	require.True(t, more)
	require.Equal(t, []int{1, 2}, batch)

	batch, more = q.Drain()
	require.False(t, more)
	require.Nil(t, batch)

	start3 := q.Enqueue(3)
	require.True(t, start3, "enqueue after the queue went idle must report a new edge")
}

func TestMPSCConcurrentProducersExactlyOneEdge(t *testing.T) {
	q := NewMPSC[int]()
	const n = 200

	var wg sync.WaitGroup
	edges := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			edges <- q.Enqueue(v)
		}(i)
	}
	wg.Wait()
	close(edges)

	edgeCount := 0
	for e := range edges {
		if e {
			edgeCount++
		}
	}
	require.Equal(t, 1, edgeCount, "exactly one producer must observe the idle-to-active edge")

	batch, more := q.Drain()
	require.True(t, more)
	require.Len(t, batch, n)
}
