package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := New[int]()

	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_GrowsPastInitialCapacity(t *testing.T) {
	q := New[int]()

	for i := 0; i < 1000; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 1000, q.Len())

	for want := 0; want < 1000; want++ {
		got, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestQueue_DequeueOnEmptyFails(t *testing.T) {
	q := New[int]()

	_, ok := q.Dequeue()
	assert.False(t, ok)

	q.Enqueue(1)
	_, ok = q.Dequeue()
	require.True(t, ok)
	_, ok = q.Dequeue()
	assert.False(t, ok)

	// queue stays usable after being drained
	q.Enqueue(2)
	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 2, got)
}
