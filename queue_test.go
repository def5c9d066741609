package pgclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFifoOrder(t *testing.T) {
	var q fifo[int]
	q.push(1)
	q.push(2)
	q.push(3)
	require.Equal(t, 3, q.len())

	for want := 1; want <= 3; want++ {
		v, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}

	_, ok := q.pop()
	require.False(t, ok)
}

func TestFifoPeek(t *testing.T) {
	var q fifo[string]
	_, ok := q.peek()
	require.False(t, ok)

	q.push("a")
	q.push("b")

	v, ok := q.peek()
	require.True(t, ok)
	require.Equal(t, "a", v)
	require.Equal(t, 2, q.len())
}

func TestFifoDrain(t *testing.T) {
	var q fifo[int]
	q.push(7)
	q.push(8)

	require.Equal(t, []int{7, 8}, q.drain())
	require.Equal(t, 0, q.len())
	require.Nil(t, q.drain())
}
