package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendConsume(t *testing.T) {
	b := NewBuffer(16)
	require.Equal(t, 0, b.Len())

	b.Append([]byte("hello"))
	require.Equal(t, 5, b.Len())
	require.Equal(t, []byte("hello"), b.Unread())

	b.Consume(2)
	require.Equal(t, 3, b.Len())
	require.Equal(t, []byte("llo"), b.Unread())

	b.Append([]byte(" world"))
	require.Equal(t, []byte("llo world"), b.Unread())

	b.Consume(b.Len())
	require.Equal(t, 0, b.Len())
	require.Empty(t, b.Unread())
}

func TestBufferContiguityAcrossManyChunks(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 1000)

	b := NewBuffer(8)
	for i := 0; i < len(payload); i += 7 {
		end := i + 7
		if end > len(payload) {
			end = len(payload)
		}
		b.Append(payload[i:end])
	}

	require.Equal(t, payload, b.Unread())
}

func TestBufferGrowthIsBounded(t *testing.T) {
	// a frame delivered in many small chunks must not grow the buffer past
	// the unread bytes plus one chunk
	const chunkSize = 10
	b := NewBuffer(chunkSize)

	chunk := bytes.Repeat([]byte{1}, chunkSize)
	for i := 0; i < 50; i++ {
		b.Append(chunk)
		require.LessOrEqual(t, b.Cap(), b.Len()+chunkSize)
	}
	require.Equal(t, 500, b.Len())
}

func TestBufferOffsetResetsWhenDrained(t *testing.T) {
	b := NewBuffer(64)
	b.Append([]byte("abcdef"))
	b.Consume(6)

	// with everything consumed, the next append reuses the front of the
	// buffer instead of creeping toward its end
	b.Append([]byte("xyz"))
	require.Equal(t, []byte("xyz"), b.Unread())
	require.Equal(t, 64, b.Cap())
}

func TestBufferConsumeOutOfRange(t *testing.T) {
	b := NewBuffer(8)
	b.Append([]byte("ab"))

	require.Panics(t, func() { b.Consume(3) })
	require.Panics(t, func() { b.Consume(-1) })
}

func TestBufferInterleavedAppendConsume(t *testing.T) {
	var reference []byte
	b := NewBuffer(4)

	for i := 0; i < 100; i++ {
		chunk := []byte{byte(i), byte(i + 1), byte(i + 2)}
		reference = append(reference, chunk...)
		b.Append(chunk)

		if i%3 == 0 && b.Len() > 2 {
			require.Equal(t, reference[:2], b.Unread()[:2])
			b.Consume(2)
			reference = reference[2:]
		}
	}

	require.Equal(t, reference, b.Unread())
}
