package protocol

// Buffer reassembles the byte stream arriving from the backend into a single
// contiguous window so that the dispatcher can decode whole messages out of
// it, no matter how finely the transport split the stream.
//
// The buffer exclusively owns its memory: callers may keep slices returned by
// Unread only until the next call to Append, which is allowed to move the
// unread region. Decoded values must copy out whatever they need to retain.
type Buffer struct {
	buf    []byte
	offset int
	unread int
}

// NewBuffer creates a reassembly buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Append adds a newly arrived chunk after the unread region, keeping the
// unread bytes contiguous.
//
// If the free space past the unread region cannot hold the chunk, a new
// buffer sized exactly unread+len(chunk) is allocated and the unread region
// is compacted to its start. This keeps the amortized cost proportional to
// the total bytes transferred and bounds peak memory to roughly the largest
// undecoded message plus one chunk, regardless of how many chunks it took to
// deliver it.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	free := len(b.buf) - b.offset - b.unread
	if free < len(chunk) {
		grown := make([]byte, b.unread+len(chunk))
		copy(grown, b.buf[b.offset:b.offset+b.unread])
		b.buf = grown
		b.offset = 0
	}

	copy(b.buf[b.offset+b.unread:], chunk)
	b.unread += len(chunk)
}

// Unread returns the contiguous window of bytes that have been received but
// not yet consumed. The slice aliases the buffer's memory and is only valid
// until the next Append.
func (b *Buffer) Unread() []byte {
	return b.buf[b.offset : b.offset+b.unread]
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return b.unread
}

// Consume marks n unread bytes as processed. Once every unread byte is
// consumed the offset snaps back to the start of the buffer so that
// subsequent appends reuse the full capacity.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.unread {
		panic("protocol: consume out of range")
	}

	b.offset += n
	b.unread -= n
	if b.unread == 0 {
		b.offset = 0
	}
}

// Cap returns the current capacity of the underlying buffer.
func (b *Buffer) Cap() int {
	return len(b.buf)
}
