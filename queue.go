package pgclient

// fifo is an ordered registry matching backend responses to the handlers
// that requested them. Matching is positional, not keyed: the protocol
// guarantees that responses on a single connection arrive in the exact order
// their requests were sent, so the head of the queue always belongs to the
// next response. Popping an empty registry means the backend sent something
// nobody asked for, which callers treat as a fatal protocol violation.
type fifo[T any] struct {
	items []T
}

func (q *fifo[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *fifo[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// peek returns the head without removing it.
func (q *fifo[T]) peek() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	return q.items[0], true
}

func (q *fifo[T]) len() int {
	return len(q.items)
}

// drain empties the registry and returns everything that was queued.
func (q *fifo[T]) drain() []T {
	items := q.items
	q.items = nil
	return items
}
