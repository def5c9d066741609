package pgclient

import (
	"context"
	"sync"
)

// Result is the immutable snapshot of a completed query: the ordered column
// names and every row received, in arrival order.
type Result struct {
	Names []string
	Rows  [][]interface{}
}

// ResultStream is the live, per-query pipeline between the dispatcher
// (producer) and the application (consumer). The producer appends rows as
// DataRow messages arrive; consumers either await the whole result or
// iterate rows incrementally. The internal buffer is append-only and never
// discarded, so an in-progress iteration and a later await each observe
// every row exactly once.
type ResultStream struct {
	mu        sync.Mutex
	names     []string
	rows      [][]interface{}
	completed bool
	cancelled bool
	err       error

	// arrived is closed and re-armed on every state change so that any
	// number of blocked consumers wake up per event.
	arrived chan struct{}

	// registry bookkeeping owned by the connection's dispatcher, guarded by
	// the connection mutex rather than s.mu: whether the name-consumer slot
	// for this query was already consumed, and whether a row description
	// queued for this query is still unclaimed.
	nameDone    bool
	descPending bool
}

func newResultStream() *ResultStream {
	return &ResultStream{arrived: make(chan struct{})}
}

// broadcast wakes every consumer currently waiting. Callers must hold mu.
func (s *ResultStream) broadcast() {
	close(s.arrived)
	s.arrived = make(chan struct{})
}

// setNames delivers the column names as soon as the row description arrives,
// ahead of any row.
func (s *ResultStream) setNames(names []string) {
	s.mu.Lock()
	s.names = names
	s.broadcast()
	s.mu.Unlock()
}

// push appends one decoded row. Rows arriving after completion or
// cancellation are discarded.
func (s *ResultStream) push(row []interface{}) {
	s.mu.Lock()
	if !s.completed && !s.cancelled {
		s.rows = append(s.rows, row)
		s.broadcast()
	}
	s.mu.Unlock()
}

// complete records the end-of-stream sentinel. The open-to-completed
// transition happens exactly once, but repeated sentinels still wake any
// consumer that subscribed after the first one, so a late subscriber never
// hangs.
func (s *ResultStream) complete() {
	s.mu.Lock()
	s.completed = true
	s.broadcast()
	s.mu.Unlock()
}

// fail poisons the stream: every present and future consumer observes err.
func (s *ResultStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.completed = true
	s.broadcast()
	s.mu.Unlock()
}

// Cancel abandons the stream. Rows already buffered remain readable; rows
// still arriving for this query are discarded, and consumers blocked waiting
// for more wake up with ErrStreamCancelled. Cancel does not interrupt the
// query on the backend.
func (s *ResultStream) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.broadcast()
	s.mu.Unlock()
}

// Result blocks until the end-of-stream sentinel has been observed and
// returns the full snapshot accumulated so far. It may be called any number
// of times, including after iteration has consumed the stream.
func (s *ResultStream) Result(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	for {
		switch {
		case s.err != nil:
			err := s.err
			s.mu.Unlock()
			return nil, err
		case s.cancelled && !s.completed:
			s.mu.Unlock()
			return nil, ErrStreamCancelled
		case s.completed:
			res := &Result{Names: s.names, Rows: s.rows}
			s.mu.Unlock()
			return res, nil
		}

		arrived := s.arrived
		s.mu.Unlock()
		select {
		case <-arrived:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
	}
}

// Names blocks until the column names are known, which happens when the row
// description arrives and may be well before the first row.
func (s *ResultStream) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	for {
		switch {
		case s.err != nil:
			err := s.err
			s.mu.Unlock()
			return nil, err
		case s.names != nil || s.completed:
			names := s.names
			s.mu.Unlock()
			return names, nil
		case s.cancelled:
			s.mu.Unlock()
			return nil, ErrStreamCancelled
		}

		arrived := s.arrived
		s.mu.Unlock()
		select {
		case <-arrived:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
	}
}

// Rows returns a single-pass iterator over the stream. Each iterator has its
// own cursor: starting a second one replays the stream from the beginning.
func (s *ResultStream) Rows() *Rows {
	return &Rows{stream: s}
}

// Rows iterates a result stream row by row. Next either returns an already
// buffered row immediately or suspends the caller until the producer
// delivers one or signals completion. The iteration is finite and cannot be
// restarted; it blocks only the consuming goroutine, never the dispatcher.
type Rows struct {
	stream *ResultStream
	pos    int
	cur    []interface{}
	err    error
}

// Next advances to the next row, reporting whether one is available. Once it
// returns false, check Err to distinguish completion from failure.
func (r *Rows) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}

	s := r.stream
	s.mu.Lock()
	for {
		if r.pos < len(s.rows) {
			r.cur = s.rows[r.pos]
			r.pos++
			s.mu.Unlock()
			return true
		}

		switch {
		case s.err != nil:
			r.err = s.err
			s.mu.Unlock()
			return false
		case s.completed:
			s.mu.Unlock()
			return false
		case s.cancelled:
			r.err = ErrStreamCancelled
			s.mu.Unlock()
			return false
		}

		arrived := s.arrived
		s.mu.Unlock()
		select {
		case <-arrived:
		case <-ctx.Done():
			r.err = ctx.Err()
			return false
		}
		s.mu.Lock()
	}
}

// Values returns the row produced by the last successful Next.
func (r *Rows) Values() []interface{} {
	return r.cur
}

// Err returns the error that ended the iteration, if any.
func (r *Rows) Err() error {
	return r.err
}
