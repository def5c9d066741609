package pgclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestResultStreamAwait(t *testing.T) {
	s := newResultStream()
	s.setNames([]string{"id"})
	s.push([]interface{}{int64(1)})
	s.push([]interface{}{int64(2)})
	s.complete()

	res, err := s.Result(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, res.Names)
	require.Equal(t, [][]interface{}{{int64(1)}, {int64(2)}}, res.Rows)
}

func TestResultStreamAwaitBlocksUntilComplete(t *testing.T) {
	s := newResultStream()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.setNames([]string{"n"})
		s.push([]interface{}{int64(7)})
		s.complete()
	}()

	res, err := s.Result(testCtx(t))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestResultStreamIteration(t *testing.T) {
	s := newResultStream()
	s.setNames([]string{"id"})

	go func() {
		for i := 1; i <= 3; i++ {
			time.Sleep(5 * time.Millisecond)
			s.push([]interface{}{int64(i)})
		}
		s.complete()
	}()

	ctx := testCtx(t)
	rows := s.Rows()
	var got []int64
	for rows.Next(ctx) {
		got = append(got, rows.Values()[0].(int64))
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestResultStreamIterationThenAwaitSeesEveryRow(t *testing.T) {
	s := newResultStream()
	s.push([]interface{}{int64(1)})
	s.push([]interface{}{int64(2)})
	s.complete()

	ctx := testCtx(t)
	rows := s.Rows()
	require.True(t, rows.Next(ctx))

	// rows consumed by the iterator are still part of the snapshot
	res, err := s.Result(ctx)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	// and a second iterator replays from the start
	replay := s.Rows()
	count := 0
	for replay.Next(ctx) {
		count++
	}
	require.Equal(t, 2, count)
}

func TestResultStreamCompleteIsIdempotent(t *testing.T) {
	s := newResultStream()
	s.push([]interface{}{int64(1)})
	s.complete()
	s.complete()

	res, err := s.Result(testCtx(t))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	// rows after completion are discarded
	s.push([]interface{}{int64(2)})
	res, err = s.Result(testCtx(t))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestResultStreamFail(t *testing.T) {
	s := newResultStream()
	boom := errors.New("boom")

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.fail(boom)
	}()

	_, err := s.Result(testCtx(t))
	require.ErrorIs(t, err, boom)

	// late consumers observe the same error
	_, err = s.Names(testCtx(t))
	require.ErrorIs(t, err, boom)

	rows := s.Rows()
	require.False(t, rows.Next(testCtx(t)))
	require.ErrorIs(t, rows.Err(), boom)
}

func TestResultStreamCancel(t *testing.T) {
	s := newResultStream()
	s.push([]interface{}{int64(1)})
	s.push([]interface{}{int64(2)})
	s.Cancel()

	// rows pushed after cancellation are dropped
	s.push([]interface{}{int64(3)})

	ctx := testCtx(t)
	rows := s.Rows()
	require.True(t, rows.Next(ctx))
	require.True(t, rows.Next(ctx))
	require.False(t, rows.Next(ctx))
	require.ErrorIs(t, rows.Err(), ErrStreamCancelled)

	_, err := s.Result(ctx)
	require.ErrorIs(t, err, ErrStreamCancelled)
}

func TestResultStreamCancelUnblocksWaiter(t *testing.T) {
	s := newResultStream()

	done := make(chan error, 1)
	go func() {
		_, err := s.Result(testCtx(t))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStreamCancelled)
	case <-time.After(time.Second):
		t.Fatal("cancel did not wake the waiting consumer")
	}
}

func TestResultStreamCancelAfterCompleteKeepsResult(t *testing.T) {
	s := newResultStream()
	s.push([]interface{}{int64(1)})
	s.complete()
	s.Cancel()

	res, err := s.Result(testCtx(t))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestResultStreamNames(t *testing.T) {
	s := newResultStream()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.setNames([]string{"a", "b"})
	}()

	names, err := s.Names(testCtx(t))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)
}

func TestResultStreamContextExpiry(t *testing.T) {
	s := newResultStream()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Result(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	rows := s.Rows()
	require.False(t, rows.Next(ctx))
	require.ErrorIs(t, rows.Err(), context.DeadlineExceeded)
}
