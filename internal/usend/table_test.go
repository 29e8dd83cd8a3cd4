package usend

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDest(t *testing.T) *net.UDPAddr {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:9")
	require.NoError(t, err)
	return addr
}

func TestInsertRemoveCount(t *testing.T) {
	t.Parallel()

	tbl := New(4)
	require.Equal(t, 0, tbl.Count())

	dest := testDest(t)
	e := &Entry{ID: 7, Frame: []byte("abc"), Dest: dest, SentAt: time.Now()}
	require.NoError(t, tbl.InsertWithBackoff(context.Background(), e, time.Microsecond))
	require.Equal(t, 1, tbl.Count())

	require.False(t, tbl.Remove(99))
	require.Equal(t, 1, tbl.Count())

	require.True(t, tbl.Remove(7))
	require.Equal(t, 0, tbl.Count())
}

func TestInsertBlocksWhileFullThenSucceeds(t *testing.T) {
	t.Parallel()

	tbl := New(1)
	dest := testDest(t)
	first := &Entry{ID: 1, Frame: []byte("x"), Dest: dest, SentAt: time.Now()}
	require.NoError(t, tbl.InsertWithBackoff(context.Background(), first, time.Microsecond))

	second := &Entry{ID: 2, Frame: []byte("y"), Dest: dest, SentAt: time.Now()}
	done := make(chan error, 1)
	go func() {
		done <- tbl.InsertWithBackoff(context.Background(), second, time.Millisecond)
	}()

	select {
	case <-done:
		t.Fatal("insert should have blocked while table is full")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, tbl.Remove(1))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("insert never unblocked after a slot freed")
	}
	require.Equal(t, 1, tbl.Count())
}

func TestInsertRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	tbl := New(1)
	dest := testDest(t)
	require.NoError(t, tbl.InsertWithBackoff(context.Background(), &Entry{ID: 1, Dest: dest, SentAt: time.Now()}, time.Microsecond))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tbl.InsertWithBackoff(ctx, &Entry{ID: 2, Dest: dest, SentAt: time.Now()}, time.Millisecond)
	require.Error(t, err)
}

func TestWalkTimedOutStampsAndReleasesLock(t *testing.T) {
	t.Parallel()

	tbl := New(4)
	dest := testDest(t)
	base := time.Now().Add(-10 * time.Second)
	require.NoError(t, tbl.InsertWithBackoff(context.Background(), &Entry{ID: 1, Frame: []byte("a"), Dest: dest, SentAt: base}, time.Microsecond))
	require.NoError(t, tbl.InsertWithBackoff(context.Background(), &Entry{ID: 2, Frame: []byte("b"), Dest: dest, SentAt: base}, time.Microsecond))

	var mu sync.Mutex
	var seen []uint16
	now := time.Now()
	tbl.WalkTimedOut(now, time.Second, func(e *Entry) {
		// The walk must have released its lock before invoking send, so a
		// concurrent Count() call here must not deadlock.
		_ = tbl.Count()
		mu.Lock()
		seen = append(seen, e.ID)
		mu.Unlock()
	})

	require.ElementsMatch(t, []uint16{1, 2}, seen)

	// Entries should have had their send time stamped to `now`, so a
	// second walk at the same instant sees nothing timed out.
	var secondPass []uint16
	tbl.WalkTimedOut(now, time.Second, func(e *Entry) {
		secondPass = append(secondPass, e.ID)
	})
	require.Empty(t, secondPass)
}

func TestWalkTimedOutSkipsFreshEntries(t *testing.T) {
	t.Parallel()

	tbl := New(2)
	dest := testDest(t)
	now := time.Now()
	require.NoError(t, tbl.InsertWithBackoff(context.Background(), &Entry{ID: 1, Dest: dest, SentAt: now}, time.Microsecond))

	var seen []uint16
	tbl.WalkTimedOut(now, time.Second, func(e *Entry) {
		seen = append(seen, e.ID)
	})
	require.Empty(t, seen)
}
