package socket

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/rudp/internal/loss"
)

// fakeTransport is an in-memory Transport double letting tests control
// delivery order precisely — something no real kernel UDP stack on
// loopback guarantees, needed for the reorder and id-wrap scenarios.
type fakeTransport struct {
	mu     sync.Mutex
	cond   *sync.Cond
	inbox  [][]byte
	local  *net.UDPAddr
	peer   *fakeTransport
	peerA  *net.UDPAddr
	closed bool

	// reorderFirstTwo, when set, holds the first datagram delivered to
	// this transport until a second arrives, then enqueues the second
	// ahead of the first — modeling a transport that reorders frames in
	// flight, for scenario S4.
	reorderFirstTwo bool
	held            [][]byte
}

func newFakePair(t *testing.T) (*fakeTransport, *fakeTransport) {
	t.Helper()
	a := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 11111}
	b := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22222}

	ta := &fakeTransport{local: a, peerA: b}
	tb := &fakeTransport{local: b, peerA: a}
	ta.cond = sync.NewCond(&ta.mu)
	tb.cond = sync.NewCond(&tb.mu)
	ta.peer = tb
	tb.peer = ta
	return ta, tb
}

func (f *fakeTransport) deliver(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)

	if f.reorderFirstTwo {
		if len(f.held) == 0 {
			f.held = append(f.held, cp)
			return
		}
		f.inbox = append(f.inbox, cp)
		f.inbox = append(f.inbox, f.held...)
		f.held = nil
		f.reorderFirstTwo = false
		f.cond.Broadcast()
		return
	}

	f.inbox = append(f.inbox, cp)
	f.cond.Broadcast()
}

func (f *fakeTransport) ReadFrom(b []byte) (int, net.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.inbox) == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return 0, nil, net.ErrClosed
	}
	msg := f.inbox[0]
	f.inbox = f.inbox[1:]
	n := copy(b, msg)
	return n, f.peerA, nil
}

func (f *fakeTransport) WriteTo(b []byte, _ net.Addr) (int, error) {
	f.peer.deliver(b)
	return len(b), nil
}

func (f *fakeTransport) LocalAddr() net.Addr { return f.local }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}

func newFakeSocket(t *testing.T, tr Transport, dropper loss.Dropper) *Socket {
	t.Helper()
	cfg := Config{
		Transport:        tr,
		Dropper:          dropper,
		Clock:            clockwork.NewRealClock(),
		RetransmitPeriod: time.Hour,
		Timeout:          time.Hour,
		BackoffInterval:  time.Millisecond,
	}
	sock, err := Create(SockMRP, cfg, t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sock.Close() })
	return sock
}

// TestReceiveOrderFollowsArrivalNotTransmission exercises scenario S4: the
// protocol does not reorder, so if frames arrive out of transmission
// order, RecvFrom yields them in arrival order.
func TestReceiveOrderFollowsArrivalNotTransmission(t *testing.T) {
	t.Parallel()

	ta, tb := newFakePair(t)
	// tb holds the first of the next two datagrams delivered to it and
	// releases both, second-first, once the second arrives — modeling a
	// transport that reorders frames in flight.
	tb.reorderFirstTwo = true
	a := newFakeSocket(t, ta, loss.Never{})
	b := newFakeSocket(t, tb, loss.Never{})

	dest := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22222}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, a.SendTo(ctx, dest, []byte("1")))
	require.NoError(t, a.SendTo(ctx, dest, []byte("2")))

	first, _, err := b.RecvFrom(ctx)
	require.NoError(t, err)
	second, _, err := b.RecvFrom(ctx)
	require.NoError(t, err)

	require.Equal(t, []byte("2"), first)
	require.Equal(t, []byte("1"), second)
}

// TestMessageIDWrapDeliversBothIndependently exercises scenario S5: two
// sends whose minted ids wrap modulo 2^16 are still independently
// acknowledged and delivered.
func TestMessageIDWrapDeliversBothIndependently(t *testing.T) {
	t.Parallel()

	ta, tb := newFakePair(t)
	a := newFakeSocket(t, ta, loss.Never{})
	b := newFakeSocket(t, tb, loss.Never{})

	// Force the next two ids to wrap across the uint16 boundary: 0xFFFF,
	// then 0x0000.
	a.nextID.Store(0xFFFE)

	dest := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22222}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, a.SendTo(ctx, dest, []byte("before-wrap")))
	require.NoError(t, a.SendTo(ctx, dest, []byte("after-wrap")))

	first, _, err := b.RecvFrom(ctx)
	require.NoError(t, err)
	second, _, err := b.RecvFrom(ctx)
	require.NoError(t, err)

	require.ElementsMatch(t, [][]byte{[]byte("before-wrap"), []byte("after-wrap")}, [][]byte{first, second})

	require.Eventually(t, func() bool {
		return a.usend.Count() == 0
	}, time.Second, 5*time.Millisecond, "both wrapped ids should be independently acked and removed")
}

// TestSentinelZeroLengthReceiveIsDeliveredEmpty exercises spec.md §4.5
// step 3: a zero-length transport read is enqueued into RRecv directly,
// with a zero-length payload and no ACK, rather than being discarded.
func TestSentinelZeroLengthReceiveIsDeliveredEmpty(t *testing.T) {
	t.Parallel()

	ta, tb := newFakePair(t)
	_ = newFakeSocket(t, ta, loss.Never{})
	b := newFakeSocket(t, tb, loss.Never{})

	tb.deliver(nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	payload, src, err := b.RecvFrom(ctx)
	require.NoError(t, err)
	require.Empty(t, payload)
	require.Equal(t, ta.local.Port, src.Port)

	// No ACK should have been produced for the sentinel; ta's inbox stays
	// empty.
	ta.mu.Lock()
	defer ta.mu.Unlock()
	require.Empty(t, ta.inbox)
}
