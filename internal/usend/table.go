// Package usend implements the unacknowledged-send table: every
// transmitted DATA frame is held here until a matching ACK arrives, along
// with its send time for retransmit-timeout computation.
package usend

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Entry is one outstanding send. Frame is the full owned wire buffer
// actually handed to the transport, so a retransmit can resend it
// byte-for-byte without re-encoding.
type Entry struct {
	ID     uint16
	Frame  []byte
	Dest   *net.UDPAddr
	Flags  int
	SentAt time.Time
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}

// Table is a fixed-capacity slot array addressed by linear scan, matching
// the reference implementation's array-of-pointers layout.
type Table struct {
	mu      sync.Mutex
	cap     int
	entries []*Entry
}

// New returns an empty table with the given capacity.
func New(capacity int) *Table {
	return &Table{cap: capacity, entries: make([]*Entry, capacity)}
}

func (t *Table) tryInsert(e *Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, slot := range t.entries {
		if slot == nil {
			t.entries[i] = e
			return true
		}
	}
	return false
}

// InsertWithBackoff places e in the first empty slot, blocking with a
// small constant backoff (context-aware) while the table is full —
// backpressure instead of a silent insert-failure, symmetric with
// RRecv's treatment when full.
func (t *Table) InsertWithBackoff(ctx context.Context, e *Entry, interval time.Duration) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if t.tryInsert(e) {
			return struct{}{}, nil
		}
		return struct{}{}, errFull
	}, backoff.WithBackOff(backoff.NewConstantBackOff(interval)))
	return err
}

// Remove deletes the first entry matching id. It is a no-op if absent,
// including for ids whose entry an earlier ACK already removed or that
// were never sent (duplicate/late ACKs are not fatal).
func (t *Table) Remove(id uint16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.entries {
		if e != nil && e.ID == id {
			t.entries[i] = nil
			return true
		}
	}
	return false
}

// Count returns the number of occupied slots.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// WalkTimedOut holds the table mutex for the duration of the walk but
// releases and reacquires it around each call to send, so the mutex is
// never held across a transport syscall. Each timed-out entry's send time
// is stamped to now before send is invoked, exactly as the reference
// retransmitter does, so a slow or blocked send doesn't cause the same
// entry to be resent twice in quick succession.
func (t *Table) WalkTimedOut(now time.Time, timeout time.Duration, send func(*Entry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e == nil {
			continue
		}
		if now.Sub(e.SentAt) < timeout {
			continue
		}
		snapshot := e.clone()
		e.SentAt = now
		t.mu.Unlock()
		send(snapshot)
		t.mu.Lock()
	}
}

var errFull = tableFullError{}

type tableFullError struct{}

func (tableFullError) Error() string { return "usend: table full" }
