// Package rrecv implements the received-ready table: accepted DATA
// payloads buffered for delivery to the caller via RecvFrom, preserving
// FIFO acceptance order and the originating address.
package rrecv

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Entry is one accepted, undelivered payload.
type Entry struct {
	ID      uint16
	Payload []byte
	Src     *net.UDPAddr
}

// Table is a bounded FIFO ring guarded by one mutex, with a condition
// variable so DequeueBlocking can sleep efficiently instead of polling —
// the "implementer freedom" spec.md §9 explicitly invites in place of the
// reference's 1-second sleep loop.
type Table struct {
	mu   sync.Mutex
	cond *sync.Cond
	ring []*Entry
	head int
	tail int
	n    int
}

// New returns an empty table with the given capacity.
func New(capacity int) *Table {
	t := &Table{ring: make([]*Entry, capacity)}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *Table) tryEnqueue(e *Entry) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.n == len(t.ring) {
		return false
	}
	t.ring[t.tail] = e
	t.tail = (t.tail + 1) % len(t.ring)
	t.n++
	t.cond.Broadcast()
	return true
}

// EnqueueWithBackoff appends e at the tail, blocking with a small constant
// backoff (context-aware) while the table is full, symmetric with USend's
// treatment of a full table.
func (t *Table) EnqueueWithBackoff(ctx context.Context, e *Entry, interval time.Duration) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if t.tryEnqueue(e) {
			return struct{}{}, nil
		}
		return struct{}{}, errFull
	}, backoff.WithBackOff(backoff.NewConstantBackOff(interval)))
	return err
}

// DequeueBlocking removes and returns the head entry, blocking until one
// is available or ctx is done. Close must arrange for ctx's cancellation
// to be followed by a call to Broadcast so blocked waiters wake up.
func (t *Table) DequeueBlocking(ctx context.Context) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.n == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e := t.ring[t.head]
	t.ring[t.head] = nil
	t.head = (t.head + 1) % len(t.ring)
	t.n--
	return e, nil
}

// Broadcast wakes every goroutine blocked in DequeueBlocking so it can
// re-check its context and return ErrClosed-equivalent behavior.
func (t *Table) Broadcast() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cond.Broadcast()
}

// Count returns the number of buffered entries.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

var errFull = tableFullError{}

type tableFullError struct{}

func (tableFullError) Error() string { return "rrecv: table full" }
