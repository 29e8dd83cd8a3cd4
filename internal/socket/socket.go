// Package socket implements the reliable-messaging engine: the public
// Create/Bind/SendTo/RecvFrom/Close surface, backed by the frame codec,
// the unacknowledged-send and received-ready tables, and the receiver and
// retransmitter worker loops.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	backoffv4 "github.com/cenkalti/backoff/v4"
	"go.uber.org/ratelimit"

	"github.com/relaylabs/rudp/internal/frame"
	"github.com/relaylabs/rudp/internal/metrics"
	"github.com/relaylabs/rudp/internal/rrecv"
	"github.com/relaylabs/rudp/internal/usend"
)

// errUSendNotDrained is a sentinel driving drainUSend's backoff.Retry loop;
// it never escapes the function.
var errUSendNotDrained = errors.New("socket: usend not yet drained")

// SockMRP is the only sockType Create accepts, matching the reference
// library's single protocol family constant.
const SockMRP = 15

// Socket is one endpoint of the reliable-messaging protocol: a bound (or
// not-yet-bound) datagram transport plus the table state and worker
// goroutines that turn it into an at-least-once, duplicate-tolerant
// channel.
type Socket struct {
	cfg     Config
	id      string
	usend   *usend.Table
	rrecv   *rrecv.Table
	dedup   *dedupCache
	acktrck *ackTracker
	rec     *metrics.Recorder
	lim     ratelimit.Limiter
	pool    pond.Pool

	transport atomic.Pointer[Transport]
	nextID    atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Create builds a Socket for sockType (must be SockMRP) using cfg. The
// returned Socket already has its receiver and retransmitter goroutines
// running against cfg.Transport; call Bind if the caller needs a specific
// local address rather than whatever cfg.Transport was already listening
// on.
func Create(sockType int, cfg Config, id string) (*Socket, error) {
	if sockType != SockMRP {
		return nil, ErrInvalidArgument
	}
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	dedup, err := newDedupCache(cfg.DedupTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: dedup cache: %v", ErrResourceInit, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		cfg:     cfg,
		id:      id,
		usend:   usend.New(cfg.TableCapacity),
		rrecv:   rrecv.New(cfg.TableCapacity),
		dedup:   dedup,
		acktrck: newAckTracker(cfg.Timeout),
		rec:     metrics.New(cfg.Registerer, id),
		lim:     cfg.rateLimiter(),
		pool:    pond.NewPool(cfg.WorkerPoolSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.transport.Store(&cfg.Transport)

	s.wg.Add(2)
	go s.receiveLoop()
	go s.retransmitLoop()

	s.cfg.Logger.Info("socket created", "socket", id, "local_addr", cfg.Transport.LocalAddr())
	return s, nil
}

func (s *Socket) currentTransport() Transport {
	return *s.transport.Load()
}

// withShutdown returns a context done when either ctx is done or the
// socket is closed, so a blocking table wait started before Close is
// called still unblocks promptly instead of waiting on a caller context
// that may never itself be cancelled. wake, if non-nil, runs right after
// the merged context is cancelled as a result of socket shutdown — used
// by RecvFrom to re-broadcast on RRecv's condition variable so a waiter
// already asleep in cond.Wait is guaranteed to be woken after its
// context has actually gone done, rather than racing Close's own
// Broadcast call.
func (s *Socket) withShutdown(ctx context.Context, wake func()) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, func() {
		cancel()
		if wake != nil {
			wake()
		}
	})
	return merged, func() {
		stop()
		cancel()
	}
}

// Bind replaces the socket's transport with one listening on addr,
// closing the previous transport so any in-flight ReadFrom unblocks and
// the receive loop picks up the new transport on its next iteration.
func (s *Socket) Bind(network, addr string) error {
	nt, err := newUDPTransport(network, addr)
	if err != nil {
		return fmt.Errorf("%w: bind: %v", ErrTransport, err)
	}
	var newTransport Transport = nt
	old := s.transport.Swap(&newTransport)
	s.cfg.Logger.Info("socket bound", "socket", s.id, "local_addr", nt.LocalAddr())
	if old != nil {
		_ = (*old).Close()
	}
	return nil
}

// SendTo encodes payload as a DATA frame and hands it to the transport.
// Only once that send succeeds is the frame recorded in the
// unacknowledged-send table, so the retransmitter can resend it until an
// ACK arrives or the socket is closed — a frame that never left the wire
// never occupies a USend slot. SendTo blocks with backpressure while the
// table is full, per the redesign spec.md §9 invites in place of a
// silent drop.
func (s *Socket) SendTo(ctx context.Context, dest *net.UDPAddr, payload []byte) error {
	if len(payload) > s.cfg.PayloadCap {
		return ErrPayloadTooLarge
	}
	select {
	case <-s.ctx.Done():
		return ErrClosed
	default:
	}

	id := uint16(s.nextID.Add(1))
	buf := frame.EncodeData(id, payload)
	s.acktrck.recordSent(id)

	if _, err := s.currentTransport().WriteTo(buf, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	s.rec.TotalTransmissions.Inc()

	entry := &usend.Entry{ID: id, Frame: buf, Dest: dest, SentAt: s.cfg.Clock.Now()}
	waitCtx, cancel := s.withShutdown(ctx, nil)
	err := s.usend.InsertWithBackoff(waitCtx, entry, s.cfg.BackoffInterval)
	cancel()
	if err != nil {
		if s.ctx.Err() != nil {
			return ErrClosed
		}
		return fmt.Errorf("socket: usend insert: %w", err)
	}
	s.rec.USendDepth.Set(float64(s.usend.Count()))
	return nil
}

// RecvFrom blocks until a payload is available, ctx is done, or the
// socket is closed. This is a deliberate deviation from the reference
// design (which never returns an error): see ErrClosed and DESIGN.md.
func (s *Socket) RecvFrom(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	waitCtx, cancel := s.withShutdown(ctx, s.rrecv.Broadcast)
	e, err := s.rrecv.DequeueBlocking(waitCtx)
	cancel()
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, nil, ErrClosed
		}
		return nil, nil, err
	}
	s.rec.RRecvDepth.Set(float64(s.rrecv.Count()))
	return e.Payload, e.Src, nil
}

// Close waits, bounded, for outstanding sends to drain (so Close behaves
// as a flush rather than an abrupt cutoff — matching the reference
// implementation's close, which blocks until every unacknowledged send
// is resolved), then stops the receiver and retransmitter loops,
// releases the worker pool, closes the dedup cache, and closes the
// underlying transport. Close is idempotent.
func (s *Socket) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.drainUSend()
		s.cancel()
		s.rrecv.Broadcast()
		s.wg.Wait()
		s.pool.StopAndWait()
		s.dedup.close()
		s.acktrck.close()
		if err := s.currentTransport().Close(); err != nil {
			closeErr = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		s.cfg.Logger.Info("socket closed", "socket", s.id)
	})
	return closeErr
}

// drainUSend polls USend's occupancy with a bounded exponential backoff
// while the retransmitter loop is still running, so pending sends get a
// real chance to be retried and acknowledged before shutdown proceeds.
// It gives up after 30 seconds rather than blocking Close forever on an
// entry whose peer is gone for good.
func (s *Socket) drainUSend() {
	b := backoffv4.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	_ = backoffv4.Retry(func() error {
		if s.usend.Count() == 0 {
			return nil
		}
		return errUSendNotDrained
	}, b)
}

// Stats is a point-in-time snapshot of one socket's table occupancy,
// exposed for diagnostics (see internal/statsview).
type Stats struct {
	ID         string
	LocalAddr  string
	USendDepth int
	RRecvDepth int
}

// Stats returns a snapshot of the socket's current table occupancy.
func (s *Socket) Stats() Stats {
	return Stats{
		ID:         s.id,
		LocalAddr:  s.currentTransport().LocalAddr().String(),
		USendDepth: s.usend.Count(),
		RRecvDepth: s.rrecv.Count(),
	}
}
