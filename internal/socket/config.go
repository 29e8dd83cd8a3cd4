package socket

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/ratelimit"

	"github.com/relaylabs/rudp/internal/loss"
)

// Protocol constants, named for the values spec.md fixes: a 2-second
// retransmit period, a 4-second (2T) ack timeout, a 5% default simulated
// loss rate, a 100-entry table cap and a 100-byte payload cap.
const (
	DefaultRetransmitPeriod = 2 * time.Second
	DefaultTimeout          = 4 * time.Second
	DefaultLossProbability  = 0.05
	DefaultTableCapacity    = 100
	DefaultPayloadCap       = 100
)

// Config wires every external collaborator and tunable the engine needs.
// Callers build a Config, call Validate to fill in defaults and reject
// bad combinations, and pass the result to Create.
type Config struct {
	// Logger receives structured lifecycle and diagnostic events. Nil
	// defaults to slog.Default().
	Logger *slog.Logger

	// Clock abstracts time for the retransmitter loop and table timeout
	// checks, so tests can use clockwork.NewFakeClock() instead of
	// waiting on a real 4-second timeout.
	Clock clockwork.Clock

	// Transport is the datagram endpoint to send and receive frames on.
	// Required — Create does not open a socket on the caller's behalf
	// until Bind is called.
	Transport Transport

	// Dropper simulates datagram loss on received, non-empty frames,
	// before any ACK is sent or table is touched. Defaults to
	// loss.NewProbabilistic(DefaultLossProbability, time.Now().UnixNano()).
	Dropper loss.Dropper

	// PayloadCap bounds SendTo's accepted payload size. Defaults to
	// DefaultPayloadCap.
	PayloadCap int

	// TableCapacity bounds USend and RRecv. Defaults to
	// DefaultTableCapacity.
	TableCapacity int

	// RetransmitPeriod is how often the retransmitter loop scans USend
	// for timed-out entries. Defaults to DefaultRetransmitPeriod.
	RetransmitPeriod time.Duration

	// Timeout is how long an unacknowledged send waits before being
	// considered for retransmission. Defaults to DefaultTimeout.
	Timeout time.Duration

	// BackoffInterval is the retry interval used while InsertWithBackoff
	// or EnqueueWithBackoff wait for table space. Defaults to 10ms.
	BackoffInterval time.Duration

	// DedupTTL, when nonzero, enables a ristretto-backed cache that
	// drops duplicate deliveries seen within the TTL. Zero (the
	// default) preserves the reference's at-least-once, no-dedup
	// behavior — see SPEC_FULL.md §10.1 and DESIGN.md.
	DedupTTL time.Duration

	// RetransmitRateLimit, when nonzero, caps retransmission sends per
	// second via a leaky-bucket limiter. Zero disables rate limiting.
	RetransmitRateLimit int

	// WorkerPoolSize bounds the pond pool used to dispatch concurrent
	// retransmit sends. Defaults to 8.
	WorkerPoolSize int

	// Registerer receives this socket's Prometheus collectors. Nil
	// defaults to a fresh, unshared prometheus.NewRegistry() so that
	// multiple sockets in one process never collide on metric names —
	// see internal/metrics.
	Registerer prometheus.Registerer
}

// Validate fills in defaults for unset fields and rejects invalid
// combinations, returning the effective Config to use.
func (c Config) Validate() (Config, error) {
	if c.Transport == nil {
		return c, fmt.Errorf("socket: config: Transport is required")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Dropper == nil {
		c.Dropper = loss.NewProbabilistic(DefaultLossProbability, time.Now().UnixNano())
	}
	if c.PayloadCap <= 0 {
		c.PayloadCap = DefaultPayloadCap
	}
	if c.TableCapacity <= 0 {
		c.TableCapacity = DefaultTableCapacity
	}
	if c.RetransmitPeriod <= 0 {
		c.RetransmitPeriod = DefaultRetransmitPeriod
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BackoffInterval <= 0 {
		c.BackoffInterval = 10 * time.Millisecond
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = 8
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.RetransmitRateLimit < 0 {
		return c, fmt.Errorf("socket: config: RetransmitRateLimit must not be negative")
	}
	return c, nil
}

func (c Config) rateLimiter() ratelimit.Limiter {
	if c.RetransmitRateLimit <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(c.RetransmitRateLimit)
}
