package socket

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ackTracker remembers ids this socket has sent, for a TTL equal to the
// ack timeout, so an ACK that arrives after its USend entry was already
// removed (for example the second ACK for a retransmitted frame) can be
// distinguished in logs from one that matches no recently sent id.
type ackTracker struct {
	cache *ttlcache.Cache[uint16, struct{}]
}

func newAckTracker(ttl time.Duration) *ackTracker {
	cache := ttlcache.New(ttlcache.WithTTL[uint16, struct{}](ttl))
	go cache.Start()
	return &ackTracker{cache: cache}
}

func (t *ackTracker) recordSent(id uint16) {
	t.cache.Set(id, struct{}{}, ttlcache.DefaultTTL)
}

// wasRecentlySent reports whether id was sent by this socket within the
// tracker's TTL window, even if its USend entry has since been removed.
func (t *ackTracker) wasRecentlySent(id uint16) bool {
	return t.cache.Get(id) != nil
}

func (t *ackTracker) close() {
	t.cache.Stop()
}
