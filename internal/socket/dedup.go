package socket

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// dedupCache optionally suppresses duplicate deliveries to the caller. It
// is off by default (see Config.DedupTTL) because the reference design is
// deliberately at-least-once with no dedup guarantee — callers that want
// exactly-once-delivered semantics opt in explicitly.
type dedupCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newDedupCache(ttl time.Duration) (*dedupCache, error) {
	if ttl <= 0 {
		return nil, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &dedupCache{cache: c, ttl: ttl}, nil
}

// seen reports whether id was already recorded as delivered, recording it
// for future calls if not.
func (d *dedupCache) seen(srcKey string, id uint16) bool {
	if d == nil {
		return false
	}
	key := dedupKey(srcKey, id)
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.SetWithTTL(key, struct{}{}, 1, d.ttl)
	d.cache.Wait()
	return false
}

func (d *dedupCache) close() {
	if d == nil {
		return
	}
	d.cache.Close()
}

func dedupKey(srcKey string, id uint16) string {
	buf := make([]byte, 0, len(srcKey)+6)
	buf = append(buf, srcKey...)
	buf = append(buf, '#')
	buf = append(buf, byte(id>>8), byte(id))
	return string(buf)
}
