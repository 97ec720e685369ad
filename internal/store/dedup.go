package store

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Deduper remembers which task each client_request_id created, for one dedup window.
// It sits in front of the request_ids table so hot retries skip the database lookup.
type Deduper struct {
	cache *ttlcache.Cache[string, string]
}

func NewDeduper(window time.Duration) *Deduper {
	c := ttlcache.New(
		ttlcache.WithTTL[string, string](window),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &Deduper{cache: c}
}

// Lookup returns the task id created for requestID, if it is still remembered.
func (d *Deduper) Lookup(requestID string) (string, bool) {
	item := d.cache.Get(requestID)
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Remember records that requestID created taskID. ttl <= 0 uses the full window.
func (d *Deduper) Remember(requestID, taskID string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	d.cache.Set(requestID, taskID, ttl)
}

func (d *Deduper) Forget(requestID string) {
	d.cache.Delete(requestID)
}

func (d *Deduper) Len() int {
	return d.cache.Len()
}

func (d *Deduper) Close() {
	d.cache.Stop()
}
