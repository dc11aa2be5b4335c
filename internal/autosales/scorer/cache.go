package scorer

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// cacheKey identifies a profile by lead plus a hash of the lead's mutable
// text fields. A re-engaged lead with a new message hashes differently and
// misses the cache on purpose.
type cacheKey struct {
	leadID uuid.UUID
	hash   uint64
}

func contentHash(parts ...string) uint64 {
	h := fnv.New64a()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func (k cacheKey) String() string {
	return k.leadID.String() + ":" + strconv.FormatUint(k.hash, 16)
}

// profileCache is a small TTL cache for lead profiles so repeated step
// executions within a sequence do not re-run the analysis.
type profileCache struct {
	mu       sync.Mutex
	entries  map[cacheKey]cacheEntry
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type cacheEntry struct {
	profile   Profile
	expiresAt time.Time
}

func newProfileCache(ttl time.Duration, capacity int, now func() time.Time) *profileCache {
	if now == nil {
		now = time.Now
	}
	return &profileCache{
		entries:  make(map[cacheKey]cacheEntry),
		ttl:      ttl,
		capacity: capacity,
		now:      now,
	}
}

func (c *profileCache) get(key cacheKey) (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Profile{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Profile{}, false
	}
	return entry.profile, true
}

func (c *profileCache) put(key cacheKey, profile Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{profile: profile, expiresAt: c.now().Add(c.ttl)}
}

// invalidate drops every cached profile for the lead, regardless of which
// content version produced it.
func (c *profileCache) invalidate(leadID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.leadID == leadID {
			delete(c.entries, key)
		}
	}
}

// evictLocked drops expired entries, then the soonest-to-expire one if the
// cache is still full. Caller holds the lock.
func (c *profileCache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.capacity {
		return
	}

	var oldest cacheKey
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.expiresAt.Before(oldestAt) {
			oldest = key
			oldestAt = entry.expiresAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldest)
	}
}
