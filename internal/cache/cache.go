package cache

import (
	"errors"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidTTL is returned by Set when the caller supplies a non-positive TTL.
// A non-positive TTL is a contract violation, not a request to cache forever.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

const defaultShardCount = 16

// Entry is a single cached value with its expiry metadata.
type Entry struct {
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry must not be served at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a point-in-time view of cache activity, for the status endpoint
// and for tests.
type Stats struct {
	Size       int   `json:"size"`
	MaxEntries int   `json:"maxEntries"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Expired    int64 `json:"expired"`
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Store is a sharded in-memory TTL cache. Keys are spread over a fixed set of
// shards so that lookups for distinct keys do not serialize on one lock.
// Expired entries are dropped lazily on Get and actively by a background
// sweeper started in New.
type Store struct {
	shards      []*shard
	maxPerShard int

	sweepInterval time.Duration
	stop          chan struct{}
	closeOnce     sync.Once

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	expired   atomic.Int64
}

// New creates a Store bounded to maxEntries live entries (0 = unbounded) and
// starts the background sweeper. A sweepInterval of 0 disables the sweeper;
// expired entries are then only removed lazily.
func New(maxEntries int, sweepInterval time.Duration) *Store {
	return newStore(defaultShardCount, maxEntries, sweepInterval)
}

func newStore(shardCount, maxEntries int, sweepInterval time.Duration) *Store {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}

	s := &Store{
		shards:        make([]*shard, shardCount),
		sweepInterval: sweepInterval,
		stop:          make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	if maxEntries > 0 {
		s.maxPerShard = (maxEntries + shardCount - 1) / shardCount
	}

	if sweepInterval > 0 {
		go s.sweepLoop()
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Get returns the live value for key. An entry whose expiry has passed is
// treated as a miss and removed, whether or not the sweeper has run yet.
func (s *Store) Get(key string) (any, bool) {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.entries[key]
	sh.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return nil, false
	}

	if e.Expired(time.Now()) {
		sh.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := sh.entries[key]; still && cur.Expired(time.Now()) {
			delete(sh.entries, key)
			s.expired.Add(1)
		}
		sh.mu.Unlock()

		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return e.Value, true
}

// Set stores value under key for the given TTL, overwriting any existing
// entry. When the shard is at capacity and key is new, the entry with the
// soonest expiry in that shard is evicted first.
func (s *Store) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	now := time.Now()
	entry := Entry{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if s.maxPerShard > 0 {
		if _, exists := sh.entries[key]; !exists && len(sh.entries) >= s.maxPerShard {
			s.evictSoonest(sh)
		}
	}
	sh.entries[key] = entry
	return nil
}

// evictSoonest drops the entry closest to expiry. Already-expired entries sort
// first, so they are always reclaimed before any live entry. Caller holds the
// shard write lock.
func (s *Store) evictSoonest(sh *shard) {
	var victim string
	var victimExpiry time.Time
	first := true

	for k, e := range sh.entries {
		if first || e.ExpiresAt.Before(victimExpiry) {
			victim = k
			victimExpiry = e.ExpiresAt
			first = false
		}
	}
	if !first {
		delete(sh.entries, victim)
		s.evictions.Add(1)
	}
}

// Delete removes key if present. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// Size returns the count of live (non-expired) entries.
func (s *Store) Size() int {
	now := time.Now()
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			if !e.Expired(now) {
				total++
			}
		}
		sh.mu.RUnlock()
	}
	return total
}

// Keys lists all live keys, optionally filtered by prefix.
func (s *Store) Keys(prefix string) []string {
	now := time.Now()
	var keys []string
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			if e.Expired(now) {
				continue
			}
			if prefix == "" || strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		sh.mu.RUnlock()
	}
	return keys
}

// Clear removes every entry.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.entries = make(map[string]Entry)
		sh.mu.Unlock()
	}
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	return Stats{
		Size:       s.Size(),
		MaxEntries: s.maxPerShard * len(s.shards),
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Evictions:  s.evictions.Load(),
		Expired:    s.expired.Load(),
	}
}

// Sweep removes all expired entries and returns how many were dropped. The
// background sweeper calls this periodically; it is exported so operators and
// tests can force a pass.
func (s *Store) Sweep() int {
	now := time.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if e.Expired(now) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	if removed > 0 {
		s.expired.Add(int64(removed))
	}
	return removed
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				log.Printf("DEBUG: cache sweep removed %d expired entries", removed)
			}
		case <-s.stop:
			return
		}
	}
}

// Close stops the background sweeper. The store remains usable afterwards.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
}
