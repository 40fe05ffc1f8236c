package ratelimit

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrUnknownTier is returned when a request carries a tier absent from the
// table. This is a configuration bug, distinct from a quota denial, and must
// surface as an internal error rather than fall back to some default quota.
var ErrUnknownTier = errors.New("ratelimit: unknown tier")

const defaultShardCount = 32

// Decision is the outcome of a rate-limit check. Limit and Remaining always
// describe the binding window: on a denial the violated window with the
// largest retry-after, on an admit the window with the least headroom left.
type Decision struct {
	Allowed    bool
	Window     string
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Stats is a point-in-time view of limiter activity.
type Stats struct {
	Allowed    int64 `json:"allowed"`
	Denied     int64 `json:"denied"`
	Identities int   `json:"identities"`
}

// windowLog is the timestamp sequence of one window for one identity. The
// duration is remembered from the last check so Sweep can prune without a
// tier lookup.
type windowLog struct {
	duration time.Duration
	stamps   []time.Time
}

type identityState struct {
	windows map[string]*windowLog
}

type limiterShard struct {
	mu     sync.Mutex
	states map[string]*identityState
}

// Limiter enforces sliding-window quotas per identity across every window of
// the identity's tier. Identities are spread over shards so distinct callers
// only contend within a shard; check-and-record for one identity is atomic
// under its shard lock, so concurrent bursts cannot exceed a quota.
type Limiter struct {
	cfg    atomic.Pointer[Config]
	shards []*limiterShard

	allowed atomic.Int64
	denied  atomic.Int64
}

// New creates a Limiter using the given tier table.
func New(cfg *Config) *Limiter {
	return newLimiter(defaultShardCount, cfg)
}

func newLimiter(shardCount int, cfg *Config) *Limiter {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	l := &Limiter{shards: make([]*limiterShard, shardCount)}
	for i := range l.shards {
		l.shards[i] = &limiterShard{states: make(map[string]*identityState)}
	}
	l.cfg.Store(cfg)
	return l
}

// Reload atomically swaps the tier table. In-flight checks finish against the
// table they loaded; new checks see the new one.
func (l *Limiter) Reload(cfg *Config) {
	l.cfg.Store(cfg)
}

// Config returns the current tier table.
func (l *Limiter) Config() *Config {
	return l.cfg.Load()
}

func (l *Limiter) shardFor(identity string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return l.shards[h.Sum32()%uint32(len(l.shards))]
}

// Check decides whether a request from identity at tier is admitted at the
// given instant. Every window of the tier must have headroom; an admitted
// request is recorded into all of them in the same critical section.
func (l *Limiter) Check(identity, tier string, now time.Time) (Decision, error) {
	tierQuotas, ok := l.cfg.Load().Tier(tier)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	sh := l.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st := sh.states[identity]
	if st == nil {
		st = &identityState{windows: make(map[string]*windowLog, len(tierQuotas))}
		sh.states[identity] = st
	}

	// Prune every window, then look for violations. If several windows are
	// violated at once, report the binding one: the largest retry-after.
	denied := false
	var worst Decision
	for _, q := range tierQuotas {
		wl := st.windows[q.Name]
		if wl == nil {
			wl = &windowLog{}
			st.windows[q.Name] = wl
		}
		wl.duration = q.Duration
		wl.stamps = pruneBefore(wl.stamps, now.Add(-q.Duration))

		if len(wl.stamps) >= q.Limit {
			retry := wl.stamps[0].Add(q.Duration).Sub(now)
			if !denied || retry > worst.RetryAfter {
				worst = Decision{
					Window:     q.Name,
					Limit:      q.Limit,
					RetryAfter: retry,
				}
			}
			denied = true
		}
	}
	if denied {
		l.denied.Add(1)
		return worst, nil
	}

	// All windows pass: record now into each and report the tightest one.
	best := Decision{Allowed: true, Remaining: -1}
	for _, q := range tierQuotas {
		wl := st.windows[q.Name]
		wl.stamps = append(wl.stamps, now)

		remaining := q.Limit - len(wl.stamps)
		if best.Remaining < 0 || remaining < best.Remaining {
			best.Window = q.Name
			best.Limit = q.Limit
			best.Remaining = remaining
		}
	}
	l.allowed.Add(1)
	return best, nil
}

// pruneBefore drops timestamps at or before cutoff. Stamps are appended in
// order, so the slice stays sorted and the survivors are a suffix.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append(stamps[:0], stamps[i:]...)
}

// Sweep removes identities whose every window has aged out, bounding memory
// against one-shot clients. Returns the number of identities dropped.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		for identity, st := range sh.states {
			live := false
			for _, wl := range st.windows {
				wl.stamps = pruneBefore(wl.stamps, now.Add(-wl.duration))
				if len(wl.stamps) > 0 {
					live = true
				}
			}
			if !live {
				delete(sh.states, identity)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Stats returns current counters.
func (l *Limiter) Stats() Stats {
	identities := 0
	for _, sh := range l.shards {
		sh.mu.Lock()
		identities += len(sh.states)
		sh.mu.Unlock()
	}
	return Stats{
		Allowed:    l.allowed.Load(),
		Denied:     l.denied.Load(),
		Identities: identities,
	}
}
