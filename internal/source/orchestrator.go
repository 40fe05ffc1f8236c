package source

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/intelliweather/weather-api/internal/cache"
	"github.com/intelliweather/weather-api/internal/obs"
)

// Provenance tags where a result came from.
type Provenance string

const (
	ProvenanceCache    Provenance = "cache"
	ProvenancePrimary  Provenance = "primary"
	ProvenanceFallback Provenance = "fallback"
)

var (
	// ErrAllSourcesExhausted signals that the primary failed and the fallback
	// either failed too or is not configured. Surfaced to callers as a
	// service-unavailable condition, distinct from rate limiting.
	ErrAllSourcesExhausted = errors.New("source: all upstream sources exhausted")

	// ErrNoPrimary is a programming error: a request without a primary fetcher.
	ErrNoPrimary = errors.New("source: primary fetcher is required")
)

// Fetcher is an upstream call producing the payload for one logical request.
type Fetcher func(ctx context.Context) (any, error)

// Request describes one logical fetch: its cache key, the TTL of its data
// class (chosen by the caller, not the orchestrator), the per-attempt upstream
// timeout, and the primary and optional fallback fetchers.
type Request struct {
	Key      string
	TTL      time.Duration
	Timeout  time.Duration
	Primary  Fetcher
	Fallback Fetcher
}

// Result is the orchestrator's answer, tagged with provenance.
type Result struct {
	Payload    any
	Provenance Provenance
	FetchedAt  time.Time
}

const defaultTimeout = 10 * time.Second

// Orchestrator resolves logical requests against the cache first, then the
// primary upstream, then the fallback. Concurrent misses for the same key are
// coalesced into a single in-flight fetch shared by all waiters.
type Orchestrator struct {
	cache   *cache.Store
	metrics *obs.Metrics
	group   singleflight.Group
}

// New creates an Orchestrator over the given cache. Metrics may be nil.
func New(store *cache.Store, metrics *obs.Metrics) *Orchestrator {
	return &Orchestrator{cache: store, metrics: metrics}
}

// Fetch runs the cache -> primary -> fallback sequence for req.
//
// If the caller's context is cancelled while waiting on a coalesced flight,
// only that waiter gives up; the flight keeps running for the other waiters
// and for the cache write.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (Result, error) {
	if req.Primary == nil {
		return Result{}, ErrNoPrimary
	}

	if v, ok := o.cache.Get(req.Key); ok {
		o.metrics.CacheHit()
		return Result{Payload: v, Provenance: ProvenanceCache, FetchedAt: time.Now().UTC()}, nil
	}
	o.metrics.CacheMiss()

	ch := o.group.DoChan(req.Key, func() (any, error) {
		return o.fetchUpstream(req)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// fetchUpstream drives the primary -> fallback sequence for a single coalesced
// flight. Attempt contexts are detached from the callers so that one waiter's
// cancellation cannot abort a fetch other waiters depend on.
func (o *Orchestrator) fetchUpstream(req Request) (Result, error) {
	flightID := uuid.NewString()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	payload, primaryErr := o.attempt(req.Primary, timeout, string(ProvenancePrimary))
	if primaryErr == nil {
		o.writeBack(req, payload)
		return Result{Payload: payload, Provenance: ProvenancePrimary, FetchedAt: time.Now().UTC()}, nil
	}
	log.Printf("ERROR: primary fetch failed for %s (flight %s): %v", req.Key, flightID, primaryErr)

	if req.Fallback == nil {
		return Result{}, fmt.Errorf("%w: key %s: primary: %v", ErrAllSourcesExhausted, req.Key, primaryErr)
	}

	payload, fallbackErr := o.attempt(req.Fallback, timeout, string(ProvenanceFallback))
	if fallbackErr != nil {
		log.Printf("ERROR: fallback fetch failed for %s (flight %s): %v", req.Key, flightID, fallbackErr)
		return Result{}, fmt.Errorf("%w: key %s: primary: %v; fallback: %v",
			ErrAllSourcesExhausted, req.Key, primaryErr, fallbackErr)
	}

	log.Printf("INFO: served %s from fallback (flight %s)", req.Key, flightID)
	o.writeBack(req, payload)
	return Result{Payload: payload, Provenance: ProvenanceFallback, FetchedAt: time.Now().UTC()}, nil
}

func (o *Orchestrator) attempt(fetch Fetcher, timeout time.Duration, source string) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	payload, err := fetch(ctx)
	o.metrics.UpstreamFetch(source, err, time.Since(start))
	return payload, err
}

// writeBack stores a successful fetch. Cache failures are soft: logged,
// never surfaced to the caller.
func (o *Orchestrator) writeBack(req Request, payload any) {
	if err := o.cache.Set(req.Key, payload, req.TTL); err != nil {
		log.Printf("ERROR: cache write rejected for %s: %v", req.Key, err)
	}
}
