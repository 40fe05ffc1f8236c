package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/intelliweather/weather-api/internal/cache"
)

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	store := cache.New(0, 0)
	t.Cleanup(store.Close)
	return store
}

func fixed(payload any) Fetcher {
	return func(ctx context.Context) (any, error) {
		return payload, nil
	}
}

func failing(err error) Fetcher {
	return func(ctx context.Context) (any, error) {
		return nil, err
	}
}

func TestCacheHitShortCircuits(t *testing.T) {
	store := newTestCache(t)
	store.Set("k", "cached", time.Minute)

	var calls atomic.Int64
	o := New(store, nil)
	res, err := o.Fetch(context.Background(), Request{
		Key: "k",
		TTL: time.Minute,
		Primary: func(ctx context.Context) (any, error) {
			calls.Add(1)
			return "fresh", nil
		},
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if res.Provenance != ProvenanceCache || res.Payload != "cached" {
		t.Fatalf("expected cached result, got %+v", res)
	}
	if calls.Load() != 0 {
		t.Fatal("cache hit must not invoke the primary fetcher")
	}
}

func TestPrimarySuccessPopulatesCache(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	res, err := o.Fetch(context.Background(), Request{
		Key:     "k",
		TTL:     time.Minute,
		Primary: fixed("fresh"),
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if res.Provenance != ProvenancePrimary || res.Payload != "fresh" {
		t.Fatalf("expected primary result, got %+v", res)
	}

	if v, ok := store.Get("k"); !ok || v != "fresh" {
		t.Fatalf("expected cache populated with primary payload, got (%v, %v)", v, ok)
	}
}

// TestFallbackOrdering: with a dead primary and a live fallback every request
// resolves from the fallback and the cache ends up holding its payload.
func TestFallbackOrdering(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	res, err := o.Fetch(context.Background(), Request{
		Key:      "k",
		TTL:      time.Minute,
		Primary:  failing(errors.New("connection refused")),
		Fallback: fixed("P"),
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if res.Provenance != ProvenanceFallback || res.Payload != "P" {
		t.Fatalf("expected fallback result, got %+v", res)
	}

	// A second request is now a cache hit on the fallback payload.
	res, err = o.Fetch(context.Background(), Request{
		Key:     "k",
		TTL:     time.Minute,
		Primary: failing(errors.New("still down")),
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if res.Provenance != ProvenanceCache || res.Payload != "P" {
		t.Fatalf("expected cache hit with fallback payload, got %+v", res)
	}
}

func TestPrimaryTimeoutTriggersFallback(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	slowPrimary := func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	res, err := o.Fetch(context.Background(), Request{
		Key:      "k",
		TTL:      time.Minute,
		Timeout:  30 * time.Millisecond,
		Primary:  slowPrimary,
		Fallback: fixed("P"),
	})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if res.Provenance != ProvenanceFallback {
		t.Fatalf("expected fallback after primary timeout, got %q", res.Provenance)
	}
}

func TestAllSourcesExhausted(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	_, err := o.Fetch(context.Background(), Request{
		Key:      "k",
		TTL:      time.Minute,
		Primary:  failing(errors.New("primary down")),
		Fallback: failing(errors.New("fallback down")),
	})
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Fatalf("expected ErrAllSourcesExhausted, got %v", err)
	}
	if _, ok := store.Get("k"); ok {
		t.Fatal("failed fetch must not populate the cache")
	}
}

func TestNoFallbackConfigured(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	_, err := o.Fetch(context.Background(), Request{
		Key:     "k",
		TTL:     time.Minute,
		Primary: failing(errors.New("primary down")),
	})
	if !errors.Is(err, ErrAllSourcesExhausted) {
		t.Fatalf("expected ErrAllSourcesExhausted without fallback, got %v", err)
	}
}

// TestRequestCoalescing: N concurrent misses for one key produce exactly one
// upstream call, and every waiter sees that fetch's result.
func TestRequestCoalescing(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	var calls atomic.Int64
	primary := func(ctx context.Context) (any, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond) // hold the flight open for all waiters
		return "shared", nil
	}

	const waiters = 50
	var wg sync.WaitGroup
	results := make([]Result, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = o.Fetch(context.Background(), Request{
				Key:     "loc:51.5,-0.13:daily",
				TTL:     time.Minute,
				Primary: primary,
			})
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 upstream call for %d waiters, got %d", waiters, got)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d failed: %v", i, errs[i])
		}
		if results[i].Payload != "shared" {
			t.Fatalf("waiter %d got %v, want shared payload", i, results[i].Payload)
		}
	}
}

// TestWaiterCancellationKeepsFlightAlive: cancelling one waiter only drops its
// interest; the flight completes for the other waiter and the cache write.
func TestWaiterCancellationKeepsFlightAlive(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	var calls atomic.Int64
	started := make(chan struct{})
	primary := func(ctx context.Context) (any, error) {
		calls.Add(1)
		close(started)
		time.Sleep(80 * time.Millisecond)
		return "shared", nil
	}

	req := Request{Key: "k", TTL: time.Minute, Primary: primary}

	patientDone := make(chan error, 1)
	var patient Result
	go func() {
		var err error
		patient, err = o.Fetch(context.Background(), req)
		patientDone <- err
	}()

	<-started
	ctx, cancel := context.WithCancel(context.Background())
	impatientDone := make(chan error, 1)
	go func() {
		_, err := o.Fetch(ctx, req)
		impatientDone <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-impatientDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled waiter should see context.Canceled, got %v", err)
	}
	if err := <-patientDone; err != nil {
		t.Fatalf("patient waiter failed: %v", err)
	}
	if patient.Payload != "shared" {
		t.Fatalf("patient waiter got %v, want shared payload", patient.Payload)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single flight, got %d calls", got)
	}
	if v, ok := store.Get("k"); !ok || v != "shared" {
		t.Fatal("flight must still populate the cache after a waiter cancels")
	}
}

func TestMissingPrimaryIsRejected(t *testing.T) {
	o := New(newTestCache(t), nil)

	_, err := o.Fetch(context.Background(), Request{Key: "k", TTL: time.Minute})
	if !errors.Is(err, ErrNoPrimary) {
		t.Fatalf("expected ErrNoPrimary, got %v", err)
	}
}

// TestInvalidTTLIsSoft: a bad TTL rejects the cache write but never fails the
// request itself.
func TestInvalidTTLIsSoft(t *testing.T) {
	store := newTestCache(t)
	o := New(store, nil)

	res, err := o.Fetch(context.Background(), Request{
		Key:     "k",
		TTL:     0,
		Primary: fixed("fresh"),
	})
	if err != nil {
		t.Fatalf("fetch must succeed despite rejected cache write: %v", err)
	}
	if res.Provenance != ProvenancePrimary {
		t.Fatalf("expected primary provenance, got %q", res.Provenance)
	}
	if _, ok := store.Get("k"); ok {
		t.Fatal("rejected write must not leave an entry behind")
	}
}
