package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func mustConfig(t *testing.T, tiers map[string][]WindowQuota) *Config {
	t.Helper()
	cfg, err := NewConfig(tiers)
	if err != nil {
		t.Fatalf("config rejected: %v", err)
	}
	return cfg
}

func hourOnly(t *testing.T, limit int) *Config {
	return mustConfig(t, map[string][]WindowQuota{
		"test": {{Name: WindowHour, Duration: time.Hour, Limit: limit}},
	})
}

// TestQuotaBoundary checks admit-on-departure exactness: the Q-th request in a
// rolling window is allowed, the (Q+1)-th is denied, even for a burst at a
// single instant.
func TestQuotaBoundary(t *testing.T) {
	l := New(hourOnly(t, 3))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		dec, err := l.Check("ip:1.2.3.4", "test", base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	dec, err := l.Check("ip:1.2.3.4", "test", base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if dec.Allowed {
		t.Fatal("4th request within the window must be denied")
	}
	if dec.Window != WindowHour {
		t.Fatalf("expected hour window to be violated, got %q", dec.Window)
	}
	// Oldest request was at base; it ages out at base+1h. Denied at base+3s.
	if want := time.Hour - 3*time.Second; dec.RetryAfter != want {
		t.Fatalf("expected retry-after %v, got %v", want, dec.RetryAfter)
	}
}

func TestBurstAtSameInstant(t *testing.T) {
	l := New(hourOnly(t, 5))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	allowed := 0
	for i := 0; i < 20; i++ {
		dec, err := l.Check("k", "test", now)
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if dec.Allowed {
			allowed++
		}
	}
	if allowed != 5 {
		t.Fatalf("expected exactly 5 admits from a same-instant burst, got %d", allowed)
	}
}

// TestOldestDepartureReadmits verifies the sliding interval: once the oldest
// stamp ages out, exactly one more request fits.
func TestOldestDepartureReadmits(t *testing.T) {
	l := New(hourOnly(t, 2))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Check("k", "test", base)
	l.Check("k", "test", base.Add(10*time.Minute))

	if dec, _ := l.Check("k", "test", base.Add(30*time.Minute)); dec.Allowed {
		t.Fatal("expected denial while both stamps are in the window")
	}

	// At base+1h the first stamp has departed.
	if dec, _ := l.Check("k", "test", base.Add(time.Hour)); !dec.Allowed {
		t.Fatal("expected admit once the oldest stamp aged out")
	}

	// The second stamp (base+10m) still holds the window full.
	if dec, _ := l.Check("k", "test", base.Add(time.Hour).Add(time.Second)); dec.Allowed {
		t.Fatal("expected denial; window refilled by the readmitted request")
	}
}

// TestMultiWindowConjunction: a request is denied if any configured window is
// exhausted, even with headroom everywhere else.
func TestMultiWindowConjunction(t *testing.T) {
	cfg := mustConfig(t, map[string][]WindowQuota{
		"test": {
			{Name: WindowMinute, Duration: time.Minute, Limit: 2},
			{Name: WindowHour, Duration: time.Hour, Limit: 100},
		},
	})
	l := New(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Check("k", "test", now)
	l.Check("k", "test", now)

	dec, err := l.Check("k", "test", now.Add(time.Second))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if dec.Allowed {
		t.Fatal("minute window is full; request must be denied despite hourly headroom")
	}
	if dec.Window != WindowMinute {
		t.Fatalf("expected minute window reported, got %q", dec.Window)
	}
}

// TestDenyReportsBindingWindow: with several windows violated at once the
// decision must name the one with the largest retry-after.
func TestDenyReportsBindingWindow(t *testing.T) {
	cfg := mustConfig(t, map[string][]WindowQuota{
		"test": {
			{Name: WindowMinute, Duration: time.Minute, Limit: 1},
			{Name: WindowHour, Duration: time.Hour, Limit: 1},
		},
	})
	l := New(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Check("k", "test", now)

	dec, _ := l.Check("k", "test", now.Add(time.Second))
	if dec.Allowed {
		t.Fatal("expected denial")
	}
	if dec.Window != WindowHour {
		t.Fatalf("expected the hour window (largest retry-after), got %q", dec.Window)
	}
	if want := time.Hour - time.Second; dec.RetryAfter != want {
		t.Fatalf("expected retry-after %v, got %v", want, dec.RetryAfter)
	}
}

func TestAllowReportsTightestWindow(t *testing.T) {
	cfg := mustConfig(t, map[string][]WindowQuota{
		"test": {
			{Name: WindowMinute, Duration: time.Minute, Limit: 3},
			{Name: WindowHour, Duration: time.Hour, Limit: 100},
		},
	})
	l := New(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	dec, err := l.Check("k", "test", now)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !dec.Allowed {
		t.Fatal("expected admit")
	}
	if dec.Window != WindowMinute || dec.Limit != 3 || dec.Remaining != 2 {
		t.Fatalf("expected minute window with 2 remaining, got %+v", dec)
	}
}

func TestUnknownTierFailsLoudly(t *testing.T) {
	l := New(DefaultConfig())

	_, err := l.Check("k", "platinum", time.Now())
	if !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
}

func TestConfigRejectsUnknownWindow(t *testing.T) {
	_, err := NewConfig(map[string][]WindowQuota{
		"test": {{Name: "fortnight", Duration: 14 * 24 * time.Hour, Limit: 10}},
	})
	if err == nil {
		t.Fatal("expected config with unknown window name to be rejected")
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	l := New(hourOnly(t, 1))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if dec, _ := l.Check("a", "test", now); !dec.Allowed {
		t.Fatal("first identity should be admitted")
	}
	if dec, _ := l.Check("b", "test", now); !dec.Allowed {
		t.Fatal("second identity must not be affected by the first")
	}
	if dec, _ := l.Check("a", "test", now); dec.Allowed {
		t.Fatal("first identity exhausted its quota")
	}
}

// TestConcurrentSameIdentity: a concurrent burst from one identity must never
// exceed the quota (no check-then-act race).
func TestConcurrentSameIdentity(t *testing.T) {
	l := New(hourOnly(t, 10))
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := l.Check("burst", "test", now)
			if err != nil {
				t.Errorf("check failed: %v", err)
				return
			}
			if dec.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Fatalf("expected exactly 10 admits under concurrency, got %d", allowed)
	}
}

// TestDistinctIdentitiesDoNotSerialize drives many identities in parallel;
// under the race detector this pins the sharded locking, and correctness of
// per-identity quotas must still hold.
func TestDistinctIdentitiesDoNotSerialize(t *testing.T) {
	l := New(hourOnly(t, 1))
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			identity := "id-" + string(rune('a'+n%26)) + string(rune('a'+n/26))
			dec, err := l.Check(identity, "test", now)
			if err != nil || !dec.Allowed {
				t.Errorf("identity %s: unexpected outcome (%v, %v)", identity, dec.Allowed, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestSweepDropsIdleIdentities(t *testing.T) {
	l := New(hourOnly(t, 5))
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.Check("old", "test", base)
	l.Check("fresh", "test", base.Add(90*time.Minute))

	removed := l.Sweep(base.Add(2 * time.Hour).Add(time.Second))
	if removed != 1 {
		t.Fatalf("expected 1 identity swept, got %d", removed)
	}
	if got := l.Stats().Identities; got != 1 {
		t.Fatalf("expected 1 identity remaining, got %d", got)
	}
}

func TestReloadSwapsTable(t *testing.T) {
	l := New(hourOnly(t, 1))
	now := time.Now()

	l.Check("k", "test", now)
	if dec, _ := l.Check("k", "test", now); dec.Allowed {
		t.Fatal("expected denial under the old table")
	}

	l.Reload(hourOnly(t, 100))
	if dec, _ := l.Check("k", "test", now); !dec.Allowed {
		t.Fatal("expected admit under the reloaded table")
	}
}
