package ratelimit

import (
	"fmt"
	"time"
)

// Canonical window names. Window names are plain strings validated against
// this closed set at construction time.
const (
	WindowMinute = "minute"
	WindowHour   = "hour"
	WindowDay    = "day"
	WindowMonth  = "month"
)

var knownWindows = map[string]struct{}{
	WindowMinute: {},
	WindowHour:   {},
	WindowDay:    {},
	WindowMonth:  {},
}

// Built-in tier names.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierBusiness   = "business"
	TierEnterprise = "enterprise"
)

// WindowQuota is one (window, duration, quota) triple of a tier.
type WindowQuota struct {
	Name     string        `json:"window"`
	Duration time.Duration `json:"duration"`
	Limit    int           `json:"limit"`
}

// Config is the immutable tier table: tier name -> window quotas. It is built
// once and never mutated; a reload swaps the whole table atomically on the
// Limiter.
type Config struct {
	tiers map[string][]WindowQuota
}

// NewConfig validates and freezes a tier table. Every window name must belong
// to the canonical set, and durations and limits must be positive.
func NewConfig(tiers map[string][]WindowQuota) (*Config, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("ratelimit: tier table is empty")
	}

	frozen := make(map[string][]WindowQuota, len(tiers))
	for tier, quotas := range tiers {
		if tier == "" {
			return nil, fmt.Errorf("ratelimit: tier name must not be empty")
		}
		if len(quotas) == 0 {
			return nil, fmt.Errorf("ratelimit: tier %q has no window quotas", tier)
		}
		seen := make(map[string]struct{}, len(quotas))
		for _, q := range quotas {
			if _, ok := knownWindows[q.Name]; !ok {
				return nil, fmt.Errorf("ratelimit: tier %q uses unknown window %q", tier, q.Name)
			}
			if _, dup := seen[q.Name]; dup {
				return nil, fmt.Errorf("ratelimit: tier %q defines window %q twice", tier, q.Name)
			}
			seen[q.Name] = struct{}{}
			if q.Duration <= 0 {
				return nil, fmt.Errorf("ratelimit: tier %q window %q has non-positive duration", tier, q.Name)
			}
			if q.Limit <= 0 {
				return nil, fmt.Errorf("ratelimit: tier %q window %q has non-positive limit", tier, q.Name)
			}
		}
		frozen[tier] = append([]WindowQuota(nil), quotas...)
	}
	return &Config{tiers: frozen}, nil
}

// Tier returns the window quotas for a tier name.
func (c *Config) Tier(name string) ([]WindowQuota, bool) {
	quotas, ok := c.tiers[name]
	return quotas, ok
}

// Tiers returns a copy of the whole table for display purposes.
func (c *Config) Tiers() map[string][]WindowQuota {
	out := make(map[string][]WindowQuota, len(c.tiers))
	for tier, quotas := range c.tiers {
		out[tier] = append([]WindowQuota(nil), quotas...)
	}
	return out
}

func quotas(minute, hour, day, month int) []WindowQuota {
	return []WindowQuota{
		{Name: WindowMinute, Duration: time.Minute, Limit: minute},
		{Name: WindowHour, Duration: time.Hour, Limit: hour},
		{Name: WindowDay, Duration: 24 * time.Hour, Limit: day},
		{Name: WindowMonth, Duration: 30 * 24 * time.Hour, Limit: month},
	}
}

// DefaultConfig is the built-in subscription tier table. The minute quota is a
// burst guard on top of the published hour/day/month quotas.
func DefaultConfig() *Config {
	cfg, err := NewConfig(map[string][]WindowQuota{
		TierFree:       quotas(10, 60, 1_000, 10_000),
		TierPro:        quotas(60, 600, 10_000, 250_000),
		TierBusiness:   quotas(300, 3_000, 50_000, 1_000_000),
		TierEnterprise: quotas(600, 10_000, 200_000, 5_000_000),
	})
	if err != nil {
		// The built-in table is static; failing to build it is a programming error.
		panic(err)
	}
	return cfg
}
