package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/intelliweather/weather-api/internal/weather"
)

type AppConfig struct {
	Port string

	// Outbound HTTP client timeout for provider calls.
	HTTPTimeout time.Duration

	// Per-attempt budget the orchestrator grants each upstream fetch.
	UpstreamTimeout time.Duration

	// WeatherAPI.com fallback provider.
	WeatherAPIKey  string
	EnableFallback bool

	// Cache tuning.
	CacheMaxEntries    int
	CacheSweepInterval time.Duration
	TTLCurrent         time.Duration
	TTLHourly          time.Duration
	TTLDaily           time.Duration

	// Rate limiter identity GC cadence (same as the cache sweep by default).
	LimiterGCInterval time.Duration

	// Popular locations kept warm by the prefetch job. Zero interval disables it.
	PrefetchInterval  time.Duration
	PrefetchLocations []weather.Location

	// API key -> tier table ("key1:pro,key2:business"). Requests without a
	// known key are identified by client IP at the free tier.
	APIKeys map[string]string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.EnableFallback = getenvBool("ENABLE_FALLBACK", true)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s"); err != nil {
		return nil, err
	}
	if cfg.UpstreamTimeout, err = getenvDuration("UPSTREAM_TIMEOUT", "10s"); err != nil {
		return nil, err
	}

	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 1000)
	if cfg.CacheSweepInterval, err = getenvDuration("CACHE_SWEEP_INTERVAL", "5m"); err != nil {
		return nil, err
	}
	if cfg.TTLCurrent, err = getenvDuration("CACHE_TTL_CURRENT", "10m"); err != nil {
		return nil, err
	}
	if cfg.TTLHourly, err = getenvDuration("CACHE_TTL_HOURLY", "1h"); err != nil {
		return nil, err
	}
	if cfg.TTLDaily, err = getenvDuration("CACHE_TTL_DAILY", "3h"); err != nil {
		return nil, err
	}
	if cfg.LimiterGCInterval, err = getenvDuration("LIMITER_GC_INTERVAL", "5m"); err != nil {
		return nil, err
	}

	if cfg.PrefetchInterval, err = getenvDuration("PREFETCH_INTERVAL", "15m"); err != nil {
		return nil, err
	}
	locs, err := parseLocations(getenvDefault("PREFETCH_LOCATIONS", defaultPrefetchLocations))
	if err != nil {
		return nil, err
	}
	cfg.PrefetchLocations = locs

	keys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.APIKeys = keys

	return cfg, nil
}

// defaultPrefetchLocations keeps a handful of high-traffic cities warm.
const defaultPrefetchLocations = "40.71,-74.01,New York;51.51,-0.13,London;35.68,139.65,Tokyo;48.86,2.35,Paris;28.61,77.21,New Delhi"

// parseLocations parses "lat,lon,name;lat,lon,name;...".
func parseLocations(s string) ([]weather.Location, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var locs []weather.Location
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ",", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid PREFETCH_LOCATIONS entry %q; want lat,lon[,name]", part)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", part, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", part, err)
		}
		loc := weather.Location{Lat: lat, Lon: lon}
		if len(fields) == 3 {
			loc.Name = strings.TrimSpace(fields[2])
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// parseAPIKeys parses "key:tier,key:tier,...".
func parseAPIKeys(s string) (map[string]string, error) {
	keys := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return keys, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("invalid API_KEYS entry %q; want key:tier", part)
		}
		keys[fields[0]] = fields[1]
	}
	return keys, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
