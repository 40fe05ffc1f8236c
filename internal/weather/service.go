package weather

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/intelliweather/weather-api/internal/cache"
	"github.com/intelliweather/weather-api/internal/source"
)

// TTLs holds the cache lifetime per data class. Current conditions churn
// fastest; daily forecasts are the most stable.
type TTLs struct {
	Current time.Duration
	Hourly  time.Duration
	Daily   time.Duration
}

// Service answers weather queries through the source orchestrator: cache
// first, then the primary provider, then the fallback. It owns the cache key
// layout and the TTL class of each query; the orchestrator owns the fetch
// mechanics.
type Service struct {
	orch     *source.Orchestrator
	primary  Provider
	fallback Provider // nil when fallback is disabled
	ttls     TTLs
	timeout  time.Duration
}

// NewService creates a Service. fallback may be nil.
func NewService(orch *source.Orchestrator, primary, fallback Provider, ttls TTLs, timeout time.Duration) *Service {
	return &Service{
		orch:     orch,
		primary:  primary,
		fallback: fallback,
		ttls:     ttls,
		timeout:  timeout,
	}
}

// Current returns current conditions for a location.
func (s *Service) Current(ctx context.Context, loc Location, units Units) (CurrentWeather, source.Provenance, error) {
	req := source.Request{
		Key:     cache.Key("current", loc.Lat, loc.Lon, string(units)),
		TTL:     s.ttls.Current,
		Timeout: s.timeout,
		Primary: func(ctx context.Context) (any, error) {
			cw, err := s.primary.Current(ctx, loc)
			if err != nil {
				return nil, err
			}
			return cw.In(units), nil
		},
	}
	if s.fallback != nil {
		req.Fallback = func(ctx context.Context) (any, error) {
			cw, err := s.fallback.Current(ctx, loc)
			if err != nil {
				return nil, err
			}
			return cw.In(units), nil
		}
	}

	res, err := s.orch.Fetch(ctx, req)
	if err != nil {
		return CurrentWeather{}, "", err
	}
	cw, ok := res.Payload.(CurrentWeather)
	if !ok {
		return CurrentWeather{}, "", fmt.Errorf("weather: unexpected payload type %T for current conditions", res.Payload)
	}
	return cw, res.Provenance, nil
}

// Hourly returns an hourly forecast for a location.
func (s *Service) Hourly(ctx context.Context, loc Location, hours int, units Units) (HourlyForecast, source.Provenance, error) {
	req := source.Request{
		Key:     cache.Key("hourly", loc.Lat, loc.Lon, string(units), strconv.Itoa(hours)),
		TTL:     s.ttls.Hourly,
		Timeout: s.timeout,
		Primary: func(ctx context.Context) (any, error) {
			hf, err := s.primary.Hourly(ctx, loc, hours)
			if err != nil {
				return nil, err
			}
			return hf.In(units), nil
		},
	}
	if s.fallback != nil {
		req.Fallback = func(ctx context.Context) (any, error) {
			hf, err := s.fallback.Hourly(ctx, loc, hours)
			if err != nil {
				return nil, err
			}
			return hf.In(units), nil
		}
	}

	res, err := s.orch.Fetch(ctx, req)
	if err != nil {
		return HourlyForecast{}, "", err
	}
	hf, ok := res.Payload.(HourlyForecast)
	if !ok {
		return HourlyForecast{}, "", fmt.Errorf("weather: unexpected payload type %T for hourly forecast", res.Payload)
	}
	return hf, res.Provenance, nil
}

// Daily returns a daily forecast for a location.
func (s *Service) Daily(ctx context.Context, loc Location, days int, units Units) (DailyForecast, source.Provenance, error) {
	req := source.Request{
		Key:     cache.Key("daily", loc.Lat, loc.Lon, string(units), strconv.Itoa(days)),
		TTL:     s.ttls.Daily,
		Timeout: s.timeout,
		Primary: func(ctx context.Context) (any, error) {
			df, err := s.primary.Daily(ctx, loc, days)
			if err != nil {
				return nil, err
			}
			return df.In(units), nil
		},
	}
	if s.fallback != nil {
		req.Fallback = func(ctx context.Context) (any, error) {
			df, err := s.fallback.Daily(ctx, loc, days)
			if err != nil {
				return nil, err
			}
			return df.In(units), nil
		}
	}

	res, err := s.orch.Fetch(ctx, req)
	if err != nil {
		return DailyForecast{}, "", err
	}
	df, ok := res.Payload.(DailyForecast)
	if !ok {
		return DailyForecast{}, "", fmt.Errorf("weather: unexpected payload type %T for daily forecast", res.Payload)
	}
	return df, res.Provenance, nil
}
