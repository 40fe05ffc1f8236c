package weather

import (
	"context"
)

// Provider abstracts a weather data source serving the three data classes.
// Implementations return metric values; callers convert units.
type Provider interface {
	Name() string
	Current(ctx context.Context, loc Location) (CurrentWeather, error)
	Hourly(ctx context.Context, loc Location, hours int) (HourlyForecast, error)
	Daily(ctx context.Context, loc Location, days int) (DailyForecast, error)
}
