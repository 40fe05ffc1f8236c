package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/intelliweather/weather-api/internal/weather"
)

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo,
// the primary upstream. Open-Meteo does not require an API key.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) fetch(ctx context.Context, loc weather.Location, extra url.Values, payload any) error {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
		values.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', 4, 64))
		values.Set("timezone", "UTC")
		values.Set("timeformat", "unixtime")
		values.Set("wind_speed_unit", "ms")
		for k, vs := range extra {
			for _, v := range vs {
				values.Add(k, v)
			}
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(payload)
}

func (p *OpenMeteoProvider) Current(ctx context.Context, loc weather.Location) (weather.CurrentWeather, error) {
	extra := url.Values{}
	extra.Set("current", "temperature_2m,relative_humidity_2m,surface_pressure,precipitation,weather_code,wind_speed_10m")

	var payload struct {
		Current struct {
			Time        int64   `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			Humidity    float64 `json:"relative_humidity_2m"`
			Pressure    float64 `json:"surface_pressure"`
			Precip      float64 `json:"precipitation"`
			WeatherCode int     `json:"weather_code"`
			WindSpeed   float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	if err := p.fetch(ctx, loc, extra, &payload); err != nil {
		return weather.CurrentWeather{}, err
	}

	ts := time.Unix(payload.Current.Time, 0).UTC()
	if payload.Current.Time == 0 {
		ts = time.Now().UTC()
	}

	return weather.CurrentWeather{
		Location:    loc,
		Timestamp:   ts,
		Temperature: payload.Current.Temperature,
		Humidity:    payload.Current.Humidity,
		WindSpeed:   payload.Current.WindSpeed,
		Pressure:    payload.Current.Pressure,
		PrecipMM:    payload.Current.Precip,
		Condition:   mapOpenMeteoCondition(payload.Current.WeatherCode),
		Units:       weather.UnitsMetric,
		Source:      p.name,
	}, nil
}

func (p *OpenMeteoProvider) Hourly(ctx context.Context, loc weather.Location, hours int) (weather.HourlyForecast, error) {
	extra := url.Values{}
	extra.Set("hourly", "temperature_2m,relative_humidity_2m,precipitation,precipitation_probability,weather_code,wind_speed_10m")
	extra.Set("forecast_hours", strconv.Itoa(hours))

	var payload struct {
		Hourly struct {
			Time         []int64   `json:"time"`
			Temperature  []float64 `json:"temperature_2m"`
			Humidity     []float64 `json:"relative_humidity_2m"`
			Precip       []float64 `json:"precipitation"`
			PrecipChance []float64 `json:"precipitation_probability"`
			WeatherCode  []int     `json:"weather_code"`
			WindSpeed    []float64 `json:"wind_speed_10m"`
		} `json:"hourly"`
	}
	if err := p.fetch(ctx, loc, extra, &payload); err != nil {
		return weather.HourlyForecast{}, err
	}

	h := payload.Hourly
	points := make([]weather.HourlyPoint, 0, len(h.Time))
	for i := range h.Time {
		if i >= hours {
			break
		}
		points = append(points, weather.HourlyPoint{
			Time:         time.Unix(h.Time[i], 0).UTC(),
			Temperature:  at(h.Temperature, i),
			Humidity:     at(h.Humidity, i),
			PrecipMM:     at(h.Precip, i),
			PrecipChance: at(h.PrecipChance, i),
			WindSpeed:    at(h.WindSpeed, i),
			Condition:    mapOpenMeteoCondition(atInt(h.WeatherCode, i)),
		})
	}
	if len(points) == 0 {
		return weather.HourlyForecast{}, fmt.Errorf("openmeteo returned no hourly data")
	}

	return weather.HourlyForecast{
		Location: loc,
		Hours:    points,
		Units:    weather.UnitsMetric,
		Source:   p.name,
	}, nil
}

func (p *OpenMeteoProvider) Daily(ctx context.Context, loc weather.Location, days int) (weather.DailyForecast, error) {
	extra := url.Values{}
	extra.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,wind_speed_10m_max,weather_code")
	extra.Set("forecast_days", strconv.Itoa(days))

	var payload struct {
		Daily struct {
			Time         []int64   `json:"time"`
			TempMax      []float64 `json:"temperature_2m_max"`
			TempMin      []float64 `json:"temperature_2m_min"`
			PrecipSum    []float64 `json:"precipitation_sum"`
			PrecipChance []float64 `json:"precipitation_probability_max"`
			WindSpeedMax []float64 `json:"wind_speed_10m_max"`
			WeatherCode  []int     `json:"weather_code"`
		} `json:"daily"`
	}
	if err := p.fetch(ctx, loc, extra, &payload); err != nil {
		return weather.DailyForecast{}, err
	}

	d := payload.Daily
	points := make([]weather.DailyPoint, 0, len(d.Time))
	for i := range d.Time {
		if i >= days {
			break
		}
		points = append(points, weather.DailyPoint{
			Date:         time.Unix(d.Time[i], 0).UTC(),
			TempMax:      at(d.TempMax, i),
			TempMin:      at(d.TempMin, i),
			PrecipSumMM:  at(d.PrecipSum, i),
			PrecipChance: at(d.PrecipChance, i),
			WindSpeedMax: at(d.WindSpeedMax, i),
			Condition:    mapOpenMeteoCondition(atInt(d.WeatherCode, i)),
		})
	}
	if len(points) == 0 {
		return weather.DailyForecast{}, fmt.Errorf("openmeteo returned no daily data")
	}

	return weather.DailyForecast{
		Location: loc,
		Days:     points,
		Units:    weather.UnitsMetric,
		Source:   p.name,
	}, nil
}

// at guards against ragged arrays in the upstream payload.
func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func atInt(vals []int, i int) int {
	if i < len(vals) {
		return vals[i]
	}
	return -1
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case code >= 45 && code <= 48:
		return weather.ConditionMist
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case code >= 71 && code <= 77:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
