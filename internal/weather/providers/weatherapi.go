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

// WeatherAPIProvider implements the weather.Provider interface for
// WeatherAPI.com, the fallback upstream. Requires an API key.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: defaultHTTPConfig(client),
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

// weatherAPIPayload covers all three data classes; WeatherAPI serves them
// from one endpoint.
type weatherAPIPayload struct {
	Current struct {
		LastUpdatedEpoch int64   `json:"last_updated_epoch"`
		TempC            float64 `json:"temp_c"`
		Humidity         float64 `json:"humidity"`
		WindKph          float64 `json:"wind_kph"`
		PressureMb       float64 `json:"pressure_mb"`
		PrecipMm         float64 `json:"precip_mm"`
		Condition        struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			DateEpoch int64 `json:"date_epoch"`
			Day       struct {
				MaxTempC          float64 `json:"maxtemp_c"`
				MinTempC          float64 `json:"mintemp_c"`
				TotalPrecipMm     float64 `json:"totalprecip_mm"`
				DailyChanceOfRain float64 `json:"daily_chance_of_rain"`
				MaxWindKph        float64 `json:"maxwind_kph"`
				Condition         struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
			Hour []struct {
				TimeEpoch    int64   `json:"time_epoch"`
				TempC        float64 `json:"temp_c"`
				Humidity     float64 `json:"humidity"`
				PrecipMm     float64 `json:"precip_mm"`
				ChanceOfRain float64 `json:"chance_of_rain"`
				WindKph      float64 `json:"wind_kph"`
				Condition    struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) fetch(ctx context.Context, loc weather.Location, days int) (weatherAPIPayload, error) {
	var payload weatherAPIPayload
	if p.apiKey == "" {
		return payload, fmt.Errorf("weatherapi api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; "lat,lon" is accepted directly.
		values.Set("q", fmt.Sprintf("%f,%f", loc.Lat, loc.Lon))
		// WeatherAPI supports at most 14 forecast days.
		if days > 14 {
			days = 14
		}
		values.Set("days", strconv.Itoa(days))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return payload, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func (p *WeatherAPIProvider) Current(ctx context.Context, loc weather.Location) (weather.CurrentWeather, error) {
	payload, err := p.fetch(ctx, loc, 1)
	if err != nil {
		return weather.CurrentWeather{}, err
	}

	cur := payload.Current
	ts := time.Unix(cur.LastUpdatedEpoch, 0).UTC()
	if cur.LastUpdatedEpoch == 0 {
		ts = time.Now().UTC()
	}

	return weather.CurrentWeather{
		Location:    loc,
		Timestamp:   ts,
		Temperature: cur.TempC,
		Humidity:    cur.Humidity,
		WindSpeed:   cur.WindKph / 3.6, // kph -> m/s
		Pressure:    cur.PressureMb,
		PrecipMM:    cur.PrecipMm,
		Condition:   mapWeatherAPICondition(cur.Condition.Text),
		Units:       weather.UnitsMetric,
		Source:      p.name,
	}, nil
}

func (p *WeatherAPIProvider) Hourly(ctx context.Context, loc weather.Location, hours int) (weather.HourlyForecast, error) {
	days := (hours + 23) / 24
	payload, err := p.fetch(ctx, loc, days)
	if err != nil {
		return weather.HourlyForecast{}, err
	}

	var points []weather.HourlyPoint
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			if len(points) >= hours {
				break
			}
			points = append(points, weather.HourlyPoint{
				Time:         time.Unix(h.TimeEpoch, 0).UTC(),
				Temperature:  h.TempC,
				Humidity:     h.Humidity,
				PrecipMM:     h.PrecipMm,
				PrecipChance: h.ChanceOfRain,
				WindSpeed:    h.WindKph / 3.6,
				Condition:    mapWeatherAPICondition(h.Condition.Text),
			})
		}
		if len(points) >= hours {
			break
		}
	}
	if len(points) == 0 {
		return weather.HourlyForecast{}, fmt.Errorf("weatherapi returned no hourly data")
	}

	return weather.HourlyForecast{
		Location: loc,
		Hours:    points,
		Units:    weather.UnitsMetric,
		Source:   p.name,
	}, nil
}

func (p *WeatherAPIProvider) Daily(ctx context.Context, loc weather.Location, days int) (weather.DailyForecast, error) {
	payload, err := p.fetch(ctx, loc, days)
	if err != nil {
		return weather.DailyForecast{}, err
	}

	var points []weather.DailyPoint
	for _, day := range payload.Forecast.ForecastDay {
		if len(points) >= days {
			break
		}
		points = append(points, weather.DailyPoint{
			Date:         time.Unix(day.DateEpoch, 0).UTC(),
			TempMax:      day.Day.MaxTempC,
			TempMin:      day.Day.MinTempC,
			PrecipSumMM:  day.Day.TotalPrecipMm,
			PrecipChance: day.Day.DailyChanceOfRain,
			WindSpeedMax: day.Day.MaxWindKph / 3.6,
			Condition:    mapWeatherAPICondition(day.Day.Condition.Text),
		})
	}
	if len(points) == 0 {
		return weather.DailyForecast{}, fmt.Errorf("weatherapi returned no daily data")
	}

	return weather.DailyForecast{
		Location: loc,
		Days:     points,
		Units:    weather.UnitsMetric,
		Source:   p.name,
	}, nil
}

func mapWeatherAPICondition(text string) weather.Condition {
	switch {
	case text == "":
		return weather.ConditionUnknown
	case containsFold(text, "rain", "shower", "drizzle"):
		return weather.ConditionRain
	case containsFold(text, "snow", "sleet", "blizzard"):
		return weather.ConditionSnow
	case containsFold(text, "thunder", "storm"):
		return weather.ConditionStorm
	case containsFold(text, "fog", "mist"):
		return weather.ConditionMist
	case containsFold(text, "cloud", "overcast"):
		return weather.ConditionCloudy
	case containsFold(text, "sunny", "clear"):
		return weather.ConditionClear
	default:
		return weather.ConditionUnknown
	}
}
