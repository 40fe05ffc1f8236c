package weather

import (
	"time"
)

// Units selects the measurement system of a response.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// Location is a point of interest addressed by coordinates.
type Location struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name,omitempty"`
}

// CurrentWeather is the normalized current-conditions view.
// Providers always produce metric values (°C, m/s, hPa, mm); unit conversion
// happens once in the service layer.
type CurrentWeather struct {
	Location    Location  `json:"location"`
	Timestamp   time.Time `json:"timestamp"` // always UTC
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidityPercent"`
	WindSpeed   float64   `json:"windSpeed"`
	Pressure    float64   `json:"pressureHpa"`
	PrecipMM    float64   `json:"precipMm"`
	Condition   Condition `json:"condition"`
	Units       Units     `json:"units"`
	Source      string    `json:"source"` // provider name
}

// HourlyPoint is one hour of forecast data.
type HourlyPoint struct {
	Time         time.Time `json:"time"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidityPercent"`
	PrecipMM     float64   `json:"precipMm"`
	PrecipChance float64   `json:"precipChancePercent"`
	WindSpeed    float64   `json:"windSpeed"`
	Condition    Condition `json:"condition"`
}

// HourlyForecast is an hour-by-hour forecast for a location.
type HourlyForecast struct {
	Location Location      `json:"location"`
	Hours    []HourlyPoint `json:"hours"`
	Units    Units         `json:"units"`
	Source   string        `json:"source"`
}

// DailyPoint is one day of forecast data.
type DailyPoint struct {
	Date         time.Time `json:"date"`
	TempMax      float64   `json:"temperatureMax"`
	TempMin      float64   `json:"temperatureMin"`
	PrecipSumMM  float64   `json:"precipSumMm"`
	PrecipChance float64   `json:"precipChancePercent"`
	WindSpeedMax float64   `json:"windSpeedMax"`
	Condition    Condition `json:"condition"`
}

// DailyForecast is a day-by-day forecast for a location.
type DailyForecast struct {
	Location Location     `json:"location"`
	Days     []DailyPoint `json:"days"`
	Units    Units        `json:"units"`
	Source   string       `json:"source"`
}

// Providers normalize to metric at decode time; these are the only
// conversions the API exposes.
func celsiusToFahrenheit(c float64) float64 { return c*9/5 + 32 }
func msToMph(ms float64) float64            { return ms * 2.23694 }

// In returns a copy converted to the requested units.
func (c CurrentWeather) In(units Units) CurrentWeather {
	if units != UnitsImperial {
		c.Units = UnitsMetric
		return c
	}
	c.Temperature = celsiusToFahrenheit(c.Temperature)
	c.WindSpeed = msToMph(c.WindSpeed)
	c.Units = UnitsImperial
	return c
}

// In returns a copy converted to the requested units.
func (h HourlyForecast) In(units Units) HourlyForecast {
	if units != UnitsImperial {
		h.Units = UnitsMetric
		return h
	}
	hours := make([]HourlyPoint, len(h.Hours))
	for i, p := range h.Hours {
		p.Temperature = celsiusToFahrenheit(p.Temperature)
		p.WindSpeed = msToMph(p.WindSpeed)
		hours[i] = p
	}
	h.Hours = hours
	h.Units = UnitsImperial
	return h
}

// In returns a copy converted to the requested units.
func (d DailyForecast) In(units Units) DailyForecast {
	if units != UnitsImperial {
		d.Units = UnitsMetric
		return d
	}
	days := make([]DailyPoint, len(d.Days))
	for i, p := range d.Days {
		p.TempMax = celsiusToFahrenheit(p.TempMax)
		p.TempMin = celsiusToFahrenheit(p.TempMin)
		p.WindSpeedMax = msToMph(p.WindSpeedMax)
		days[i] = p
	}
	d.Days = days
	d.Units = UnitsImperial
	return d
}
