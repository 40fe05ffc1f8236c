package weather

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCurrentWeatherImperialConversion(t *testing.T) {
	cw := CurrentWeather{Temperature: 20, WindSpeed: 10, Units: UnitsMetric}

	imp := cw.In(UnitsImperial)
	if !almostEqual(imp.Temperature, 68) {
		t.Fatalf("expected 68F, got %v", imp.Temperature)
	}
	if !almostEqual(imp.WindSpeed, 22.3694) {
		t.Fatalf("expected 22.3694 mph, got %v", imp.WindSpeed)
	}
	if imp.Units != UnitsImperial {
		t.Fatalf("expected imperial units tag, got %q", imp.Units)
	}

	// The original value must be untouched.
	if cw.Temperature != 20 {
		t.Fatal("conversion must not mutate the receiver")
	}
}

func TestMetricConversionIsIdentity(t *testing.T) {
	cw := CurrentWeather{Temperature: -5, WindSpeed: 3}
	got := cw.In(UnitsMetric)
	if got.Temperature != -5 || got.WindSpeed != 3 || got.Units != UnitsMetric {
		t.Fatalf("metric conversion changed values: %+v", got)
	}
}

func TestDailyForecastConversionCopiesSlice(t *testing.T) {
	df := DailyForecast{
		Days: []DailyPoint{{TempMax: 30, TempMin: 10, WindSpeedMax: 5}},
	}
	imp := df.In(UnitsImperial)

	if !almostEqual(imp.Days[0].TempMax, 86) || !almostEqual(imp.Days[0].TempMin, 50) {
		t.Fatalf("unexpected converted temperatures: %+v", imp.Days[0])
	}
	if df.Days[0].TempMax != 30 {
		t.Fatal("conversion must not alias the original slice")
	}
}
