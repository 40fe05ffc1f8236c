package providers

import (
	"testing"

	"github.com/intelliweather/weather-api/internal/weather"
)

func TestMapOpenMeteoCondition(t *testing.T) {
	cases := []struct {
		code int
		want weather.Condition
	}{
		{0, weather.ConditionClear},
		{2, weather.ConditionCloudy},
		{45, weather.ConditionMist},
		{61, weather.ConditionRain},
		{71, weather.ConditionSnow},
		{95, weather.ConditionStorm},
		{-1, weather.ConditionUnknown},
	}
	for _, c := range cases {
		if got := mapOpenMeteoCondition(c.code); got != c.want {
			t.Errorf("code %d: got %q, want %q", c.code, got, c.want)
		}
	}
}

func TestMapWeatherAPICondition(t *testing.T) {
	cases := []struct {
		text string
		want weather.Condition
	}{
		{"Patchy light rain", weather.ConditionRain},
		{"Moderate snow", weather.ConditionSnow},
		{"Thundery outbreaks possible", weather.ConditionStorm},
		{"Freezing fog", weather.ConditionMist},
		{"Partly cloudy", weather.ConditionCloudy},
		{"Sunny", weather.ConditionClear},
		{"", weather.ConditionUnknown},
	}
	for _, c := range cases {
		if got := mapWeatherAPICondition(c.text); got != c.want {
			t.Errorf("%q: got %q, want %q", c.text, got, c.want)
		}
	}
}
