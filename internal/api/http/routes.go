package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/intelliweather/weather-api/internal/cache"
	"github.com/intelliweather/weather-api/internal/ratelimit"
	"github.com/intelliweather/weather-api/internal/source"
	"github.com/intelliweather/weather-api/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. The rate-limit
// middleware is expected to already be installed on the app, so every handler
// here runs on a request the limiter has admitted.
func RegisterRoutes(app *fiber.App, service *weather.Service, store *cache.Store, limiter *ratelimit.Limiter) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		req, err := parseWeatherQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		cw, provenance, err := service.Current(c.Context(), req.toLocation(), req.units())
		if err != nil {
			return mapServiceError(err)
		}

		return c.JSON(fiber.Map{
			"provenance": provenance,
			"data":       cw,
		})
	})

	v1.Get("/weather/hourly", func(c *fiber.Ctx) error {
		req, err := parseWeatherQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		hf, provenance, err := service.Hourly(c.Context(), req.toLocation(), req.Hours, req.units())
		if err != nil {
			return mapServiceError(err)
		}

		return c.JSON(fiber.Map{
			"provenance": provenance,
			"data":       hf,
		})
	})

	v1.Get("/weather/daily", func(c *fiber.Ctx) error {
		req, err := parseWeatherQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		df, provenance, err := service.Daily(c.Context(), req.toLocation(), req.Days, req.units())
		if err != nil {
			return mapServiceError(err)
		}

		return c.JSON(fiber.Map{
			"provenance": provenance,
			"data":       df,
		})
	})

	v1.Get("/tiers", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"tiers": limiter.Config().Tiers(),
		})
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"cache":     store.Stats(),
			"ratelimit": limiter.Stats(),
		})
	})
}

// weatherQuery holds the query parameters shared by the weather endpoints.
// Hours and Days are only consulted by the endpoints that use them.
type weatherQuery struct {
	Lat   float64 `validate:"gte=-90,lte=90"`
	Lon   float64 `validate:"gte=-180,lte=180"`
	Units string  `validate:"oneof=metric imperial"`
	Hours int     `validate:"oneof=24 48 72"`
	Days  int     `validate:"gte=1,lte=14"`
}

func (q weatherQuery) toLocation() weather.Location {
	return weather.Location{Lat: q.Lat, Lon: q.Lon}
}

func (q weatherQuery) units() weather.Units {
	return weather.Units(q.Units)
}

func parseWeatherQuery(c *fiber.Ctx) (weatherQuery, error) {
	q := weatherQuery{
		Units: "metric",
		Hours: 24,
		Days:  7,
	}

	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return q, errors.New("lat and lon query parameters are required")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return q, errors.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return q, errors.New("lon must be a number")
	}
	q.Lat = lat
	q.Lon = lon

	if units := c.Query("units"); units != "" {
		q.Units = units
	}
	if hours := c.Query("hours"); hours != "" {
		n, err := strconv.Atoi(hours)
		if err != nil {
			return q, errors.New("hours must be an integer")
		}
		q.Hours = n
	}
	if days := c.Query("days"); days != "" {
		n, err := strconv.Atoi(days)
		if err != nil {
			return q, errors.New("days must be an integer")
		}
		q.Days = n
	}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// mapServiceError translates service failures into HTTP status codes. Every
// source being down is the upstream's fault, not the caller's.
func mapServiceError(err error) error {
	if errors.Is(err, source.ErrAllSourcesExhausted) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "all weather sources are currently unavailable")
	}
	if errors.Is(err, source.ErrNoPrimary) {
		return fiber.NewError(fiber.StatusInternalServerError, "weather service misconfigured")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
}
