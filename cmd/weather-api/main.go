package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/intelliweather/weather-api/internal/api/http"
	"github.com/intelliweather/weather-api/internal/cache"
	"github.com/intelliweather/weather-api/internal/config"
	"github.com/intelliweather/weather-api/internal/obs"
	"github.com/intelliweather/weather-api/internal/ratelimit"
	"github.com/intelliweather/weather-api/internal/scheduler"
	"github.com/intelliweather/weather-api/internal/source"
	"github.com/intelliweather/weather-api/internal/weather"
	"github.com/intelliweather/weather-api/internal/weather/providers"
)

func main() {
	// Load configuration (reads .env when present).
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	metrics := obs.New()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Tiered response cache with a background expiry sweeper.
	store := cache.New(cfg.CacheMaxEntries, cfg.CacheSweepInterval)
	defer store.Close()

	// Sliding-window limiter on the built-in subscription tier table.
	limiter := ratelimit.New(ratelimit.DefaultConfig())

	// Fetch orchestrator: cache -> primary -> fallback, with coalescing.
	orch := source.New(store, metrics)

	// Open-Meteo is the keyless primary; WeatherAPI.com backs it up when a key
	// is configured.
	primary := providers.NewOpenMeteoProvider(httpClient)
	var fallback weather.Provider
	if cfg.EnableFallback && cfg.WeatherAPIKey != "" {
		fallback = providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey)
	} else {
		log.Println("INFO: fallback provider disabled; serving from primary only")
	}

	service := weather.NewService(orch, primary, fallback, weather.TTLs{
		Current: cfg.TTLCurrent,
		Hourly:  cfg.TTLHourly,
		Daily:   cfg.TTLDaily,
	}, cfg.UpstreamTimeout)

	// Background jobs: cache warm-up for popular locations, limiter GC.
	sched := scheduler.New(service, limiter, cfg.PrefetchLocations, cfg.PrefetchInterval, cfg.LimiterGCInterval)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(httpapi.RateLimit(limiter, httpapi.NewKeyTableResolver(cfg.APIKeys), metrics))

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-api",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service, store, limiter)

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
