package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/intelliweather/weather-api/internal/ratelimit"
	"github.com/intelliweather/weather-api/internal/weather"
)

// Scheduler runs the periodic background jobs: keeping popular locations warm
// in the cache and garbage-collecting idle rate-limiter identities. Both run
// independently of the request-handling pool and stop on Stop.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *weather.Service
	limiter   *ratelimit.Limiter

	locations        []weather.Location
	prefetchInterval time.Duration
	gcInterval       time.Duration
}

// New creates a Scheduler.
func New(
	service *weather.Service,
	limiter *ratelimit.Limiter,
	locations []weather.Location,
	prefetchInterval, gcInterval time.Duration,
) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler:        s,
		service:          service,
		limiter:          limiter,
		locations:        locations,
		prefetchInterval: prefetchInterval,
		gcInterval:       gcInterval,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.locations) > 0 && s.prefetchInterval > 0 {
		minutes := int(s.prefetchInterval.Minutes())
		if minutes <= 0 {
			minutes = 15
		}
		if _, err := s.scheduler.Every(minutes).Minutes().Do(s.prefetch); err != nil {
			return err
		}
	} else {
		log.Println("scheduler: prefetch disabled; no locations configured")
	}

	if s.limiter != nil && s.gcInterval > 0 {
		gcMinutes := int(s.gcInterval.Minutes())
		if gcMinutes <= 0 {
			gcMinutes = 5
		}
		if _, err := s.scheduler.Every(gcMinutes).Minutes().Do(func() {
			if removed := s.limiter.Sweep(time.Now()); removed > 0 {
				log.Printf("scheduler: limiter gc dropped %d idle identities", removed)
			}
		}); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// prefetch warms the cache for every configured location. Fetches run
// concurrently; a failed location only logs, the rest still warm up.
func (s *Scheduler) prefetch() {
	log.Println("scheduler: running prefetch warm-up job")

	var wg sync.WaitGroup
	for _, loc := range s.locations {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if _, _, err := s.service.Current(ctx, loc, weather.UnitsMetric); err != nil {
				log.Printf("scheduler: prefetch failed for %s (%.2f,%.2f): %v", loc.Name, loc.Lat, loc.Lon, err)
			}
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed prefetch warm-up job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
