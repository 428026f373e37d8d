package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// LocationWarmer is implemented by the service layer to populate the cache for
// one location. Used by CacheWarmer to avoid a circular dependency on the service package.
type LocationWarmer interface {
	WarmLocation(ctx context.Context, q models.WeatherQuery) error
}

// CacheWarmer prefetches weather for configured locations once at startup.
type CacheWarmer struct {
	warmer      LocationWarmer
	logger      *zap.Logger
	concurrency int
}

// NewCacheWarmer creates a CacheWarmer. concurrency bounds parallel fetches; 0 means 4.
func NewCacheWarmer(warmer LocationWarmer, logger *zap.Logger, concurrency int) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &CacheWarmer{warmer: warmer, logger: logger, concurrency: concurrency}
}

// Warm populates the cache for each location. Every location is attempted;
// failures are joined into the returned error.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.WeatherQuery) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(w.concurrency)
	for _, loc := range locations {
		g.Go(func() error {
			if err := w.warmer.WarmLocation(ctx, loc); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s/%s: %w", loc.Country, loc.PostalCode, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration))
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
