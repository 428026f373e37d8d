package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/address-weather-service/internal/cache"
	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/observability"
	"github.com/kjstillabower/address-weather-service/internal/provider"
	"github.com/kjstillabower/address-weather-service/internal/validation"
)

// WeatherConfig configures a WeatherService.
type WeatherConfig struct {
	// TTL is how long normalized weather stays cached. Must be positive.
	TTL time.Duration
	// FailOpen serves fresh provider data when the cache backend fails instead
	// of returning a cache error.
	FailOpen bool
	// Coalesce shares one in-flight fetch among concurrent requests for a key.
	Coalesce bool
	// Now is the clock used for observed dates. Defaults to time.Now.
	Now func() time.Time
}

// WeatherService serves current weather and daily forecasts using the
// cache-aside pattern, reporting the age of cached data with each result.
type WeatherService struct {
	provider  provider.WeatherProvider
	cache     cache.Cache
	ttl       time.Duration
	failOpen  bool
	now       func() time.Time
	stampede  *stampedeTracker
	coalescer *requestCoalescer
}

// NewWeatherService creates a WeatherService.
func NewWeatherService(p provider.WeatherProvider, c cache.Cache, cfg WeatherConfig) *WeatherService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	var coalescer *requestCoalescer
	if cfg.Coalesce {
		coalescer = newRequestCoalescer()
	}
	return &WeatherService{
		provider:  p,
		cache:     c,
		ttl:       cfg.TTL,
		failOpen:  cfg.FailOpen,
		now:       now,
		stampede:  newStampedeTracker(),
		coalescer: coalescer,
	}
}

// Current returns current weather for q.
func (s *WeatherService) Current(ctx context.Context, q models.WeatherQuery) (models.WeatherResult[models.CurrentWeather], error) {
	return serveWeather(ctx, s, KindCurrentWeather, q, func(raw map[string]any) (models.CurrentWeather, error) {
		return s.provider.NormalizeCurrent(raw, s.now())
	})
}

// Forecast returns one summary per calendar day for q.
func (s *WeatherService) Forecast(ctx context.Context, q models.WeatherQuery) (models.WeatherResult[[]models.DailyForecastSummary], error) {
	return serveWeather(ctx, s, KindForecast, q, s.provider.NormalizeForecast)
}

// WarmLocation populates both current weather and forecast entries for q.
// It implements cache.LocationWarmer.
func (s *WeatherService) WarmLocation(ctx context.Context, q models.WeatherQuery) error {
	_, curErr := s.Current(ctx, q)
	_, fcErr := s.Forecast(ctx, q)
	return errors.Join(curErr, fcErr)
}

func serveWeather[T any](ctx context.Context, s *WeatherService, kind string, q models.WeatherQuery, normalizeFn func(map[string]any) (T, error)) (models.WeatherResult[T], error) {
	if err := validation.ValidateWeatherQuery(q); err != nil {
		return models.WeatherResult[T]{}, validationError(err)
	}
	key := WeatherKey(kind, q)
	logger := observability.LoggerFromContext(ctx).With(zap.String("cache_key", key))

	compute := func(ctx context.Context) (T, error) {
		defer s.stampede.track(kind, key)()
		var zero T
		raw, err := s.provider.FetchWeather(ctx, q.Latitude, q.Longitude, kind == KindCurrentWeather)
		if err != nil {
			logger.Warn("weather fetch failed", zap.String("provider", s.provider.Name()), zap.Error(err))
			return zero, upstreamError(s.provider.Name(), err)
		}
		v, err := safeNormalize(func() (T, error) { return normalizeFn(raw) })
		if err != nil {
			logger.Error("weather normalization failed", zap.String("provider", s.provider.Name()), zap.Error(err))
			return zero, normalizationError(s.provider.Name(), err)
		}
		return v, nil
	}

	fetched, err := coalesce(ctx, s.coalescer, kind, key, func(ctx context.Context) (cache.Fetched[T], error) {
		return fetchThrough(ctx, s.cache, kind, key, s.ttl, compute, s.fetchOptions(logger), logger)
	})
	if err != nil {
		return models.WeatherResult[T]{}, asServiceError(err)
	}

	age, err := cache.Age(ctx, s.cache, key, s.ttl)
	if err != nil {
		if !s.failOpen {
			return models.WeatherResult[T]{}, cacheError(err)
		}
		logger.Warn("cache age lookup failed", zap.Error(err))
	}
	if age != nil {
		observability.ServedDataAgeSeconds.WithLabelValues(kind).Observe(float64(*age))
	}
	logger.Debug("weather served", zap.Bool("cached", fetched.Hit))
	return models.WeatherResult[T]{Data: fetched.Value, CacheAgeSeconds: age}, nil
}

func (s *WeatherService) fetchOptions(logger *zap.Logger) []cache.FetchOption {
	if !s.failOpen {
		return nil
	}
	return []cache.FetchOption{cache.FailOpen(func(err error) {
		logger.Warn("cache unavailable, continuing without it", zap.Error(err))
	})}
}

// fetchThrough runs cache.FetchOrCompute, recording the lookup result and
// replacing an entry that no longer decodes with a freshly computed value.
func fetchThrough[T any](ctx context.Context, c cache.Cache, kind, key string, ttl time.Duration, compute func(context.Context) (T, error), opts []cache.FetchOption, logger *zap.Logger) (cache.Fetched[T], error) {
	fetched, err := cache.FetchOrCompute(ctx, c, key, ttl, compute, opts...)
	if err != nil {
		return fetched, err
	}
	switch {
	case fetched.Undecodable:
		observability.CacheLookupsTotal.WithLabelValues(kind, "undecodable").Inc()
		logger.Warn("cached value could not be decoded, refetching", zap.Int("bytes", len(fetched.Raw)))
		return cache.Compute(ctx, c, key, ttl, compute, opts...)
	case fetched.Hit:
		observability.CacheLookupsTotal.WithLabelValues(kind, "hit").Inc()
		logger.Debug("cache hit")
	default:
		observability.CacheLookupsTotal.WithLabelValues(kind, "miss").Inc()
		logger.Debug("cache miss, fetched upstream")
	}
	return fetched, nil
}
