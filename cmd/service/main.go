package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/address-weather-service/internal/cache"
	"github.com/kjstillabower/address-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/address-weather-service/internal/client"
	"github.com/kjstillabower/address-weather-service/internal/config"
	httphandler "github.com/kjstillabower/address-weather-service/internal/http"
	"github.com/kjstillabower/address-weather-service/internal/observability"
	"github.com/kjstillabower/address-weather-service/internal/provider"
	"github.com/kjstillabower/address-weather-service/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, closeCache, err := newCache(cfg)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	suggestionBreaker := newBreaker(cfg, cfg.SuggestionProvider)
	weatherBreaker := newBreaker(cfg, cfg.WeatherProvider)

	settings := provider.Settings{
		MapboxAccessToken:   cfg.MapboxAccessToken,
		OpenWeatherMapAppID: cfg.OpenWeatherMapAppID,
		Mapbox: client.Options{
			BaseURL:    cfg.MapboxBaseURL,
			Timeout:    cfg.FetchTimeout,
			HTTPClient: newHTTPClient(cfg, cfg.SuggestionProvider),
			Breaker:    suggestionBreaker,
		},
		OpenWeatherMap: client.Options{
			BaseURL:    cfg.OpenWeatherMapBaseURL,
			Timeout:    cfg.FetchTimeout,
			HTTPClient: newHTTPClient(cfg, cfg.WeatherProvider),
			Breaker:    weatherBreaker,
		},
		ForecastLocation: cfg.ForecastLocation,
	}
	suggestionProvider, err := provider.NewSuggestionProvider(cfg.SuggestionProvider, settings)
	if err != nil {
		logger.Fatal("suggestion provider", zap.Error(err), zap.Strings("available", provider.SuggestionProviderNames()))
	}
	weatherProvider, err := provider.NewWeatherProvider(cfg.WeatherProvider, settings)
	if err != nil {
		logger.Fatal("weather provider", zap.Error(err), zap.Strings("available", provider.WeatherProviderNames()))
	}

	suggestionService := service.NewSuggestionService(suggestionProvider, store, service.SuggestionConfig{
		TTL:            cfg.SuggestionsCacheTTL,
		MaxQueryLength: cfg.MaxQueryLength,
		FailOpen:       cfg.CacheFailOpen,
		Coalesce:       cfg.CoalesceEnabled,
	})
	weatherService := service.NewWeatherService(weatherProvider, store, service.WeatherConfig{
		TTL:      cfg.WeatherCacheTTL,
		FailOpen: cfg.CacheFailOpen,
		Coalesce: cfg.CoalesceEnabled,
	})

	if cfg.WarmEnabled && len(cfg.WarmLocations) > 0 {
		warmer := cache.NewCacheWarmer(weatherService, logger, cfg.WarmConcurrency)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(suggestionService, weatherService, &httphandler.HealthConfig{
		CachePing: store.Ping,
		Breakers:  []*circuitbreaker.Breaker{suggestionBreaker, weatherBreaker},
		Version:   version,
	}, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.String("suggestion_provider", suggestionProvider.Name()),
			zap.String("weather_provider", weatherProvider.Name()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if closeCache != nil {
		if err := closeCache(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// newCache builds the configured backend wrapped with metrics. The returned
// close func is nil for backends without connections.
func newCache(cfg *config.Config) (cache.Cache, func() error, error) {
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.CacheKeyPrefix, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		return cache.Instrument(mc, "memcached"), mc.Close, nil
	case "redis":
		rc := cache.NewRedisCache(cache.RedisOptions{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			DialTimeout:  cfg.RedisTimeout,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
			Prefix:       cfg.CacheKeyPrefix,
		})
		return cache.Instrument(rc, "redis"), rc.Close, nil
	case "in_memory", "":
		return cache.Instrument(cache.NewInMemoryCache(), "in_memory"), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.CacheBackend)
	}
}

// newBreaker creates a per-provider breaker that reports transitions as metrics.
// Only provider failures (transport errors, 5xx, 429) count toward opening it.
func newBreaker(cfg *config.Config, component string) *circuitbreaker.Breaker {
	b := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		HalfOpenRequests: cfg.BreakerHalfOpenRequests,
		Interval:         cfg.BreakerInterval,
		Timeout:          cfg.BreakerTimeout,
		Component:        component,
		IsFailure:        client.IsProviderFailure,
		OnStateChange: func(component string, from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(component).Set(float64(circuitbreaker.StateClosed))
	return b
}

// newHTTPClient returns a client whose transport retries rate-limited GETs.
// The per-fetch deadline is applied by the provider client, not here.
func newHTTPClient(cfg *config.Config, providerName string) *http.Client {
	return &http.Client{
		Transport: &client.RetryTransport{
			Base:        http.DefaultTransport,
			Provider:    providerName,
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Jitter:      cfg.RetryJitter,
		},
	}
}
