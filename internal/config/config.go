package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/validation"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort     string
	RequestTimeout time.Duration
	LogLevel       string

	SuggestionProvider string
	WeatherProvider    string

	MapboxAccessToken     string
	MapboxBaseURL         string
	OpenWeatherMapAppID   string
	OpenWeatherMapBaseURL string
	FetchTimeout          time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      float64

	BreakerFailureThreshold uint32
	BreakerHalfOpenRequests uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration

	CacheBackend        string // "in_memory", "memcached" or "redis"
	CacheKeyPrefix      string
	WeatherCacheTTL     time.Duration
	SuggestionsCacheTTL time.Duration // 0 disables suggestion caching
	CacheFailOpen       bool

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	RedisTimeout  time.Duration

	ForecastTimezone string
	ForecastLocation *time.Location

	MaxQueryLength  int
	CoalesceEnabled bool

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout time.Duration

	WarmEnabled     bool
	WarmConcurrency int
	WarmLocations   []models.WeatherQuery
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Providers struct {
		Suggestions string `yaml:"suggestions"`
		Weather     string `yaml:"weather"`
	} `yaml:"providers"`

	Mapbox struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"mapbox"`

	OpenWeatherMap struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"openweathermap"`

	HTTPClient struct {
		Timeout          string  `yaml:"timeout"`
		RetryMaxAttempts int     `yaml:"retry_max_attempts"`
		RetryBaseDelay   string  `yaml:"retry_base_delay"`
		RetryMaxDelay    string  `yaml:"retry_max_delay"`
		RetryJitter      float64 `yaml:"retry_jitter"`
	} `yaml:"http_client"`

	CircuitBreaker struct {
		FailureThreshold uint32 `yaml:"failure_threshold"`
		HalfOpenRequests uint32 `yaml:"half_open_requests"`
		Interval         string `yaml:"interval"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Cache struct {
		Backend        string `yaml:"backend"`
		KeyPrefix      string `yaml:"key_prefix"`
		WeatherTTL     string `yaml:"weather_ttl"`
		SuggestionsTTL string `yaml:"suggestions_ttl"`
		FailOpen       bool   `yaml:"fail_open"`
		Memcached      struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Timeout  string `yaml:"timeout"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Forecast struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"forecast"`

	Suggestions struct {
		MaxQueryLength int `yaml:"max_query_length"`
	} `yaml:"suggestions"`

	Coalesce struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"coalesce"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Warm struct {
		Enabled     bool           `yaml:"enabled"`
		Concurrency int            `yaml:"concurrency"`
		Locations   []warmLocation `yaml:"locations"`
	} `yaml:"warm"`
}

type warmLocation struct {
	Country   string  `yaml:"country"`
	Postcode  string  `yaml:"postcode"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type secretsFile struct {
	MapboxAccessToken   string `yaml:"mapbox_access_token"`
	OpenWeatherMapAppID string `yaml:"openweathermap_app_id"`
}

// Load reads configuration relative to the working directory. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom loads dir/.env if present, then reads dir/config/{ENV_NAME}.yaml
// (default dev) and dir/config/secrets.yaml. Credentials come from
// MAPBOX_ACCESS_TOKEN and OPENWEATHERMAP_APP_ID or the secrets file.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Log.Level, "info"))
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 10*time.Second)

	cfg.SuggestionProvider = strings.ToLower(firstNonEmpty(fc.Providers.Suggestions, "mapbox"))
	cfg.WeatherProvider = strings.ToLower(firstNonEmpty(fc.Providers.Weather, "openweathermap"))

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.MapboxAccessToken = firstNonEmpty(os.Getenv("MAPBOX_ACCESS_TOKEN"), sec.MapboxAccessToken)
	if cfg.MapboxAccessToken == "" {
		return nil, fmt.Errorf("MAPBOX_ACCESS_TOKEN required (set env or config/secrets.yaml mapbox_access_token)")
	}
	cfg.OpenWeatherMapAppID = firstNonEmpty(os.Getenv("OPENWEATHERMAP_APP_ID"), sec.OpenWeatherMapAppID)
	if cfg.OpenWeatherMapAppID == "" {
		return nil, fmt.Errorf("OPENWEATHERMAP_APP_ID required (set env or config/secrets.yaml openweathermap_app_id)")
	}
	cfg.MapboxBaseURL = strings.TrimSpace(fc.Mapbox.BaseURL)
	cfg.OpenWeatherMapBaseURL = strings.TrimSpace(fc.OpenWeatherMap.BaseURL)

	cfg.FetchTimeout = parseDurationOrZero(fc.HTTPClient.Timeout, 5*time.Second)
	cfg.RetryMaxAttempts = fc.HTTPClient.RetryMaxAttempts
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 5
	}
	cfg.RetryBaseDelay = parseDuration(fc.HTTPClient.RetryBaseDelay, 500*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.HTTPClient.RetryMaxDelay, 30*time.Second)
	cfg.RetryJitter = fc.HTTPClient.RetryJitter
	if cfg.RetryJitter <= 0 || cfg.RetryJitter > 1 {
		cfg.RetryJitter = 0.5
	}

	cfg.BreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerHalfOpenRequests = fc.CircuitBreaker.HalfOpenRequests
	if cfg.BreakerHalfOpenRequests == 0 {
		cfg.BreakerHalfOpenRequests = 2
	}
	cfg.BreakerInterval = parseDuration(fc.CircuitBreaker.Interval, time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory")))
	cfg.CacheKeyPrefix = fc.Cache.KeyPrefix
	cfg.WeatherCacheTTL = parseDurationOrZero(fc.Cache.WeatherTTL, 30*time.Minute)
	cfg.SuggestionsCacheTTL = parseDurationOrZero(fc.Cache.SuggestionsTTL, 0)
	if cfg.SuggestionsCacheTTL < 0 {
		cfg.SuggestionsCacheTTL = 0
	}
	cfg.CacheFailOpen = fc.Cache.FailOpen

	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(os.Getenv("MEMCACHED_ADDRS"), fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RedisAddr = strings.TrimSpace(firstNonEmpty(os.Getenv("REDIS_ADDR"), fc.Cache.Redis.Addr, "localhost:6379"))
	cfg.RedisPassword = fc.Cache.Redis.Password
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisPoolSize = fc.Cache.Redis.PoolSize
	if cfg.RedisPoolSize <= 0 {
		cfg.RedisPoolSize = 10
	}
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.ForecastTimezone = firstNonEmpty(fc.Forecast.Timezone, "UTC")
	cfg.MaxQueryLength = fc.Suggestions.MaxQueryLength
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 256
	}
	cfg.CoalesceEnabled = fc.Coalesce.Enabled

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.WarmEnabled = fc.Warm.Enabled
	cfg.WarmConcurrency = fc.Warm.Concurrency
	if cfg.WarmConcurrency <= 0 {
		cfg.WarmConcurrency = 4
	}
	for _, loc := range fc.Warm.Locations {
		cfg.WarmLocations = append(cfg.WarmLocations, models.WeatherQuery{
			Country:    loc.Country,
			PostalCode: loc.Postcode,
			Latitude:   loc.Latitude,
			Longitude:  loc.Longitude,
		})
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
// Bare integers are read as seconds.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Ensures FetchTimeout and WeatherCacheTTL are positive, RequestTimeout > FetchTimeout,
// CacheBackend is a valid value and the forecast timezone resolves.
func validate(cfg *Config) error {
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("http_client.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.FetchTimeout {
		cfg.RequestTimeout = cfg.FetchTimeout + time.Second
	}
	if cfg.WeatherCacheTTL <= 0 {
		return fmt.Errorf("cache.weather_ttl must be positive")
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	loc, err := time.LoadLocation(cfg.ForecastTimezone)
	if err != nil {
		return fmt.Errorf("forecast.timezone %q: %w", cfg.ForecastTimezone, err)
	}
	cfg.ForecastLocation = loc
	for i, q := range cfg.WarmLocations {
		if err := validation.ValidateWeatherQuery(q); err != nil {
			return fmt.Errorf("warm.locations[%d]: %w", i, err)
		}
	}
	return nil
}
