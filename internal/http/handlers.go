package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/address-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/observability"
	"github.com/kjstillabower/address-weather-service/internal/service"
)

// Suggester returns address suggestions for a free-text query.
type Suggester interface {
	Suggest(ctx context.Context, query string) ([]models.AddressSuggestion, error)
}

// WeatherReader returns current weather and daily forecasts for a location.
type WeatherReader interface {
	Current(ctx context.Context, q models.WeatherQuery) (models.WeatherResult[models.CurrentWeather], error)
	Forecast(ctx context.Context, q models.WeatherQuery) (models.WeatherResult[[]models.DailyForecastSummary], error)
}

// HealthConfig holds the dependencies the health handler checks.
type HealthConfig struct {
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
	// Breakers are reported per component; any open breaker marks the service degraded.
	Breakers []*circuitbreaker.Breaker
	Version  string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	suggestions      Suggester
	weather          WeatherReader
	healthConfig     *HealthConfig
	logger           *zap.Logger
	shuttingDown     atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(suggestions Suggester, weather WeatherReader, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		suggestions:  suggestions,
		weather:      weather,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// SetShuttingDown marks the process as draining. Health reports shutting-down while set.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

type suggestionsResponse struct {
	Suggestions []models.AddressSuggestion `json:"suggestions"`
	Error       *errorBody                 `json:"error,omitempty"`
}

type weatherResponse[T any] struct {
	Data            *T         `json:"data"`
	CacheAgeSeconds *int       `json:"cache_age_seconds"`
	Error           *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code      string   `json:"code"`
	Messages  []string `json:"messages"`
	RequestID string   `json:"requestId"`
}

// GetSuggestions handles GET /api/v1/suggestions?query=.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.suggestions.Suggest(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		status, body := h.errorResponse(r, err)
		writeJSON(w, status, suggestionsResponse{Suggestions: []models.AddressSuggestion{}, Error: body})
		return
	}
	if suggestions == nil {
		suggestions = []models.AddressSuggestion{}
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}

// GetCurrentWeather handles GET /api/v1/forecasts/current_weather.
func (h *Handler) GetCurrentWeather(w http.ResponseWriter, r *http.Request) {
	q, err := parseWeatherQuery(r)
	if err != nil {
		status, body := h.errorResponse(r, err)
		writeJSON(w, status, weatherResponse[models.CurrentWeather]{Error: body})
		return
	}
	result, err := h.weather.Current(r.Context(), q)
	if err != nil {
		status, body := h.errorResponse(r, err)
		writeJSON(w, status, weatherResponse[models.CurrentWeather]{Error: body})
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse[models.CurrentWeather]{Data: &result.Data, CacheAgeSeconds: result.CacheAgeSeconds})
}

// GetForecast handles GET /api/v1/forecasts/forecast.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	q, err := parseWeatherQuery(r)
	if err != nil {
		status, body := h.errorResponse(r, err)
		writeJSON(w, status, weatherResponse[[]models.DailyForecastSummary]{Error: body})
		return
	}
	result, err := h.weather.Forecast(r.Context(), q)
	if err != nil {
		status, body := h.errorResponse(r, err)
		writeJSON(w, status, weatherResponse[[]models.DailyForecastSummary]{Error: body})
		return
	}
	data := result.Data
	if data == nil {
		data = []models.DailyForecastSummary{}
	}
	writeJSON(w, http.StatusOK, weatherResponse[[]models.DailyForecastSummary]{Data: &data, CacheAgeSeconds: result.CacheAgeSeconds})
}

// parseWeatherQuery reads location parameters. Missing or non-numeric
// coordinates are validation errors; range checks happen in the service.
func parseWeatherQuery(r *http.Request) (models.WeatherQuery, error) {
	values := r.URL.Query()
	q := models.WeatherQuery{
		Country:    strings.TrimSpace(values.Get("country")),
		PostalCode: strings.TrimSpace(values.Get("postcode")),
	}
	var msgs []string
	parse := func(name string) float64 {
		raw := strings.TrimSpace(values.Get(name))
		if raw == "" {
			msgs = append(msgs, name+" is required")
			return 0
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			msgs = append(msgs, name+" must be a number")
			return 0
		}
		return v
	}
	q.Latitude = parse("latitude")
	q.Longitude = parse("longitude")
	if len(msgs) > 0 {
		return q, &service.Error{Kind: service.KindValidation, Messages: msgs, Err: errors.New(strings.Join(msgs, "; "))}
	}
	return q, nil
}

// errorResponse maps a service failure to an HTTP status and error body.
// The underlying cause is logged, never returned.
func (h *Handler) errorResponse(r *http.Request, err error) (int, *errorBody) {
	logger := observability.LoggerFromContext(r.Context())
	body := &errorBody{RequestID: observability.CorrelationIDFromContext(r.Context())}

	var se *service.Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("request timed out", zap.Error(err))
			body.Code = "TIMEOUT"
			body.Messages = []string{"request timed out"}
			return http.StatusServiceUnavailable, body
		}
		logger.Error("unclassified error", zap.Error(err))
		body.Code = "INTERNAL_ERROR"
		body.Messages = []string{"internal error"}
		return http.StatusInternalServerError, body
	}

	body.Messages = se.Messages
	switch se.Kind {
	case service.KindValidation:
		logger.Debug("invalid request", zap.Strings("messages", se.Messages))
		body.Code = "VALIDATION_ERROR"
		return http.StatusBadRequest, body
	case service.KindNormalization:
		logger.Error("provider response could not be normalized", zap.Error(se.Err))
		body.Code = "NORMALIZATION_ERROR"
		return http.StatusBadGateway, body
	case service.KindCache:
		logger.Error("cache failure", zap.Error(se.Err))
		body.Code = "CACHE_UNAVAILABLE"
		return http.StatusServiceUnavailable, body
	default:
		logger.Warn("upstream failure", zap.Error(se.Err))
		body.Code = "UPSTREAM_UNAVAILABLE"
		return http.StatusServiceUnavailable, body
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	version := "dev"
	if h.healthConfig != nil && h.healthConfig.Version != "" {
		version = h.healthConfig.Version
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting down, cache reachability,
// open circuit breakers. The first failing condition decides the status.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := make(map[string]string)
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, "", checks}
	}

	result := healthResult{"healthy", http.StatusOK, "", checks}
	if h.healthConfig.CachePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := h.healthConfig.CachePing(pingCtx)
		cancel()
		if err != nil {
			checks["cache"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable", checks}
		} else {
			checks["cache"] = "healthy"
		}
	}
	for _, b := range h.healthConfig.Breakers {
		if b == nil {
			continue
		}
		state := b.State()
		checks[b.Component()] = state.String()
		if state == circuitbreaker.StateOpen && result.status == "healthy" {
			result = healthResult{"degraded", http.StatusServiceUnavailable, fmt.Sprintf("%s_circuit_open", b.Component()), checks}
		}
	}
	return result
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a bare error body for failures outside the API handlers
// (rate limiting, panics, unknown routes).
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": errorBody{
			Code:      code,
			Messages:  []string{message},
			RequestID: observability.CorrelationIDFromContext(r.Context()),
		},
	})
}

// NotFound handles requests that match no route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
}
