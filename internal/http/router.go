package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// RouterConfig holds the per-route middleware settings.
type RouterConfig struct {
	// Limiter throttles /api routes. Nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds each /api request. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter wires the handler's routes and middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(RecoverMiddleware)
	router.NotFoundHandler = CorrelationIDMiddleware(logger)(http.HandlerFunc(NotFound))

	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/suggestions", h.GetSuggestions).Methods(http.MethodGet)
	api.HandleFunc("/forecasts/current_weather", h.GetCurrentWeather).Methods(http.MethodGet)
	api.HandleFunc("/forecasts/forecast", h.GetForecast).Methods(http.MethodGet)
	return router
}
