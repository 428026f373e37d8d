// Package provider binds upstream clients to their normalizers and selects
// them by configured name.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kjstillabower/address-weather-service/internal/client"
	"github.com/kjstillabower/address-weather-service/internal/models"
)

// SuggestionProvider fetches and normalizes address suggestions.
type SuggestionProvider interface {
	Name() string
	FetchSuggestions(ctx context.Context, query string) (map[string]any, error)
	NormalizeSuggestions(raw map[string]any) ([]models.AddressSuggestion, error)
}

// WeatherProvider fetches and normalizes current weather and forecasts.
type WeatherProvider interface {
	Name() string
	FetchWeather(ctx context.Context, lat, lon float64, current bool) (map[string]any, error)
	NormalizeCurrent(raw map[string]any, now time.Time) (models.CurrentWeather, error)
	NormalizeForecast(raw map[string]any) ([]models.DailyForecastSummary, error)
}

// Settings carries what any registered provider may need to be constructed.
type Settings struct {
	MapboxAccessToken   string
	OpenWeatherMapAppID string
	Mapbox              client.Options
	OpenWeatherMap      client.Options
	// ForecastLocation is the timezone forecast entries are grouped in. Nil means UTC.
	ForecastLocation *time.Location
}

var suggestionProviders = map[string]func(Settings) (SuggestionProvider, error){
	"mapbox": func(s Settings) (SuggestionProvider, error) { return NewMapbox(s.MapboxAccessToken, s.Mapbox) },
}

var weatherProviders = map[string]func(Settings) (WeatherProvider, error){
	"openweathermap": func(s Settings) (WeatherProvider, error) {
		return NewOpenWeatherMap(s.OpenWeatherMapAppID, s.OpenWeatherMap, s.ForecastLocation)
	},
}

// NewSuggestionProvider constructs the suggestion provider registered under name.
func NewSuggestionProvider(name string, s Settings) (SuggestionProvider, error) {
	factory, ok := suggestionProviders[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return factory(s)
}

// NewWeatherProvider constructs the weather provider registered under name.
func NewWeatherProvider(name string, s Settings) (WeatherProvider, error) {
	factory, ok := weatherProviders[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return factory(s)
}

// SuggestionProviderNames lists registered suggestion providers, sorted.
func SuggestionProviderNames() []string { return names(suggestionProviders) }

// WeatherProviderNames lists registered weather providers, sorted.
func WeatherProviderNames() []string { return names(weatherProviders) }

func names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
