package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kjstillabower/address-weather-service/internal/models"
)

// Weather cache key kinds, also used as metric labels.
const (
	KindCurrentWeather = "current_weather"
	KindForecast       = "forecast"
	kindSuggestions    = "suggestions"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// keySegment trims and lowercases s and collapses whitespace runs to "-".
func keySegment(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
}

// WeatherKey derives the cache key for kind at q, e.g. "forecast:us:10001".
// Locations without a country or postcode fall back to rounded coordinates.
func WeatherKey(kind string, q models.WeatherQuery) string {
	country, postal := keySegment(q.Country), keySegment(q.PostalCode)
	if country == "" || postal == "" {
		return fmt.Sprintf("%s:coords:%.2f,%.2f", kind, q.Latitude, q.Longitude)
	}
	return kind + ":" + country + ":" + postal
}

// SuggestionsKey derives the cache key for a suggestion query.
func SuggestionsKey(query string) string {
	return kindSuggestions + ":" + keySegment(query)
}
