package provider

import (
	"time"

	"github.com/kjstillabower/address-weather-service/internal/client"
	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/normalize"
)

// OpenWeatherMap serves current weather and daily forecasts from OpenWeatherMap.
type OpenWeatherMap struct {
	*client.OpenWeatherClient
	loc *time.Location
}

// NewOpenWeatherMap creates an OpenWeatherMap provider grouping forecasts by
// calendar date in loc (UTC when nil).
func NewOpenWeatherMap(appID string, opts client.Options, loc *time.Location) (*OpenWeatherMap, error) {
	c, err := client.NewOpenWeatherClient(appID, opts)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &OpenWeatherMap{OpenWeatherClient: c, loc: loc}, nil
}

// NormalizeCurrent implements WeatherProvider.
func (o *OpenWeatherMap) NormalizeCurrent(raw map[string]any, now time.Time) (models.CurrentWeather, error) {
	return normalize.OpenWeatherCurrent(raw, now.In(o.loc)), nil
}

// NormalizeForecast implements WeatherProvider.
func (o *OpenWeatherMap) NormalizeForecast(raw map[string]any) ([]models.DailyForecastSummary, error) {
	return normalize.OpenWeatherForecast(raw, o.loc)
}
