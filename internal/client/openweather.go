package client

import (
	"context"
	"errors"
	"net/url"
	"strconv"
)

// DefaultOpenWeatherBaseURL is the OpenWeatherMap API host.
const DefaultOpenWeatherBaseURL = "https://api.openweathermap.org"

// OpenWeatherClient fetches current weather and 5-day/3-hour forecasts from
// the OpenWeatherMap 2.5 API in metric units.
type OpenWeatherClient struct {
	appID  string
	getter jsonGetter
}

// NewOpenWeatherClient creates an OpenWeatherClient. appID is required.
func NewOpenWeatherClient(appID string, opts Options) (*OpenWeatherClient, error) {
	if appID == "" {
		return nil, errors.New("openweathermap app id is required")
	}
	return &OpenWeatherClient{
		appID:  appID,
		getter: newJSONGetter("openweathermap", DefaultOpenWeatherBaseURL, opts),
	}, nil
}

// Name returns the provider name.
func (c *OpenWeatherClient) Name() string { return "openweathermap" }

// FetchWeather returns the raw current weather response when current is true,
// otherwise the raw forecast response.
func (c *OpenWeatherClient) FetchWeather(ctx context.Context, lat, lon float64, current bool) (map[string]any, error) {
	path := "/data/2.5/forecast"
	if current {
		path = "/data/2.5/weather"
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("appid", c.appID)
	params.Set("units", "metric")
	return c.getter.get(ctx, path, params)
}
