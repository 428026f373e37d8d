package client

import (
	"context"
	"errors"
	"net/url"
)

// DefaultMapboxBaseURL is the Mapbox API host.
const DefaultMapboxBaseURL = "https://api.mapbox.com"

// MapboxClient fetches address suggestions from the Mapbox forward geocoding v6 API.
type MapboxClient struct {
	accessToken string
	getter      jsonGetter
}

// NewMapboxClient creates a MapboxClient. accessToken is required.
func NewMapboxClient(accessToken string, opts Options) (*MapboxClient, error) {
	if accessToken == "" {
		return nil, errors.New("mapbox access token is required")
	}
	return &MapboxClient{
		accessToken: accessToken,
		getter:      newJSONGetter("mapbox", DefaultMapboxBaseURL, opts),
	}, nil
}

// Name returns the provider name.
func (c *MapboxClient) Name() string { return "mapbox" }

// FetchSuggestions returns the raw forward geocoding response for query.
func (c *MapboxClient) FetchSuggestions(ctx context.Context, query string) (map[string]any, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("types", "address")
	params.Set("language", "en")
	params.Set("access_token", c.accessToken)
	return c.getter.get(ctx, "/search/geocode/v6/forward", params)
}
