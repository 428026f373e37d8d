package provider

import (
	"github.com/kjstillabower/address-weather-service/internal/client"
	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/normalize"
	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// Mapbox serves suggestions from Mapbox forward geocoding.
type Mapbox struct {
	*client.MapboxClient
}

// NewMapbox creates a Mapbox provider.
func NewMapbox(accessToken string, opts client.Options) (*Mapbox, error) {
	c, err := client.NewMapboxClient(accessToken, opts)
	if err != nil {
		return nil, err
	}
	return &Mapbox{MapboxClient: c}, nil
}

// NormalizeSuggestions implements SuggestionProvider.
func (m *Mapbox) NormalizeSuggestions(raw map[string]any) ([]models.AddressSuggestion, error) {
	suggestions, dropped, err := normalize.MapboxSuggestions(raw)
	if dropped > 0 {
		observability.SuggestionsDroppedTotal.WithLabelValues(m.Name()).Add(float64(dropped))
	}
	return suggestions, err
}
