package normalize

import (
	"fmt"
	"strings"

	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/validation"
)

// MapboxSuggestions converts a Mapbox forward-geocoding response into address
// suggestions, preserving provider order. Features without a full address or
// with out-of-range coordinates are dropped and counted in dropped.
func MapboxSuggestions(raw map[string]any) (suggestions []models.AddressSuggestion, dropped int, err error) {
	suggestions = []models.AddressSuggestion{}
	featuresVal, present := raw["features"]
	if !present || featuresVal == nil {
		return suggestions, 0, nil
	}
	features, ok := featuresVal.([]any)
	if !ok {
		return nil, 0, fmt.Errorf("%w: features is %T, want array", ErrMalformedPayload, featuresVal)
	}

	for _, f := range features {
		s, ok := mapboxFeature(f)
		if !ok {
			dropped++
			continue
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, dropped, nil
}

func mapboxFeature(feature any) (models.AddressSuggestion, bool) {
	address := digString(feature, "properties", "full_address")
	if strings.TrimSpace(address) == "" {
		return models.AddressSuggestion{}, false
	}
	coords, ok := dig(feature, "geometry", "coordinates").([]any)
	if !ok || len(coords) < 2 {
		return models.AddressSuggestion{}, false
	}
	lon, _, lonOK := number(coords[0])
	lat, _, latOK := number(coords[1])
	if !lonOK || !latOK || !validation.ValidLatitude(lat) || !validation.ValidLongitude(lon) {
		return models.AddressSuggestion{}, false
	}
	return models.AddressSuggestion{
		FullAddress: address,
		Latitude:    lat,
		Longitude:   lon,
		PostalCode:  digString(feature, "properties", "context", "postcode", "name"),
		CountryName: digString(feature, "properties", "context", "country", "name"),
	}, true
}
