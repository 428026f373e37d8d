package models

// AddressSuggestion is one normalized geocoding result.
type AddressSuggestion struct {
	FullAddress string  `json:"full_address"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	PostalCode  string  `json:"postal_code,omitempty"`
	CountryName string  `json:"country_name,omitempty"`
}
