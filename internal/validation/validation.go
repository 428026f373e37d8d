package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/address-weather-service/internal/models"
)

// ErrQueryTooLong is returned when a suggestion query exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when a suggestion query contains a
// non-whitespace control character.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
)

var validate = validator.New()

// FieldErrors lists human-readable messages for each invalid field.
type FieldErrors []string

func (e FieldErrors) Error() string {
	return strings.Join(e, "; ")
}

// ValidLatitude reports whether lat is within [-90, 90].
func ValidLatitude(lat float64) bool {
	return lat >= MinLatitude && lat <= MaxLatitude
}

// ValidLongitude reports whether lon is within [-180, 180].
func ValidLongitude(lon float64) bool {
	return lon >= MinLongitude && lon <= MaxLongitude
}

// ValidateWeatherQuery checks coordinate ranges on q. Returns FieldErrors
// when any field fails, nil otherwise.
func ValidateWeatherQuery(q models.WeatherQuery) error {
	err := validate.Struct(q)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{err.Error()}
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() {
		case "Latitude":
			out = append(out, fmt.Sprintf("latitude must be between %g and %g", MinLatitude, MaxLatitude))
		case "Longitude":
			out = append(out, fmt.Sprintf("longitude must be between %g and %g", MinLongitude, MaxLongitude))
		default:
			out = append(out, fmt.Sprintf("%s is invalid", strings.ToLower(fe.Field())))
		}
	}
	return out
}

// ValidateQuery normalizes a free-text suggestion query and enforces maxLen
// (in runes, 0 disables). Runs of whitespace, tabs and newlines included,
// collapse to one space; any other control character is rejected. An empty
// result is valid; callers treat it as "no suggestions".
func ValidateQuery(input string, maxLen int) (string, error) {
	s := strings.Join(strings.Fields(input), " ")
	if maxLen > 0 && len([]rune(s)) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range s {
		if unicode.IsControl(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}
