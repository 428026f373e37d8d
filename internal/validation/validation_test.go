package validation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kjstillabower/address-weather-service/internal/models"
)

func TestValidLatitudeLongitude_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		lat    float64
		lon    float64
		wantLa bool
		wantLo bool
	}{
		{"origin", 0, 0, true, true},
		{"inclusive upper", 90, 180, true, true},
		{"inclusive lower", -90, -180, true, true},
		{"just outside upper", 90.0001, 180.0001, false, false},
		{"just outside lower", -90.0001, -180.0001, false, false},
		{"nan", math.NaN(), math.NaN(), false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidLatitude(tc.lat); got != tc.wantLa {
				t.Errorf("ValidLatitude(%v) = %v, want %v", tc.lat, got, tc.wantLa)
			}
			if got := ValidLongitude(tc.lon); got != tc.wantLo {
				t.Errorf("ValidLongitude(%v) = %v, want %v", tc.lon, got, tc.wantLo)
			}
		})
	}
}

func TestValidateWeatherQuery(t *testing.T) {
	tests := []struct {
		name      string
		query     models.WeatherQuery
		wantCount int
	}{
		{"valid", models.WeatherQuery{Latitude: 43.570816, Longitude: -79.718903}, 0},
		{"bad latitude", models.WeatherQuery{Latitude: 91, Longitude: 0}, 1},
		{"bad longitude", models.WeatherQuery{Latitude: 0, Longitude: -181}, 1},
		{"both bad", models.WeatherQuery{Latitude: -100, Longitude: 200}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateWeatherQuery(tc.query)
			if tc.wantCount == 0 {
				if err != nil {
					t.Fatalf("ValidateWeatherQuery() error = %v, want nil", err)
				}
				return
			}
			var fe FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("ValidateWeatherQuery() error = %v, want FieldErrors", err)
			}
			if len(fe) != tc.wantCount {
				t.Errorf("len(FieldErrors) = %d, want %d (%v)", len(fe), tc.wantCount, fe)
			}
		})
	}
}

func TestValidateWeatherQuery_Messages(t *testing.T) {
	err := ValidateWeatherQuery(models.WeatherQuery{Latitude: 95, Longitude: 10})
	if err == nil || !strings.Contains(err.Error(), "latitude must be between -90 and 90") {
		t.Errorf("error = %v, want latitude range message", err)
	}
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxLen  int
		want    string
		wantErr error
	}{
		{"trims", "  5524 credit  ", 100, "5524 credit", nil},
		{"blank is valid", "   ", 100, "", nil},
		{"unicode letters", "Straße 5", 100, "Straße 5", nil},
		{"too long", strings.Repeat("a", 11), 10, "", ErrQueryTooLong},
		{"limit disabled", strings.Repeat("a", 500), 0, strings.Repeat("a", 500), nil},
		{"control char", "main\x00street", 100, "", ErrQueryInvalidChars},
		{"tab collapses", "5524\tcredit", 100, "5524 credit", nil},
		{"whitespace run collapses", "5524 \r\n  credit\tview", 100, "5524 credit view", nil},
		{"length after collapse", "ab  \t  cd", 5, "ab cd", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateQuery(tc.input, tc.maxLen)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("ValidateQuery() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateQuery() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateQuery() = %q, want %q", got, tc.want)
			}
		})
	}
}
