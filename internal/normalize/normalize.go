// Package normalize turns raw provider payloads into the service's stable models.
// Every function here is pure: the same payload always yields the same output,
// and malformed nested fields degrade to defaults instead of failing.
package normalize

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedPayload is returned when a payload's top-level shape is unusable.
var ErrMalformedPayload = errors.New("malformed provider payload")

// DisplayDateLayout is the human-readable date format used for observed and forecast dates.
const DisplayDateLayout = "Jan 02, 2006"

var conditionTitles = map[string]string{
	"01d": "clear",
	"02d": "partly_cloudy",
	"03d": "cloudy",
	"04d": "cloudy",
	"09d": "rainy",
	"10d": "rainy",
	"11d": "stormy",
	"13d": "snowy",
	"50d": "foggy",
	"01n": "clear",
	"02n": "partly_cloudy",
	"03n": "cloudy",
	"04n": "cloudy",
	"09n": "rainy",
	"10n": "rainy",
	"11n": "stormy",
	"13n": "snowy",
	"50n": "foggy",
}

// ConditionTitle looks up the title for a provider icon code. Returns nil when
// the code is nil or unmapped.
func ConditionTitle(code *string) *string {
	if code == nil {
		return nil
	}
	title, ok := conditionTitles[*code]
	if !ok {
		return nil
	}
	return &title
}

// dig walks nested objects by key and array elements by index.
func dig(v any, path ...any) any {
	for _, p := range path {
		switch k := p.(type) {
		case string:
			m, ok := v.(map[string]any)
			if !ok {
				return nil
			}
			v = m[k]
		case int:
			a, ok := v.([]any)
			if !ok || k < 0 || k >= len(a) {
				return nil
			}
			v = a[k]
		default:
			return nil
		}
	}
	return v
}

func digString(v any, path ...any) string {
	s, _ := dig(v, path...).(string)
	return s
}

// number reads a JSON numeric value. integral reports whether the source was
// written without a fraction or exponent.
func number(v any) (f float64, integral bool, ok bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, false
		}
		return f, !strings.ContainsAny(n.String(), ".eE"), true
	case float64:
		return n, n == float64(int64(n)), true
	case int:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	}
	return 0, false, false
}
