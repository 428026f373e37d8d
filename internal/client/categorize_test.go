package client

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kjstillabower/address-weather-service/internal/circuitbreaker"
)

// TestCategorizeError verifies that CategorizeError maps errors to the correct ErrorCategory
// for metrics labeling, including sentinel errors, wrapped errors, and message-based heuristics.
func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"circuit open", fmt.Errorf("%w: mapbox", circuitbreaker.ErrOpen), ErrorCategoryCircuitOpen},
		{"401", &UpstreamError{StatusCode: 401}, ErrorCategoryInvalidCredentials},
		{"403", &UpstreamError{StatusCode: 403}, ErrorCategoryInvalidCredentials},
		{"404", &UpstreamError{StatusCode: 404}, ErrorCategoryNotFound},
		{"429", &UpstreamError{StatusCode: 429}, ErrorCategoryRateLimited},
		{"503", &UpstreamError{StatusCode: 503}, ErrorCategoryUpstream5xx},
		{"400", &UpstreamError{StatusCode: 400}, ErrorCategoryUpstream4xx},
		{"wrapped upstream", fmt.Errorf("fetch: %w", &UpstreamError{StatusCode: 502}), ErrorCategoryUpstream5xx},
		{"timeout in message", errors.New("mapbox request timeout"), ErrorCategoryTimeout},
		{"parse in message", errors.New("parse mapbox response: invalid character"), ErrorCategoryParsing},
		{"network in message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategorizeError(tt.err)
			if got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpstreamError_Message(t *testing.T) {
	tests := []struct {
		err  *UpstreamError
		want string
	}{
		{&UpstreamError{StatusCode: 401}, "the server responded with status 401"},
		{&UpstreamError{StatusCode: 401, Detail: "Invalid API key"}, "the server responded with status 401: Invalid API key"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsProviderFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"caller cancelled", fmt.Errorf("mapbox request failed: %w", context.Canceled), false},
		{"unauthorized", &UpstreamError{StatusCode: 401}, false},
		{"not found", &UpstreamError{StatusCode: 404}, false},
		{"rate limited", &UpstreamError{StatusCode: 429}, true},
		{"server error", &UpstreamError{StatusCode: 500}, true},
		{"transport", errors.New("connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProviderFailure(tt.err); got != tt.want {
				t.Errorf("IsProviderFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
