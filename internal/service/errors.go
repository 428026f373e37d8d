package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kjstillabower/address-weather-service/internal/cache"
	"github.com/kjstillabower/address-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/address-weather-service/internal/client"
	"github.com/kjstillabower/address-weather-service/internal/validation"
)

// Kind classifies a service failure.
type Kind string

const (
	// KindValidation marks rejected input. Mapped to 400.
	KindValidation Kind = "validation"
	// KindUpstream marks a provider failure: transport error, timeout or non-2xx status.
	KindUpstream Kind = "upstream"
	// KindNormalization marks a provider payload that could not be normalized.
	KindNormalization Kind = "normalization"
	// KindCache marks a failing cache backend. Mapped to 503.
	KindCache Kind = "cache"
)

// Error is the single failure value returned by the services. Messages are
// safe to show to end users; Err keeps the underlying cause for logs.
type Error struct {
	Kind     Kind
	Messages []string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Messages, "; "))
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a service *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func validationError(err error) *Error {
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		return &Error{Kind: KindValidation, Messages: append([]string(nil), fields...), Err: err}
	}
	return &Error{Kind: KindValidation, Messages: []string{err.Error()}, Err: err}
}

func upstreamError(provider string, err error) *Error {
	var ue *client.UpstreamError
	var msg string
	switch {
	case errors.As(err, &ue):
		msg = ue.Error()
	case errors.Is(err, circuitbreaker.ErrOpen):
		msg = fmt.Sprintf("%s is temporarily unavailable", provider)
	case errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("%s did not respond in time", provider)
	default:
		msg = fmt.Sprintf("%s request failed", provider)
	}
	return &Error{Kind: KindUpstream, Messages: []string{msg}, Err: err}
}

func normalizationError(provider string, err error) *Error {
	return &Error{
		Kind:     KindNormalization,
		Messages: []string{fmt.Sprintf("unable to process %s response", provider)},
		Err:      err,
	}
}

func cacheError(err error) *Error {
	return &Error{Kind: KindCache, Messages: []string{"cache is unavailable"}, Err: err}
}

// asServiceError passes *Error through and classifies anything else as a
// cache failure, the only other source of errors in a fetch.
func asServiceError(err error) error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var opErr *cache.OpError
	if errors.As(err, &opErr) {
		return cacheError(err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return cacheError(err)
}

// safeNormalize runs fn, converting a panic into an error.
func safeNormalize[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize panic: %v", r)
		}
	}()
	return fn()
}
