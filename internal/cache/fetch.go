package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// SetJSON serializes v as JSON and stores it under key for ttl.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &OpError{Op: "encode", Key: key, Err: err}
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		return &OpError{Op: "set", Key: key, Err: err}
	}
	return nil
}

// OpError records a failed cache backend operation.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// DecodeError is returned by GetJSON when a stored value is not valid for the
// requested type. Raw holds the stored bytes.
type DecodeError struct {
	Key string
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cache decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GetJSON loads key and decodes it into T. Backend failures are *OpError and
// undecodable values are *DecodeError.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var v T
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return v, false, &OpError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, true, &DecodeError{Key: key, Raw: raw, Err: err}
	}
	return v, true, nil
}

// Age reports how long ago key was written, as ttl minus the remaining TTL in
// whole seconds. Returns nil when the key is absent, expired, or has no expiry.
func Age(ctx context.Context, c Cache, key string, ttl time.Duration) (*int, error) {
	remaining, ok, err := c.TTL(ctx, key)
	if err != nil {
		return nil, &OpError{Op: "ttl", Key: key, Err: err}
	}
	if !ok || remaining <= 0 {
		return nil, nil
	}
	age := int(math.Round(ttl.Seconds())) - int(math.Round(remaining.Seconds()))
	if age < 0 {
		age = 0
	}
	return &age, nil
}

// Fetched is the outcome of FetchOrCompute.
type Fetched[T any] struct {
	Value T
	// Hit is true when the value came from the cache.
	Hit bool
	// Undecodable is true when a cached value existed but was not valid for T.
	// Raw then holds the stored bytes and Value is the zero value.
	Undecodable bool
	Raw         []byte
}

type fetchConfig struct {
	failOpen func(err error)
}

// FetchOption configures FetchOrCompute.
type FetchOption func(*fetchConfig)

// FailOpen treats cache read failures as misses and ignores write failures,
// reporting each *OpError to onErr. Without it, any cache failure is returned.
func FailOpen(onErr func(err error)) FetchOption {
	return func(fc *fetchConfig) {
		if onErr == nil {
			onErr = func(error) {}
		}
		fc.failOpen = onErr
	}
}

// FetchOrCompute returns the cached value for key, or runs compute, stores the
// result for ttl and returns it. A compute error is returned unchanged and
// nothing is written; cache failures are returned as *OpError. A cached value
// that does not decode as T is returned as Raw with Undecodable set instead of
// failing.
//
// Concurrent misses on the same key may each run compute; the last write wins.
func FetchOrCompute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error), opts ...FetchOption) (Fetched[T], error) {
	var fc fetchConfig
	for _, opt := range opts {
		opt(&fc)
	}

	v, ok, err := GetJSON[T](ctx, c, key)
	var decodeErr *DecodeError
	switch {
	case errors.As(err, &decodeErr):
		return Fetched[T]{Hit: true, Undecodable: true, Raw: decodeErr.Raw}, nil
	case err != nil:
		if fc.failOpen == nil {
			return Fetched[T]{}, err
		}
		fc.failOpen(err)
	case ok:
		return Fetched[T]{Value: v, Hit: true}, nil
	}

	return Compute(ctx, c, key, ttl, compute, opts...)
}

// Compute runs compute and stores its result under key for ttl, bypassing the
// read. Used to overwrite entries that could not be decoded.
func Compute[T any](ctx context.Context, c Cache, key string, ttl time.Duration, compute func(context.Context) (T, error), opts ...FetchOption) (Fetched[T], error) {
	var fc fetchConfig
	for _, opt := range opts {
		opt(&fc)
	}

	v, err := compute(ctx)
	if err != nil {
		return Fetched[T]{}, err
	}
	if err := SetJSON(ctx, c, key, v, ttl); err != nil {
		if fc.failOpen == nil {
			return Fetched[T]{}, err
		}
		fc.failOpen(err)
	}
	return Fetched[T]{Value: v}, nil
}
