package cache

import (
	"context"
	"time"

	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// Instrumented wraps a Cache and records latency and failures per operation.
type Instrumented struct {
	next    Cache
	backend string
}

// Instrument returns c wrapped with metrics labelled by backend.
func Instrument(c Cache, backend string) *Instrumented {
	return &Instrumented{next: c, backend: backend}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
		observability.CacheErrorsTotal.WithLabelValues(i.backend, op).Inc()
	}
	observability.CacheOperationDurationSeconds.WithLabelValues(i.backend, op, result).Observe(time.Since(start).Seconds())
}

// Get reads key from the wrapped cache and records the "get" operation.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	v, ok, err := i.next.Get(ctx, key)
	i.observe("get", start, err)
	return v, ok, err
}

// Set writes key to the wrapped cache and records the "set" operation.
func (i *Instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := i.next.Set(ctx, key, value, ttl)
	i.observe("set", start, err)
	return err
}

// TTL reports the remaining lifetime of key and records the "ttl" operation.
func (i *Instrumented) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	start := time.Now()
	d, ok, err := i.next.TTL(ctx, key)
	i.observe("ttl", start, err)
	return d, ok, err
}

// Ping checks the wrapped backend and records the "ping" operation.
func (i *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := i.next.Ping(ctx)
	i.observe("ping", start, err)
	return err
}
