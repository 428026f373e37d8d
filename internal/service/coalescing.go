package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// requestCoalescer lets concurrent callers for the same key share one
// in-flight fetch.
type requestCoalescer struct {
	group singleflight.Group
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{}
}

// coalesce runs fn once per key among concurrent callers. The shared call runs
// detached from any single caller's cancellation; each caller still stops
// waiting when its own ctx ends. A nil coalescer runs fn directly.
func coalesce[T any](ctx context.Context, rc *requestCoalescer, kind, key string, fn func(context.Context) (T, error)) (T, error) {
	if rc == nil {
		return fn(ctx)
	}
	detached := context.WithoutCancel(ctx)
	ch := rc.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		if res.Shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(kind).Inc()
		}
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
