package client

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/kjstillabower/address-weather-service/internal/observability"
)

// RetryTransport retries GET requests that were answered with 429 Too Many
// Requests, backing off exponentially with jitter and honouring Retry-After.
// Other methods and statuses pass through untouched. After the last attempt
// the final 429 response is returned as-is.
type RetryTransport struct {
	Base     http.RoundTripper
	Provider string // metrics label
	// MaxAttempts includes the first request. Zero means 5.
	MaxAttempts int
	// BaseDelay is the wait before the first retry, doubled for each later one. Zero means 500ms.
	BaseDelay time.Duration
	// MaxDelay caps a single wait, including Retry-After. Zero means 30s.
	MaxDelay time.Duration
	// Jitter spreads each wait by up to ±Jitter of itself. Negative disables it; zero means 0.5.
	Jitter float64

	random func() float64

	once  sync.Once
	retry *retryablehttp.RoundTripper
}

func (t *RetryTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RetryTransport) init() {
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: t.base(),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	rc.RetryMax = maxAttempts - 1
	rc.CheckRetry = retryRateLimited
	rc.Backoff = func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
		var retryAfter string
		if resp != nil {
			retryAfter = resp.Header.Get("Retry-After")
		}
		return t.delay(attemptNum+1, retryAfter)
	}
	rc.RequestLogHook = func(_ retryablehttp.Logger, _ *http.Request, attemptNum int) {
		if attemptNum > 0 {
			observability.UpstreamRetriesTotal.WithLabelValues(t.Provider).Inc()
		}
	}
	rc.ErrorHandler = giveUp
	// The library logs full request URLs, which carry provider credentials.
	rc.Logger = nil
	t.retry = &retryablehttp.RoundTripper{Client: rc}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.base().RoundTrip(req)
	}
	t.once.Do(t.init)
	return t.retry.RoundTrip(req)
}

// retryRateLimited retries only 429 responses; transport errors are left to
// the caller and the circuit breaker.
func retryRateLimited(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil || resp == nil {
		return false, nil
	}
	return resp.StatusCode == http.StatusTooManyRequests, nil
}

// giveUp returns the last response unchanged so callers see the real status.
// A response is never returned together with an error.
func giveUp(resp *http.Response, err error, _ int) (*http.Response, error) {
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

// delay returns the wait before retry number attempt (1-based).
func (t *RetryTransport) delay(attempt int, retryAfter string) time.Duration {
	maxDelay := t.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if d, ok := parseRetryAfter(retryAfter, time.Now()); ok {
		return min(d, maxDelay)
	}

	base := t.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))

	jitter := t.Jitter
	if jitter == 0 {
		jitter = 0.5
	}
	if jitter > 0 {
		random := t.random
		if random == nil {
			random = rand.Float64
		}
		d += d * jitter * (2*random() - 1)
	}
	return min(time.Duration(d), maxDelay)
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
