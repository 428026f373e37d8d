package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/address-weather-service/internal/circuitbreaker"
	"github.com/kjstillabower/address-weather-service/internal/observability"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 4 << 20
)

// Options configures a provider client.
type Options struct {
	BaseURL string
	// Timeout bounds one fetch, including transport retries. Zero means 5s.
	Timeout time.Duration
	// HTTPClient defaults to a client whose transport retries rate-limited GETs.
	HTTPClient *http.Client
	// Breaker is optional; a nil breaker never rejects calls.
	Breaker *circuitbreaker.Breaker
}

// jsonGetter performs GET requests against one provider and decodes the JSON
// object body, keeping numbers as json.Number.
type jsonGetter struct {
	provider   string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

func newJSONGetter(provider, defaultBaseURL string, opts Options) jsonGetter {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: &RetryTransport{Provider: provider}}
	}
	return jsonGetter{
		provider:   provider,
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: httpClient,
		breaker:    opts.Breaker,
	}
}

func (g jsonGetter) get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	start := time.Now()
	status := "error"
	var out map[string]any

	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, g.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.URL.RawQuery = params.Encode()
		req.Header.Set("Accept", "application/json")
		if corrID := observability.CorrelationIDFromContext(ctx); corrID != "" {
			req.Header.Set("X-Correlation-ID", corrID)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			err = redactURL(err)
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%s request timeout: %w", g.provider, err)
			}
			return fmt.Errorf("%s request failed: %w", g.provider, err)
		}
		defer resp.Body.Close()
		status = statusLabel(resp.StatusCode)

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read %s response body: %w", g.provider, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &UpstreamError{Provider: g.provider, StatusCode: resp.StatusCode, Detail: upstreamMessage(body)}
		}

		decoded, err := decodeObject(body)
		if err != nil {
			return fmt.Errorf("parse %s response: %w", g.provider, err)
		}
		out = decoded
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		status = "circuit_open"
	}

	observability.UpstreamCallsTotal.WithLabelValues(g.provider, status).Inc()
	observability.UpstreamDuration.WithLabelValues(g.provider, status).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(g.provider, string(CategorizeError(err))).Inc()
		return nil, err
	}
	return out, nil
}

// decodeObject decodes a JSON object, keeping numbers as json.Number so
// integral values can be told apart from floats.
func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("response body is not a JSON object")
	}
	return out, nil
}

// upstreamMessage extracts the provider's "message" field from an error body.
func upstreamMessage(body []byte) string {
	var payload struct {
		Message any `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	msg, _ := payload.Message.(string)
	return strings.TrimSpace(msg)
}

// redactURL drops the query string, which carries credentials, from transport errors.
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	redacted := *ue
	if u, perr := url.Parse(ue.URL); perr == nil {
		u.RawQuery = ""
		redacted.URL = u.String()
	}
	return &redacted
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
