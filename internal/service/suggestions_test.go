package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/address-weather-service/internal/cache"
	"github.com/kjstillabower/address-weather-service/internal/client"
	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/normalize"
)

type mockSuggestionProvider struct {
	mu      sync.Mutex
	raw     map[string]any
	err     error
	queries []string
}

func (m *mockSuggestionProvider) Name() string { return "mapbox" }

func (m *mockSuggestionProvider) FetchSuggestions(ctx context.Context, query string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.raw, nil
}

func (m *mockSuggestionProvider) NormalizeSuggestions(raw map[string]any) ([]models.AddressSuggestion, error) {
	s, _, err := normalize.MapboxSuggestions(raw)
	return s, err
}

const threeFeatures = `{"features":[
	{"geometry":{"coordinates":[-79.7189,43.5708]},"properties":{"full_address":"5524 Credit View Rd, Mississauga","context":{"postcode":{"name":"L5V 1A1"},"country":{"name":"Canada"}}}},
	{"geometry":{"coordinates":[-79.70,43.58]},"properties":{"name":"no address"}},
	{"geometry":{"coordinates":[-79.60,43.60]},"properties":{"full_address":"5524 Credit St, Brampton"}}
]}`

func TestSuggestionService_BlankQuery(t *testing.T) {
	p := &mockSuggestionProvider{}
	svc := NewSuggestionService(p, cache.NewInMemoryCache(), SuggestionConfig{TTL: time.Minute})

	for _, q := range []string{"", "   ", "\t"} {
		got, err := svc.Suggest(context.Background(), q)
		if err != nil {
			t.Fatalf("Suggest(%q) error = %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Suggest(%q) = %#v, want empty non-nil slice", q, got)
		}
	}
	if len(p.queries) != 0 {
		t.Errorf("provider called %d times, want 0", len(p.queries))
	}
}

func TestSuggestionService_DropsEntriesAndKeepsOrder(t *testing.T) {
	p := &mockSuggestionProvider{raw: decodeRaw(t, threeFeatures)}
	svc := NewSuggestionService(p, nil, SuggestionConfig{})

	got, err := svc.Suggest(context.Background(), "  5524 credit ")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].FullAddress != "5524 Credit View Rd, Mississauga" || got[1].FullAddress != "5524 Credit St, Brampton" {
		t.Errorf("order = %q, %q", got[0].FullAddress, got[1].FullAddress)
	}
	if got[0].PostalCode != "L5V 1A1" || got[0].CountryName != "Canada" {
		t.Errorf("context not copied: %+v", got[0])
	}
	if len(p.queries) != 1 || p.queries[0] != "5524 credit" {
		t.Errorf("provider queries = %q, want trimmed query", p.queries)
	}
}

func TestSuggestionService_PastedWhitespaceAccepted(t *testing.T) {
	p := &mockSuggestionProvider{raw: decodeRaw(t, threeFeatures)}
	svc := NewSuggestionService(p, nil, SuggestionConfig{})

	got, err := svc.Suggest(context.Background(), "5524\tcredit\n")
	if err != nil {
		t.Fatalf("Suggest() error = %v, want accepted", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
	if len(p.queries) != 1 || p.queries[0] != "5524 credit" {
		t.Errorf("provider queries = %q, want whitespace collapsed", p.queries)
	}
}

func TestSuggestionService_UncachedByDefault(t *testing.T) {
	p := &mockSuggestionProvider{raw: decodeRaw(t, threeFeatures)}
	c := cache.NewInMemoryCache()
	svc := NewSuggestionService(p, c, SuggestionConfig{})
	ctx := context.Background()

	_, _ = svc.Suggest(ctx, "5524 credit")
	_, _ = svc.Suggest(ctx, "5524 credit")
	if len(p.queries) != 2 {
		t.Errorf("provider calls = %d, want 2 with caching disabled", len(p.queries))
	}
	if _, ok, _ := c.Get(ctx, SuggestionsKey("5524 credit")); ok {
		t.Error("suggestions cached with TTL 0")
	}
}

func TestSuggestionService_Cached(t *testing.T) {
	p := &mockSuggestionProvider{raw: decodeRaw(t, threeFeatures)}
	c := cache.NewInMemoryCache()
	svc := NewSuggestionService(p, c, SuggestionConfig{TTL: time.Minute})
	ctx := context.Background()

	first, err := svc.Suggest(ctx, "5524 Credit")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	second, err := svc.Suggest(ctx, "5524   credit")
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if len(p.queries) != 1 {
		t.Errorf("provider calls = %d, want 1 (normalized keys match)", len(p.queries))
	}
	if len(second) != len(first) || second[0] != first[0] {
		t.Errorf("cached = %+v, want %+v", second, first)
	}
}

func TestSuggestionService_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider *mockSuggestionProvider
		query    string
		maxLen   int
		wantKind Kind
		wantMsg  string
	}{
		{
			name:     "upstream unauthorized",
			provider: &mockSuggestionProvider{err: &client.UpstreamError{Provider: "mapbox", StatusCode: 401, Detail: "Not Authorized - Invalid Token"}},
			query:    "1 main",
			wantKind: KindUpstream,
			wantMsg:  "the server responded with status 401: Not Authorized - Invalid Token",
		},
		{
			name:     "upstream timeout",
			provider: &mockSuggestionProvider{err: context.DeadlineExceeded},
			query:    "1 main",
			wantKind: KindUpstream,
			wantMsg:  "mapbox did not respond in time",
		},
		{
			name:     "malformed payload",
			provider: &mockSuggestionProvider{raw: map[string]any{"features": "oops"}},
			query:    "1 main",
			wantKind: KindNormalization,
			wantMsg:  "unable to process mapbox response",
		},
		{
			name:     "too long",
			provider: &mockSuggestionProvider{},
			query:    strings.Repeat("a", 11),
			maxLen:   10,
			wantKind: KindValidation,
			wantMsg:  "query must be at most 10 characters: query too long",
		},
		{
			name:     "control characters",
			provider: &mockSuggestionProvider{},
			query:    "1 main\x00",
			wantKind: KindValidation,
			wantMsg:  "query contains invalid characters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewSuggestionService(tt.provider, nil, SuggestionConfig{MaxQueryLength: tt.maxLen})
			got, err := svc.Suggest(context.Background(), tt.query)
			var se *Error
			if !errors.As(err, &se) || se.Kind != tt.wantKind {
				t.Fatalf("error = %v, want %s Error", err, tt.wantKind)
			}
			if len(se.Messages) != 1 || se.Messages[0] != tt.wantMsg {
				t.Errorf("Messages = %q, want %q", se.Messages, tt.wantMsg)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("result = %#v, want empty slice alongside error", got)
			}
		})
	}
}

func TestSuggestionService_FailureNotCached(t *testing.T) {
	p := &mockSuggestionProvider{err: &client.UpstreamError{StatusCode: 503}}
	c := cache.NewInMemoryCache()
	svc := NewSuggestionService(p, c, SuggestionConfig{TTL: time.Minute})
	ctx := context.Background()

	if _, err := svc.Suggest(ctx, "1 main"); err == nil {
		t.Fatal("Suggest() error = nil")
	}
	p.err = nil
	p.raw = decodeRaw(t, threeFeatures)
	got, err := svc.Suggest(ctx, "1 main")
	if err != nil || len(got) != 2 {
		t.Errorf("after recovery got %d suggestions, err %v", len(got), err)
	}
}
