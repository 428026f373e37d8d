package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/address-weather-service/internal/cache"
	"github.com/kjstillabower/address-weather-service/internal/models"
	"github.com/kjstillabower/address-weather-service/internal/observability"
	"github.com/kjstillabower/address-weather-service/internal/provider"
	"github.com/kjstillabower/address-weather-service/internal/validation"
)

// SuggestionConfig configures a SuggestionService.
type SuggestionConfig struct {
	// TTL enables caching of normalized suggestions when positive.
	TTL time.Duration
	// MaxQueryLength rejects longer queries (in characters); 0 disables the check.
	MaxQueryLength int
	FailOpen       bool
	Coalesce       bool
}

// SuggestionService serves address autocomplete suggestions.
type SuggestionService struct {
	provider  provider.SuggestionProvider
	cache     cache.Cache
	cfg       SuggestionConfig
	stampede  *stampedeTracker
	coalescer *requestCoalescer
}

// NewSuggestionService creates a SuggestionService. c may be nil when
// caching is disabled.
func NewSuggestionService(p provider.SuggestionProvider, c cache.Cache, cfg SuggestionConfig) *SuggestionService {
	var coalescer *requestCoalescer
	if cfg.Coalesce {
		coalescer = newRequestCoalescer()
	}
	return &SuggestionService{
		provider:  p,
		cache:     c,
		cfg:       cfg,
		stampede:  newStampedeTracker(),
		coalescer: coalescer,
	}
}

// Suggest returns suggestions for a partial address. A blank query returns an
// empty list without calling the provider.
func (s *SuggestionService) Suggest(ctx context.Context, query string) ([]models.AddressSuggestion, error) {
	q, err := validation.ValidateQuery(query, s.cfg.MaxQueryLength)
	if err != nil {
		if errors.Is(err, validation.ErrQueryTooLong) {
			err = fmt.Errorf("query must be at most %d characters: %w", s.cfg.MaxQueryLength, err)
		}
		return []models.AddressSuggestion{}, validationError(err)
	}
	if q == "" {
		return []models.AddressSuggestion{}, nil
	}

	key := SuggestionsKey(q)
	logger := observability.LoggerFromContext(ctx).With(zap.String("cache_key", key))

	compute := func(ctx context.Context) ([]models.AddressSuggestion, error) {
		defer s.stampede.track(kindSuggestions, key)()
		raw, err := s.provider.FetchSuggestions(ctx, q)
		if err != nil {
			logger.Warn("suggestion fetch failed", zap.String("provider", s.provider.Name()), zap.Error(err))
			return nil, upstreamError(s.provider.Name(), err)
		}
		suggestions, err := safeNormalize(func() ([]models.AddressSuggestion, error) {
			return s.provider.NormalizeSuggestions(raw)
		})
		if err != nil {
			logger.Error("suggestion normalization failed", zap.String("provider", s.provider.Name()), zap.Error(err))
			return nil, normalizationError(s.provider.Name(), err)
		}
		return suggestions, nil
	}

	suggestions, err := coalesce(ctx, s.coalescer, kindSuggestions, key, func(ctx context.Context) ([]models.AddressSuggestion, error) {
		if s.cache == nil || s.cfg.TTL <= 0 {
			return compute(ctx)
		}
		var opts []cache.FetchOption
		if s.cfg.FailOpen {
			opts = append(opts, cache.FailOpen(func(err error) {
				logger.Warn("cache unavailable, continuing without it", zap.Error(err))
			}))
		}
		fetched, err := fetchThrough(ctx, s.cache, kindSuggestions, key, s.cfg.TTL, compute, opts, logger)
		return fetched.Value, err
	})
	if err != nil {
		return []models.AddressSuggestion{}, asServiceError(err)
	}
	if suggestions == nil {
		suggestions = []models.AddressSuggestion{}
	}
	return suggestions, nil
}
