package narrative

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/cbc-interpretation-server/internal/domain"
)

var (
	// ErrNotFinalized is returned for reports that did not complete interpretation.
	ErrNotFinalized = errors.New("narrative requires a finalized report")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("narrative endpoint temporarily unavailable")
)

// Completer produces a completion for a system and a user message.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Service generates narratives for finalized reports. Calls go through the cache, then
// the rate limiter, then the circuit breaker. While the breaker is open the fallback,
// when set, writes the narrative instead.
type Service struct {
	completer Completer
	cache     Cache
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	fallback  domain.NarrativeGenerator
	logger    *logrus.Logger
}

// NewService wires a completer with caching, rate limiting and a circuit breaker.
// A nil cache disables caching.
func NewService(completer Completer, cache Cache, cfg domain.NarrativeConfig, logger *logrus.Logger) *Service {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	s := &Service{
		completer: completer,
		cache:     cache,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "narrative",
		MaxRequests: cfg.BreakerHalfOpen,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return s
}

// GenerateNarrative implements domain.NarrativeGenerator.
func (s *Service) GenerateNarrative(ctx context.Context, report *domain.Report) (string, error) {
	if !report.IsFinalized() {
		return "", ErrNotFinalized
	}

	key := report.Fingerprint()
	logger := s.logger.WithField("report_id", report.ID)

	if s.cache != nil {
		if text, ok, err := s.cache.Get(ctx, key); err != nil {
			logger.WithError(err).Warn("Narrative cache read failed")
		} else if ok {
			logger.Debug("Narrative served from cache")
			return text, nil
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}

	start := time.Now()
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.completer.Complete(ctx, systemPrompt, buildPrompt(report))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		if s.fallback != nil {
			logger.WithField("breaker", s.State()).Info("Narrative endpoint unavailable, using fallback")
			return s.fallback.GenerateNarrative(ctx, report)
		}
		return "", ErrUnavailable
	}
	if err != nil {
		logger.WithError(err).Warn("Narrative generation failed")
		return "", fmt.Errorf("failed to generate narrative: %w", err)
	}
	text := result.(string)

	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Narrative generated")

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, text); err != nil {
			logger.WithError(err).Warn("Narrative cache write failed")
		}
	}
	return text, nil
}

// WithFallback sets the generator used while the circuit breaker rejects calls.
// Fallback text is never cached.
func (s *Service) WithFallback(g domain.NarrativeGenerator) *Service {
	s.fallback = g
	return s
}

// State returns the circuit breaker state name.
func (s *Service) State() string {
	return s.breaker.State().String()
}

var _ domain.NarrativeGenerator = (*Service)(nil)

// Setup builds the service described by configuration: an HTTP client, a memory cache
// and, when a Redis URL is set, a shared cache tier. The local generator covers for an
// open breaker. The returned closer releases Redis.
func Setup(ctx context.Context, cfg domain.NarrativeConfig, cacheCfg domain.CacheConfig, logger *logrus.Logger) (*Service, func() error, error) {
	memory, err := NewMemoryCache(cacheCfg.Size, cacheCfg.DefaultTTL)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }
	var shared Cache
	if cacheCfg.RedisURL != "" {
		redisCache, err := NewRedisCache(ctx, cacheCfg)
		if err != nil {
			return nil, nil, err
		}
		shared = redisCache
		closer = redisCache.Close
	}

	svc := NewService(NewClient(cfg), NewTieredCache(memory, shared), cfg, logger).WithFallback(NewLocalGenerator())
	return svc, closer, nil
}
