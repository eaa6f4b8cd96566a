package resolve

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/registry-link/internal/resilience"
	"github.com/sells-group/registry-link/pkg/sam"
)

// RetrieverConfig holds the pacing of registry calls.
type RetrieverConfig struct {
	// StrategyDelay separates consecutive strategies.
	StrategyDelay time.Duration `mapstructure:"strategy_delay"`
	// RateLimitDelay precedes the single retry after a 429.
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

// DefaultRetrieverConfig returns the production pacing.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		StrategyDelay:  200 * time.Millisecond,
		RateLimitDelay: 2 * time.Second,
	}
}

// Retriever runs the strategy chain against the registry, stopping at the
// first strategy that finds anything.
type Retriever struct {
	client     sam.Client
	cache      ResultCache
	strategies []Strategy
	cfg        RetrieverConfig
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRetriever creates a retriever. A nil cache disables caching; no
// strategies means DefaultStrategies.
func NewRetriever(client sam.Client, cache ResultCache, cfg RetrieverConfig, strategies ...Strategy) *Retriever {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Retriever{
		client:     client,
		cache:      cache,
		strategies: strategies,
		cfg:        cfg,
		sleep:      resilience.Sleep,
	}
}

// Retrieve returns registry candidates for q. Upstream failures never
// surface: a failing strategy counts as empty and the chain moves on.
func (r *Retriever) Retrieve(ctx context.Context, q Query) []Candidate {
	key := CacheKey(q)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			cacheTotal.WithLabelValues("hit").Inc()
			zap.L().Debug("resolve: cache hit",
				zap.String("key", key),
				zap.Int("candidates", len(cached)),
			)
			return cached
		}
		cacheTotal.WithLabelValues("miss").Inc()
	}

	var (
		candidates []Candidate
		degraded   bool
		attempted  int
	)
	for _, s := range r.strategies {
		if !s.Applies(q) {
			continue
		}
		if attempted > 0 {
			if err := r.sleep(ctx, r.cfg.StrategyDelay); err != nil {
				return nil
			}
		}
		attempted++

		found, err := r.attempt(ctx, s, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			degraded = true
			strategyTotal.WithLabelValues(s.Name, "error").Inc()
			zap.L().Warn("resolve: strategy failed, treating as empty",
				zap.String("strategy", s.Name),
				zap.String("subject", q.SubjectName),
				zap.Int("status", resilience.StatusCode(err)),
				zap.Bool("transient", resilience.IsTransientHTTPStatus(resilience.StatusCode(err))),
				zap.Error(err),
			)
			continue
		}

		zap.L().Debug("resolve: strategy attempted",
			zap.String("strategy", s.Name),
			zap.String("subject", q.SubjectName),
			zap.Int("results", len(found)),
		)
		if len(found) > 0 {
			strategyTotal.WithLabelValues(s.Name, "hit").Inc()
			candidates = found
			break
		}
		strategyTotal.WithLabelValues(s.Name, "empty").Inc()
	}

	// Empty results from failed strategies are not cached.
	if r.cache != nil && (len(candidates) > 0 || !degraded) {
		r.cache.Set(key, candidates)
	}
	return candidates
}

func (r *Retriever) attempt(ctx context.Context, s Strategy, q Query) ([]Candidate, error) {
	retry := resilience.RetryOnceOnRateLimit(r.cfg.RateLimitDelay)
	retry.OnRetry = resilience.RetryLogger("sam", s.Name)

	entities, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]sam.Entity, error) {
		return r.client.Search(ctx, s.Build(q))
	})
	if err != nil {
		return nil, err
	}
	return FromEntities(entities), nil
}
