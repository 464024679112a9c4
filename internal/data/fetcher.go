// Package data wraps upstream bar providers with the protections a scan
// cycle needs: a circuit breaker, provider rate limiting, a Redis-backed
// cache with an in-memory fallback, and a freshness ceiling on served bars.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tradeedge/signalcore/internal/domain"
)

// Source fetches daily bars for one symbol, most recent last.
type Source interface {
	Bars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error)
	Name() string
}

// Config tunes the protective wrapper.
type Config struct {
	BarsDir           string  `yaml:"bars_dir"`
	BarLimit          int     `yaml:"bar_limit"`
	CacheTTLSecs      int     `yaml:"cache_ttl_secs"`
	MaxStalenessHours int     `yaml:"max_staleness_hours"`
	RatePerSec        float64 `yaml:"rate_per_sec"`
	Burst             int     `yaml:"burst"`
	FetchTimeoutSecs  int     `yaml:"fetch_timeout_secs"`
}

func DefaultConfig() Config {
	return Config{
		BarsDir:           "data/bars",
		BarLimit:          300,
		CacheTTLSecs:      300,
		MaxStalenessHours: 48,
		RatePerSec:        10,
		Burst:             20,
		FetchTimeoutSecs:  10,
	}
}

// GetCacheTTL returns the cache TTL as a time.Duration.
func (c Config) GetCacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// GetMaxStaleness returns the bar freshness ceiling as a time.Duration.
func (c Config) GetMaxStaleness() time.Duration {
	return time.Duration(c.MaxStalenessHours) * time.Hour
}

// GetFetchTimeout returns the per-fetch timeout as a time.Duration.
func (c Config) GetFetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// Fetcher is the guarded bar provider handed to the scan orchestrator.
type Fetcher struct {
	cfg     Config
	source  Source
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cache   *barCache
	now     func() time.Time
}

// NewFetcher wires the breaker and limiter around a source. rdb may be nil;
// caching then stays in process memory only.
func NewFetcher(cfg Config, source Source, rdb *redis.Client) *Fetcher {
	if cfg.BarLimit == 0 {
		cfg = DefaultConfig()
	}
	settings := gobreaker.Settings{
		Name:        source.Name(),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Data source breaker state change")
		},
	}
	return &Fetcher{
		cfg:     cfg,
		source:  source,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cache:   newBarCache(rdb, cfg.GetCacheTTL()),
		now:     time.Now,
	}
}

// Bars serves the symbol's history, cache first. A tripped breaker or an
// upstream failure surfaces as ErrSourceUnavailable; bars past the
// freshness ceiling surface as ErrStale.
func (f *Fetcher) Bars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	if bars, ok := f.cache.get(ctx, symbol); ok {
		return f.checkFreshness(symbol, bars)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait aborted for %s: %w", symbol, err)
	}

	result, err := f.breaker.Execute(func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, f.cfg.GetFetchTimeout())
		defer cancel()
		return f.source.Bars(fctx, symbol, f.cfg.BarLimit)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s breaker open for %s: %w",
				f.source.Name(), symbol, domain.ErrSourceUnavailable)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s fetch failed for %s: %v: %w",
			f.source.Name(), symbol, err, domain.ErrSourceUnavailable)
	}

	bars := result.([]domain.Bar)
	f.cache.put(ctx, symbol, bars)
	return f.checkFreshness(symbol, bars)
}

func (f *Fetcher) checkFreshness(symbol string, bars []domain.Bar) ([]domain.Bar, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s: %w", symbol, domain.ErrInsufficientHistory)
	}
	age := f.now().Sub(bars[len(bars)-1].Time)
	if age > f.cfg.GetMaxStaleness() {
		return nil, fmt.Errorf("last bar for %s is %s old: %w", symbol, age.Round(time.Minute), domain.ErrStale)
	}
	return bars, nil
}

// barCache is redis with a small in-process layer in front of it. Redis
// outages degrade to memory-only caching instead of failing fetches.
type barCache struct {
	rdb *redis.Client
	ttl time.Duration
	mem *memCache
}

func newBarCache(rdb *redis.Client, ttl time.Duration) *barCache {
	return &barCache{rdb: rdb, ttl: ttl, mem: newMemCache(ttl)}
}

func cacheKey(symbol string) string {
	return "signalcore:bars:" + symbol
}

func (c *barCache) get(ctx context.Context, symbol string) ([]domain.Bar, bool) {
	if bars, ok := c.mem.get(symbol); ok {
		return bars, true
	}
	if c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(symbol)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("symbol", symbol).Msg("Redis cache read failed")
		}
		return nil, false
	}
	var bars []domain.Bar
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, false
	}
	c.mem.put(symbol, bars)
	return bars, true
}

func (c *barCache) put(ctx context.Context, symbol string, bars []domain.Bar) {
	c.mem.put(symbol, bars)
	if c.rdb == nil {
		return
	}
	raw, err := json.Marshal(bars)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(symbol), raw, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("symbol", symbol).Msg("Redis cache write failed")
	}
}
