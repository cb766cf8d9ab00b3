package external

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"inkbook/internal/logger"
	"inkbook/internal/metrics"
)

const providerRates = "exchange-rates"

// Rate sources
const (
	RateSourceLive     = "live"
	RateSourceCache    = "cache"
	RateSourceFallback = "fallback"
)

const eurBRLCacheKey = "rates:EUR:BRL"

type RatesConfig struct {
	URL      string
	CacheTTL time.Duration
	Fallback float64
	Timeout  time.Duration
}

// Rate is an exchange rate with where it came from.
type Rate struct {
	Value  float64
	Source string
}

// RateCache is a shared cache for exchange rates.
type RateCache interface {
	GetFloat(ctx context.Context, key string) (float64, bool, error)
	SetFloat(ctx context.Context, key string, value float64, ttl time.Duration) error
}

type ratesResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// RateClient looks up EUR→BRL. Results are cached for CacheTTL in the
// shared cache when one is configured and in process otherwise. When the
// lookup fails the configured fallback rate is used.
type RateClient struct {
	url        string
	ttl        time.Duration
	fallback   float64
	cache      RateCache
	httpClient *http.Client

	mu        sync.Mutex
	local     float64
	localTill time.Time
	now       func() time.Time
}

func NewRateClient(cfg RatesConfig, cache RateCache) *RateClient {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Fallback <= 0 {
		cfg.Fallback = 6.50
	}

	return &RateClient{
		url:        cfg.URL,
		ttl:        cfg.CacheTTL,
		fallback:   cfg.Fallback,
		cache:      cache,
		httpClient: newHTTPClient(cfg.Timeout),
		now:        time.Now,
	}
}

// EURToBRL never fails: a failed lookup yields the fallback rate.
func (c *RateClient) EURToBRL(ctx context.Context) Rate {
	if rate, ok := c.cached(ctx); ok {
		return Rate{Value: rate, Source: RateSourceCache}
	}

	rate, err := c.fetch(ctx)
	if err != nil {
		logger.WithContext(ctx).Warn("Exchange rate lookup failed, using fallback",
			"error", err, "fallback", c.fallback)
		metrics.RateFallbacks.Inc()
		return Rate{Value: c.fallback, Source: RateSourceFallback}
	}

	c.store(ctx, rate)
	return Rate{Value: rate, Source: RateSourceLive}
}

func (c *RateClient) cached(ctx context.Context) (float64, bool) {
	if c.cache != nil {
		rate, ok, err := c.cache.GetFloat(ctx, eurBRLCacheKey)
		if err != nil {
			logger.WithContext(ctx).Warn("Rate cache read failed", "error", err)
		} else if ok {
			return rate, true
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local > 0 && c.now().Before(c.localTill) {
		return c.local, true
	}
	return 0, false
}

func (c *RateClient) store(ctx context.Context, rate float64) {
	if c.cache != nil {
		if err := c.cache.SetFloat(ctx, eurBRLCacheKey, rate, c.ttl); err != nil {
			logger.WithContext(ctx).Warn("Rate cache write failed", "error", err)
		}
	}

	c.mu.Lock()
	c.local = rate
	c.localTill = c.now().Add(c.ttl)
	c.mu.Unlock()
}

func (c *RateClient) fetch(ctx context.Context) (float64, error) {
	var resp ratesResponse
	if err := doJSON(ctx, c.httpClient, providerRates, "get rate", http.MethodGet, c.url, nil, nil, &resp); err != nil {
		return 0, err
	}

	rate, ok := resp.Rates["BRL"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("response has no BRL rate")
	}
	return rate, nil
}

// ConvertEURToBRL converts and rounds to two decimals.
func ConvertEURToBRL(amountEUR, rate float64) float64 {
	return math.Round(amountEUR*rate*100) / 100
}
